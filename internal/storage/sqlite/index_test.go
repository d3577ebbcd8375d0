package sqlite

import (
	"context"
	"testing"

	"github.com/scrypster/memtor/internal/storage"
	"github.com/scrypster/memtor/pkg/types"
)

func TestReadBucket_MissingIsEmpty(t *testing.T) {
	s := newTestStore(t)

	ids, err := readBucket(context.Background(), s.db, scopeIndexTable, "user_id:nobody")
	if err != nil {
		t.Fatalf("readBucket failed: %v", err)
	}
	if ids != nil {
		t.Errorf("Expected nil for missing bucket, got %v", ids)
	}
}

func TestWriteBucket_PrunesEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "user_id:alice"

	if err := writeBucket(ctx, s.db, scopeIndexTable, key, []string{"r1"}); err != nil {
		t.Fatalf("writeBucket failed: %v", err)
	}
	if err := writeBucket(ctx, s.db, scopeIndexTable, key, nil); err != nil {
		t.Fatalf("writeBucket with empty list failed: %v", err)
	}

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scope_index WHERE bucket = ?", key).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count bucket rows: %v", err)
	}
	if count != 0 {
		t.Error("Expected emptied bucket row to be deleted")
	}
}

func TestAddToBucket_NoDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "session_id:s1"

	for i := 0; i < 3; i++ {
		if err := addToBucket(ctx, s.db, scopeIndexTable, key, "r1"); err != nil {
			t.Fatalf("addToBucket failed: %v", err)
		}
	}

	ids, err := readBucket(ctx, s.db, scopeIndexTable, key)
	if err != nil {
		t.Fatalf("readBucket failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "r1" {
		t.Errorf("Expected single membership, got %v", ids)
	}
}

func TestIntersectByScopes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := map[string][]string{
		"agent_id:bot":    {"r1", "r2", "r3"},
		"session_id:s1":   {"r2", "r3", "r4"},
		"user_id:alice":   {"r3"},
		"user_id:charlie": {"r9"},
	}
	for key, ids := range seed {
		if err := writeBucket(ctx, s.db, scopeIndexTable, key, ids); err != nil {
			t.Fatalf("Failed to seed bucket %q: %v", key, err)
		}
	}

	// No filters: everything allowed.
	ids, emptied, err := intersectByScopes(ctx, s.db, nil)
	if err != nil {
		t.Fatalf("intersectByScopes failed: %v", err)
	}
	if emptied || ids != nil {
		t.Errorf("Expected (nil, false) for no filters, got (%v, %v)", ids, emptied)
	}

	// Two-way intersection.
	ids, emptied, err = intersectByScopes(ctx, s.db, storage.ScopeFilters{
		types.ScopeAgentID:   "bot",
		types.ScopeSessionID: "s1",
	})
	if err != nil {
		t.Fatalf("intersectByScopes failed: %v", err)
	}
	if emptied || len(ids) != 2 || ids[0] != "r2" || ids[1] != "r3" {
		t.Errorf("Expected [r2 r3], got %v (emptied=%v)", ids, emptied)
	}

	// Missing bucket short-circuits to emptied.
	ids, emptied, err = intersectByScopes(ctx, s.db, storage.ScopeFilters{
		types.ScopeUserID:  "nobody",
		types.ScopeAgentID: "bot",
	})
	if err != nil {
		t.Fatalf("intersectByScopes failed: %v", err)
	}
	if !emptied || ids != nil {
		t.Errorf("Expected emptied result for missing bucket, got (%v, %v)", ids, emptied)
	}

	// Disjoint buckets empty out mid-intersection.
	_, emptied, err = intersectByScopes(ctx, s.db, storage.ScopeFilters{
		types.ScopeAgentID: "bot",
		types.ScopeUserID:  "charlie",
	})
	if err != nil {
		t.Fatalf("intersectByScopes failed: %v", err)
	}
	if !emptied {
		t.Error("Expected emptied result for disjoint buckets")
	}
}
