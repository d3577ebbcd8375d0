package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/scrypster/memtor/internal/storage"
	"github.com/scrypster/memtor/pkg/types"
)

const (
	timestampIndexTable = "timestamp_index"
	scopeIndexTable     = "scope_index"
)

// querier is the subset of *sql.DB and *sql.Tx the index helpers need, so
// index maintenance runs inside the caller's transaction while read-only
// lookups can go straight to the pool.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// indexOnWrite inserts the record's id into its timestamp bucket and into
// one scope bucket per scope attribute present in its metadata.
func indexOnWrite(ctx context.Context, q querier, rec *types.Record) error {
	tsKey := storage.TimestampBucketKey(rec.Timestamp)
	if err := addToBucket(ctx, q, timestampIndexTable, tsKey, rec.ID); err != nil {
		return err
	}
	for attr, value := range rec.ScopeValues() {
		if err := addToBucket(ctx, q, scopeIndexTable, storage.ScopeBucketKey(attr, value), rec.ID); err != nil {
			return err
		}
	}
	return nil
}

// indexOnDelete removes the record's id from every bucket it belongs to,
// pruning buckets that become empty. Missing buckets are not an error.
func indexOnDelete(ctx context.Context, q querier, rec *types.Record) error {
	tsKey := storage.TimestampBucketKey(rec.Timestamp)
	if err := removeFromBucket(ctx, q, timestampIndexTable, tsKey, rec.ID); err != nil {
		return err
	}
	return removeFromScopeBuckets(ctx, q, rec)
}

// removeFromScopeBuckets prunes the record's id from its scope buckets only,
// leaving the timestamp bucket alone. Update uses this before re-indexing,
// since the creation timestamp never changes.
func removeFromScopeBuckets(ctx context.Context, q querier, rec *types.Record) error {
	for attr, value := range rec.ScopeValues() {
		if err := removeFromBucket(ctx, q, scopeIndexTable, storage.ScopeBucketKey(attr, value), rec.ID); err != nil {
			return err
		}
	}
	return nil
}

// addToScopeBuckets is the scope-only counterpart of indexOnWrite, used by
// Update after the metadata merge.
func addToScopeBuckets(ctx context.Context, q querier, rec *types.Record) error {
	for attr, value := range rec.ScopeValues() {
		if err := addToBucket(ctx, q, scopeIndexTable, storage.ScopeBucketKey(attr, value), rec.ID); err != nil {
			return err
		}
	}
	return nil
}

// readBucket loads a bucket's id list. A missing bucket yields nil, never an
// error.
func readBucket(ctx context.Context, q querier, table, key string) ([]string, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT ids FROM "+table+" WHERE bucket = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read %s bucket %q: %w", table, key, err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("sqlite: decode %s bucket %q: %w", table, key, err)
	}
	return ids, nil
}

// writeBucket stores a bucket's id list, deleting the row when the list is
// empty so index tables hold only live buckets.
func writeBucket(ctx context.Context, q querier, table, key string, ids []string) error {
	if len(ids) == 0 {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE bucket = ?", key); err != nil {
			return fmt.Errorf("sqlite: prune %s bucket %q: %w", table, key, err)
		}
		return nil
	}

	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s bucket %q: %w", table, key, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO `+table+` (bucket, ids) VALUES (?, ?)
		ON CONFLICT(bucket) DO UPDATE SET ids = excluded.ids
	`, key, string(raw))
	if err != nil {
		return fmt.Errorf("sqlite: write %s bucket %q: %w", table, key, err)
	}
	return nil
}

func addToBucket(ctx context.Context, q querier, table, key, id string) error {
	ids, err := readBucket(ctx, q, table, key)
	if err != nil {
		return err
	}
	return writeBucket(ctx, q, table, key, storage.AddToBucket(ids, id))
}

func removeFromBucket(ctx context.Context, q querier, table, key, id string) error {
	ids, err := readBucket(ctx, q, table, key)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return writeBucket(ctx, q, table, key, storage.RemoveFromBucket(ids, id))
}

// intersectByScopes resolves scope filters to the allowed id list, in the
// deterministic order of the first bucket walked. Returns (nil, false, nil)
// when no filters are given and (nil, true, nil) as soon as an intersection
// step empties out, so remaining buckets are never read.
func intersectByScopes(ctx context.Context, q querier, scopes storage.ScopeFilters) ([]string, bool, error) {
	if len(scopes) == 0 {
		return nil, false, nil
	}

	var allowed []string
	for i, attr := range scopes.Keys() {
		bucket, err := readBucket(ctx, q, scopeIndexTable, storage.ScopeBucketKey(attr, scopes[attr]))
		if err != nil {
			return nil, false, err
		}
		if len(bucket) == 0 {
			return nil, true, nil
		}
		if i == 0 {
			allowed = bucket
			continue
		}
		members := make(map[string]bool, len(bucket))
		for _, id := range bucket {
			members[id] = true
		}
		next := allowed[:0]
		for _, id := range allowed {
			if members[id] {
				next = append(next, id)
			}
		}
		if len(next) == 0 {
			return nil, true, nil
		}
		allowed = next
	}
	return allowed, false, nil
}
