// Package memory provides an in-process RecordStore backed by native maps.
//
// It keeps the same primary-table / timestamp-index / scope-index triple as
// the persisted backends, guarded by a single RWMutex so every mutation is
// observed either fully applied or not at all. Suitable for tests, demos,
// and deployments that do not need persistence.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scrypster/memtor/internal/storage"
	"github.com/scrypster/memtor/pkg/types"
)

var _ storage.RecordStore = (*RecordStore)(nil)

// RecordStore implements storage.RecordStore using in-process maps.
type RecordStore struct {
	mu sync.RWMutex

	records    map[string]*types.Record
	tsIndex    map[string][]string // timestamp bucket key -> ids
	scopeIndex map[string][]string // "attr:value" -> ids
}

// NewRecordStore creates an empty in-process record store.
func NewRecordStore() *RecordStore {
	s := &RecordStore{}
	s.reset()
	return s
}

func (s *RecordStore) reset() {
	s.records = make(map[string]*types.Record)
	s.tsIndex = make(map[string][]string)
	s.scopeIndex = make(map[string][]string)
}

// Save writes a record with upsert semantics and refreshes both indices.
func (s *RecordStore) Save(_ context.Context, record *types.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("memory: %w: record with non-empty ID is required", types.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[record.ID]; ok {
		s.indexOnDelete(existing)
	}
	stored := record.Clone()
	s.records[stored.ID] = stored
	s.indexOnWrite(stored)
	return nil
}

// Load retrieves a record by ID.
func (s *RecordStore) Load(_ context.Context, id string) (*types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return rec.Clone(), nil
}

// Update applies the merge-update semantics and refreshes scope buckets when
// the merged metadata moves the record between them.
func (s *RecordStore) Update(_ context.Context, id, content string, metadata map[string]any, embedding []float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}

	s.removeFromScopeBuckets(rec)
	rec.ApplyUpdate(content, metadata, embedding)
	s.addToScopeBuckets(rec)
	return true, nil
}

// Delete removes the record and prunes its index buckets.
func (s *RecordStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}

	delete(s.records, id)
	s.indexOnDelete(rec)
	return true, nil
}

// ListAll returns every stored record ordered by creation time (ID as the
// tiebreak), which keeps downstream ranking deterministic.
func (s *RecordStore) ListAll(_ context.Context) ([]*types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindRecent walks timestamp buckets newest-first and stops once limit
// records pass the scope filters. Buckets past the stopping point are never
// touched.
func (s *RecordStore) FindRecent(_ context.Context, limit int, scopes storage.ScopeFilters) ([]*types.Record, error) {
	if err := scopes.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []*types.Record{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, empty := s.intersectByScopes(scopes)
	if empty {
		return []*types.Record{}, nil
	}
	allowed := idSet(ids)

	keys := s.sortedTimestampKeys()
	out := make([]*types.Record, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		for _, id := range s.tsIndex[keys[i]] {
			if allowed != nil && !allowed[id] {
				continue
			}
			if rec, ok := s.records[id]; ok {
				out = append(out, rec.Clone())
				if len(out) == limit {
					break
				}
			}
		}
	}
	return out, nil
}

// FindByTimeRange returns records with timestamps in [start, end] inclusive,
// intersected with the scope filters, ascending by timestamp.
func (s *RecordStore) FindByTimeRange(_ context.Context, start, end time.Time, scopes storage.ScopeFilters) ([]*types.Record, error) {
	if err := scopes.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, empty := s.intersectByScopes(scopes)
	if empty {
		return []*types.Record{}, nil
	}
	allowed := idSet(ids)

	startKey := storage.TimestampBucketKey(start)
	endKey := storage.TimestampBucketKey(end)

	out := []*types.Record{}
	for _, key := range s.sortedTimestampKeys() {
		if key < startKey || key > endKey {
			continue
		}
		for _, id := range s.tsIndex[key] {
			if allowed != nil && !allowed[id] {
				continue
			}
			if rec, ok := s.records[id]; ok {
				out = append(out, rec.Clone())
			}
		}
	}
	return out, nil
}

// FindByScopes returns records matching every scope filter, descending by
// timestamp. At least one filter is required.
func (s *RecordStore) FindByScopes(_ context.Context, scopes storage.ScopeFilters) ([]*types.Record, error) {
	if err := scopes.Validate(); err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return []*types.Record{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, empty := s.intersectByScopes(scopes)
	if empty || len(ids) == 0 {
		return []*types.Record{}, nil
	}

	out := make([]*types.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	storage.SortByTimestamp(out, false)
	return out, nil
}

// ClearAll drops all three structures and re-initializes them.
func (s *RecordStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// Close is a no-op; there are no external resources to release.
func (s *RecordStore) Close() error { return nil }

// indexOnWrite inserts the record's id into its timestamp bucket and one
// scope bucket per scope attribute present in its metadata.
func (s *RecordStore) indexOnWrite(rec *types.Record) {
	tsKey := storage.TimestampBucketKey(rec.Timestamp)
	s.tsIndex[tsKey] = storage.AddToBucket(s.tsIndex[tsKey], rec.ID)
	s.addToScopeBuckets(rec)
}

// indexOnDelete removes the record's id from every bucket it belongs to,
// pruning buckets that become empty.
func (s *RecordStore) indexOnDelete(rec *types.Record) {
	tsKey := storage.TimestampBucketKey(rec.Timestamp)
	if ids := storage.RemoveFromBucket(s.tsIndex[tsKey], rec.ID); ids == nil {
		delete(s.tsIndex, tsKey)
	} else {
		s.tsIndex[tsKey] = ids
	}
	s.removeFromScopeBuckets(rec)
}

func (s *RecordStore) addToScopeBuckets(rec *types.Record) {
	for attr, value := range rec.ScopeValues() {
		key := storage.ScopeBucketKey(attr, value)
		s.scopeIndex[key] = storage.AddToBucket(s.scopeIndex[key], rec.ID)
	}
}

func (s *RecordStore) removeFromScopeBuckets(rec *types.Record) {
	for attr, value := range rec.ScopeValues() {
		key := storage.ScopeBucketKey(attr, value)
		if ids := storage.RemoveFromBucket(s.scopeIndex[key], rec.ID); ids == nil {
			delete(s.scopeIndex, key)
		} else {
			s.scopeIndex[key] = ids
		}
	}
}

// intersectByScopes resolves the scope filters to the allowed id list, in
// the deterministic order of the first bucket walked. Returns (nil, false)
// when no filters are given (everything allowed) and (nil, true) as soon as
// any intersection step empties out, so later lookups are skipped.
func (s *RecordStore) intersectByScopes(scopes storage.ScopeFilters) ([]string, bool) {
	if len(scopes) == 0 {
		return nil, false
	}

	var allowed []string
	for i, attr := range scopes.Keys() {
		bucket := s.scopeIndex[storage.ScopeBucketKey(attr, scopes[attr])]
		if len(bucket) == 0 {
			return nil, true
		}
		if i == 0 {
			allowed = append([]string(nil), bucket...)
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
			return nil, true
		}
		allowed = next
	}
	return allowed, false
}

// idSet converts an ordered id list to a membership set. A nil list means
// "everything allowed" and yields a nil set.
func idSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// sortedTimestampKeys returns the timestamp bucket keys in ascending order.
func (s *RecordStore) sortedTimestampKeys() []string {
	keys := make([]string, 0, len(s.tsIndex))
	for k := range s.tsIndex {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
