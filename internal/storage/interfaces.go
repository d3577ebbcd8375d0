// Package storage defines the record store contract shared by all backends.
//
// A RecordStore maintains three structures: the primary id → record table, a
// timestamp index (time → set of ids), and a scope-attribute index
// (attribute:value → set of ids). Every mutating call updates all three as
// one logical unit, so no reader observes a record present in the primary
// table but absent from its index buckets, or vice versa.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/memtor/pkg/types"
)

// RecordStore provides CRUD operations and index-backed queries over records.
type RecordStore interface {
	// Save writes a record with upsert-by-id semantics and refreshes both
	// indices. Re-saving an existing id replaces its payload and moves it
	// between scope buckets when the new metadata demands it.
	Save(ctx context.Context, record *types.Record) error

	// Load retrieves a record by ID. Returns types.ErrNotFound when absent.
	Load(ctx context.Context, id string) (*types.Record, error)

	// Update replaces content and embedding, merges metadata (new keys win),
	// and appends the pre-update snapshot to the record's history. Scope
	// buckets are refreshed when the merge changes a scope key; the creation
	// timestamp is never touched. Returns (false, nil) when the id is absent.
	Update(ctx context.Context, id, content string, metadata map[string]any, embedding []float64) (bool, error)

	// Delete removes the record from the primary table and prunes it from
	// every index bucket it belonged to, removing buckets that become empty.
	// Returns (false, nil) when the id is absent.
	Delete(ctx context.Context, id string) (bool, error)

	// ListAll materializes every stored record. Order follows backend
	// storage order and is not guaranteed stable across backends.
	ListAll(ctx context.Context) ([]*types.Record, error)

	// FindRecent walks the timestamp index in descending time order,
	// applying scope filters per bucket, and stops as soon as limit records
	// are collected. Trailing buckets are never materialized.
	FindRecent(ctx context.Context, limit int, scopes ScopeFilters) ([]*types.Record, error)

	// FindByTimeRange collects records whose timestamp falls in [start, end]
	// inclusive, intersected with the scope filters, sorted ascending by
	// timestamp.
	FindByTimeRange(ctx context.Context, start, end time.Time, scopes ScopeFilters) ([]*types.Record, error)

	// FindByScopes returns the records matching every given scope filter,
	// sorted descending by timestamp. At least one scope filter is required;
	// with none the result is empty; this path is not a substitute for
	// ListAll.
	FindByScopes(ctx context.Context, scopes ScopeFilters) ([]*types.Record, error)

	// ClearAll empties the primary table and both indices and leaves the
	// store ready for writes without any first-write special casing.
	ClearAll(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
