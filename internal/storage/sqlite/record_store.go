// Package sqlite provides the default persisted RecordStore backend.
//
// Records are stored as JSON payloads in a key-value style table; the
// timestamp and scope indices live in two sibling bucket tables. All three
// are mutated inside a single SQL transaction per call, which gives the
// index-consistency invariant for free: a reader either sees the whole
// mutation or none of it.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/memtor/internal/storage"
	"github.com/scrypster/memtor/pkg/types"
)

var _ storage.RecordStore = (*RecordStore)(nil)

// RecordStore implements storage.RecordStore using SQLite.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore opens a SQLite database at the given DSN (a file path or
// ":memory:"), configures WAL mode, and creates the schema.
func NewRecordStore(dsn string) (*RecordStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load;
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	// Wait instead of failing fast when the connection is held by another
	// goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &RecordStore{db: db}, nil
}

// Save writes a record with upsert semantics. When the id already exists,
// the old index entries are removed first so a changed scope value moves the
// record between buckets instead of leaving a stale membership behind.
func (s *RecordStore) Save(ctx context.Context, record *types.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("sqlite: %w: record with non-empty ID is required", types.ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := loadRecord(ctx, tx, record.ID)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if existing != nil {
		if err := indexOnDelete(ctx, tx, existing); err != nil {
			return err
		}
	}

	if err := writeRecord(ctx, tx, record); err != nil {
		return err
	}
	if err := indexOnWrite(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit save: %w", err)
	}
	return nil
}

// Load retrieves a record by ID.
func (s *RecordStore) Load(ctx context.Context, id string) (*types.Record, error) {
	rec, err := loadRecord(ctx, s.db, id)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies the merge-update semantics inside one transaction: history
// append, content/embedding replacement, metadata merge, and scope bucket
// refresh. The timestamp bucket is untouched because creation time never
// changes.
func (s *RecordStore) Update(ctx context.Context, id, content string, metadata map[string]any, embedding []float64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := loadRecord(ctx, tx, id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := removeFromScopeBuckets(ctx, tx, rec); err != nil {
		return false, err
	}
	rec.ApplyUpdate(content, metadata, embedding)
	if err := writeRecord(ctx, tx, rec); err != nil {
		return false, err
	}
	if err := addToScopeBuckets(ctx, tx, rec); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: commit update: %w", err)
	}
	return true, nil
}

// Delete removes the record and prunes it from its index buckets.
func (s *RecordStore) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := loadRecord(ctx, tx, id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("sqlite: delete record %q: %w", id, err)
	}
	if err := indexOnDelete(ctx, tx, rec); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: commit delete: %w", err)
	}
	return true, nil
}

// ListAll materializes every stored record in rowid (insertion) order.
func (s *RecordStore) ListAll(ctx context.Context) ([]*types.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM records ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan record payload: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate records: %w", err)
	}
	return out, nil
}

// FindRecent walks timestamp buckets newest-first and stops collecting ids
// as soon as limit matches are found; only the matched records are loaded.
func (s *RecordStore) FindRecent(ctx context.Context, limit int, scopes storage.ScopeFilters) ([]*types.Record, error) {
	if err := scopes.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []*types.Record{}, nil
	}

	allowed, empty, err := s.resolveScopes(ctx, scopes)
	if err != nil {
		return nil, err
	}
	if empty {
		return []*types.Record{}, nil
	}

	ids, err := s.collectBucketIDs(ctx,
		"SELECT bucket, ids FROM timestamp_index ORDER BY bucket DESC", nil,
		allowed, limit)
	if err != nil {
		return nil, err
	}
	return s.loadRecords(ctx, ids)
}

// FindByTimeRange collects records in [start, end] inclusive, ascending.
func (s *RecordStore) FindByTimeRange(ctx context.Context, start, end time.Time, scopes storage.ScopeFilters) ([]*types.Record, error) {
	if err := scopes.Validate(); err != nil {
		return nil, err
	}

	allowed, empty, err := s.resolveScopes(ctx, scopes)
	if err != nil {
		return nil, err
	}
	if empty {
		return []*types.Record{}, nil
	}

	ids, err := s.collectBucketIDs(ctx,
		"SELECT bucket, ids FROM timestamp_index WHERE bucket >= ? AND bucket <= ? ORDER BY bucket ASC",
		[]any{storage.TimestampBucketKey(start), storage.TimestampBucketKey(end)},
		allowed, 0)
	if err != nil {
		return nil, err
	}
	return s.loadRecords(ctx, ids)
}

// FindByScopes resolves the scope intersection and loads the matches,
// descending by timestamp. At least one scope filter is required.
func (s *RecordStore) FindByScopes(ctx context.Context, scopes storage.ScopeFilters) ([]*types.Record, error) {
	if err := scopes.Validate(); err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return []*types.Record{}, nil
	}

	ids, emptied, err := intersectByScopes(ctx, s.db, scopes)
	if err != nil {
		return nil, err
	}
	if emptied || len(ids) == 0 {
		return []*types.Record{}, nil
	}

	out, err := s.loadRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	storage.SortByTimestamp(out, false)
	return out, nil
}

// ClearAll empties the primary table and both index tables in one
// transaction. The tables stay in place, so the next write needs no
// first-write special casing.
func (s *RecordStore) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"records", timestampIndexTable, scopeIndexTable} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqlite: clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit clear: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

// resolveScopes turns scope filters into a membership set. A nil set means
// "everything allowed".
func (s *RecordStore) resolveScopes(ctx context.Context, scopes storage.ScopeFilters) (map[string]bool, bool, error) {
	ids, emptied, err := intersectByScopes(ctx, s.db, scopes)
	if err != nil || emptied {
		return nil, emptied, err
	}
	if ids == nil {
		return nil, false, nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, false, nil
}

// collectBucketIDs scans an index query and gathers matching ids in bucket
// order. The rows are fully consumed before any record is loaded because the
// store runs on a single connection. A limit of 0 means unbounded.
func (s *RecordStore) collectBucketIDs(ctx context.Context, query string, args []any, allowed map[string]bool, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan timestamp index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var bucket, raw string
		if err := rows.Scan(&bucket, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan index bucket: %w", err)
		}
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("sqlite: decode index bucket %q: %w", bucket, err)
		}
		for _, id := range ids {
			if allowed != nil && !allowed[id] {
				continue
			}
			out = append(out, id)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate index buckets: %w", err)
	}
	return out, nil
}

func (s *RecordStore) loadRecords(ctx context.Context, ids []string) ([]*types.Record, error) {
	out := make([]*types.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := loadRecord(ctx, s.db, id)
		if err == sql.ErrNoRows {
			// An id in a bucket without a primary row would be an index
			// consistency violation; surface it instead of hiding it.
			return nil, fmt.Errorf("sqlite: index references missing record %q", id)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func loadRecord(ctx context.Context, q querier, id string) (*types.Record, error) {
	var payload string
	err := q.QueryRowContext(ctx, "SELECT payload FROM records WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load record %q: %w", id, err)
	}
	return decodeRecord(payload)
}

func writeRecord(ctx context.Context, q querier, rec *types.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sqlite: encode record %q: %w", rec.ID, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO records (id, payload) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, rec.ID, string(payload))
	if err != nil {
		return fmt.Errorf("sqlite: write record %q: %w", rec.ID, err)
	}
	return nil
}

func decodeRecord(payload string) (*types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("sqlite: decode record payload: %w", err)
	}
	return &rec, nil
}
