package storage

import (
	"fmt"
	"sort"

	"github.com/scrypster/memtor/pkg/types"
)

// ScopeFilters maps scope attribute keys (user_id, session_id, agent_id) to
// the exact value a record must carry under that key. Scope lookups are
// exact-match only; a missing bucket yields an empty result, never an error.
type ScopeFilters map[string]string

// Validate rejects filters on keys outside the fixed scope attribute set.
// Non-scope metadata belongs in a Filter list, which is evaluated by full
// scan rather than through the scope index.
func (s ScopeFilters) Validate() error {
	for key := range s {
		if !types.IsScopeKey(key) {
			return fmt.Errorf("%w: %q is not an indexed scope attribute", types.ErrInvalidArgument, key)
		}
	}
	return nil
}

// Keys returns the filter keys in deterministic order, so index intersection
// walks buckets in the same order on every call.
func (s ScopeFilters) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether the record's metadata carries every filtered scope
// value. Used by backends that check membership record-by-record instead of
// intersecting id sets.
func (s ScopeFilters) Matches(rec *types.Record) bool {
	for key, want := range s {
		got, ok := rec.Metadata[key].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// ScopeBucketKey builds the scope index bucket key for an attribute/value
// pair, e.g. "user_id:alice".
func ScopeBucketKey(attr, value string) string {
	return attr + ":" + value
}

// SortByTimestamp sorts records by creation time, ascending or descending.
// The sort is stable so records sharing a timestamp keep their bucket order,
// which keeps query results deterministic across repeated calls.
func SortByTimestamp(records []*types.Record, ascending bool) {
	sort.SliceStable(records, func(i, j int) bool {
		if ascending {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}
