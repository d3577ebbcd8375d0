// Package types defines the public data model for Memtor: the Record unit
// stored and retrieved by the system, the metadata filter evaluator shared by
// storage and search, and the sentinel errors callers match against.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Reserved metadata keys used for secondary scope indexing. Only these keys
// are indexed; filtering on any other metadata key requires a full scan.
const (
	ScopeUserID    = "user_id"
	ScopeSessionID = "session_id"
	ScopeAgentID   = "agent_id"
)

// ScopeKeys returns the fixed set of indexed scope attribute keys.
func ScopeKeys() []string {
	return []string{ScopeUserID, ScopeSessionID, ScopeAgentID}
}

// IsScopeKey reports whether key is one of the reserved scope attributes.
func IsScopeKey(key string) bool {
	return key == ScopeUserID || key == ScopeSessionID || key == ScopeAgentID
}

// Snapshot is one entry in a record's update history: the content, metadata,
// and context the record carried before a successful update.
type Snapshot struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// Record is a single memory unit. Identity (ID) and Timestamp are fixed at
// creation; content, metadata, and embedding change only through updates,
// each of which appends the pre-update state to UpdateHistory.
type Record struct {
	// ID is the opaque unique identifier, generated at creation.
	ID string `json:"id"`

	// Content is the text body of the memory.
	Content string `json:"content"`

	// Embedding is the vector representation of Content, computed by an
	// external embedding provider. The core never computes embeddings; it
	// persists and compares them.
	Embedding []float64 `json:"embedding,omitempty"`

	// Metadata maps string keys to scalar values (string, number, bool).
	// May include the reserved scope keys user_id, session_id, agent_id.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Context is an optional structured side-payload produced by external
	// knowledge extraction. It is opaque to storage and ranking.
	Context map[string]any `json:"context,omitempty"`

	// Timestamp is the creation time. Updates do not change it, so the
	// timestamp index ordering is stable across edits.
	Timestamp time.Time `json:"timestamp"`

	// UpdateHistory is the append-only log of pre-update snapshots, one per
	// successful update. Unbounded; callers may prune it externally.
	UpdateHistory []Snapshot `json:"update_history,omitempty"`
}

// NewRecord creates a record with a fresh ID and the current time as its
// creation timestamp. The metadata map is copied so later caller mutation
// does not alias stored state.
func NewRecord(content string, metadata map[string]any, embedding []float64) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Content:   content,
		Embedding: embedding,
		Metadata:  copyMetadata(metadata),
		Timestamp: time.Now().UTC(),
	}
}

// SetScope writes the non-empty scope identifiers into the record's metadata
// under the reserved keys.
func (r *Record) SetScope(userID, sessionID, agentID string) {
	if userID == "" && sessionID == "" && agentID == "" {
		return
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	if userID != "" {
		r.Metadata[ScopeUserID] = userID
	}
	if sessionID != "" {
		r.Metadata[ScopeSessionID] = sessionID
	}
	if agentID != "" {
		r.Metadata[ScopeAgentID] = agentID
	}
}

// ScopeValues returns the scope attribute values currently present in the
// record's metadata, keyed by scope attribute. Non-string values under a
// scope key are ignored rather than indexed.
func (r *Record) ScopeValues() map[string]string {
	scopes := make(map[string]string, 3)
	for _, key := range ScopeKeys() {
		if v, ok := r.Metadata[key].(string); ok && v != "" {
			scopes[key] = v
		}
	}
	return scopes
}

// ApplyUpdate replaces the record's content and embedding and merges the new
// metadata over the existing map (new keys win, others are preserved). The
// pre-update content, metadata, and context are appended to UpdateHistory
// first, so the history entry always holds the state being replaced.
func (r *Record) ApplyUpdate(content string, metadata map[string]any, embedding []float64) {
	r.UpdateHistory = append(r.UpdateHistory, Snapshot{
		Content:  r.Content,
		Metadata: copyMetadata(r.Metadata),
		Context:  copyMetadata(r.Context),
	})

	r.Content = content
	r.Embedding = embedding
	if len(metadata) > 0 {
		if r.Metadata == nil {
			r.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			r.Metadata[k] = v
		}
	}
}

// Clone returns a deep copy of the record. Stores return clones so callers
// can mutate results without corrupting indexed state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Metadata = copyMetadata(r.Metadata)
	clone.Context = copyMetadata(r.Context)
	if r.Embedding != nil {
		clone.Embedding = append([]float64(nil), r.Embedding...)
	}
	if r.UpdateHistory != nil {
		clone.UpdateHistory = make([]Snapshot, len(r.UpdateHistory))
		for i, s := range r.UpdateHistory {
			clone.UpdateHistory[i] = Snapshot{
				Content:  s.Content,
				Metadata: copyMetadata(s.Metadata),
				Context:  copyMetadata(s.Context),
			}
		}
	}
	return &clone
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
