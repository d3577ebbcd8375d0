package types

import (
	"testing"
)

func TestNewRecordGeneratesUniqueIDs(t *testing.T) {
	a := NewRecord("first", nil, nil)
	b := NewRecord("second", nil, nil)

	if a.ID == "" || b.ID == "" {
		t.Fatal("NewRecord must assign a non-empty ID")
	}
	if a.ID == b.ID {
		t.Fatalf("expected unique IDs, both records got %q", a.ID)
	}
	if a.Timestamp.IsZero() {
		t.Error("NewRecord must assign a creation timestamp")
	}
}

func TestNewRecordCopiesMetadata(t *testing.T) {
	meta := map[string]any{"tag": "animals"}
	rec := NewRecord("The quick brown fox", meta, nil)

	meta["tag"] = "mutated"
	if rec.Metadata["tag"] != "animals" {
		t.Errorf("record metadata aliased caller map: got %v", rec.Metadata["tag"])
	}
}

func TestSetScopeWritesReservedKeys(t *testing.T) {
	rec := NewRecord("content", nil, nil)
	rec.SetScope("u1", "s1", "")

	if rec.Metadata[ScopeUserID] != "u1" {
		t.Errorf("user_id: got %v, want u1", rec.Metadata[ScopeUserID])
	}
	if rec.Metadata[ScopeSessionID] != "s1" {
		t.Errorf("session_id: got %v, want s1", rec.Metadata[ScopeSessionID])
	}
	if _, ok := rec.Metadata[ScopeAgentID]; ok {
		t.Error("empty agent_id must not be written into metadata")
	}

	scopes := rec.ScopeValues()
	if len(scopes) != 2 || scopes[ScopeUserID] != "u1" || scopes[ScopeSessionID] != "s1" {
		t.Errorf("ScopeValues: got %v", scopes)
	}
}

func TestApplyUpdateAppendsHistoryAndMergesMetadata(t *testing.T) {
	rec := NewRecord("v1", map[string]any{"tag": "animals", "year": 2020}, []float64{1, 0})
	rec.Context = map[string]any{"summary": "old"}

	rec.ApplyUpdate("v2", map[string]any{"year": 2021, "reviewed": true}, []float64{0, 1})

	if rec.Content != "v2" {
		t.Errorf("content: got %q, want v2", rec.Content)
	}
	if rec.Embedding[0] != 0 || rec.Embedding[1] != 1 {
		t.Errorf("embedding not replaced: got %v", rec.Embedding)
	}

	// Merge semantics: new keys win, unrelated keys survive.
	if rec.Metadata["tag"] != "animals" {
		t.Errorf("tag should be preserved, got %v", rec.Metadata["tag"])
	}
	if rec.Metadata["year"] != 2021 {
		t.Errorf("year should be overwritten, got %v", rec.Metadata["year"])
	}
	if rec.Metadata["reviewed"] != true {
		t.Errorf("reviewed should be added, got %v", rec.Metadata["reviewed"])
	}

	if len(rec.UpdateHistory) != 1 {
		t.Fatalf("history length: got %d, want 1", len(rec.UpdateHistory))
	}
	snap := rec.UpdateHistory[0]
	if snap.Content != "v1" {
		t.Errorf("history content: got %q, want v1", snap.Content)
	}
	if snap.Metadata["year"] != 2020 {
		t.Errorf("history metadata must hold the pre-update value, got %v", snap.Metadata["year"])
	}
	if snap.Context["summary"] != "old" {
		t.Errorf("history context: got %v", snap.Context)
	}
}

func TestApplyUpdateHistoryIsAppendOnly(t *testing.T) {
	rec := NewRecord("v1", nil, nil)
	rec.ApplyUpdate("v2", nil, nil)
	rec.ApplyUpdate("v3", nil, nil)

	if len(rec.UpdateHistory) != 2 {
		t.Fatalf("history length: got %d, want 2", len(rec.UpdateHistory))
	}
	if rec.UpdateHistory[0].Content != "v1" || rec.UpdateHistory[1].Content != "v2" {
		t.Errorf("history order wrong: %q, %q", rec.UpdateHistory[0].Content, rec.UpdateHistory[1].Content)
	}
}

func TestCloneIsDeep(t *testing.T) {
	rec := NewRecord("content", map[string]any{"tag": "x"}, []float64{0.5})
	clone := rec.Clone()

	clone.Metadata["tag"] = "y"
	clone.Embedding[0] = 0.9

	if rec.Metadata["tag"] != "x" {
		t.Error("clone metadata aliases original")
	}
	if rec.Embedding[0] != 0.5 {
		t.Error("clone embedding aliases original")
	}
}
