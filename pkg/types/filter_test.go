package types

import (
	"errors"
	"testing"
)

func filterRecords() []*Record {
	return []*Record{
		{ID: "a", Metadata: map[string]any{"tag": "animals", "year": 2020}},
		{ID: "b", Metadata: map[string]any{"tag": "literature", "year": 2021}},
		{ID: "c", Metadata: map[string]any{"tag": "animals"}}, // no year key
	}
}

func TestApplyFiltersNumericComparison(t *testing.T) {
	got, err := ApplyFilters(filterRecords(), []Filter{{Key: "year", Op: OpGreaterOrEqual, Value: 2021}})
	if err != nil {
		t.Fatalf("ApplyFilters() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("year >= 2021: got %d records, want exactly [b]", len(got))
	}
}

func TestApplyFiltersMissingKeyExcludedEvenForNotEqual(t *testing.T) {
	// Record "c" has no year key; key presence is a precondition of any
	// operator match, so != must still exclude it.
	got, err := ApplyFilters(filterRecords(), []Filter{{Key: "year", Op: OpNotEqual, Value: 1999}})
	if err != nil {
		t.Fatalf("ApplyFilters() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("year != 1999: got %d records, want 2", len(got))
	}
	for _, rec := range got {
		if rec.ID == "c" {
			t.Error("record without the filtered key must be excluded")
		}
	}
}

func TestApplyFiltersAndSemantics(t *testing.T) {
	got, err := ApplyFilters(filterRecords(), []Filter{
		{Key: "tag", Op: OpEqual, Value: "animals"},
		{Key: "year", Op: OpLess, Value: 2021},
	})
	if err != nil {
		t.Fatalf("ApplyFilters() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("conjunction: got %d records, want exactly [a]", len(got))
	}
}

func TestApplyFiltersIntAndFloatUnify(t *testing.T) {
	// Metadata that went through a JSON round-trip stores numbers as
	// float64; an int-valued filter must still compare.
	recs := []*Record{{ID: "a", Metadata: map[string]any{"year": float64(2020)}}}
	got, err := ApplyFilters(recs, []Filter{{Key: "year", Op: OpEqual, Value: 2020}})
	if err != nil {
		t.Fatalf("ApplyFilters() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatal("int filter value must match float64 stored value")
	}
}

func TestFilterUnknownOperatorIsError(t *testing.T) {
	_, err := ApplyFilters(filterRecords(), []Filter{{Key: "year", Op: Operator("~="), Value: 2020}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unknown operator: got %v, want ErrInvalidArgument", err)
	}
}

func TestFilterIncompatibleTypesIsError(t *testing.T) {
	_, err := ApplyFilters(filterRecords(), []Filter{{Key: "tag", Op: OpGreater, Value: 5}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("string vs number: got %v, want ErrInvalidArgument", err)
	}
}

func TestFilterBoolOnlySupportsEquality(t *testing.T) {
	recs := []*Record{{ID: "a", Metadata: map[string]any{"flag": true}}}

	got, err := ApplyFilters(recs, []Filter{{Key: "flag", Op: OpEqual, Value: true}})
	if err != nil || len(got) != 1 {
		t.Fatalf("bool ==: got %v records, err %v", len(got), err)
	}

	_, err = ApplyFilters(recs, []Filter{{Key: "flag", Op: OpGreater, Value: false}})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bool >: got %v, want ErrInvalidArgument", err)
	}
}
