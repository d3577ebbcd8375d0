package types

import "fmt"

// Operator is a metadata comparison operator.
type Operator string

const (
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
)

// Filter is a single (key, operator, value) predicate over record metadata.
// A list of filters combines with logical AND.
type Filter struct {
	Key   string
	Op    Operator
	Value any
}

// Match reports whether the metadata map satisfies the filter. A missing key
// never matches, including under "!=": key presence is a precondition of any
// operator match. An unknown operator or an incomparable value pair returns
// ErrInvalidArgument.
func (f Filter) Match(metadata map[string]any) (bool, error) {
	stored, ok := metadata[f.Key]
	if !ok {
		return false, nil
	}
	return compareScalars(f.Key, stored, f.Op, f.Value)
}

// ApplyFilters returns the subset of records whose metadata satisfies every
// filter. The input order is preserved. Structural errors (unknown operator,
// incompatible types) abort the whole call.
func ApplyFilters(records []*Record, filters []Filter) ([]*Record, error) {
	if len(filters) == 0 {
		return records, nil
	}

	var out []*Record
	for _, rec := range records {
		matched := true
		for _, f := range filters {
			ok, err := f.Match(rec.Metadata)
			if err != nil {
				return nil, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, rec)
		}
	}
	return out, nil
}

// compareScalars compares a stored metadata value against a filter value
// using the stored value's native type. Numeric types are unified to float64
// so an int filter can match a float64 stored by JSON round-tripping.
func compareScalars(key string, stored any, op Operator, want any) (bool, error) {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
	default:
		return false, fmt.Errorf("%w: unknown filter operator %q for key %q", ErrInvalidArgument, op, key)
	}

	if sn, sok := toFloat(stored); sok {
		wn, wok := toFloat(want)
		if !wok {
			return false, typeMismatch(key, stored, want)
		}
		return compareOrdered(sn, wn, op), nil
	}

	switch sv := stored.(type) {
	case string:
		wv, ok := want.(string)
		if !ok {
			return false, typeMismatch(key, stored, want)
		}
		return compareOrdered(sv, wv, op), nil
	case bool:
		wv, ok := want.(bool)
		if !ok {
			return false, typeMismatch(key, stored, want)
		}
		switch op {
		case OpEqual:
			return sv == wv, nil
		case OpNotEqual:
			return sv != wv, nil
		default:
			return false, fmt.Errorf("%w: operator %q is not defined for boolean key %q", ErrInvalidArgument, op, key)
		}
	default:
		return false, fmt.Errorf("%w: metadata key %q holds non-scalar value of type %T", ErrInvalidArgument, key, stored)
	}
}

func typeMismatch(key string, stored, want any) error {
	return fmt.Errorf("%w: cannot compare metadata key %q of type %T against filter value of type %T",
		ErrInvalidArgument, key, stored, want)
}

func compareOrdered[T float64 | string](stored, want T, op Operator) bool {
	switch op {
	case OpEqual:
		return stored == want
	case OpNotEqual:
		return stored != want
	case OpGreater:
		return stored > want
	case OpGreaterOrEqual:
		return stored >= want
	case OpLess:
		return stored < want
	default: // OpLessOrEqual, validated by the caller
		return stored <= want
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
