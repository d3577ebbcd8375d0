package storage

import (
	"fmt"
	"time"
)

// TimestampBucketKey builds the timestamp index key for a creation time. The
// unix-nano value is zero-padded to fixed width so lexicographic key order
// equals chronological order, which lets backends walk buckets with a plain
// ordered scan.
func TimestampBucketKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

// AddToBucket appends id to the bucket unless it is already a member.
// Buckets preserve insertion order so queries stay deterministic for records
// sharing a timestamp.
func AddToBucket(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// RemoveFromBucket removes id from the bucket, preserving the order of the
// remaining members. Returns nil when the bucket becomes empty so callers
// can prune it.
func RemoveFromBucket(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
