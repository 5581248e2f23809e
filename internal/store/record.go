package store

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// Record is one stored FAQ entry. Records are transient DTOs: they carry no
// reference back to the store that produced them.
type Record struct {
	ID        uuid.UUID
	Metadata  map[string]any
	Contents  string
	Embedding []float32
}

// SearchResult is a Record plus its distance to the query vector under the
// configured metric (cosine). Lower is closer.
type SearchResult struct {
	Record
	Distance float64
}

// TimeRange bounds record creation time, inclusive on both ends.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// SearchOptions narrows a similarity search. MetadataFilter, Predicate and
// TimeRange combine with AND semantics; each is optional.
type SearchOptions struct {
	// Limit caps the number of results. Defaults to 10 if <= 0.
	Limit int

	// MetadataFilter restricts results to records whose metadata matches
	// every given key/value pair exactly.
	MetadataFilter map[string]string

	// Predicate restricts results with a boolean expression tree over
	// metadata fields.
	Predicate *Predicate

	// TimeRange restricts results to records created within [Start, End].
	TimeRange *TimeRange
}

// DeleteOptions selects records to remove. Exactly one of IDs,
// MetadataFilter, or All must be set.
type DeleteOptions struct {
	IDs            []uuid.UUID
	MetadataFilter map[string]string
	All            bool
}

// selectorCount returns how many delete selectors are set.
func (o DeleteOptions) selectorCount() int {
	n := 0
	if len(o.IDs) > 0 {
		n++
	}
	if len(o.MetadataFilter) > 0 {
		n++
	}
	if o.All {
		n++
	}
	return n
}

// gregorianToUnix is the number of 100ns intervals between the UUID epoch
// (1582-10-15) and the Unix epoch.
const gregorianToUnix = 122192928000000000

// UUIDFromTime returns a version-1 UUID whose timestamp encodes t. Clock
// sequence and node bits are random, so two IDs minted for the same instant
// still differ.
func UUIDFromTime(t time.Time) uuid.UUID {
	ts := uint64(t.UnixNano()/100) + gregorianToUnix

	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:], uint32(ts))      // time_low
	binary.BigEndian.PutUint16(u[4:], uint16(ts>>32))  // time_mid
	binary.BigEndian.PutUint16(u[6:], uint16(ts>>48))  // time_hi
	rand.Read(u[8:])
	u[6] = (u[6] & 0x0f) | 0x10 // version 1
	u[8] = (u[8] & 0x3f) | 0x80 // RFC 4122 variant
	return u
}

// NewRecordID returns a fresh time-ordered record ID for the current instant.
func NewRecordID() uuid.UUID {
	return UUIDFromTime(time.Now())
}

// RecordTime extracts the creation instant encoded in a time-ordered record
// ID. Returns false for IDs that carry no timestamp (e.g. random v4 UUIDs).
func RecordTime(id uuid.UUID) (time.Time, bool) {
	if id.Version() != 1 {
		return time.Time{}, false
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), true
}

// recordCreatedAt resolves the creation instant persisted alongside a record:
// the timestamp encoded in the ID when present, otherwise now.
func recordCreatedAt(id uuid.UUID) time.Time {
	if t, ok := RecordTime(id); ok {
		return t
	}
	return time.Now().UTC()
}
