package scm

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// Source queries a repository for a user's changes.
// This abstraction lets the tracker run against Perforce, Subversion, Git or a test double.
type Source interface {
	// CommitsForDay returns identity's submitted changes made on the calendar
	// day containing day. Scoping by identity is the source's job; the cache
	// only drops pending records and dedupes.
	CommitsForDay(ctx context.Context, identity string, day time.Time) ([]CommitRecord, error)

	// ShelvedCommits returns the identity's shelved (pending) changes.
	ShelvedCommits(ctx context.Context, identity string) ([]CommitRecord, error)
}

// Compile-time interface conformance checks.
var (
	_ Source = (*P4Source)(nil)
	_ Source = (*SVNSource)(nil)
	_ Source = (*GitSource)(nil)
	_ Source = (*MockSource)(nil)
)

// normalizeAll converts raw changes and sorts the result by revision.
// Records with an unparsable change number are dropped and reported through skip.
func normalizeAll(raws []RawChange, skip func(RawChange, error)) []CommitRecord {
	out := make([]CommitRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := Normalize(raw)
		if err != nil {
			if skip != nil {
				skip(raw, err)
			}
			continue
		}
		out = append(out, rec)
	}
	SortByRevision(out)
	return out
}

// SortByRevision sorts records ascending by revision.
func SortByRevision(records []CommitRecord) {
	slices.SortStableFunc(records, func(a, b CommitRecord) int {
		return cmp.Compare(a.Revision, b.Revision)
	})
}

// SortUnique sorts records by revision and keeps the first record of each
// revision. It reorders records in place and returns the shortened slice.
func SortUnique(records []CommitRecord) []CommitRecord {
	SortByRevision(records)
	return slices.CompactFunc(records, func(a, b CommitRecord) bool {
		return a.Revision == b.Revision
	})
}

// dayBounds returns the start of the calendar day containing t and the start of the next one.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
