package scm

import (
	"strconv"
	"strings"
	"time"
)

// Revision is an ordered change identifier. Perforce change numbers and
// Subversion revisions map onto it directly; a larger value is a later change.
type Revision int64

// String returns the decimal form of the revision.
func (r Revision) String() string {
	return strconv.FormatInt(int64(r), 10)
}

// ParseRevision parses a canonical decimal revision such as "116855".
func ParseRevision(s string) (Revision, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 || strconv.FormatInt(n, 10) != s {
		return 0, &strconv.NumError{Func: "ParseRevision", Num: s, Err: strconv.ErrSyntax}
	}
	return Revision(n), nil
}

// CommitRecord is the normalized unit of data handled by the tracker.
type CommitRecord struct {
	Revision Revision  `json:"revision"`
	Author   string    `json:"author"`
	Summary  string    `json:"summary"`
	Pending  bool      `json:"pending,omitempty"`
	When     time.Time `json:"when,omitempty"`
}

// RevisionOf returns the record's revision. It is the key accessor used by
// the revset helpers.
func RevisionOf(c CommitRecord) Revision {
	return c.Revision
}

// RawChange is a change as reported by a repository query, before normalization.
type RawChange struct {
	Change      string
	User        string
	Client      string
	Time        time.Time
	Description string
	Shelved     bool
}

// NormalizeIdentity returns the matching form of an SCM identity.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
