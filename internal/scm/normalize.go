package scm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize converts a raw change into a CommitRecord. It fails only when the
// change number is not a canonical decimal revision.
func Normalize(raw RawChange) (CommitRecord, error) {
	rev, err := ParseRevision(raw.Change)
	if err != nil {
		return CommitRecord{}, err
	}

	rec := CommitRecord{
		Revision: rev,
		Author:   NormalizeIdentity(raw.User),
		Summary:  Summarize(raw.Description),
		Pending:  raw.Shelved,
	}
	if !raw.Shelved {
		rec.When = raw.Time
	}
	return rec, nil
}

// Summarize returns the first non-empty line of a description, trimmed and
// transliterated to printable ASCII. Characters without an ASCII form are dropped.
func Summarize(description string) string {
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		return strings.TrimSpace(toASCII(line))
	}
	return ""
}

var asciiFold = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		return r
	}),
	runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII || !unicode.IsPrint(r)
	})),
)

func toASCII(s string) string {
	out, _, err := transform.String(asciiFold, s)
	if err != nil {
		// Lossy fallback: keep only what is already printable ASCII.
		return strings.Map(func(r rune) rune {
			if r > unicode.MaxASCII || !unicode.IsPrint(r) {
				return -1
			}
			return r
		}, s)
	}
	return out
}

// Describe renders the one-line label shown next to a revision, e.g.
// "on 2011-03-24 : Fix crash" or "shelved : WIP refactoring".
func Describe(c CommitRecord) string {
	if c.Pending {
		return "shelved : " + c.Summary
	}
	if c.When.IsZero() {
		return c.Summary
	}
	return "on " + c.When.Format("2006-01-02") + " : " + c.Summary
}
