// Package known finds the revisions a review system already holds.
package known

import (
	"regexp"
	"strings"

	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/scm"
)

// DefaultPatterns match the revision headers written into review descriptions:
//
//	Change 457471 by user@client on 2009/08/04 16:03:33
//	116855 by henkel on 2011-03-24 11:30 AM
var DefaultPatterns = []string{
	`^\s*Change\s+(?P<rev>\d+)\b(?:\s+by\s+(?P<user>[^@\s]+)(?:@\S*)?)?`,
	`^\s*(?P<rev>\d+)\s+by\s+(?P<user>[^@\s]+)(?:@\S*)?\s+on\s`,
}

// Match is a revision reference found in one description line.
type Match struct {
	// Raw is the matched revision text.
	Raw string
	// User is the normalized identity named on the line, or "" if the
	// pattern has no user group.
	User string
}

// Extractor finds revision references in review descriptions.
type Extractor struct {
	patterns []*regexp.Regexp
}

// NewExtractor compiles patterns into an Extractor. Each pattern must have a
// "rev" named group and may have a "user" group. Patterns are compiled as
// case-insensitive.
func NewExtractor(patterns []string) (*Extractor, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "(?i)") {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errs.E(errs.Config, "known pattern", err)
		}
		if re.SubexpIndex("rev") < 0 {
			return nil, errs.Errorf(errs.Config, "known pattern", "pattern %q has no (?P<rev>...) group", p)
		}
		compiled = append(compiled, re)
	}
	return &Extractor{patterns: compiled}, nil
}

// MustDefaultExtractor returns an Extractor over DefaultPatterns.
func MustDefaultExtractor() *Extractor {
	e, err := NewExtractor(DefaultPatterns)
	if err != nil {
		panic(err)
	}
	return e
}

// Match returns the first revision reference on line.
func (e *Extractor) Match(line string) (Match, bool) {
	for _, re := range e.patterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out := Match{Raw: m[re.SubexpIndex("rev")]}
		if i := re.SubexpIndex("user"); i >= 0 {
			out.User = scm.NormalizeIdentity(m[i])
		}
		return out, true
	}
	return Match{}, false
}

// Extract returns the revision referenced on line. Lines without a reference,
// or whose number is not a canonical revision, yield false.
func (e *Extractor) Extract(line string) (scm.Revision, bool) {
	m, ok := e.Match(line)
	if !ok {
		return 0, false
	}
	rev, err := scm.ParseRevision(m.Raw)
	if err != nil {
		return 0, false
	}
	return rev, true
}
