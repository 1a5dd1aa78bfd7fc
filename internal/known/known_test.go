package known

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/scm"
	"github.com/masmgr/revtrack/internal/store"
)

func TestNewExtractor(t *testing.T) {
	e, err := NewExtractor([]string{`Change (?P<rev>\d+)`, "", "  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.patterns) != 1 {
		t.Errorf("expected 1 compiled pattern, got %d", len(e.patterns))
	}

	if _, err := NewExtractor([]string{`[invalid`}); !errs.Is(err, errs.Config) {
		t.Errorf("invalid pattern: expected config error, got %v", err)
	}
	if _, err := NewExtractor([]string{`Change \d+`}); !errs.Is(err, errs.Config) {
		t.Errorf("pattern without rev group: expected config error, got %v", err)
	}
}

func TestExtract_DefaultPatterns(t *testing.T) {
	e := MustDefaultExtractor()

	tests := []struct {
		name     string
		line     string
		wantRev  scm.Revision
		wantUser string
		wantOK   bool
	}{
		{"perforce header", "Change 457471 by phenkel@phenkel_reviewboard on 2009/08/04 16:03:33", 457471, "phenkel", true},
		{"bare change", "Change 12", 12, "", true},
		{"lowercase change", "change 99 by Bob@ws on 2010/01/01", 99, "bob", true},
		{"tracker label", "116855 by henkel on 2011-03-24 11:30 AM", 116855, "henkel", true},
		{"leading space", "   116855 by henkel on 2011-03-24", 116855, "henkel", true},
		{"no on keyword", "116855 by henkel", 0, "", false},
		{"prose", "This change fixes 42 bugs", 0, "", false},
		{"empty", "", 0, "", false},
		{"non canonical number", "Change 007 by bob", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rev, ok := e.Extract(tt.line)
			if ok != tt.wantOK || rev != tt.wantRev {
				t.Errorf("Extract(%q) = (%d, %v), expected (%d, %v)", tt.line, rev, ok, tt.wantRev, tt.wantOK)
			}
			if m, ok := e.Match(tt.line); ok && tt.wantOK && m.User != tt.wantUser {
				t.Errorf("Match(%q).User = %q, expected %q", tt.line, m.User, tt.wantUser)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	s := Static{"alice": {30, 10, 30}}
	got, err := s.KnownRevisions(context.Background(), "ALICE", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []scm.Revision{10, 30}) {
		t.Errorf("KnownRevisions = %v", got)
	}
	if got, _ := s.KnownRevisions(context.Background(), "bob", time.Hour); len(got) != 0 {
		t.Errorf("unknown identity = %v", got)
	}
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{"": StatusPending, "Submitted": StatusSubmitted, "discarded": StatusDiscarded} {
		if got, err := ParseStatus(in); err != nil || got != want {
			t.Errorf("ParseStatus(%q) = (%q, %v)", in, got, err)
		}
	}
	if _, err := ParseStatus("closed"); !errs.Is(err, errs.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func openReviewLog(t *testing.T, now time.Time) *ReviewLog {
	t.Helper()
	s, err := store.OpenSQL(store.DriverSQLite, filepath.Join(t.TempDir(), "reviews.db"))
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	l := NewReviewLog(s.DB(), nil, nil)
	l.now = func() time.Time { return now }
	return l
}

func TestReviewLog_KnownRevisions(t *testing.T) {
	now := time.Date(2011, 3, 24, 12, 0, 0, 0, time.UTC)
	l := openReviewLog(t, now)
	ctx := context.Background()

	reviews := []Review{
		{Submitter: "alice", Description: "Change 300 by alice@ws on 2011/03/20 10:00:00\nsome text\nChange 100 by alice@ws on 2011/03/19", CreatedAt: now.Add(-48 * time.Hour)},
		{Submitter: "alice", Description: "200 by alice on 2011-03-23 09:00 AM", Status: StatusSubmitted, CreatedAt: now.Add(-24 * time.Hour)},
		{Submitter: "alice", Description: "Change 400 by alice@ws", Status: StatusDiscarded, CreatedAt: now.Add(-time.Hour)},
		{Submitter: "bob", Description: "Change 500 by bob@ws on 2011/03/23", CreatedAt: now.Add(-time.Hour)},
		{Submitter: "alice", Description: "Change 50 by alice@ws", CreatedAt: now.Add(-40 * 24 * time.Hour)},
		{Submitter: "carol", Description: "Change 300\nChange 00301 by alice", CreatedAt: now.Add(-time.Hour)},
	}
	for _, r := range reviews {
		if _, err := l.Add(ctx, r); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := l.KnownRevisions(ctx, "Alice", 21*24*time.Hour)
	if err != nil {
		t.Fatalf("KnownRevisions: %v", err)
	}
	want := []scm.Revision{100, 200, 300}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("KnownRevisions = %v, expected %v", got, want)
	}
}

func TestReviewLog_KnownRevisions_EmailIdentity(t *testing.T) {
	now := time.Date(2011, 3, 24, 12, 0, 0, 0, time.UTC)
	l := openReviewLog(t, now)
	ctx := context.Background()

	for _, desc := range []string{
		"Change 10 by alice@ws on 2011/03/20",
		"Change 11 by bob@ws on 2011/03/20",
		"Change 12",
	} {
		if _, err := l.Add(ctx, Review{Submitter: "alice", Description: desc, CreatedAt: now.Add(-time.Hour)}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := l.KnownRevisions(ctx, "Alice@Example.com", 21*24*time.Hour)
	if err != nil {
		t.Fatalf("KnownRevisions: %v", err)
	}
	if want := []scm.Revision{10, 12}; !reflect.DeepEqual(got, want) {
		t.Errorf("KnownRevisions = %v, expected %v", got, want)
	}
}

func TestNamesIdentity(t *testing.T) {
	tests := []struct {
		user, identity string
		want           bool
	}{
		{"alice", "alice", true},
		{"alice", "alice@example.com", true},
		{"", "alice@example.com", true},
		{"alice", "", true},
		{"bob", "alice@example.com", false},
		{"alice", "alice smith", false},
	}
	for _, tt := range tests {
		if got := namesIdentity(tt.user, tt.identity); got != tt.want {
			t.Errorf("namesIdentity(%q, %q) = %v, expected %v", tt.user, tt.identity, got, tt.want)
		}
	}
}

func TestReviewLog_AddFillsDefaults(t *testing.T) {
	now := time.Date(2011, 3, 24, 12, 0, 0, 0, time.UTC)
	l := openReviewLog(t, now)

	r, err := l.Add(context.Background(), Review{Submitter: "alice", Description: "Change 1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r.ID == "" || r.Status != StatusPending || !r.CreatedAt.Equal(now) {
		t.Errorf("Add returned %+v", r)
	}

	if _, err := l.Add(context.Background(), Review{Description: "Change 2"}); !errs.Is(err, errs.Validation) {
		t.Errorf("empty submitter: expected validation error, got %v", err)
	}
}
