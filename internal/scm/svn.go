package scm

import (
	"context"
	"encoding/xml"
	"log/slog"
	"strconv"
	"time"

	"github.com/masmgr/revtrack/internal/errs"
)

// SVNOptions configures the Subversion source.
type SVNOptions struct {
	URL      string
	Username string
	// Password is written to the client's stdin (svn 1.10+). A custom Runner
	// must do the same.
	Password string
	// Binary is the svn executable; defaults to "svn".
	Binary string
	Runner Runner
	Logger *slog.Logger
}

// SVNSource reads changes through the svn command line client.
// Subversion has no shelved changes visible on the server, so ShelvedCommits
// always returns an empty list.
type SVNSource struct {
	opts   SVNOptions
	run    Runner
	logger *slog.Logger
}

// NewSVNSource creates a Subversion source.
func NewSVNSource(opts SVNOptions) *SVNSource {
	if opts.Binary == "" {
		opts.Binary = "svn"
	}
	run := opts.Runner
	if run == nil {
		run = ExecStdinRunner(opts.Password)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SVNSource{opts: opts, run: run, logger: logger}
}

type svnLog struct {
	Entries []svnLogEntry `xml:"logentry"`
}

type svnLogEntry struct {
	Revision string `xml:"revision,attr"`
	Author   string `xml:"author"`
	Date     string `xml:"date"`
	Msg      string `xml:"msg"`
}

// CommitsForDay runs "svn log --xml" over the revisions of one day.
func (s *SVNSource) CommitsForDay(ctx context.Context, identity string, day time.Time) ([]CommitRecord, error) {
	start, end := dayBounds(day)

	// {DATE} resolves to the youngest revision at that instant, so the range
	// also yields the last revision before the day; the date filter below drops it.
	rng := "{" + start.UTC().Format(time.RFC3339) + "}:{" + end.UTC().Format(time.RFC3339) + "}"
	args := []string{"log", "--xml", "--non-interactive", "-r", rng}
	if s.opts.Username != "" {
		args = append(args, "--username", s.opts.Username)
	}
	if s.opts.Password != "" {
		args = append(args, "--password-from-stdin")
	}
	args = append(args, s.opts.URL)

	out, err := s.run(ctx, s.opts.Binary, args...)
	if err != nil {
		return nil, err
	}

	raws, err := parseSVNLog(out, day.Location())
	if err != nil {
		return nil, errs.E(errs.Query, "svn log", err)
	}

	want := NormalizeIdentity(identity)
	var inDay []RawChange
	for _, raw := range raws {
		if raw.Time.Before(start) || !raw.Time.Before(end) {
			continue
		}
		if want != "" && NormalizeIdentity(raw.User) != want {
			continue
		}
		inDay = append(inDay, raw)
	}
	return normalizeAll(inDay, s.skip), nil
}

// ShelvedCommits returns no changes.
func (s *SVNSource) ShelvedCommits(_ context.Context, _ string) ([]CommitRecord, error) {
	return []CommitRecord{}, nil
}

func (s *SVNSource) skip(raw RawChange, err error) {
	s.logger.Warn("skipping subversion revision", "revision", raw.Change, "error", err)
}

func parseSVNLog(out []byte, loc *time.Location) ([]RawChange, error) {
	var log svnLog
	if err := xml.Unmarshal(out, &log); err != nil {
		return nil, err
	}

	raws := make([]RawChange, 0, len(log.Entries))
	for _, e := range log.Entries {
		when, err := time.Parse(time.RFC3339Nano, e.Date)
		if err != nil {
			return nil, err
		}
		if _, err := strconv.ParseInt(e.Revision, 10, 64); err != nil {
			return nil, err
		}
		raws = append(raws, RawChange{
			Change:      e.Revision,
			User:        e.Author,
			Time:        when.In(loc),
			Description: e.Msg,
		})
	}
	return raws, nil
}
