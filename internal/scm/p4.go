package scm

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/masmgr/revtrack/internal/errs"
)

// P4Options configures the Perforce source.
type P4Options struct {
	Port   string // P4PORT, e.g. "ssl:perforce:1666"
	User   string // account used to run queries
	Client string
	// Path restricts queries to a depot path, e.g. "//depot/main/...".
	Path string
	// Binary is the p4 executable; defaults to "p4".
	Binary string
	Runner Runner
	Logger *slog.Logger
}

// P4Source reads changes through the p4 command line client.
type P4Source struct {
	opts   P4Options
	run    Runner
	logger *slog.Logger
}

// NewP4Source creates a Perforce source.
func NewP4Source(opts P4Options) *P4Source {
	if opts.Binary == "" {
		opts.Binary = "p4"
	}
	run := opts.Runner
	if run == nil {
		run = ExecRunner()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &P4Source{opts: opts, run: run, logger: logger}
}

func (s *P4Source) globalArgs() []string {
	args := []string{"-ztag"}
	if s.opts.Port != "" {
		args = append(args, "-p", s.opts.Port)
	}
	if s.opts.User != "" {
		args = append(args, "-u", s.opts.User)
	}
	if s.opts.Client != "" {
		args = append(args, "-c", s.opts.Client)
	}
	return args
}

// CommitsForDay runs "p4 changes -l -s submitted" restricted to one day.
func (s *P4Source) CommitsForDay(ctx context.Context, identity string, day time.Time) ([]CommitRecord, error) {
	start, end := dayBounds(day)

	// p4 date ranges are inclusive; stop one second before the next day so a
	// change submitted at midnight is reported for exactly one day.
	last := end.Add(-time.Second)
	spec := s.opts.Path + "@" + start.Format("2006/01/02:15:04:05") + ",@" + last.Format("2006/01/02:15:04:05")

	args := append(s.globalArgs(), "changes", "-l", "-s", "submitted")
	if identity != "" {
		args = append(args, "-u", identity)
	}
	args = append(args, spec)

	out, err := s.run(ctx, s.opts.Binary, args...)
	if err != nil {
		return nil, err
	}

	raws, err := parseP4Changes(out, day.Location())
	if err != nil {
		return nil, errs.E(errs.Query, "p4 changes", err)
	}
	records := normalizeAll(raws, s.skip)

	inDay := records[:0]
	for _, r := range records {
		if !r.When.IsZero() && (r.When.Before(start) || !r.When.Before(end)) {
			continue
		}
		inDay = append(inDay, r)
	}
	return inDay, nil
}

// ShelvedCommits runs "p4 changes -l -s shelved -u identity".
func (s *P4Source) ShelvedCommits(ctx context.Context, identity string) ([]CommitRecord, error) {
	args := append(s.globalArgs(), "changes", "-l", "-s", "shelved", "-u", identity)
	if s.opts.Path != "" {
		args = append(args, s.opts.Path)
	}

	out, err := s.run(ctx, s.opts.Binary, args...)
	if err != nil {
		return nil, err
	}

	raws, err := parseP4Changes(out, time.Local)
	if err != nil {
		return nil, errs.E(errs.Query, "p4 changes", err)
	}
	for i := range raws {
		// Shelved changes carry a "shelved" tag, but "-s shelved" already guarantees it.
		raws[i].Shelved = true
	}
	return normalizeAll(raws, s.skip), nil
}

func (s *P4Source) skip(raw RawChange, err error) {
	s.logger.Warn("skipping perforce change", "change", raw.Change, "error", err)
}

// parseP4Changes parses "p4 -ztag changes -l" output. Each record starts with
// "... change N"; description continuation lines carry no "... " prefix.
func parseP4Changes(out []byte, loc *time.Location) ([]RawChange, error) {
	var (
		changes []RawChange
		cur     *RawChange
		lastKey string
		desc    []string
	)

	flush := func() {
		if cur == nil {
			return
		}
		cur.Description = strings.TrimRight(strings.Join(desc, "\n"), "\n")
		changes = append(changes, *cur)
		cur, desc, lastKey = nil, nil, ""
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")

		if !strings.HasPrefix(line, "... ") {
			if cur != nil && lastKey == "desc" {
				desc = append(desc, line)
			}
			continue
		}

		key, value, _ := strings.Cut(strings.TrimPrefix(line, "... "), " ")
		if key == "change" {
			flush()
			cur = &RawChange{Change: value}
			lastKey = key
			continue
		}
		if cur == nil {
			continue
		}
		lastKey = key

		switch key {
		case "user":
			cur.User = value
		case "client":
			cur.Client = value
		case "time":
			secs, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, err
			}
			cur.Time = time.Unix(secs, 0).In(loc)
		case "desc":
			desc = append(desc, value)
		case "shelved":
			cur.Shelved = true
		case "status":
			if value == "shelved" {
				cur.Shelved = true
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return changes, nil
}
