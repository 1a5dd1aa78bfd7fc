package known

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/metrics"
	"github.com/masmgr/revtrack/internal/revset"
	"github.com/masmgr/revtrack/internal/scm"
)

// Status is the state of a review request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusDiscarded Status = "discarded"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusSubmitted, StatusDiscarded:
		return st, nil
	case "":
		return StatusPending, nil
	default:
		return "", errs.Errorf(errs.Validation, "review status", "unknown status %q", s)
	}
}

// Review is one review request.
type Review struct {
	ID          string    `db:"id"`
	Submitter   string    `db:"submitter"`
	Description string    `db:"description"`
	Status      Status    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

// ReviewLog is a Source over the review_requests table.
type ReviewLog struct {
	db        *sqlx.DB
	extractor *Extractor
	now       func() time.Time
	logger    *slog.Logger
}

// NewReviewLog creates a ReviewLog. A nil extractor uses DefaultPatterns.
func NewReviewLog(db *sqlx.DB, extractor *Extractor, logger *slog.Logger) *ReviewLog {
	if extractor == nil {
		extractor = MustDefaultExtractor()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewLog{db: db, extractor: extractor, now: time.Now, logger: logger}
}

// Add records a review request. A missing ID, status or creation time is
// filled in. The stored review is returned.
func (l *ReviewLog) Add(ctx context.Context, r Review) (Review, error) {
	if strings.TrimSpace(r.Submitter) == "" {
		return Review{}, errs.Errorf(errs.Validation, "review add", "empty submitter")
	}
	status, err := ParseStatus(string(r.Status))
	if err != nil {
		return Review{}, err
	}
	r.Status = status
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = l.now()
	}
	r.CreatedAt = r.CreatedAt.UTC()

	_, err = l.db.NamedExecContext(ctx, `
        INSERT INTO review_requests (id, submitter, description, status, created_at)
        VALUES (:id, :submitter, :description, :status, :created_at)
    `, r)
	if err != nil {
		return Review{}, errs.E(errs.CacheStore, "review add", err)
	}
	return r, nil
}

// KnownRevisions scans the non-discarded reviews created within window and
// returns the revisions their descriptions reference for identity.
//
// A line naming another user is not counted. A line that looks like a
// revision header but carries an unusable number is skipped and logged.
func (l *ReviewLog) KnownRevisions(ctx context.Context, identity string, window time.Duration) ([]scm.Revision, error) {
	identity = scm.NormalizeIdentity(identity)
	since := l.now().Add(-window).UTC()

	var descriptions []string
	err := l.db.SelectContext(ctx, &descriptions, l.db.Rebind(`
        SELECT description FROM review_requests
        WHERE status <> ? AND created_at >= ?
        ORDER BY created_at
    `), string(StatusDiscarded), since)
	metrics.LiveFetches.WithLabelValues("known", metrics.Status(err)).Inc()
	if err != nil {
		return nil, errs.E(errs.Query, "known revisions", err)
	}

	var revs []scm.Revision
	for _, desc := range descriptions {
		for _, line := range strings.Split(desc, "\n") {
			m, ok := l.extractor.Match(line)
			if !ok {
				continue
			}
			if !namesIdentity(m.User, identity) {
				continue
			}
			rev, err := scm.ParseRevision(m.Raw)
			if err != nil {
				metrics.ParseFailures.Inc()
				l.logger.Debug("skipping review line",
					"error", errs.E(errs.Parse, "known revisions", fmt.Errorf("line %q: %w", strings.TrimSpace(line), err)))
				continue
			}
			revs = append(revs, rev)
		}
	}
	return revset.Normalize(revs), nil
}

// namesIdentity reports whether a line naming user belongs to identity.
// Lines carry bare user names, so an e-mail identity (Git) also matches its
// local part.
func namesIdentity(user, identity string) bool {
	if user == "" || identity == "" || user == identity {
		return true
	}
	local, _, found := strings.Cut(identity, "@")
	return found && user == local
}
