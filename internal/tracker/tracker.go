// Package tracker computes the revisions of a user that have no review yet.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/masmgr/revtrack/internal/cache"
	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/known"
	"github.com/masmgr/revtrack/internal/metrics"
	"github.com/masmgr/revtrack/internal/revset"
	"github.com/masmgr/revtrack/internal/scm"
)

// Tracker reconciles one repository's history against the review system.
// It holds no state of its own between calls.
type Tracker struct {
	cache  *cache.RevisionCache
	source scm.Source
	known  known.Source
	logger *slog.Logger
}

// New creates a Tracker.
func New(c *cache.RevisionCache, source scm.Source, knownSource known.Source, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{cache: c, source: source, known: knownSource, logger: logger}
}

// Cache returns the revision cache the tracker uses.
func (t *Tracker) Cache() *cache.RevisionCache {
	return t.cache
}

// MissingRevisions returns the revisions of scmIdentity that are neither known
// to the review system nor ignored by reviewUserID.
//
// Submitted commits come first, then shelved changes, each group ascending by
// revision. An empty scmIdentity falls back to the identity stored for the
// user and then to reviewUserID itself. Any collaborator failure fails the
// whole call.
func (t *Tracker) MissingRevisions(ctx context.Context, reviewUserID, scmIdentity string) (result []scm.CommitRecord, err error) {
	start := time.Now()
	defer func() {
		metrics.Reconciliations.WithLabelValues(metrics.Status(err)).Inc()
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	identity, err := t.resolveIdentity(ctx, reviewUserID, scmIdentity)
	if err != nil {
		return nil, err
	}
	log := t.logger.With("user", reviewUserID, "identity", identity)

	cached, err := t.cache.LatestCommits(ctx, identity, func(ctx context.Context, day time.Time) ([]scm.CommitRecord, error) {
		return t.source.CommitsForDay(ctx, identity, day)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load submitted commits: %w", err)
	}

	knownRevs, err := t.known.KnownRevisions(ctx, identity, t.cache.FreshnessWindow())
	if err != nil {
		return nil, fmt.Errorf("failed to load known revisions: %w", err)
	}

	ignored, err := t.cache.IgnoredRevisions(ctx, reviewUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignored revisions: %w", err)
	}

	excluded := revset.Union(revset.Normalize(knownRevs), ignored)
	if err := revset.Validate(excluded); err != nil {
		return nil, err
	}
	remaining := revset.DifferenceFunc(cached, scm.RevisionOf, excluded)

	shelved, err := t.source.ShelvedCommits(ctx, identity)
	metrics.LiveFetches.WithLabelValues("shelved", metrics.Status(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to load shelved changes: %w", err)
	}
	for i := range shelved {
		shelved[i].Pending = true
	}
	shelved = scm.SortUnique(shelved)
	// A shelved change never repeats a submitted revision in the result.
	submitted := make([]scm.Revision, len(cached))
	for i, c := range cached {
		submitted[i] = c.Revision
	}
	shelved = revset.DifferenceFunc(shelved, scm.RevisionOf, revset.Union(submitted, ignored))

	log.Debug("reconciled",
		"submitted", len(cached),
		"known", len(knownRevs),
		"ignored", len(ignored),
		"missing", len(remaining),
		"shelved", len(shelved))

	result = make([]scm.CommitRecord, 0, len(remaining)+len(shelved))
	result = append(result, remaining...)
	result = append(result, shelved...)
	return result, nil
}

// resolveIdentity picks the SCM identity for a reconciliation.
func (t *Tracker) resolveIdentity(ctx context.Context, reviewUserID, scmIdentity string) (string, error) {
	if strings.TrimSpace(reviewUserID) == "" {
		return "", errs.Errorf(errs.Validation, "missing revisions", "empty user id")
	}
	if identity := scm.NormalizeIdentity(scmIdentity); identity != "" {
		return identity, nil
	}
	identity, err := t.ScmIdentity(ctx, reviewUserID)
	if err != nil {
		return "", err
	}
	return scm.NormalizeIdentity(identity), nil
}

// ScmIdentity returns the SCM identity stored for reviewUserID, or
// reviewUserID itself when none is stored.
func (t *Tracker) ScmIdentity(ctx context.Context, reviewUserID string) (string, error) {
	identity, err := t.cache.DisplayIdentity(ctx, reviewUserID)
	if err != nil {
		return "", fmt.Errorf("failed to load identity: %w", err)
	}
	if identity == "" {
		return strings.TrimSpace(reviewUserID), nil
	}
	return identity, nil
}

// SetScmIdentity stores the SCM identity of reviewUserID.
func (t *Tracker) SetScmIdentity(ctx context.Context, reviewUserID, identity string) error {
	return t.cache.SetDisplayIdentity(ctx, reviewUserID, identity)
}

// IgnoreRevisions hides revs from reviewUserID's future results.
func (t *Tracker) IgnoreRevisions(ctx context.Context, reviewUserID string, revs []scm.Revision) error {
	return t.cache.IgnoreRevisions(ctx, reviewUserID, revs)
}

// UnignoreRevisions makes revs visible again.
func (t *Tracker) UnignoreRevisions(ctx context.Context, reviewUserID string, revs []scm.Revision) error {
	return t.cache.UnignoreRevisions(ctx, reviewUserID, revs)
}

// IgnoredRevisions returns reviewUserID's ignored revisions.
func (t *Tracker) IgnoredRevisions(ctx context.Context, reviewUserID string) ([]scm.Revision, error) {
	return t.cache.IgnoredRevisions(ctx, reviewUserID)
}
