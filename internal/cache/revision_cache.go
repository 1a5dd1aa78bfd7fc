// Package cache keeps per-repository tracker state: day-bucketed commit
// history, ignore lists and the review-user to SCM-identity mapping.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/metrics"
	"github.com/masmgr/revtrack/internal/revset"
	"github.com/masmgr/revtrack/internal/scm"
	"github.com/masmgr/revtrack/internal/store"
)

// DefaultFreshnessWindow is how far back commit history is cached.
const DefaultFreshnessWindow = 21 * 24 * time.Hour

// FetchDayFunc performs a live query for the submitted commits of one calendar day.
type FetchDayFunc func(ctx context.Context, day time.Time) ([]scm.CommitRecord, error)

// Options configures a RevisionCache.
type Options struct {
	FreshnessWindow time.Duration
	Clock           Clock
	Logger          *slog.Logger
}

// RevisionCache is the persisted tracker state of one repository.
//
// A day's commit list is written once the day lies strictly before today and
// is never fetched again. Today's list is fetched on every call and never
// stored. Finalized writes are deterministic for a given repository state, so
// concurrent writers may overwrite each other without harm.
type RevisionCache struct {
	kv        store.KV
	namespace string
	window    time.Duration
	clock     Clock
	logger    *slog.Logger
	inflight  singleflight.Group

	mu     sync.Mutex
	shared map[string]*sharedFetch
	gen    uint64
}

// sharedFetch is one live day fetch joined by concurrent callers. Its context
// is detached from every caller and cancelled only when all of them have
// stopped waiting.
type sharedFetch struct {
	name    string
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates a cache over kv. All keys are scoped to namespace, which must be
// unique per repository (see store.Namespace).
func New(kv store.KV, namespace string, opts Options) *RevisionCache {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = DefaultFreshnessWindow
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RevisionCache{
		kv:        store.Scoped(kv, namespace),
		namespace: namespace,
		window:    opts.FreshnessWindow,
		clock:     opts.Clock,
		logger:    opts.Logger.With("namespace", namespace),
		shared:    make(map[string]*sharedFetch),
	}
}

// FreshnessWindow returns the span of history the cache tracks.
func (c *RevisionCache) FreshnessWindow() time.Duration {
	return c.window
}

// Namespace returns the namespace the cache's keys live under.
func (c *RevisionCache) Namespace() string {
	return c.namespace
}

// Today returns midnight of the current day according to the cache's clock.
func (c *RevisionCache) Today() time.Time {
	return startOfDay(c.clock.Now())
}

// windowDays returns the number of whole days covered by the window.
func (c *RevisionCache) windowDays() int {
	return int(c.window / (24 * time.Hour))
}

func identityKey(userID string) string {
	return "identity/" + url.PathEscape(userID)
}

func ignoredKey(userID string) string {
	return "ignored/" + url.PathEscape(userID)
}

func dayKey(identity string, day time.Time) string {
	return "commits/" + url.PathEscape(identity) + "/" + day.Format(time.DateOnly)
}

func validUser(op, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errs.Errorf(errs.Validation, op, "empty user id")
	}
	return nil
}

// DisplayIdentity returns the SCM identity stored for userID, or "" if none.
func (c *RevisionCache) DisplayIdentity(ctx context.Context, userID string) (string, error) {
	if err := validUser("cache.DisplayIdentity", userID); err != nil {
		return "", err
	}
	var identity string
	if _, err := c.load(ctx, identityKey(userID), &identity); err != nil {
		return "", err
	}
	return identity, nil
}

// SetDisplayIdentity stores the SCM identity of userID.
func (c *RevisionCache) SetDisplayIdentity(ctx context.Context, userID, identity string) error {
	if err := validUser("cache.SetDisplayIdentity", userID); err != nil {
		return err
	}
	return c.save(ctx, identityKey(userID), strings.TrimSpace(identity))
}

// IgnoredRevisions returns userID's ignored revisions in ascending order.
func (c *RevisionCache) IgnoredRevisions(ctx context.Context, userID string) ([]scm.Revision, error) {
	if err := validUser("cache.IgnoredRevisions", userID); err != nil {
		return nil, err
	}
	var revs []scm.Revision
	if _, err := c.load(ctx, ignoredKey(userID), &revs); err != nil {
		return nil, err
	}
	return revset.Normalize(revs), nil
}

// IgnoreRevisions adds revs to userID's ignore list. The update is a set union,
// so repeating it, or racing it with another union, loses nothing.
func (c *RevisionCache) IgnoreRevisions(ctx context.Context, userID string, revs []scm.Revision) error {
	current, err := c.IgnoredRevisions(ctx, userID)
	if err != nil {
		return err
	}
	updated := revset.Union(current, revset.Normalize(revs))
	if len(updated) == len(current) {
		return nil
	}
	return c.save(ctx, ignoredKey(userID), updated)
}

// UnignoreRevisions removes revs from userID's ignore list.
// Unlike IgnoreRevisions this is not commutative with concurrent updates;
// the last writer wins.
func (c *RevisionCache) UnignoreRevisions(ctx context.Context, userID string, revs []scm.Revision) error {
	current, err := c.IgnoredRevisions(ctx, userID)
	if err != nil {
		return err
	}
	updated := revset.DifferenceFunc(current, func(r scm.Revision) scm.Revision { return r }, revset.Normalize(revs))
	if len(updated) == len(current) {
		return nil
	}
	return c.save(ctx, ignoredKey(userID), updated)
}

// dayEntry is the persisted form of one finalized day.
type dayEntry struct {
	Day     string             `json:"day"`
	Commits []scm.CommitRecord `json:"commits"`
}

// LatestCommits returns identity's submitted commits from the first day of the
// freshness window through today, ascending by revision.
//
// Each finalized day is served from the store when present and otherwise
// fetched and stored. Today is always fetched and never stored. If any fetch
// fails the call fails; every day stored before the failure is complete.
func (c *RevisionCache) LatestCommits(ctx context.Context, identity string, fetchDay FetchDayFunc) ([]scm.CommitRecord, error) {
	identity = scm.NormalizeIdentity(identity)
	today := c.Today()
	days := c.windowDays()

	var result []scm.CommitRecord
	for i := days; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		commits, err := c.commitsOfDay(ctx, identity, day, day.Before(today), fetchDay)
		if err != nil {
			return nil, fmt.Errorf("commits of %s: %w", day.Format(time.DateOnly), err)
		}
		result = append(result, commits...)
	}
	return scm.SortUnique(result), nil
}

func (c *RevisionCache) commitsOfDay(ctx context.Context, identity string, day time.Time, finalized bool, fetchDay FetchDayFunc) ([]scm.CommitRecord, error) {
	if !finalized {
		metrics.CacheLookups.WithLabelValues("today").Inc()
		return c.fetch(ctx, identity, day, fetchDay)
	}

	key := dayKey(identity, day)
	var entry dayEntry
	found, err := c.load(ctx, key, &entry)
	switch {
	case err != nil && errs.Is(err, errs.Parse):
		c.logger.Warn("discarding unreadable cache entry", "key", key, "error", err)
	case err != nil:
		// Degrade to a live fetch; the result is still correct.
		c.logger.Warn("cache read failed, fetching live", "key", key, "error", err)
	case found:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return entry.Commits, nil
	}

	metrics.CacheLookups.WithLabelValues("miss").Inc()
	commits, err := c.fetch(ctx, identity, day, fetchDay)
	if err != nil {
		return nil, err
	}
	entry = dayEntry{Day: day.Format(time.DateOnly), Commits: commits}
	if err := c.save(ctx, key, entry); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return commits, nil
}

// fetch runs fetchDay once per (identity, day) across concurrent callers and
// cleans its result: pending changes are dropped, the rest sorted and unique.
// A caller whose ctx ends stops waiting without failing the others.
func (c *RevisionCache) fetch(ctx context.Context, identity string, day time.Time, fetchDay FetchDayFunc) ([]scm.CommitRecord, error) {
	sf := c.join(ctx, identity+"|"+day.Format(time.DateOnly))
	defer c.leave(sf)

	ch := c.inflight.DoChan(sf.key, func() (any, error) {
		commits, err := fetchDay(sf.ctx, day)
		metrics.LiveFetches.WithLabelValues("day", metrics.Status(err)).Inc()
		if err != nil {
			return nil, err
		}
		return cleanDay(commits), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]scm.CommitRecord)), nil
	}
}

// join registers the caller with the live fetch for name, starting a new one
// when none is running.
func (c *RevisionCache) join(ctx context.Context, name string) *sharedFetch {
	c.mu.Lock()
	defer c.mu.Unlock()
	sf, ok := c.shared[name]
	if !ok {
		c.gen++
		fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		sf = &sharedFetch{
			name:   name,
			key:    name + "#" + strconv.FormatUint(c.gen, 10),
			ctx:    fetchCtx,
			cancel: cancel,
		}
		c.shared[name] = sf
	}
	sf.waiters++
	return sf
}

// leave drops the caller from sf. The last caller out cancels the fetch and
// retires it, so later callers start afresh under a new key.
func (c *RevisionCache) leave(sf *sharedFetch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sf.waiters--
	if sf.waiters > 0 {
		return
	}
	sf.cancel()
	if c.shared[sf.name] == sf {
		delete(c.shared, sf.name)
	}
}

func cleanDay(commits []scm.CommitRecord) []scm.CommitRecord {
	out := make([]scm.CommitRecord, 0, len(commits))
	for _, cm := range commits {
		if !cm.Pending {
			out = append(out, cm)
		}
	}
	return scm.SortUnique(out)
}

// load decodes the JSON value under key into v. A value that does not decode
// is reported as a parse error.
func (c *RevisionCache) load(ctx context.Context, key string, v any) (bool, error) {
	data, found, err := c.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errs.E(errs.Parse, "cache decode "+key, err)
	}
	return true, nil
}

func (c *RevisionCache) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.E(errs.CacheStore, "cache encode "+key, err)
	}
	return c.kv.Put(ctx, key, data)
}
