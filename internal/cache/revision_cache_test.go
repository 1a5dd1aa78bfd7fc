package cache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/masmgr/revtrack/internal/errs"
	"github.com/masmgr/revtrack/internal/scm"
	"github.com/masmgr/revtrack/internal/store"
)

var testNow = time.Date(2011, 3, 24, 15, 30, 0, 0, time.UTC)

func newTestCache(kv store.KV) *RevisionCache {
	return New(kv, "perforce.test", Options{Clock: FixedClock(testNow)})
}

func daysAgo(n int) time.Time {
	return startOfDay(testNow).AddDate(0, 0, -n).Add(10 * time.Hour)
}

func fetcherFor(src *scm.MockSource, identity string) FetchDayFunc {
	return func(ctx context.Context, day time.Time) ([]scm.CommitRecord, error) {
		return src.CommitsForDay(ctx, identity, day)
	}
}

func revisionsOf(commits []scm.CommitRecord) []scm.Revision {
	out := make([]scm.Revision, 0, len(commits))
	for _, c := range commits {
		out = append(out, c.Revision)
	}
	return out
}

func TestLatestCommits_WindowBoundary(t *testing.T) {
	src := scm.NewMockSource()
	src.AddCommit(scm.CommitRecord{Revision: 100, Author: "alice", When: daysAgo(22)})
	src.AddCommit(scm.CommitRecord{Revision: 101, Author: "alice", When: daysAgo(21)})
	src.AddCommit(scm.CommitRecord{Revision: 150, Author: "alice", When: daysAgo(3)})
	src.AddCommit(scm.CommitRecord{Revision: 160, Author: "alice", When: daysAgo(0)})
	src.AddCommit(scm.CommitRecord{Revision: 161, Author: "bob", When: daysAgo(0)})

	c := newTestCache(store.NewMemory())
	got, err := c.LatestCommits(context.Background(), "alice", fetcherFor(src, "alice"))
	if err != nil {
		t.Fatalf("LatestCommits: %v", err)
	}

	want := []scm.Revision{101, 150, 160}
	if !reflect.DeepEqual(revisionsOf(got), want) {
		t.Errorf("revisions = %v, expected %v", revisionsOf(got), want)
	}
	if n := src.TotalDayCalls(); n != 22 {
		t.Errorf("fetched %d days, expected 22", n)
	}
	if src.DayCalls(daysAgo(22)) != 0 {
		t.Errorf("day outside the window was fetched")
	}
}

func TestLatestCommits_FinalizedDaysFetchedOnce(t *testing.T) {
	src := scm.NewMockSource()
	src.AddCommit(scm.CommitRecord{Revision: 150, Author: "alice", When: daysAgo(3)})
	src.AddCommit(scm.CommitRecord{Revision: 160, Author: "alice", When: daysAgo(0)})

	c := newTestCache(store.NewMemory())
	ctx := context.Background()
	first, err := c.LatestCommits(ctx, "alice", fetcherFor(src, "alice"))
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	// History added to a finalized day after it was cached stays invisible.
	src.AddCommit(scm.CommitRecord{Revision: 151, Author: "alice", When: daysAgo(3)})
	src.AddCommit(scm.CommitRecord{Revision: 161, Author: "alice", When: daysAgo(0)})

	second, err := c.LatestCommits(ctx, "alice", fetcherFor(src, "alice"))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if got := revisionsOf(first); !reflect.DeepEqual(got, []scm.Revision{150, 160}) {
		t.Errorf("first = %v", got)
	}
	if got := revisionsOf(second); !reflect.DeepEqual(got, []scm.Revision{150, 160, 161}) {
		t.Errorf("second = %v", got)
	}
	if n := src.DayCalls(daysAgo(3)); n != 1 {
		t.Errorf("finalized day fetched %d times, expected 1", n)
	}
	if n := src.DayCalls(daysAgo(0)); n != 2 {
		t.Errorf("today fetched %d times, expected 2", n)
	}
}

func TestLatestCommits_TodayNeverStored(t *testing.T) {
	kv := store.NewMemory()
	src := scm.NewMockSource()
	src.AddCommit(scm.CommitRecord{Revision: 160, Author: "alice", When: daysAgo(0)})

	c := newTestCache(kv)
	if _, err := c.LatestCommits(context.Background(), "alice", fetcherFor(src, "alice")); err != nil {
		t.Fatalf("LatestCommits: %v", err)
	}

	todayKey := "perforce.test/" + dayKey("alice", startOfDay(testNow))
	for _, k := range kv.Keys() {
		if k == todayKey {
			t.Fatalf("today's bucket was persisted")
		}
	}
	if n := len(kv.Keys()); n != 21 {
		t.Errorf("stored %d day buckets, expected 21", n)
	}
}

func TestLatestCommits_FetchFailurePersistsNothingForFailedDay(t *testing.T) {
	kv := store.NewMemory()
	src := scm.NewMockSource()
	src.AddCommit(scm.CommitRecord{Revision: 150, Author: "alice", When: daysAgo(3)})
	boom := errs.E(errs.Connection, "p4 changes", errors.New("connect refused"))
	src.DayErrors[daysAgo(5).Format(time.DateOnly)] = boom

	c := newTestCache(kv)
	_, err := c.LatestCommits(context.Background(), "alice", fetcherFor(src, "alice"))
	if !errs.Is(err, errs.Connection) {
		t.Fatalf("expected connection error, got %v", err)
	}

	for _, k := range kv.Keys() {
		if k == "perforce.test/"+dayKey("alice", startOfDay(daysAgo(5))) {
			t.Errorf("failed day was persisted")
		}
	}
	// Days before the failure are complete; later ones were never reached.
	if n := len(kv.Keys()); n != 16 {
		t.Errorf("stored %d buckets, expected 16", n)
	}

	delete(src.DayErrors, daysAgo(5).Format(time.DateOnly))
	got, err := c.LatestCommits(context.Background(), "alice", fetcherFor(src, "alice"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !reflect.DeepEqual(revisionsOf(got), []scm.Revision{150}) {
		t.Errorf("retry = %v", revisionsOf(got))
	}
}

func TestLatestCommits_CleansFetchedDays(t *testing.T) {
	fetch := func(_ context.Context, day time.Time) ([]scm.CommitRecord, error) {
		if !day.Equal(startOfDay(daysAgo(1))) {
			return nil, nil
		}
		return []scm.CommitRecord{
			{Revision: 12, Author: "alice"},
			{Revision: 10, Author: "alice"},
			{Revision: 11, Author: "alice", Pending: true},
			{Revision: 12, Author: "alice"},
		}, nil
	}

	c := newTestCache(store.NewMemory())
	got, err := c.LatestCommits(context.Background(), "alice", fetch)
	if err != nil {
		t.Fatalf("LatestCommits: %v", err)
	}
	if !reflect.DeepEqual(revisionsOf(got), []scm.Revision{10, 12}) {
		t.Errorf("revisions = %v, expected [10 12]", revisionsOf(got))
	}
}

func TestLatestCommits_IdentityCaseInsensitive(t *testing.T) {
	kv := store.NewMemory()
	src := scm.NewMockSource()
	src.AddCommit(scm.CommitRecord{Revision: 150, Author: "alice", When: daysAgo(3)})
	c := newTestCache(kv)
	ctx := context.Background()

	if _, err := c.LatestCommits(ctx, "Alice", fetcherFor(src, "alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.LatestCommits(ctx, " ALICE ", fetcherFor(src, "alice")); err != nil {
		t.Fatal(err)
	}
	if n := src.DayCalls(daysAgo(3)); n != 1 {
		t.Errorf("identity spellings use different buckets: %d fetches", n)
	}
}

func TestLatestCommits_CorruptEntryRefetched(t *testing.T) {
	kv := store.NewMemory()
	src := scm.NewMockSource()
	src.AddCommit(scm.CommitRecord{Revision: 150, Author: "alice", When: daysAgo(3)})
	key := "perforce.test/" + dayKey("alice", startOfDay(daysAgo(3)))
	_ = kv.Put(context.Background(), key, []byte("{not json"))

	c := newTestCache(kv)
	got, err := c.LatestCommits(context.Background(), "alice", fetcherFor(src, "alice"))
	if err != nil {
		t.Fatalf("LatestCommits: %v", err)
	}
	if !reflect.DeepEqual(revisionsOf(got), []scm.Revision{150}) {
		t.Errorf("revisions = %v", revisionsOf(got))
	}
	if src.DayCalls(daysAgo(3)) != 1 {
		t.Errorf("corrupt entry was not refetched")
	}
}

func TestLatestCommits_TimezoneDefinesToday(t *testing.T) {
	// 02:00 in Tokyo is still the previous day in UTC.
	tokyo := time.FixedZone("JST", 9*3600)
	now := time.Date(2011, 3, 25, 2, 0, 0, 0, tokyo)
	c := New(store.NewMemory(), "ns", Options{Clock: FixedClock(now)})

	if got := c.Today(); got.Day() != 25 || got.Location() != tokyo {
		t.Errorf("Today() = %v", got)
	}
}

func TestLatestCommits_ConcurrentCallsShareFetches(t *testing.T) {
	src := scm.NewMockSource()
	src.AddCommit(scm.CommitRecord{Revision: 150, Author: "alice", When: daysAgo(3)})
	c := newTestCache(store.NewMemory())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.LatestCommits(context.Background(), "alice", fetcherFor(src, "alice"))
			if err != nil || len(got) != 1 {
				t.Errorf("LatestCommits = (%v, %v)", got, err)
			}
		}()
	}
	wg.Wait()
}

// waitForWaiters blocks until n callers wait on the live fetch for name.
func waitForWaiters(t *testing.T, c *RevisionCache, name string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		sf := c.shared[name]
		joined := sf != nil && sf.waiters == n
		c.mu.Unlock()
		if joined {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("%d callers never joined the fetch of %s", n, name)
}

func TestFetch_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c := newTestCache(store.NewMemory())
	day := startOfDay(testNow).AddDate(0, 0, -3)

	started := make(chan struct{})
	release := make(chan struct{})
	first := func(ctx context.Context, _ time.Time) ([]scm.CommitRecord, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return []scm.CommitRecord{{Revision: 150, Author: "alice"}}, nil
		}
	}
	var secondCalls atomic.Int32
	second := func(context.Context, time.Time) ([]scm.CommitRecord, error) {
		secondCalls.Add(1)
		return nil, nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := c.fetch(ctxA, "alice", day, first)
		errA <- err
	}()
	<-started

	type result struct {
		commits []scm.CommitRecord
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		commits, err := c.fetch(context.Background(), "alice", day, second)
		resB <- result{commits, err}
	}()
	waitForWaiters(t, c, "alice|"+day.Format(time.DateOnly), 2)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v, expected context.Canceled", err)
	}

	close(release)
	r := <-resB
	if r.err != nil {
		t.Fatalf("uncancelled caller err = %v", r.err)
	}
	if !reflect.DeepEqual(revisionsOf(r.commits), []scm.Revision{150}) {
		t.Errorf("revisions = %v, expected [150]", revisionsOf(r.commits))
	}
	if n := secondCalls.Load(); n != 0 {
		t.Errorf("second fetcher ran %d times, expected the shared fetch", n)
	}
}

func TestFetch_LastCallerOutCancelsFetch(t *testing.T) {
	c := newTestCache(store.NewMemory())
	day := startOfDay(testNow).AddDate(0, 0, -3)

	started := make(chan struct{})
	stopped := make(chan error, 1)
	blocking := func(ctx context.Context, _ time.Time) ([]scm.CommitRecord, error) {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.fetch(ctx, "alice", day, blocking)
		errCh <- err
	}()
	<-started
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("fetch err = %v, expected context.Canceled", err)
	}
	select {
	case err := <-stopped:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("fetch context err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned fetch was never cancelled")
	}

	// A later caller starts a fresh fetch instead of joining the cancelled one.
	got, err := c.fetch(context.Background(), "alice", day, func(context.Context, time.Time) ([]scm.CommitRecord, error) {
		return []scm.CommitRecord{{Revision: 151, Author: "alice"}}, nil
	})
	if err != nil || !reflect.DeepEqual(revisionsOf(got), []scm.Revision{151}) {
		t.Errorf("fetch after cancel = (%v, %v)", revisionsOf(got), err)
	}
}

func TestFreshnessWindowDefault(t *testing.T) {
	c := New(store.NewMemory(), "ns", Options{})
	if c.FreshnessWindow() != 21*24*time.Hour {
		t.Errorf("FreshnessWindow() = %v", c.FreshnessWindow())
	}
	if c.Namespace() != "ns" {
		t.Errorf("Namespace() = %q", c.Namespace())
	}
}

func TestIgnoreRevisions(t *testing.T) {
	c := newTestCache(store.NewMemory())
	ctx := context.Background()

	if got, err := c.IgnoredRevisions(ctx, "alice"); err != nil || len(got) != 0 {
		t.Fatalf("initial IgnoredRevisions = (%v, %v)", got, err)
	}

	if err := c.IgnoreRevisions(ctx, "alice", []scm.Revision{30, 10}); err != nil {
		t.Fatal(err)
	}
	if err := c.IgnoreRevisions(ctx, "alice", []scm.Revision{20, 10, 20}); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := c.IgnoreRevisions(ctx, "alice", []scm.Revision{20, 10, 20}); err != nil {
		t.Fatal(err)
	}

	got, err := c.IgnoredRevisions(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []scm.Revision{10, 20, 30}) {
		t.Errorf("IgnoredRevisions = %v, expected [10 20 30]", got)
	}

	if err := c.UnignoreRevisions(ctx, "alice", []scm.Revision{20, 99}); err != nil {
		t.Fatal(err)
	}
	got, _ = c.IgnoredRevisions(ctx, "alice")
	if !reflect.DeepEqual(got, []scm.Revision{10, 30}) {
		t.Errorf("after unignore = %v, expected [10 30]", got)
	}

	if other, _ := c.IgnoredRevisions(ctx, "bob"); len(other) != 0 {
		t.Errorf("ignore lists leak between users: %v", other)
	}
}

func TestDisplayIdentity(t *testing.T) {
	c := newTestCache(store.NewMemory())
	ctx := context.Background()

	if got, err := c.DisplayIdentity(ctx, "alice"); err != nil || got != "" {
		t.Fatalf("unset DisplayIdentity = (%q, %v)", got, err)
	}
	if err := c.SetDisplayIdentity(ctx, "alice", "ahenkel"); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.DisplayIdentity(ctx, "alice"); got != "ahenkel" {
		t.Errorf("DisplayIdentity = %q, expected ahenkel", got)
	}

	if _, err := c.DisplayIdentity(ctx, " "); !errs.Is(err, errs.Validation) {
		t.Errorf("empty user id: expected validation error, got %v", err)
	}
}

func TestStoreFailureSurfacesForIgnoreList(t *testing.T) {
	kv := store.NewMemory()
	c := newTestCache(kv)
	_ = kv.Close()

	if _, err := c.IgnoredRevisions(context.Background(), "alice"); !errs.Is(err, errs.CacheStore) {
		t.Errorf("expected cache store error, got %v", err)
	}
}
