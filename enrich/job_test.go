package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/open-saves/movie-catalog/catalog"
)

type fakeFeed struct {
	candidates  []Candidate
	discoverErr error
	details     map[int64]*Details
	detailErr   map[int64]error

	mu           sync.Mutex
	detailsCalls []int64
}

func (f *fakeFeed) Discover(ctx context.Context) ([]Candidate, error) {
	return f.candidates, f.discoverErr
}

func (f *fakeFeed) Details(ctx context.Context, id int64) (*Details, error) {
	f.mu.Lock()
	f.detailsCalls = append(f.detailsCalls, id)
	f.mu.Unlock()
	if err := f.detailErr[id]; err != nil {
		return nil, err
	}
	d, ok := f.details[id]
	if !ok {
		return nil, fmt.Errorf("no movie %d", id)
	}
	return d, nil
}

func (f *fakeFeed) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.detailsCalls)
}

type fakeCatalog struct {
	mu         sync.Mutex
	names      map[string]bool
	persistErr map[string]error
	existsErr  error
	persisted  []*catalog.Movie
}

func newFakeCatalog(existing ...string) *fakeCatalog {
	c := &fakeCatalog{names: map[string]bool{}, persistErr: map[string]error{}}
	for _, n := range existing {
		c.names[n] = true
	}
	return c
}

func (c *fakeCatalog) ExistsByName(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.existsErr != nil {
		return false, c.existsErr
	}
	return c.names[name], nil
}

func (c *fakeCatalog) Create(fields catalog.MovieFields) *catalog.Movie {
	return &catalog.Movie{
		ID:          primitive.NewObjectID(),
		Name:        fields.Name,
		Overview:    fields.Overview,
		Popularity:  fields.Popularity,
		VoteAverage: fields.VoteAverage,
		VoteCount:   fields.VoteCount,
		ReleaseDate: fields.ReleaseDate,
		Genres:      fields.Genres,
	}
}

func (c *fakeCatalog) Persist(ctx context.Context, movie *catalog.Movie) (*catalog.Movie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.persistErr[movie.Name]; err != nil {
		return nil, err
	}
	c.names[movie.Name] = true
	c.persisted = append(c.persisted, movie)
	return movie, nil
}

func details(id int64, title string) *Details {
	return &Details{
		ID:          id,
		Title:       title,
		Overview:    "An overview long enough to be stored.",
		VoteAverage: 8.5,
		VoteCount:   2000,
		ReleaseDate: "2000-01-01",
		Genres:      []catalog.Genre{{ID: 18, Name: "Drama"}},
	}
}

func newTestJob(feed Feed, c Catalog, cache Cache) (*Job, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewJob(feed, c, cache, logger, JobOptions{Concurrency: 3}), hook
}

func TestJob_RunOnce(t *testing.T) {
	feed := &fakeFeed{
		candidates: []Candidate{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}},
		details: map[int64]*Details{
			1: details(1, "The Matrix"),
			2: details(2, "Inception"),
			3: details(3, "Interstellar"),
		},
	}
	cat := newFakeCatalog("Inception")

	job, hook := newTestJob(feed, cat, nil)
	report, err := job.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Candidates: 4, Inserted: 2, Skipped: 1, Failed: 1}, report)

	var inserted []string
	for _, m := range cat.persisted {
		inserted = append(inserted, m.Name)
	}
	assert.ElementsMatch(t, []string{"The Matrix", "Interstellar"}, inserted)

	var failures int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			failures++
			assert.Equal(t, int64(4), e.Data["tmdb_id"])
		}
	}
	assert.Equal(t, 1, failures)
}

func TestJob_RunOnce_DiscoverFailure(t *testing.T) {
	feed := &fakeFeed{discoverErr: errors.New("connection refused")}
	cat := newFakeCatalog()

	job, _ := newTestJob(feed, cat, nil)
	_, err := job.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, cat.persisted)
}

func TestJob_RunOnce_DuplicateIsSkipped(t *testing.T) {
	feed := &fakeFeed{
		candidates: []Candidate{{ID: 1}},
		details:    map[int64]*Details{1: details(1, "The Matrix")},
	}
	cat := newFakeCatalog()
	cat.persistErr["The Matrix"] = catalog.ErrDuplicateKey

	job, _ := newTestJob(feed, cat, nil)
	report, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 1, Skipped: 1}, report)
}

func TestJob_RunOnce_PersistAndLookupFailures(t *testing.T) {
	feed := &fakeFeed{
		candidates: []Candidate{{ID: 1}},
		details:    map[int64]*Details{1: details(1, "The Matrix")},
	}

	cat := newFakeCatalog()
	cat.persistErr["The Matrix"] = &catalog.ValidationError{}
	job, _ := newTestJob(feed, cat, nil)
	report, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 1, Failed: 1}, report)

	cat = newFakeCatalog()
	cat.existsErr = errors.New("server selection timeout")
	job, _ = newTestJob(feed, cat, nil)
	report, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 1, Failed: 1}, report)
	assert.Empty(t, cat.persisted)
}

func TestJob_RunOnce_SeenCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(context.Background(), mr.Addr(), 3600)
	require.NoError(t, err)
	defer cache.Close()

	feed := &fakeFeed{
		candidates: []Candidate{{ID: 1}, {ID: 2}},
		details: map[int64]*Details{
			1: details(1, "The Matrix"),
			2: details(2, "Inception"),
		},
	}
	cat := newFakeCatalog("Inception")
	job, _ := newTestJob(feed, cat, cache)

	report, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 2, Inserted: 1, Skipped: 1}, report)
	assert.Equal(t, 2, feed.calls())

	report, err = job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 2, Skipped: 2}, report)
	assert.Equal(t, 2, feed.calls(), "seen candidates are not fetched again")
}

func TestJob_RunOnce_CacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(context.Background(), mr.Addr(), 3600)
	require.NoError(t, err)
	defer cache.Close()
	mr.Close()

	feed := &fakeFeed{
		candidates: []Candidate{{ID: 1}},
		details:    map[int64]*Details{1: details(1, "The Matrix")},
	}
	cat := newFakeCatalog()
	job, _ := newTestJob(feed, cat, cache)

	report, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Candidates: 1, Inserted: 1}, report)
}

func TestJob_Run_StopsOnCancel(t *testing.T) {
	feed := &fakeFeed{candidates: []Candidate{}}
	logger, hook := test.NewNullLogger()
	job := NewJob(feed, newFakeCatalog(), nil, logger, JobOptions{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(hook.AllEntries()) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "enrichment run finished", hook.LastEntry().Message)
}

func TestJob_Run_SinglePass(t *testing.T) {
	feed := &fakeFeed{discoverErr: errors.New("unauthorized")}
	logger, hook := test.NewNullLogger()
	job := NewJob(feed, newFakeCatalog(), nil, logger, JobOptions{})

	job.Run(context.Background())

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "enrichment run failed", hook.LastEntry().Message)
}
