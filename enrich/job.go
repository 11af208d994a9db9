// Package enrich periodically pulls movies from TMDB into the catalog.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/open-saves/movie-catalog/catalog"
)

var (
	candidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "movie_catalog_enrich_candidates_total",
		Help: "Feed candidates handled by the enrichment job, by outcome.",
	}, []string{"outcome"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "movie_catalog_enrich_runs_total",
		Help: "Enrichment runs, by result.",
	}, []string{"result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "movie_catalog_enrich_run_duration_seconds",
		Help:    "Duration of enrichment runs.",
		Buckets: prometheus.DefBuckets,
	})
)

// Catalog is the part of the repository the job writes through.
type Catalog interface {
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(fields catalog.MovieFields) *catalog.Movie
	Persist(ctx context.Context, movie *catalog.Movie) (*catalog.Movie, error)
}

// Report summarises one run.
type Report struct {
	Candidates int
	Inserted   int
	Skipped    int
	Failed     int
}

type outcome string

const (
	outcomeInserted outcome = "inserted"
	outcomeSkipped  outcome = "skipped"
	outcomeFailed   outcome = "failed"
)

// JobOptions configures a Job.
type JobOptions struct {
	Interval    time.Duration
	Concurrency int
}

// Job inserts feed movies whose name is not yet in the catalog.
type Job struct {
	feed        Feed
	catalog     Catalog
	cache       Cache
	logger      logrus.FieldLogger
	interval    time.Duration
	concurrency int
}

// NewJob creates an enrichment job. A nil cache remembers nothing.
func NewJob(feed Feed, c Catalog, cache Cache, logger logrus.FieldLogger, opts JobOptions) *Job {
	if cache == nil {
		cache = &NoOpCache{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Job{
		feed:        feed,
		catalog:     c,
		cache:       cache,
		logger:      logger.WithField("component", "enrich"),
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
	}
}

// Run executes a pass immediately and then once per interval until ctx is
// done. With no interval it runs a single pass.
func (j *Job) Run(ctx context.Context) {
	j.runLogged(ctx)
	if j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	report, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.WithError(err).Error("enrichment run failed")
		return
	}
	j.logger.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"inserted":   report.Inserted,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	}).Info("enrichment run finished")
}

// RunOnce performs a single pass over the discover results. Failures on
// individual candidates are counted, not returned.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	candidates, err := j.feed.Discover(ctx)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return Report{}, fmt.Errorf("failed to discover movies: %w", err)
	}

	report := Report{Candidates: len(candidates)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, j.concurrency)

	for _, c := range candidates {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			runsTotal.WithLabelValues("canceled").Inc()
			return report, ctx.Err()
		}

		wg.Add(1)
		go func(c Candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			o := j.ingest(ctx, c)
			candidatesTotal.WithLabelValues(string(o)).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch o {
			case outcomeInserted:
				report.Inserted++
			case outcomeSkipped:
				report.Skipped++
			default:
				report.Failed++
			}
		}(c)
	}

	wg.Wait()
	runsTotal.WithLabelValues("ok").Inc()
	return report, nil
}

func (j *Job) ingest(ctx context.Context, c Candidate) outcome {
	log := j.logger.WithField("tmdb_id", c.ID)

	seen, err := j.cache.Seen(ctx, c.ID)
	if err != nil {
		log.WithError(err).Warn("seen cache unavailable")
	}
	if seen {
		return outcomeSkipped
	}

	details, err := j.feed.Details(ctx, c.ID)
	if err != nil {
		log.WithError(err).Error("failed to fetch movie details")
		return outcomeFailed
	}
	log = log.WithField("name", details.Title)

	exists, err := j.catalog.ExistsByName(ctx, details.Title)
	if err != nil {
		log.WithError(err).Error("failed to check for existing movie")
		return outcomeFailed
	}
	if exists {
		j.markSeen(ctx, log, c.ID)
		return outcomeSkipped
	}

	movie, err := j.catalog.Persist(ctx, j.catalog.Create(details.Fields()))
	if err != nil {
		if errors.Is(err, catalog.ErrDuplicateKey) {
			j.markSeen(ctx, log, c.ID)
			return outcomeSkipped
		}
		log.WithError(err).Error("failed to insert movie")
		return outcomeFailed
	}

	j.markSeen(ctx, log, c.ID)
	log.WithField("id", movie.ID.Hex()).Info("inserted movie")
	return outcomeInserted
}

func (j *Job) markSeen(ctx context.Context, log logrus.FieldLogger, id int64) {
	if err := j.cache.MarkSeen(ctx, id); err != nil {
		log.WithError(err).Warn("failed to mark movie as seen")
	}
}
