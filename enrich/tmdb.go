package enrich

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/open-saves/movie-catalog/catalog"
)

// DefaultDiscoverQuery selects highly rated titles available on one
// streaming provider, oldest first.
const DefaultDiscoverQuery = "include_adult=false&include_video=false&language=en-US&page=1" +
	"&sort_by=primary_release_date.asc&vote_average.gte=8.4&vote_count.gte=1500" +
	"&watch_region=TR&with_watch_providers=8"

// Candidate is a discover result.
type Candidate struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Details is the full TMDB movie record.
type Details struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Overview    string          `json:"overview"`
	Popularity  float64         `json:"popularity"`
	VoteAverage float64         `json:"vote_average"`
	VoteCount   int64           `json:"vote_count"`
	ReleaseDate string          `json:"release_date"`
	Genres      []catalog.Genre `json:"genres"`
}

// Fields maps the TMDB record onto catalog fields.
func (d *Details) Fields() catalog.MovieFields {
	return catalog.MovieFields{
		Name:        d.Title,
		Overview:    d.Overview,
		Popularity:  d.Popularity,
		VoteAverage: d.VoteAverage,
		VoteCount:   d.VoteCount,
		ReleaseDate: d.ReleaseDate,
		Genres:      d.Genres,
	}
}

// Feed is the third-party source of candidate movies.
type Feed interface {
	Discover(ctx context.Context) ([]Candidate, error)
	Details(ctx context.Context, id int64) (*Details, error)
}

// TMDBOptions configures a TMDBClient.
type TMDBOptions struct {
	BaseURL           string
	AccessToken       string
	DiscoverQuery     string
	RequestsPerSecond float64
	Timeout           time.Duration
	RetryCount        int
}

// TMDBClient reads the TMDB v3 API.
type TMDBClient struct {
	client        *resty.Client
	limiter       *rate.Limiter
	discoverQuery string
}

// NewTMDBClient creates a rate limited TMDB client.
func NewTMDBClient(opts TMDBOptions) (*TMDBClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("TMDB base URL is required")
	}
	if opts.AccessToken == "" {
		return nil, fmt.Errorf("TMDB access token is required")
	}
	if opts.DiscoverQuery == "" {
		opts.DiscoverQuery = DefaultDiscoverQuery
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetAuthToken(opts.AccessToken)
	client.SetHeader("Accept", "application/json")
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(opts.RetryCount)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(5 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if r == nil {
			return err != nil
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
	})

	return &TMDBClient{
		client:        client,
		limiter:       rate.NewLimiter(limit, 1),
		discoverQuery: opts.DiscoverQuery,
	}, nil
}

// Discover returns the first discover page.
func (c *TMDBClient) Discover(ctx context.Context) ([]Candidate, error) {
	var page struct {
		Results []Candidate `json:"results"`
	}
	if err := c.get(ctx, "/discover/movie", c.discoverQuery, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Details returns the full record of one movie.
func (c *TMDBClient) Details(ctx context.Context, id int64) (*Details, error) {
	var d Details
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), "", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *TMDBClient) get(ctx context.Context, path, query string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req := c.client.R().SetContext(ctx).SetResult(out)
	if query != "" {
		req.SetQueryString(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("failed to call TMDB %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("TMDB %s returned %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}
