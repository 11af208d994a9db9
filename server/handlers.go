package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/open-saves/movie-catalog/catalog"
)

const (
	maxBodyBytes = 1 << 20
	maxLimit     = 100
)

// movieResponse wraps a single movie
type movieResponse struct {
	Result *catalog.Movie `json:"result"`
}

// pagedMovieResponse is one page of a listing
type pagedMovieResponse struct {
	Result []*catalog.Movie `json:"result"`
	Count  int64            `json:"count"`
	Page   int              `json:"page"`
	Limit  int64            `json:"limit"`
}

// createMovieRequest is the body of POST /v1/movie
type createMovieRequest struct {
	Name        string          `json:"name"`
	Overview    string          `json:"overview"`
	Popularity  *float64        `json:"popularity"`
	VoteAverage *float64        `json:"voteAverage"`
	VoteCount   *int64          `json:"voteCount"`
	ReleaseDate string          `json:"releaseDate"`
	Genres      []catalog.Genre `json:"genres"`
}

func (req *createMovieRequest) validate() error {
	var v []catalog.Violation
	v = checkMinLength(v, "name", req.Name, 3)
	v = checkMinLength(v, "overview", req.Overview, 10)
	if req.Popularity == nil {
		v = append(v, catalog.Violation{Field: "popularity", Message: "is required"})
	}
	if req.VoteAverage == nil {
		v = append(v, catalog.Violation{Field: "voteAverage", Message: "is required"})
	}
	if req.VoteCount == nil {
		v = append(v, catalog.Violation{Field: "voteCount", Message: "is required"})
	}
	if req.ReleaseDate == "" {
		v = append(v, catalog.Violation{Field: "releaseDate", Message: "is required"})
	}
	if req.Genres == nil {
		v = append(v, catalog.Violation{Field: "genres", Message: "is required"})
	}
	return violations(v)
}

func (req *createMovieRequest) fields() catalog.MovieFields {
	f := catalog.MovieFields{
		Name:        req.Name,
		Overview:    req.Overview,
		ReleaseDate: req.ReleaseDate,
		Genres:      req.Genres,
	}
	if req.Popularity != nil {
		f.Popularity = *req.Popularity
	}
	if req.VoteAverage != nil {
		f.VoteAverage = *req.VoteAverage
	}
	if req.VoteCount != nil {
		f.VoteCount = *req.VoteCount
	}
	return f
}

// validateUpdate applies the create rules to the fields an update supplies
func validateUpdate(u catalog.MovieUpdate) error {
	var v []catalog.Violation
	if u.Name != nil {
		v = checkMinLength(v, "name", *u.Name, 3)
	}
	if u.Overview != nil {
		v = checkMinLength(v, "overview", *u.Overview, 10)
	}
	if u.ReleaseDate != nil && *u.ReleaseDate == "" {
		v = append(v, catalog.Violation{Field: "releaseDate", Message: "must not be empty"})
	}
	return violations(v)
}

func checkMinLength(v []catalog.Violation, field, value string, n int) []catalog.Violation {
	if len([]rune(value)) < n {
		return append(v, catalog.Violation{Field: field, Message: fmt.Sprintf("must be at least %d characters", n)})
	}
	return v
}

func violations(v []catalog.Violation) error {
	if len(v) > 0 {
		return &catalog.ValidationError{Violations: v}
	}
	return nil
}

// movieQuery is the parsed query string of GET /v1/movie
type movieQuery struct {
	filter    catalog.FilterParams
	orderBy   catalog.SortField
	direction catalog.SortDirection
	page      int
	limit     int
}

// parseMovieQuery reads and range checks the listing parameters
func parseMovieQuery(r *http.Request) (*movieQuery, error) {
	q := r.URL.Query()
	mq := &movieQuery{}
	var v []catalog.Violation

	mq.filter.Name = q.Get("name")
	mq.filter.Overview = q.Get("overview")
	mq.filter.ReleaseDate = q.Get("releaseDate")
	for _, g := range q["genres"] {
		for _, name := range strings.Split(g, ",") {
			if name = strings.TrimSpace(name); name != "" {
				mq.filter.Genres = append(mq.filter.Genres, name)
			}
		}
	}

	parseFloat := func(key string, dst *float64) {
		raw := q.Get(key)
		if raw == "" {
			return
		}
		f, err := strconv.ParseFloat(raw, 64)
		switch {
		case err != nil:
			v = append(v, catalog.Violation{Field: key, Message: "must be a number"})
		case f < 0 || f > 10:
			v = append(v, catalog.Violation{Field: key, Message: "must be between 0 and 10"})
		default:
			*dst = f
		}
	}
	parseFloat("popularity", &mq.filter.Popularity)
	parseFloat("voteAverage", &mq.filter.VoteAverage)

	if raw := q.Get("voteCount"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		switch {
		case err != nil:
			v = append(v, catalog.Violation{Field: "voteCount", Message: "must be an integer"})
		case n < 0:
			v = append(v, catalog.Violation{Field: "voteCount", Message: "must not be negative"})
		default:
			mq.filter.VoteCount = n
		}
	}

	if raw := q.Get("orderBy"); raw != "" {
		mq.orderBy = catalog.SortField(raw)
		if !mq.orderBy.Valid() {
			v = append(v, catalog.Violation{Field: "orderBy", Message: "must be one of createdAt, updatedAt, name"})
		}
	}
	if raw := q.Get("orderDirection"); raw != "" {
		mq.direction = catalog.SortDirection(raw)
		if mq.direction != catalog.SortAscending && mq.direction != catalog.SortDescending {
			v = append(v, catalog.Violation{Field: "orderDirection", Message: "must be one of asc, desc"})
		}
	}

	parseInt := func(key string, lo, hi int, dst *int) {
		raw := q.Get(key)
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			v = append(v, catalog.Violation{Field: key, Message: "must be an integer"})
		case hi > 0 && (n < lo || n > hi):
			v = append(v, catalog.Violation{Field: key, Message: fmt.Sprintf("must be between %d and %d", lo, hi)})
		case n < lo:
			v = append(v, catalog.Violation{Field: key, Message: fmt.Sprintf("must be at least %d", lo)})
		default:
			*dst = n
		}
	}
	parseInt("page", 1, 0, &mq.page)
	parseInt("limit", 1, maxLimit, &mq.limit)

	if err := violations(v); err != nil {
		return nil, err
	}
	return mq, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &catalog.ValidationError{Violations: []catalog.Violation{{Field: "body", Message: err.Error()}}}
	}
	return nil
}

// handleCreateMovie handles POST /v1/movie
func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	var req createMovieRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	movie, err := s.repo.Persist(r.Context(), s.repo.Create(req.fields()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, movieResponse{Result: movie})
}

// handleListMovies handles GET /v1/movie
func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	mq, err := parseMovieQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	plan, err := catalog.PlanSortPage(mq.orderBy, mq.direction, mq.page, mq.limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := catalog.BuildFilter(mq.filter)

	cursor, err := s.repo.FindMany(r.Context(), filter, plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	movies, err := cursor.All(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	count, err := s.repo.Count(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pagedMovieResponse{
		Result: movies,
		Count:  count,
		Page:   plan.Page,
		Limit:  plan.Limit,
	})
}

// handleGetMovie handles GET /v1/movie/{id}
func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	id, err := catalog.DecodeID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	movie, err := s.repo.FindOne(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if movie == nil {
		s.writeError(w, r, catalog.ErrNotFound)
		return
	}

	writeJSON(w, http.StatusOK, movieResponse{Result: movie})
}

// handleUpdateMovie handles PATCH /v1/movie/{id}
func (s *Server) handleUpdateMovie(w http.ResponseWriter, r *http.Request) {
	id, err := catalog.DecodeID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var update catalog.MovieUpdate
	if err := decodeBody(w, r, &update); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateUpdate(update); err != nil {
		s.writeError(w, r, err)
		return
	}

	var movie *catalog.Movie
	if update.IsEmpty() {
		// nothing to change, answer with the stored movie and skip the write
		movie, err = s.repo.FindOne(r.Context(), id)
		if err == nil && movie == nil {
			err = catalog.ErrNotFound
		}
	} else {
		movie, err = s.repo.Update(r.Context(), id, update)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, movieResponse{Result: movie})
}

// handleDeleteMovie handles DELETE /v1/movie/{id}. Deleting a missing movie
// also answers 204.
func (s *Server) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	id, err := catalog.DecodeID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	removed, err := s.repo.Remove(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if removed != nil {
		s.requestLog(r).WithField("id", removed.ID.Hex()).Info("movie removed")
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports whether the store answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ping(r.Context()); err != nil {
		s.requestLog(r).WithError(err).Warn("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
