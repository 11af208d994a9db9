package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/open-saves/movie-catalog/catalog"
)

// errorResponse is the body of every failed REST call
type errorResponse struct {
	StatusCode int                 `json:"statusCode"`
	Message    string              `json:"message"`
	Errors     []catalog.Violation `json:"errors,omitempty"`
}

// errorResponseFor maps a catalog error onto its HTTP status and body
func errorResponseFor(err error) errorResponse {
	var verr *catalog.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorResponse{StatusCode: http.StatusBadRequest, Message: verr.Error(), Errors: verr.Violations}
	case errors.Is(err, catalog.ErrInvalidID),
		errors.Is(err, catalog.ErrInvalidPage),
		errors.Is(err, catalog.ErrInvalidSort):
		return errorResponse{StatusCode: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, catalog.ErrNotFound):
		return errorResponse{StatusCode: http.StatusNotFound, Message: "Movie not found"}
	case errors.Is(err, catalog.ErrDuplicateKey):
		return errorResponse{StatusCode: http.StatusConflict, Message: "This record already exists"}
	default:
		return errorResponse{StatusCode: http.StatusInternalServerError, Message: "Internal server error"}
	}
}

// writeError renders err and logs it when it is not a client error
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponseFor(err)
	if resp.StatusCode >= http.StatusInternalServerError {
		s.requestLog(r).WithError(err).Error("request failed")
	}
	writeJSON(w, resp.StatusCode, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (s *Server) requestLog(r *http.Request) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"request_id": requestIDFrom(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
}
