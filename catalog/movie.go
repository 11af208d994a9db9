package catalog

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Genre is a TMDB-style genre reference.
type Genre struct {
	ID   int64  `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
}

// Movie is a catalog record as stored in the movies collection.
type Movie struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Overview    string             `bson:"overview" json:"overview"`
	Popularity  float64            `bson:"popularity" json:"popularity"`
	VoteAverage float64            `bson:"voteAverage" json:"voteAverage"`
	VoteCount   int64              `bson:"voteCount" json:"voteCount"`
	ReleaseDate string             `bson:"releaseDate" json:"releaseDate"`
	Genres      []Genre            `bson:"genres" json:"genres"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`

	// unsaved is set by Create and cleared by the first successful Persist.
	unsaved bool
}

// IsNew reports whether the movie has been created but never persisted.
func (m *Movie) IsNew() bool {
	return m.unsaved
}

// MovieFields holds the caller-supplied fields of a new movie.
type MovieFields struct {
	Name        string  `json:"name"`
	Overview    string  `json:"overview"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"voteAverage"`
	VoteCount   int64   `json:"voteCount"`
	ReleaseDate string  `json:"releaseDate"`
	Genres      []Genre `json:"genres"`
}

// MovieUpdate is a partial update. Nil fields are left untouched.
type MovieUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Overview    *string  `json:"overview,omitempty"`
	Popularity  *float64 `json:"popularity,omitempty"`
	VoteAverage *float64 `json:"voteAverage,omitempty"`
	VoteCount   *int64   `json:"voteCount,omitempty"`
	ReleaseDate *string  `json:"releaseDate,omitempty"`
	Genres      *[]Genre `json:"genres,omitempty"`
}

// IsEmpty reports whether the update supplies no field at all.
func (u MovieUpdate) IsEmpty() bool {
	return u.Name == nil && u.Overview == nil && u.Popularity == nil &&
		u.VoteAverage == nil && u.VoteCount == nil && u.ReleaseDate == nil && u.Genres == nil
}

// Apply overwrites the fields of m that u explicitly supplies.
func (u MovieUpdate) Apply(m *Movie) {
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Overview != nil {
		m.Overview = *u.Overview
	}
	if u.Popularity != nil {
		m.Popularity = *u.Popularity
	}
	if u.VoteAverage != nil {
		m.VoteAverage = *u.VoteAverage
	}
	if u.VoteCount != nil {
		m.VoteCount = *u.VoteCount
	}
	if u.ReleaseDate != nil {
		m.ReleaseDate = *u.ReleaseDate
	}
	if u.Genres != nil {
		m.Genres = append([]Genre{}, (*u.Genres)...)
	}
}

// Validate checks the constraints every stored movie must satisfy and
// returns a *ValidationError listing all violations, or nil.
func Validate(m *Movie) error {
	var v []Violation
	if strings.TrimSpace(m.Name) == "" {
		v = append(v, Violation{Field: "name", Message: "is required"})
	}
	if strings.TrimSpace(m.Overview) == "" {
		v = append(v, Violation{Field: "overview", Message: "is required"})
	}
	if m.ReleaseDate == "" {
		v = append(v, Violation{Field: "releaseDate", Message: "is required"})
	}
	if m.VoteCount < 0 {
		v = append(v, Violation{Field: "voteCount", Message: "must not be negative"})
	}
	for i, g := range m.Genres {
		if g.Name == "" {
			v = append(v, Violation{Field: "genres", Message: "genre " + strconv.Itoa(i) + " has no name"})
		}
	}
	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}
