package server

import (
	"context"
	"math"
	"net/http"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/open-saves/movie-catalog/catalog"
)

const movieSchema = `
schema {
	query: Query
}

type Query {
	movie(id: ID!): Movie
}

type Genre {
	id: Int!
	name: String!
}

type Movie {
	id: ID!
	name: String!
	overview: String!
	popularity: Float!
	voteAverage: Float!
	voteCount: Int!
	releaseDate: String!
	genres: [Genre!]!
	createdAt: String!
	updatedAt: String!
}
`

// queryResolver resolves the root query type
type queryResolver struct {
	repo catalog.Repository
}

// Movie looks a movie up by id and resolves to null when it does not exist
func (q *queryResolver) Movie(ctx context.Context, args struct{ ID graphql.ID }) (*movieResolver, error) {
	id, err := catalog.DecodeID(string(args.ID))
	if err != nil {
		return nil, err
	}
	m, err := q.repo.FindOne(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}
	return &movieResolver{m: m}, nil
}

type movieResolver struct {
	m *catalog.Movie
}

func (r *movieResolver) ID() graphql.ID       { return graphql.ID(r.m.ID.Hex()) }
func (r *movieResolver) Name() string         { return r.m.Name }
func (r *movieResolver) Overview() string     { return r.m.Overview }
func (r *movieResolver) Popularity() float64  { return r.m.Popularity }
func (r *movieResolver) VoteAverage() float64 { return r.m.VoteAverage }
func (r *movieResolver) VoteCount() int32     { return clampInt32(r.m.VoteCount) }
func (r *movieResolver) ReleaseDate() string  { return r.m.ReleaseDate }
func (r *movieResolver) CreatedAt() string    { return r.m.CreatedAt.Format(time.RFC3339Nano) }
func (r *movieResolver) UpdatedAt() string    { return r.m.UpdatedAt.Format(time.RFC3339Nano) }

func (r *movieResolver) Genres() []*genreResolver {
	out := make([]*genreResolver, 0, len(r.m.Genres))
	for i := range r.m.Genres {
		out = append(out, &genreResolver{g: r.m.Genres[i]})
	}
	return out
}

type genreResolver struct {
	g catalog.Genre
}

func (r *genreResolver) ID() int32    { return clampInt32(r.g.ID) }

// clampInt32 saturates v to the range of a GraphQL Int.
func clampInt32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}
func (r *genreResolver) Name() string { return r.g.Name }

// graphqlHandler serves the movie schema over POST
func graphqlHandler(repo catalog.Repository) http.Handler {
	schema := graphql.MustParseSchema(movieSchema, &queryResolver{repo: repo})
	return &relay.Handler{Schema: schema}
}
