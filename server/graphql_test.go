package server

import (
	"encoding/json"
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/open-saves/movie-catalog/catalog"
)

type graphqlResponse struct {
	Data struct {
		Movie *struct {
			ID          string  `json:"id"`
			Name        string  `json:"name"`
			VoteCount   int64   `json:"voteCount"`
			VoteAverage float64 `json:"voteAverage"`
			Genres      []struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
			} `json:"genres"`
			CreatedAt string `json:"createdAt"`
		} `json:"movie"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func movieQueryBody(t *testing.T, id string) string {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"query":     `query($id: ID!) { movie(id: $id) { id name voteCount voteAverage genres { id name } createdAt } }`,
		"variables": map[string]string{"id": id},
	})
	require.NoError(t, err)
	return string(body)
}

func postGraphQL(t *testing.T, s *Server, id string) graphqlResponse {
	t.Helper()
	rec := serve(s, http.MethodPost, "/graphql", movieQueryBody(t, id))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp graphqlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGraphQLMovie(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		stored := storedMovie("The Matrix")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, storedDoc(t, stored)))
		s := newTestServer(mt, nil)

		resp := postGraphQL(t, s, stored.ID.Hex())
		require.Empty(t, resp.Errors)
		require.NotNil(t, resp.Data.Movie)
		assert.Equal(t, stored.ID.Hex(), resp.Data.Movie.ID)
		assert.Equal(t, "The Matrix", resp.Data.Movie.Name)
		assert.Equal(t, int64(1500), resp.Data.Movie.VoteCount)
		assert.Equal(t, 8.7, resp.Data.Movie.VoteAverage)
		require.Len(t, resp.Data.Movie.Genres, 1)
		assert.Equal(t, "Action", resp.Data.Movie.Genres[0].Name)
		assert.Equal(t, "2024-05-01T11:00:00Z", resp.Data.Movie.CreatedAt)
	})

	mt.Run("missing resolves to null", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))
		s := newTestServer(mt, nil)

		resp := postGraphQL(t, s, primitive.NewObjectID().Hex())
		assert.Empty(t, resp.Errors)
		assert.Nil(t, resp.Data.Movie)
	})

	mt.Run("invalid id", func(mt *mtest.T) {
		s := newTestServer(mt, nil)

		resp := postGraphQL(t, s, "nope")
		require.Len(t, resp.Errors, 1)
		assert.Contains(t, resp.Errors[0].Message, "nope")
		assert.Nil(t, resp.Data.Movie)
		assert.Empty(t, commandNames(mt))
	})
}

func TestGraphQLMovie_IntRange(t *testing.T) {
	m := &catalog.Movie{
		VoteCount: math.MaxInt32 + 1,
		Genres:    []catalog.Genre{{ID: math.MinInt32 - 1, Name: "Low"}, {ID: 28, Name: "Action"}},
	}
	r := &movieResolver{m: m}

	assert.Equal(t, int32(math.MaxInt32), r.VoteCount())
	genres := r.Genres()
	require.Len(t, genres, 2)
	assert.Equal(t, int32(math.MinInt32), genres[0].ID())
	assert.Equal(t, int32(28), genres[1].ID())
}
