package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocumentDBRepository implements Repository on a MongoDB or DocumentDB
// collection. It is safe for concurrent use.
type DocumentDBRepository struct {
	movies      *mongo.Collection
	now         func() time.Time
	uniqueNames bool
}

var _ Repository = (*DocumentDBRepository)(nil)

// Option configures a DocumentDBRepository.
type Option func(*DocumentDBRepository)

// WithClock replaces the clock used for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *DocumentDBRepository) {
		r.now = now
	}
}

// WithUniqueNames makes EnsureIndexes create a unique index on name.
func WithUniqueNames(unique bool) Option {
	return func(r *DocumentDBRepository) {
		r.uniqueNames = unique
	}
}

// NewDocumentDBRepository creates a repository over the given collection.
func NewDocumentDBRepository(movies *mongo.Collection, opts ...Option) *DocumentDBRepository {
	r := &DocumentDBRepository{
		movies:      movies,
		now:         time.Now,
		uniqueNames: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureIndexes creates the createdAt index and, if enabled, the unique name
// index that backs ErrDuplicateKey.
func (r *DocumentDBRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	}
	if r.uniqueNames {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
	}

	if _, err := r.movies.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create builds an unsaved movie with a fresh id.
func (r *DocumentDBRepository) Create(fields MovieFields) *Movie {
	genres := fields.Genres
	if genres == nil {
		genres = []Genre{}
	}
	return &Movie{
		ID:          primitive.NewObjectID(),
		Name:        fields.Name,
		Overview:    fields.Overview,
		Popularity:  fields.Popularity,
		VoteAverage: fields.VoteAverage,
		VoteCount:   fields.VoteCount,
		ReleaseDate: fields.ReleaseDate,
		Genres:      append([]Genre{}, genres...),
		unsaved:     true,
	}
}

// Persist validates the movie and writes it. New movies are inserted, stored
// ones are replaced as a whole. The movie is only modified on success.
func (r *DocumentDBRepository) Persist(ctx context.Context, movie *Movie) (*Movie, error) {
	if err := Validate(movie); err != nil {
		return nil, err
	}

	doc := *movie
	doc.UpdatedAt = r.timestamp(movie.UpdatedAt)

	if movie.unsaved {
		doc.CreatedAt = doc.UpdatedAt
		if _, err := r.movies.InsertOne(ctx, &doc); err != nil {
			return nil, classifyWriteError(err, "insert movie")
		}
	} else {
		result, err := r.movies.ReplaceOne(ctx, bson.M{"_id": doc.ID}, &doc)
		if err != nil {
			return nil, classifyWriteError(err, "replace movie")
		}
		if result.MatchedCount == 0 {
			return nil, ErrNotFound
		}
	}

	doc.unsaved = false
	*movie = doc
	return movie, nil
}

// FindOne retrieves a movie by id.
func (r *DocumentDBRepository) FindOne(ctx context.Context, id primitive.ObjectID) (*Movie, error) {
	var movie Movie
	err := r.movies.FindOne(ctx, bson.M{"_id": id}).Decode(&movie)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}
	return &movie, nil
}

// FindMany queries movies. With a plan the cursor is sorted, then limited,
// then skipped.
func (r *DocumentDBRepository) FindMany(ctx context.Context, filter Filter, plan *SortPagePlan) (*MovieCursor, error) {
	opts := options.Find()
	if plan != nil {
		opts.SetSort(plan.Sort())
		opts.SetLimit(plan.Limit)
		opts.SetSkip(plan.Skip)
	}

	cursor, err := r.movies.Find(ctx, queryOf(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query movies: %w", err)
	}
	return &MovieCursor{cur: cursor}, nil
}

// Count returns the number of movies matching filter.
func (r *DocumentDBRepository) Count(ctx context.Context, filter Filter) (int64, error) {
	n, err := r.movies.CountDocuments(ctx, queryOf(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return n, nil
}

// Update loads the movie, applies the supplied fields and persists it.
//
// The load and the write are separate round-trips: an update to the same
// movie committed in between is overwritten (last writer wins).
func (r *DocumentDBRepository) Update(ctx context.Context, id primitive.ObjectID, update MovieUpdate) (*Movie, error) {
	movie, err := r.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if movie == nil {
		return nil, ErrNotFound
	}

	update.Apply(movie)
	return r.Persist(ctx, movie)
}

// Remove deletes a movie and returns its last stored state.
func (r *DocumentDBRepository) Remove(ctx context.Context, id primitive.ObjectID) (*Movie, error) {
	var movie Movie
	err := r.movies.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&movie)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to delete movie: %w", err)
	}
	return &movie, nil
}

// ExistsByName reports whether a movie named exactly name is stored.
func (r *DocumentDBRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := r.movies.FindOne(ctx, bson.M{"name": name}, opts).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check movie existence: %w", err)
	}
	return true, nil
}

// timestamp returns the current time at store precision, strictly after prev.
func (r *DocumentDBRepository) timestamp(prev time.Time) time.Time {
	now := r.now().UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}

func queryOf(filter Filter) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}
