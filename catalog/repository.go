// Package catalog is the query and update engine of the movie catalog.
package catalog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Repository defines the operations on the movie collection.
type Repository interface {
	// Create builds an unsaved movie. Nothing is written until Persist.
	Create(fields MovieFields) *Movie

	// Persist inserts a new movie or replaces a stored one.
	Persist(ctx context.Context, movie *Movie) (*Movie, error)

	// FindOne returns (nil, nil) when no movie has the id.
	FindOne(ctx context.Context, id primitive.ObjectID) (*Movie, error)

	// FindMany returns a cursor over the matching movies. A nil plan yields
	// every match in store order.
	FindMany(ctx context.Context, filter Filter, plan *SortPagePlan) (*MovieCursor, error)

	// Count returns the number of matching movies, ignoring paging.
	Count(ctx context.Context, filter Filter) (int64, error)

	// Update applies a partial update and returns the stored result.
	Update(ctx context.Context, id primitive.ObjectID, update MovieUpdate) (*Movie, error)

	// Remove deletes a movie and returns it, or (nil, nil) if it did not exist.
	Remove(ctx context.Context, id primitive.ObjectID) (*Movie, error)

	// ExistsByName reports whether a movie with exactly this name exists.
	ExistsByName(ctx context.Context, name string) (bool, error)
}

// MovieCursor lazily iterates over the result of FindMany.
type MovieCursor struct {
	cur *mongo.Cursor
}

// Next advances the cursor, fetching further batches as needed.
func (c *MovieCursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

// Movie decodes the current document.
func (c *MovieCursor) Movie() (*Movie, error) {
	var m Movie
	if err := c.cur.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode movie: %w", err)
	}
	return &m, nil
}

// Err returns the last iteration error.
func (c *MovieCursor) Err() error {
	return c.cur.Err()
}

// Close releases the server-side cursor.
func (c *MovieCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

// All drains and closes the cursor.
func (c *MovieCursor) All(ctx context.Context) ([]*Movie, error) {
	defer c.cur.Close(ctx)

	movies := []*Movie{}
	for c.cur.Next(ctx) {
		m, err := c.Movie()
		if err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}

	if err := c.cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return movies, nil
}
