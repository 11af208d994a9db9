package enrich

import (
	"context"
)

// Cache remembers which feed entries have already been handled so repeated
// runs skip the detail request.
type Cache interface {
	Seen(ctx context.Context, feedID int64) (bool, error)
	MarkSeen(ctx context.Context, feedID int64) error
}

// NoOpCache implements the Cache interface but remembers nothing
type NoOpCache struct{}

// Seen always reports false
func (c *NoOpCache) Seen(ctx context.Context, feedID int64) (bool, error) {
	return false, nil
}

// MarkSeen does nothing
func (c *NoOpCache) MarkSeen(ctx context.Context, feedID int64) error {
	return nil
}
