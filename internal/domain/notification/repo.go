package notification

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the durable notification store.
type Repository interface {
	Create(ctx context.Context, rec *Record) error

	// GetByID returns the record, or (nil, nil) when it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// ListByUser returns the user's notifications matching the filter,
	// urgent first then newest first, with the total match count.
	ListByUser(ctx context.Context, userID string, f Filter, limit, offset int) ([]*Record, int, error)

	// MarkRead flags the record read and stamps read_at. Returns the updated
	// record, or (nil, nil) when it does not exist.
	MarkRead(ctx context.Context, id uuid.UUID) (*Record, error)

	// MarkAllRead flags all of the user's unread records read and reports how
	// many changed.
	MarkAllRead(ctx context.Context, userID string) (int64, error)

	// Delete removes the record and reports whether it existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// DeleteOlderThan removes records created more than days ago.
	DeleteOlderThan(ctx context.Context, days int) (int64, error)

	Stats(ctx context.Context, userID string) (*Stats, error)

	UnreadCount(ctx context.Context, userID string) (int, error)
}
