package presence

import (
	"context"
	"time"
)

// Repository is the durable presence store. Implementations exist for
// Postgres and Redis; the service layer is backend-agnostic.
type Repository interface {
	// Get returns the user's presence record, or (nil, nil) when none exists.
	Get(ctx context.Context, userID string) (*Record, error)

	// Upsert applies a partial update, creating the record if absent. It
	// returns the stored record after the write. LastSeen never moves
	// backwards.
	Upsert(ctx context.Context, userID string, up Update) (*Record, error)

	// TouchLastSeen advances last_seen to now without touching other fields.
	TouchLastSeen(ctx context.Context, userID string) error

	// SetOffline marks the user offline and clears all typing state. It
	// returns the updated record, or (nil, nil) when the user has none.
	SetOffline(ctx context.Context, userID string) (*Record, error)

	// ListActive returns presence records matching the filter, newest
	// last_seen first, with the total match count for pagination.
	ListActive(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error)

	// ListOnline returns every record with status online, newest first.
	ListOnline(ctx context.Context) ([]*Record, error)

	// ListByActivity returns online users whose current activity matches.
	ListByActivity(ctx context.Context, activity string) ([]*Record, error)

	// ListTyping returns online users actively typing in the given entity.
	ListTyping(ctx context.Context, entityID, entityType string) ([]*Record, error)

	// CleanupStale marks users offline whose last_seen is older than
	// olderThan and reports how many records changed.
	CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
