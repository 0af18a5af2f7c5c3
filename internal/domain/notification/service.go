package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/realtime"
)

// Notifier pushes a notification to the recipient's live sockets. Push is
// best-effort; the durable record is the source of truth.
type Notifier interface {
	NotifyUser(userID string, n realtime.Notification)
}

type Service struct {
	repo     Repository
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(repo Repository, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// Create validates and persists a notification, then pushes it to any sockets
// the recipient has open. A recipient with no sockets still gets the durable
// record and sees it on their next listing.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Record, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if !realtime.ValidNotificationType(in.Type) {
		return nil, fmt.Errorf("invalid notification type %q", in.Type)
	}
	if in.Priority == "" {
		in.Priority = realtime.PriorityMedium
	}
	if !realtime.ValidPriority(in.Priority) {
		return nil, fmt.Errorf("invalid priority %q", in.Priority)
	}

	rec := &Record{
		UserID:   in.UserID,
		Type:     in.Type,
		Title:    in.Title,
		Message:  in.Message,
		Data:     in.Data,
		Priority: in.Priority,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.notifier.NotifyUser(rec.UserID, realtime.Notification{
		ID:        rec.ID.String(),
		Type:      rec.Type,
		Title:     rec.Title,
		Message:   rec.Message,
		Data:      rec.Data,
		Priority:  rec.Priority,
		Timestamp: rec.CreatedAt,
	})
	return rec, nil
}

// Get returns one notification by id, or (nil, nil) when absent.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// ListForUser returns the user's notifications matching the filter.
func (s *Service) ListForUser(ctx context.Context, userID string, f Filter, limit, offset int) ([]*Record, int, error) {
	if f.Type != "" && !realtime.ValidNotificationType(f.Type) {
		return nil, 0, fmt.Errorf("invalid notification type %q", f.Type)
	}
	if f.Priority != "" && !realtime.ValidPriority(f.Priority) {
		return nil, 0, fmt.Errorf("invalid priority %q", f.Priority)
	}
	return s.repo.ListByUser(ctx, userID, f, limit, offset)
}

// MarkRead flags a notification read.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.MarkRead(ctx, id)
}

// MarkAllRead flags all of the user's unread notifications read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// Delete removes a notification.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Delete(ctx, id)
}

// Cleanup removes notifications older than days.
func (s *Service) Cleanup(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, fmt.Errorf("days must be at least 1")
	}
	count, err := s.repo.DeleteOlderThan(ctx, days)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Int64("count", count).Int("days", days).Msg("deleted old notifications")
	}
	return count, nil
}

// Stats summarises the user's notifications.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	return s.repo.Stats(ctx, userID)
}

// UnreadCount returns how many unread notifications the user has.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}
