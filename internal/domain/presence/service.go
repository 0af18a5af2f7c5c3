package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/realtime"
)

// Publisher pushes presence transitions to connected clients.
type Publisher interface {
	BroadcastPresence(p realtime.PresenceUpdate)
	BroadcastUserOffline(u realtime.UserOffline)
}

// ConnectionChecker reports whether the user has a live socket. Used to
// suppress offline transitions while a reconnect is in flight.
type ConnectionChecker interface {
	IsUserConnected(userID string) bool
}

// Service owns presence semantics: it validates updates, keeps the store and
// the socket rooms in agreement, and broadcasts every transition.
type Service struct {
	repo      Repository
	publisher Publisher
	conns     ConnectionChecker
	logger    zerolog.Logger

	// Disconnects tolerate a short grace window before going offline, so a
	// page refresh does not flap the user through offline and back.
	offlineGrace time.Duration

	mu          sync.Mutex
	graceTimers map[string]*time.Timer
}

// NewService creates the presence service. offlineGrace is how long a user
// may be without sockets before being marked offline.
func NewService(repo Repository, publisher Publisher, conns ConnectionChecker, offlineGrace time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		publisher:    publisher,
		conns:        conns,
		logger:       logger,
		offlineGrace: offlineGrace,
		graceTimers:  make(map[string]*time.Timer),
	}
}

// Get returns the caller's presence, creating an initial online record on
// first sight.
func (s *Service) Get(ctx context.Context, ident *auth.Identity) (*Record, error) {
	rec, err := s.repo.Get(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	status := StatusOnline
	return s.repo.Upsert(ctx, ident.UserID, Update{
		Username: &ident.Username,
		Role:     &ident.Role,
		Status:   &status,
	})
}

// UpdateSelf applies a partial presence update for the caller and broadcasts
// the result.
func (s *Service) UpdateSelf(ctx context.Context, ident *auth.Identity, up Update) (*Record, error) {
	if up.Status != nil && !ValidStatus(*up.Status) {
		return nil, fmt.Errorf("invalid status %q", *up.Status)
	}

	up.Username = &ident.Username
	up.Role = &ident.Role

	rec, err := s.repo.Upsert(ctx, ident.UserID, up)
	if err != nil {
		return nil, err
	}
	s.broadcast(rec)
	return rec, nil
}

// TouchLastSeen advances the caller's last_seen heartbeat.
func (s *Service) TouchLastSeen(ctx context.Context, ident *auth.Identity) error {
	return s.repo.TouchLastSeen(ctx, ident.UserID)
}

// SetOffline marks the caller offline immediately and announces it.
func (s *Service) SetOffline(ctx context.Context, ident *auth.Identity) error {
	s.cancelGrace(ident.UserID)

	rec, err := s.repo.SetOffline(ctx, ident.UserID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	s.publisher.BroadcastUserOffline(realtime.UserOffline{
		UserID:   ident.UserID,
		Username: ident.Username,
		Role:     ident.Role,
	})
	return nil
}

// ListActive returns presence records matching the filter.
func (s *Service) ListActive(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, fmt.Errorf("invalid status %q", f.Status)
	}
	return s.repo.ListActive(ctx, f, limit, offset)
}

// ListOnline returns every currently online user.
func (s *Service) ListOnline(ctx context.Context) ([]*Record, error) {
	return s.repo.ListOnline(ctx)
}

// ListByActivity returns online users engaged in the given activity.
func (s *Service) ListByActivity(ctx context.Context, activity string) ([]*Record, error) {
	return s.repo.ListByActivity(ctx, activity)
}

// ListTyping returns online users typing in the given entity.
func (s *Service) ListTyping(ctx context.Context, entityID, entityType string) ([]*Record, error) {
	return s.repo.ListTyping(ctx, entityID, entityType)
}

// Cleanup marks users offline whose heartbeat is older than olderThan.
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	count, err := s.repo.CleanupStale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Int64("count", count).Dur("older_than", olderThan).Msg("cleaned up stale presence")
	}
	return count, nil
}

// HandleConnect marks the user online when a socket opens. A pending offline
// grace timer from a previous disconnect is cancelled first.
func (s *Service) HandleConnect(ctx context.Context, ident *auth.Identity) {
	s.cancelGrace(ident.UserID)

	status := StatusOnline
	rec, err := s.repo.Upsert(ctx, ident.UserID, Update{
		Username: &ident.Username,
		Role:     &ident.Role,
		Status:   &status,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", ident.UserID).Msg("failed to mark user online")
		return
	}
	s.broadcast(rec)
}

// HandleDisconnect arms the offline grace timer after the user's last socket
// closes. If no socket has reappeared when it fires, the user goes offline.
func (s *Service) HandleDisconnect(ctx context.Context, ident *auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.graceTimers[ident.UserID]; ok {
		timer.Stop()
	}
	who := *ident
	s.graceTimers[who.UserID] = time.AfterFunc(s.offlineGrace, func() {
		s.graceExpired(&who)
	})
}

// HandleActivity records what the user is looking at and doing.
func (s *Service) HandleActivity(ctx context.Context, ident *auth.Identity, page, activity string) {
	rec, err := s.repo.Upsert(ctx, ident.UserID, Update{
		Username:        &ident.Username,
		Role:            &ident.Role,
		CurrentPage:     &page,
		CurrentActivity: &activity,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", ident.UserID).Msg("failed to record activity")
		return
	}
	s.broadcast(rec)
}

// HandleTyping records the start or end of an edit on an entity. Ending an
// edit clears the typing fields entirely.
func (s *Service) HandleTyping(ctx context.Context, ident *auth.Identity, entityID, entityType string, typing bool) {
	if !typing {
		entityID, entityType = "", ""
	}
	rec, err := s.repo.Upsert(ctx, ident.UserID, Update{
		Username:         &ident.Username,
		Role:             &ident.Role,
		IsTyping:         &typing,
		TypingEntityID:   &entityID,
		TypingEntityType: &entityType,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", ident.UserID).Msg("failed to record typing state")
		return
	}
	s.broadcast(rec)
}

// Stop cancels every pending grace timer. Called on shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.graceTimers {
		timer.Stop()
		delete(s.graceTimers, id)
	}
}

func (s *Service) graceExpired(ident *auth.Identity) {
	s.mu.Lock()
	delete(s.graceTimers, ident.UserID)
	s.mu.Unlock()

	// The user may have reconnected while the timer was pending.
	if s.conns.IsUserConnected(ident.UserID) {
		return
	}

	ctx := context.Background()
	rec, err := s.repo.SetOffline(ctx, ident.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", ident.UserID).Msg("failed to mark user offline")
		return
	}
	if rec == nil {
		return
	}

	s.logger.Info().Str("user_id", ident.UserID).Str("username", ident.Username).Msg("user went offline")
	s.publisher.BroadcastUserOffline(realtime.UserOffline{
		UserID:   ident.UserID,
		Username: ident.Username,
		Role:     ident.Role,
	})
}

func (s *Service) cancelGrace(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.graceTimers[userID]; ok {
		timer.Stop()
		delete(s.graceTimers, userID)
	}
}

func (s *Service) broadcast(rec *Record) {
	s.publisher.BroadcastPresence(realtime.PresenceUpdate{
		UserID:           rec.UserID,
		Username:         rec.Username,
		Role:             rec.Role,
		Status:           string(rec.Status),
		CurrentPage:      rec.CurrentPage,
		CurrentActivity:  rec.CurrentActivity,
		IsTyping:         rec.IsTyping,
		TypingEntityID:   rec.TypingEntityID,
		TypingEntityType: rec.TypingEntityType,
		LastSeen:         rec.LastSeen,
	})
}
