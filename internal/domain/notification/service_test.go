package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/realtime"
)

// mockRepo is an in-memory Repository.
type mockRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*Record)}
}

func (m *mockRepo) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = uuid.New()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockRepo) ListByUser(_ context.Context, userID string, f Filter, limit, offset int) ([]*Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*Record
	for _, rec := range m.records {
		if rec.UserID != userID {
			continue
		}
		if f.IsRead != nil && rec.IsRead != *f.IsRead {
			continue
		}
		if f.Type != "" && rec.Type != f.Type {
			continue
		}
		if f.Priority != "" && rec.Priority != f.Priority {
			continue
		}
		cp := *rec
		matched = append(matched, &cp)
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *mockRepo) MarkRead(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	now := time.Now().UTC()
	rec.IsRead = true
	rec.ReadAt = &now
	rec.UpdatedAt = now
	cp := *rec
	return &cp, nil
}

func (m *mockRepo) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var count int64
	for _, rec := range m.records {
		if rec.UserID == userID && !rec.IsRead {
			rec.IsRead = true
			rec.ReadAt = &now
			rec.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *mockRepo) DeleteOlderThan(_ context.Context, days int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var count int64
	for id, rec := range m.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.records, id)
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) Stats(_ context.Context, userID string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &Stats{ByType: make(map[string]int), ByPriority: make(map[string]int)}
	for _, rec := range m.records {
		if rec.UserID != userID {
			continue
		}
		stats.Total++
		if !rec.IsRead {
			stats.Unread++
		}
		stats.ByType[string(rec.Type)]++
		stats.ByPriority[string(rec.Priority)]++
	}
	return stats, nil
}

func (m *mockRepo) UnreadCount(_ context.Context, userID string) (int, error) {
	stats, _ := m.Stats(context.Background(), userID)
	return stats.Unread, nil
}

// mockNotifier records push attempts.
type mockNotifier struct {
	mu     sync.Mutex
	pushes []realtime.Notification
}

func (n *mockNotifier) NotifyUser(userID string, notif realtime.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, notif)
}

func (n *mockNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pushes)
}

func newTestService() (*Service, *mockRepo, *mockNotifier) {
	repo := newMockRepo()
	notifier := &mockNotifier{}
	return NewService(repo, notifier, zerolog.Nop()), repo, notifier
}

func TestService_CreatePersistsAndPushes(t *testing.T) {
	svc, repo, notifier := newTestService()

	rec, err := svc.Create(context.Background(), CreateInput{
		UserID:   "bob-id",
		Type:     realtime.TypeLabResult,
		Title:    "Result ready",
		Message:  "CBC results available",
		Priority: realtime.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.ID == uuid.Nil {
		t.Fatal("expected an assigned id")
	}
	if rec.IsRead {
		t.Fatal("new notification must be unread")
	}

	stored, _ := repo.GetByID(context.Background(), rec.ID)
	if stored == nil || stored.Title != "Result ready" {
		t.Fatalf("record not persisted: %+v", stored)
	}

	if notifier.count() != 1 {
		t.Fatalf("expected 1 push attempt, got %d", notifier.count())
	}
	if notifier.pushes[0].ID != rec.ID.String() {
		t.Fatal("push payload should carry the stored record's id")
	}
}

// A recipient with no sockets still gets the durable record; the push attempt
// simply reaches nobody.
func TestService_CreateForOfflineUserPersistsUnread(t *testing.T) {
	repo := newMockRepo()
	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, zerolog.Nop())
	svc := NewService(repo, broadcaster, zerolog.Nop())
	ctx := context.Background()

	rec, err := svc.Create(ctx, CreateInput{
		UserID:  "bob-id",
		Type:    realtime.TypeLabResult,
		Title:   "Result ready",
		Message: "CBC results available",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stats := broadcaster.Stats()
	if stats.ZeroRecipients != 1 {
		t.Fatalf("expected a zero-recipient push, got %+v", stats)
	}

	records, total, err := svc.ListForUser(ctx, "bob-id", Filter{}, 50, 0)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if total != 1 || len(records) != 1 {
		t.Fatalf("expected the persisted record, got total=%d", total)
	}
	if records[0].IsRead {
		t.Fatal("record must be unread")
	}
	if records[0].ID != rec.ID {
		t.Fatal("listed record should match the created one")
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"missing user_id", CreateInput{Type: realtime.TypeSystemAlert, Title: "t", Message: "m"}},
		{"missing title", CreateInput{UserID: "u", Type: realtime.TypeSystemAlert, Message: "m"}},
		{"missing message", CreateInput{UserID: "u", Type: realtime.TypeSystemAlert, Title: "t"}},
		{"bad type", CreateInput{UserID: "u", Type: "carrier_pigeon", Title: "t", Message: "m"}},
		{"bad priority", CreateInput{UserID: "u", Type: realtime.TypeSystemAlert, Title: "t", Message: "m", Priority: "whenever"}},
	}
	for _, tc := range cases {
		if _, err := svc.Create(ctx, tc.in); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
	if notifier.count() != 0 {
		t.Fatal("rejected creates must not push")
	}
}

func TestService_CreateDefaultsPriorityMedium(t *testing.T) {
	svc, _, _ := newTestService()

	rec, err := svc.Create(context.Background(), CreateInput{
		UserID:  "u",
		Type:    realtime.TypeSystemAlert,
		Title:   "t",
		Message: "m",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.Priority != realtime.PriorityMedium {
		t.Fatalf("expected default priority medium, got %s", rec.Priority)
	}
}

func TestService_ListFilterValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, _, err := svc.ListForUser(ctx, "u", Filter{Type: "smoke_signal"}, 50, 0); err == nil {
		t.Fatal("expected invalid type filter to be rejected")
	}
	if _, _, err := svc.ListForUser(ctx, "u", Filter{Priority: "someday"}, 50, 0); err == nil {
		t.Fatal("expected invalid priority filter to be rejected")
	}
}

func TestService_UnreadFilterAndMarkRead(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{UserID: "u", Type: realtime.TypeSystemAlert, Title: "a", Message: "m"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{UserID: "u", Type: realtime.TypeSystemAlert, Title: "b", Message: "m"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := svc.MarkRead(ctx, first.ID)
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if !updated.IsRead || updated.ReadAt == nil {
		t.Fatalf("expected read state with read_at, got %+v", updated)
	}

	unreadOnly := false
	records, total, err := svc.ListForUser(ctx, "u", Filter{IsRead: &unreadOnly}, 50, 0)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if total != 1 || len(records) != 1 || records[0].Title != "b" {
		t.Fatalf("unexpected unread listing: total=%d records=%+v", total, records)
	}

	count, err := svc.UnreadCount(ctx, "u")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 unread, got %d", count)
	}
}

func TestService_MarkAllRead(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, CreateInput{UserID: "u", Type: realtime.TypeSystemAlert, Title: "t", Message: "m"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if _, err := svc.Create(ctx, CreateInput{UserID: "other", Type: realtime.TypeSystemAlert, Title: "t", Message: "m"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	count, err := svc.MarkAllRead(ctx, "u")
	if err != nil {
		t.Fatalf("MarkAllRead failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 marked, got %d", count)
	}

	unread, _ := svc.UnreadCount(ctx, "u")
	if unread != 0 {
		t.Fatalf("expected 0 unread, got %d", unread)
	}
	otherUnread, _ := svc.UnreadCount(ctx, "other")
	if otherUnread != 1 {
		t.Fatalf("other user's notifications must be untouched, got %d unread", otherUnread)
	}
}

func TestService_Stats(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	seed := func(typ realtime.NotificationType, prio realtime.Priority) {
		if _, err := svc.Create(ctx, CreateInput{UserID: "u", Type: typ, Title: "t", Message: "m", Priority: prio}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	seed(realtime.TypeLabResult, realtime.PriorityHigh)
	seed(realtime.TypeLabResult, realtime.PriorityLow)
	seed(realtime.TypeSystemAlert, realtime.PriorityHigh)

	stats, err := svc.Stats(ctx, "u")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Unread != 3 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.ByType["lab_result"] != 2 || stats.ByType["system_alert"] != 1 {
		t.Fatalf("unexpected by_type: %+v", stats.ByType)
	}
	if stats.ByPriority["high"] != 2 || stats.ByPriority["low"] != 1 {
		t.Fatalf("unexpected by_priority: %+v", stats.ByPriority)
	}
}

func TestService_CleanupValidatesDays(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Cleanup(ctx, 0); err == nil {
		t.Fatal("expected days < 1 to be rejected")
	}

	rec, err := svc.Create(ctx, CreateInput{UserID: "u", Type: realtime.TypeSystemAlert, Title: "t", Message: "m"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	repo.mu.Lock()
	repo.records[rec.ID].CreatedAt = time.Now().UTC().AddDate(0, 0, -60)
	repo.mu.Unlock()

	count, err := svc.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 deleted, got %d", count)
	}
}
