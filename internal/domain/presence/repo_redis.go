package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	presenceSetKey    = "presence_users"
)

type repoRedis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRepoRedis creates the Redis-backed presence repository. Records live
// under presence:{userID} with a TTL; a separate set tracks known user ids so
// listings avoid a keyspace scan. Expired keys are pruned from the set on
// read; a dedicated cleanup pass is unnecessary on this backend.
func NewRepoRedis(client *redis.Client, ttl time.Duration) Repository {
	return &repoRedis{client: client, ttl: ttl}
}

func presenceKey(userID string) string { return presenceKeyPrefix + userID }

func (r *repoRedis) Get(ctx context.Context, userID string) (*Record, error) {
	data, err := r.client.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	return &rec, nil
}

// Upsert is a read-modify-write, not an atomic primitive like the Postgres
// statement. Two writers racing on the same user can lose one update; the
// later write wins and last_seen stays monotonic within each write.
func (r *repoRedis) Upsert(ctx context.Context, userID string, up Update) (*Record, error) {
	rec, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if rec == nil {
		rec = &Record{
			UserID:    userID,
			Status:    StatusOnline,
			LastSeen:  now,
			CreatedAt: now,
		}
	}

	if up.Username != nil {
		rec.Username = *up.Username
	}
	if up.Role != nil {
		rec.Role = *up.Role
	}
	if up.Status != nil {
		rec.Status = *up.Status
	}
	if up.CurrentPage != nil {
		rec.CurrentPage = *up.CurrentPage
	}
	if up.CurrentActivity != nil {
		rec.CurrentActivity = *up.CurrentActivity
	}
	if up.IsTyping != nil {
		rec.IsTyping = *up.IsTyping
	}
	if up.TypingEntityID != nil {
		rec.TypingEntityID = *up.TypingEntityID
	}
	if up.TypingEntityType != nil {
		rec.TypingEntityType = *up.TypingEntityType
	}

	seen := now
	if up.LastSeen != nil {
		seen = *up.LastSeen
	}
	if seen.After(rec.LastSeen) {
		rec.LastSeen = seen
	}
	rec.UpdatedAt = now

	if err := r.store(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repoRedis) TouchLastSeen(ctx context.Context, userID string) error {
	rec, err := r.Get(ctx, userID)
	if err != nil || rec == nil {
		return err
	}
	now := time.Now().UTC()
	if now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
	rec.UpdatedAt = now
	return r.store(ctx, rec)
}

func (r *repoRedis) SetOffline(ctx context.Context, userID string) (*Record, error) {
	rec, err := r.Get(ctx, userID)
	if err != nil || rec == nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.Status = StatusOffline
	rec.IsTyping = false
	rec.TypingEntityID = ""
	rec.TypingEntityType = ""
	if now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
	rec.UpdatedAt = now

	if err := r.store(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repoRedis) ListActive(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	records, err := r.listAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	filtered := records[:0]
	for _, rec := range records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.Role != "" && rec.Role != f.Role {
			continue
		}
		filtered = append(filtered, rec)
	}

	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (r *repoRedis) ListOnline(ctx context.Context) ([]*Record, error) {
	records, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	online := records[:0]
	for _, rec := range records {
		if rec.Status == StatusOnline {
			online = append(online, rec)
		}
	}
	return online, nil
}

func (r *repoRedis) ListByActivity(ctx context.Context, activity string) ([]*Record, error) {
	records, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	matched := records[:0]
	for _, rec := range records {
		if rec.Status == StatusOnline && rec.CurrentActivity == activity {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

func (r *repoRedis) ListTyping(ctx context.Context, entityID, entityType string) ([]*Record, error) {
	records, err := r.listAll(ctx)
	if err != nil {
		return nil, err
	}
	typing := records[:0]
	for _, rec := range records {
		if rec.Status == StatusOnline && rec.IsTyping &&
			rec.TypingEntityID == entityID && rec.TypingEntityType == entityType {
			typing = append(typing, rec)
		}
	}
	return typing, nil
}

// CleanupStale is a no-op on Redis: records expire via key TTL and the user
// set is pruned on every listing.
func (r *repoRedis) CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (r *repoRedis) store(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, presenceKey(rec.UserID), data, r.ttl)
	pipe.SAdd(ctx, presenceSetKey, rec.UserID)
	pipe.Expire(ctx, presenceSetKey, r.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store presence: %w", err)
	}
	return nil
}

// listAll fetches every live record, newest last_seen first, and prunes
// expired user ids out of the tracking set.
func (r *repoRedis) listAll(ctx context.Context) ([]*Record, error) {
	userIDs, err := r.client.SMembers(ctx, presenceSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence users: %w", err)
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Get(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load presence records: %w", err)
	}

	var records []*Record
	var expired []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			expired = append(expired, userIDs[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load presence record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode presence record: %w", err)
		}
		records = append(records, &rec)
	}

	if len(expired) > 0 {
		r.client.SRem(ctx, presenceSetKey, expired...)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastSeen.After(records[j].LastSeen)
	})
	return records, nil
}
