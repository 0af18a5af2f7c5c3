package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed notification repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const notificationCols = `id, user_id, type, title, message, data, priority, is_read,
	read_at, created_at, updated_at`

// priorityRank orders priorities by urgency instead of alphabetically.
const priorityRank = `CASE priority
	WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.UserID, &r.Type, &r.Title, &r.Message, &r.Data, &r.Priority,
		&r.IsRead, &r.ReadAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, priority)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING is_read, created_at, updated_at`,
		rec.ID, rec.UserID, rec.Type, rec.Title, rec.Message, rec.Data, rec.Priority).
		Scan(&rec.IsRead, &rec.CreatedAt, &rec.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+notificationCols+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *repoPG) ListByUser(ctx context.Context, userID string, f Filter, limit, offset int) ([]*Record, int, error) {
	where := " WHERE user_id = $1"
	args := []interface{}{userID}
	idx := 2
	if f.IsRead != nil {
		where += fmt.Sprintf(" AND is_read = $%d", idx)
		args = append(args, *f.IsRead)
		idx++
	}
	if f.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, f.Type)
		idx++
	}
	if f.Priority != "" {
		where += fmt.Sprintf(" AND priority = $%d", idx)
		args = append(args, f.Priority)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications%s
		ORDER BY %s DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		notificationCols, where, priorityRank, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func (r *repoPG) MarkRead(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET is_read = true, read_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+notificationCols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *repoPG) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true, read_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND is_read = false`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE created_at < NOW() - make_interval(days => $1)`, days)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Stats(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{
		ByType:     make(map[string]int),
		ByPriority: make(map[string]int),
	}

	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_read = false)
		FROM notifications WHERE user_id = $1`, userID).Scan(&stats.Total, &stats.Unread); err != nil {
		return nil, err
	}

	if err := r.groupCount(ctx, stats.ByType,
		`SELECT type, COUNT(*) FROM notifications WHERE user_id = $1 GROUP BY type`, userID); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, stats.ByPriority,
		`SELECT priority, COUNT(*) FROM notifications WHERE user_id = $1 GROUP BY priority`, userID); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *repoPG) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`, userID).Scan(&count)
	return count, err
}

func (r *repoPG) groupCount(ctx context.Context, dest map[string]int, query string, args ...interface{}) error {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		dest[key] = count
	}
	return rows.Err()
}
