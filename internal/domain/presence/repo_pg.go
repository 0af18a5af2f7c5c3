package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed presence repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const presenceCols = `user_id, username, role, status, current_page, current_activity,
	is_typing, typing_entity_id, typing_entity_type, last_seen, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.UserID, &r.Username, &r.Role, &r.Status, &r.CurrentPage, &r.CurrentActivity,
		&r.IsTyping, &r.TypingEntityID, &r.TypingEntityType, &r.LastSeen, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *repoPG) Get(ctx context.Context, userID string) (*Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+presenceCols+` FROM user_presence WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// Upsert is a single atomic statement so concurrent partial updates for the
// same user interleave field-by-field instead of losing whole writes.
func (r *repoPG) Upsert(ctx context.Context, userID string, up Update) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `
		INSERT INTO user_presence (user_id, username, role, status, current_page, current_activity,
			is_typing, typing_entity_id, typing_entity_type, last_seen)
		VALUES ($1, COALESCE($2,''), COALESCE($3,''), COALESCE($4,'online'), COALESCE($5,''),
			COALESCE($6,''), COALESCE($7,false), COALESCE($8,''), COALESCE($9,''), COALESCE($10, NOW()))
		ON CONFLICT (user_id) DO UPDATE SET
			username           = COALESCE($2, user_presence.username),
			role               = COALESCE($3, user_presence.role),
			status             = COALESCE($4, user_presence.status),
			current_page       = COALESCE($5, user_presence.current_page),
			current_activity   = COALESCE($6, user_presence.current_activity),
			is_typing          = COALESCE($7, user_presence.is_typing),
			typing_entity_id   = COALESCE($8, user_presence.typing_entity_id),
			typing_entity_type = COALESCE($9, user_presence.typing_entity_type),
			last_seen          = GREATEST(user_presence.last_seen, COALESCE($10, NOW())),
			updated_at         = NOW()
		RETURNING `+presenceCols,
		userID, up.Username, up.Role, up.Status, up.CurrentPage, up.CurrentActivity,
		up.IsTyping, up.TypingEntityID, up.TypingEntityType, up.LastSeen))
}

func (r *repoPG) TouchLastSeen(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_presence SET last_seen = NOW(), updated_at = NOW()
		WHERE user_id = $1`, userID)
	return err
}

func (r *repoPG) SetOffline(ctx context.Context, userID string) (*Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `
		UPDATE user_presence SET
			status = 'offline',
			is_typing = false,
			typing_entity_id = '',
			typing_entity_type = '',
			last_seen = GREATEST(last_seen, NOW()),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+presenceCols, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *repoPG) ListActive(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	where := ""
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Role != "" {
		where += fmt.Sprintf(" AND role = $%d", idx)
		args = append(args, f.Role)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_presence WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM user_presence WHERE 1=1%s
		ORDER BY last_seen DESC LIMIT $%d OFFSET $%d`, presenceCols, where, idx, idx+1)
	args = append(args, limit, offset)

	records, err := r.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *repoPG) ListOnline(ctx context.Context) ([]*Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+presenceCols+` FROM user_presence WHERE status = 'online' ORDER BY last_seen DESC`)
}

func (r *repoPG) ListByActivity(ctx context.Context, activity string) ([]*Record, error) {
	return r.queryRecords(ctx, `
		SELECT `+presenceCols+` FROM user_presence
		WHERE current_activity = $1 AND status = 'online'
		ORDER BY last_seen DESC`, activity)
}

func (r *repoPG) ListTyping(ctx context.Context, entityID, entityType string) ([]*Record, error) {
	return r.queryRecords(ctx, `
		SELECT `+presenceCols+` FROM user_presence
		WHERE typing_entity_id = $1 AND typing_entity_type = $2
			AND is_typing = true AND status = 'online'
		ORDER BY last_seen DESC`, entityID, entityType)
}

func (r *repoPG) CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_presence SET status = 'offline', is_typing = false,
			typing_entity_id = '', typing_entity_type = '', updated_at = NOW()
		WHERE last_seen < NOW() - make_interval(secs => $1) AND status != 'offline'`,
		olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
