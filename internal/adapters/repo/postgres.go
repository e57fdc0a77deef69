package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-broadcast-bot/internal/domain"
	"tg-broadcast-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.UserRepo = (*Postgres)(nil)
var _ domain.BroadcastRepo = (*Postgres)(nil)
var _ domain.StatsRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertByTGID реализует domain.UserRepo.
func (p *Postgres) UpsertByTGID(ctx context.Context, profile domain.TelegramProfile) (domain.User, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO users (tg_user_id, username, first_name, last_name, language_code, is_bot)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), COALESCE(NULLIF($5,''),'en'), $6)
ON CONFLICT (tg_user_id) DO UPDATE SET
	username = EXCLUDED.username,
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	language_code = EXCLUDED.language_code,
	is_bot = EXCLUDED.is_bot,
	last_active_at = now(),
	interaction_count = users.interaction_count + 1
RETURNING id, tg_user_id, username, first_name, last_name, language_code, is_bot,
	unreachable_at, joined_at, last_active_at, interaction_count, (xmax = 0) AS inserted
`, profile.TGUserID, profile.Username, profile.FirstName, profile.LastName, profile.LanguageCode, profile.IsBot)

	var (
		user     domain.User
		username sql.NullString
		first    sql.NullString
		last     sql.NullString
		locale   sql.NullString
		flagged  sql.NullTime
		inserted bool
	)
	err := row.Scan(&user.ID, &user.TGUserID, &username, &first, &last, &locale, &user.IsBot,
		&flagged, &user.JoinedAt, &user.LastActiveAt, &user.InteractionCount, &inserted)
	metrics.ObserveNetworkRequest("postgres", "upsert_user", "users", start, err)
	if err != nil {
		return domain.User{}, false, err
	}
	user.Username = username.String
	user.FirstName = first.String
	user.LastName = last.String
	user.LanguageCode = locale.String
	if flagged.Valid {
		t := flagged.Time
		user.UnreachableAt = &t
	}
	return user, inserted, nil
}

// SnapshotRecipientIDs возвращает одноразовый срез получателей.
func (p *Postgres) SnapshotRecipientIDs(ctx context.Context, excludeFlagged bool) ([]int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT tg_user_id FROM users
WHERE NOT is_bot AND (NOT $1 OR unreachable_at IS NULL)
ORDER BY id
`, excludeFlagged)
	metrics.ObserveNetworkRequest("postgres", "snapshot_recipients", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FlagUnreachable идемпотентно помечает получателя недоступным.
func (p *Postgres) FlagUnreachable(ctx context.Context, tgUserID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE users SET unreachable_at = COALESCE(unreachable_at, now()) WHERE tg_user_id = $1
`, tgUserID)
	metrics.ObserveNetworkRequest("postgres", "flag_unreachable", "users", start, err)
	return err
}

// CountRecipients возвращает число доступных получателей.
func (p *Postgres) CountRecipients(ctx context.Context) (int, error) {
	return p.countUsers(ctx, `SELECT count(*) FROM users WHERE NOT is_bot AND unreachable_at IS NULL`)
}

// CountUsers возвращает общее число пользователей.
func (p *Postgres) CountUsers(ctx context.Context) (int, error) {
	return p.countUsers(ctx, `SELECT count(*) FROM users`)
}

// CountActiveSince возвращает число пользователей, активных с момента since.
func (p *Postgres) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	return p.countUsers(ctx, `SELECT count(*) FROM users WHERE last_active_at >= $1`, since)
}

// CountJoinedSince возвращает число пользователей, пришедших с момента since.
func (p *Postgres) CountJoinedSince(ctx context.Context, since time.Time) (int, error) {
	return p.countUsers(ctx, `SELECT count(*) FROM users WHERE joined_at >= $1`, since)
}

func (p *Postgres) countUsers(ctx context.Context, query string, args ...any) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, query, args...).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "count_users", "users", start, err)
	return count, err
}

// AppendBroadcastRecord сохраняет итог рассылки. Таблица append-only.
func (p *Postgres) AppendBroadcastRecord(ctx context.Context, rec domain.BroadcastRecord) (domain.BroadcastRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO broadcasts (run_id, payload_summary, initiated_by, started_at, finished_at,
	total_recipients, delivered, blocked, deactivated, invalid, transient_failed, aborted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id
`, rec.RunID, rec.PayloadSummary, rec.InitiatedBy, rec.StartedAt, rec.FinishedAt,
		rec.TotalRecipients, rec.Delivered, rec.Blocked, rec.Deactivated, rec.Invalid,
		rec.TransientFailed, rec.Aborted).Scan(&rec.ID)
	metrics.ObserveNetworkRequest("postgres", "append_broadcast", "broadcasts", start, err)
	if err != nil {
		return domain.BroadcastRecord{}, err
	}
	return rec, nil
}

// ListBroadcastRecords возвращает последние итоги рассылок.
func (p *Postgres) ListBroadcastRecords(ctx context.Context, limit int) ([]domain.BroadcastRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, run_id, payload_summary, initiated_by, started_at, finished_at,
	total_recipients, delivered, blocked, deactivated, invalid, transient_failed, aborted
FROM broadcasts ORDER BY id DESC LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "list_broadcasts", "broadcasts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.BroadcastRecord
	for rows.Next() {
		var rec domain.BroadcastRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.PayloadSummary, &rec.InitiatedBy,
			&rec.StartedAt, &rec.FinishedAt, &rec.TotalRecipients, &rec.Delivered,
			&rec.Blocked, &rec.Deactivated, &rec.Invalid, &rec.TransientFailed, &rec.Aborted); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// InitBotStats один раз фиксирует время запуска бота.
func (p *Postgres) InitBotStats(ctx context.Context, startedAt time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO bot_stats (id, bot_started_at) VALUES (1, $1)
ON CONFLICT (id) DO NOTHING
`, startedAt)
	metrics.ObserveNetworkRequest("postgres", "init_bot_stats", "bot_stats", start, err)
	return err
}

// BotStartedAt возвращает зафиксированное время запуска.
func (p *Postgres) BotStartedAt(ctx context.Context) (time.Time, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var startedAt time.Time
	err := p.pool.QueryRow(ctx, `SELECT bot_started_at FROM bot_stats WHERE id = 1`).Scan(&startedAt)
	metrics.ObserveNetworkRequest("postgres", "bot_started_at", "bot_stats", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return startedAt, nil
}
