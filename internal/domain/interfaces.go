package domain

import (
	"context"
	"time"
)

// Courier выполняет единичные доставки через Telegram Bot API.
// Все методы возвращают типизированный сигнал и никогда не паникуют.
type Courier interface {
	SendText(ctx context.Context, recipientID int64, text string) SendSignal
	SendMedia(ctx context.Context, recipientID int64, media MediaRef) SendSignal
	CopyMessage(ctx context.Context, recipientID int64, fromChatID int64, messageID int) SendSignal
	ForwardMessage(ctx context.Context, recipientID int64, fromChatID int64, messageID int) SendSignal
}

// UserRepo управляет пользователями.
type UserRepo interface {
	UpsertByTGID(ctx context.Context, profile TelegramProfile) (User, bool, error)
	// SnapshotRecipientIDs возвращает одноразовый срез получателей.
	// Изменения состава пользователей после вызова на срез не влияют.
	SnapshotRecipientIDs(ctx context.Context, excludeFlagged bool) ([]int64, error)
	// FlagUnreachable идемпотентно помечает получателя недоступным.
	FlagUnreachable(ctx context.Context, tgUserID int64) error
	CountRecipients(ctx context.Context) (int, error)
	CountUsers(ctx context.Context) (int, error)
	CountActiveSince(ctx context.Context, since time.Time) (int, error)
	CountJoinedSince(ctx context.Context, since time.Time) (int, error)
}

// BroadcastRepo хранит итоги рассылок.
type BroadcastRepo interface {
	AppendBroadcastRecord(ctx context.Context, rec BroadcastRecord) (BroadcastRecord, error)
	ListBroadcastRecords(ctx context.Context, limit int) ([]BroadcastRecord, error)
}

// StatsRepo хранит служебные показатели бота.
type StatsRepo interface {
	InitBotStats(ctx context.Context, startedAt time.Time) error
	BotStartedAt(ctx context.Context) (time.Time, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// RunLease ограничивает число одновременных рассылок между экземплярами.
type RunLease interface {
	Acquire(ctx context.Context, value string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, value string) error
}

// AuditTrail — append-only журнал итогов рассылок.
type AuditTrail interface {
	Append(ctx context.Context, entry []byte) error
}

// AuditSink публикует сводки во внешний лог-канал. Ошибки не фатальны.
type AuditSink interface {
	PublishAuditSummary(ctx context.Context, text string) error
}
