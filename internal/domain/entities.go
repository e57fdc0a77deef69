package domain

import (
	"time"

	"github.com/google/uuid"
)

// User описывает пользователя Telegram в системе.
type User struct {
	ID               int64
	TGUserID         int64
	Username         string
	FirstName        string
	LastName         string
	LanguageCode     string
	IsBot            bool
	UnreachableAt    *time.Time
	JoinedAt         time.Time
	LastActiveAt     time.Time
	InteractionCount int64
}

// Reachable сообщает, можно ли слать пользователю рассылки.
func (u User) Reachable() bool {
	return u.UnreachableAt == nil && !u.IsBot
}

// TelegramProfile содержит данные профиля из входящего апдейта.
type TelegramProfile struct {
	TGUserID     int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	IsBot        bool
}

// BroadcastRecord — неизменяемый итог одной рассылки, append-only.
type BroadcastRecord struct {
	ID              int64
	RunID           uuid.UUID
	PayloadSummary  string
	InitiatedBy     int64
	StartedAt       time.Time
	FinishedAt      time.Time
	TotalRecipients int
	Delivered       int
	Blocked         int
	Deactivated     int
	Invalid         int
	TransientFailed int
	Aborted         bool
}

// Failed возвращает суммарное количество недоставленных получателей.
func (r BroadcastRecord) Failed() int {
	return r.Blocked + r.Deactivated + r.Invalid + r.TransientFailed
}

// BotStats — агрегированная статистика бота на момент запроса.
type BotStats struct {
	TotalUsers    int
	Reachable     int
	ActiveLastDay int
	NewToday      int
	NewLastWeek   int
	NewLastMonth  int
	BotStartedAt  time.Time
}
