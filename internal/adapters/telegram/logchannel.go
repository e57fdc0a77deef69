package telegram

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-broadcast-bot/internal/domain"
	"tg-broadcast-bot/internal/infra/metrics"
)

// LogChannel публикует служебные сообщения в лог-канал владельца.
type LogChannel struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

var _ domain.AuditSink = (*LogChannel)(nil)

// NewLogChannel создаёт публикатор. chatID=0 отключает канал.
func NewLogChannel(bot *tgbotapi.BotAPI, chatID int64, logger zerolog.Logger) *LogChannel {
	return &LogChannel{bot: bot, chatID: chatID, log: logger}
}

// Enabled сообщает, настроен ли лог-канал.
func (l *LogChannel) Enabled() bool {
	return l.chatID != 0
}

// PublishAuditSummary отправляет сводку в канал. Длинные тексты режутся
// по лимиту Telegram.
func (l *LogChannel) PublishAuditSummary(_ context.Context, text string) error {
	if !l.Enabled() {
		return nil
	}
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(l.chatID, part)
		start := time.Now()
		_, err := l.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "publish_audit", strconv.FormatInt(l.chatID, 10), start, err)
		if err != nil {
			return err
		}
	}
	return nil
}
