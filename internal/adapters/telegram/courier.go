package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-broadcast-bot/internal/domain"
	"tg-broadcast-bot/internal/infra/metrics"
)

// Courier реализует domain.Courier поверх Bot API.
type Courier struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.Courier = (*Courier)(nil)

// NewCourier создаёт курьера.
func NewCourier(bot *tgbotapi.BotAPI, logger zerolog.Logger) *Courier {
	return &Courier{bot: bot, log: logger}
}

// SendText отправляет текстовое сообщение.
func (c *Courier) SendText(_ context.Context, recipientID int64, text string) domain.SendSignal {
	msg := tgbotapi.NewMessage(recipientID, text)
	start := time.Now()
	_, err := c.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(recipientID, 10), start, err)
	return ClassifySendError(err)
}

// SendMedia отправляет вложение по file_id с подписью.
func (c *Courier) SendMedia(_ context.Context, recipientID int64, media domain.MediaRef) domain.SendSignal {
	var msg tgbotapi.Chattable
	switch media.Kind {
	case domain.MediaPhoto:
		photo := tgbotapi.NewPhoto(recipientID, tgbotapi.FileID(media.FileID))
		photo.Caption = media.Caption
		msg = photo
	case domain.MediaVideo:
		video := tgbotapi.NewVideo(recipientID, tgbotapi.FileID(media.FileID))
		video.Caption = media.Caption
		msg = video
	case domain.MediaDocument:
		doc := tgbotapi.NewDocument(recipientID, tgbotapi.FileID(media.FileID))
		doc.Caption = media.Caption
		msg = doc
	default:
		return domain.SendSignal{Kind: domain.SignalOtherError, Err: errors.New("неизвестный тип вложения")}
	}
	start := time.Now()
	_, err := c.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_"+media.Kind.String(), strconv.FormatInt(recipientID, 10), start, err)
	return ClassifySendError(err)
}

// CopyMessage копирует существующее сообщение без ссылки на источник.
func (c *Courier) CopyMessage(_ context.Context, recipientID int64, fromChatID int64, messageID int) domain.SendSignal {
	cp := tgbotapi.NewCopyMessage(recipientID, fromChatID, messageID)
	start := time.Now()
	_, err := c.bot.CopyMessage(cp)
	metrics.ObserveNetworkRequest("telegram_bot", "copy_message", strconv.FormatInt(recipientID, 10), start, err)
	return ClassifySendError(err)
}

// ForwardMessage пересылает сообщение. Используется как резервная стратегия.
func (c *Courier) ForwardMessage(_ context.Context, recipientID int64, fromChatID int64, messageID int) domain.SendSignal {
	fw := tgbotapi.NewForward(recipientID, fromChatID, messageID)
	start := time.Now()
	_, err := c.bot.Send(fw)
	metrics.ObserveNetworkRequest("telegram_bot", "forward_message", strconv.FormatInt(recipientID, 10), start, err)
	return ClassifySendError(err)
}

// ClassifySendError переводит ошибку Bot API в типизированный сигнал.
// Набор строк соответствует ответам Telegram: сам API различает отказ
// только текстом описания.
func ClassifySendError(err error) domain.SendSignal {
	if err == nil {
		return domain.SendSignal{Kind: domain.SignalDelivered}
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.RetryAfter > 0 {
			return domain.SendSignal{
				Kind:       domain.SignalRateLimited,
				RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			}
		}
		message := strings.ToLower(apiErr.Message)
		switch {
		case strings.Contains(message, "bot was blocked"):
			return domain.SendSignal{Kind: domain.SignalBlocked}
		case strings.Contains(message, "user is deactivated"):
			return domain.SendSignal{Kind: domain.SignalDeactivated}
		case strings.Contains(message, "chat not found"),
			strings.Contains(message, "user not found"),
			strings.Contains(message, "peer_id_invalid"):
			return domain.SendSignal{Kind: domain.SignalInvalidRecipient}
		}
	}
	return domain.SendSignal{Kind: domain.SignalOtherError, Err: err}
}
