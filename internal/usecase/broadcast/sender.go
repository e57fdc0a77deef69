package broadcast

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tg-broadcast-bot/internal/domain"
	"tg-broadcast-bot/internal/infra/metrics"
)

const defaultMaxFloodWait = 60 * time.Second

// Sender выполняет одну доставку с ограниченным повтором при FloodWait.
// Send никогда не возвращает ошибку: любой сбой приводит к классу исхода.
type Sender struct {
	courier      domain.Courier
	log          zerolog.Logger
	maxFloodWait time.Duration

	// sleep подменяется в тестах.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSender создаёт отправитель.
func NewSender(courier domain.Courier, logger zerolog.Logger, maxFloodWait time.Duration) *Sender {
	if maxFloodWait <= 0 {
		maxFloodWait = defaultMaxFloodWait
	}
	return &Sender{
		courier:      courier,
		log:          logger,
		maxFloodWait: maxFloodWait,
		sleep:        sleepCtx,
	}
}

// Send доставляет payload одному получателю. При сигнале ограничения
// частоты выжидает требуемую паузу и повторяет попытку ровно один раз.
func (s *Sender) Send(ctx context.Context, recipientID int64, payload domain.BroadcastPayload) domain.OutcomeClass {
	sig := s.attempt(ctx, recipientID, payload)

	if sig.Kind == domain.SignalRateLimited {
		wait := sig.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		if wait > s.maxFloodWait {
			wait = s.maxFloodWait
		}
		metrics.BroadcastFloodWaits.Inc()
		s.log.Warn().Int64("recipient", recipientID).Dur("wait", wait).Msg("пауза по требованию Telegram")
		if err := s.sleep(ctx, wait); err != nil {
			return domain.OutcomeTransientFailure
		}
		retry := s.attempt(ctx, recipientID, payload)
		if retry.Kind == domain.SignalDelivered {
			return domain.OutcomeDelivered
		}
		// повтор ограничен одним разом
		return domain.OutcomeTransientFailure
	}

	if sig.Kind == domain.SignalOtherError && payload.Kind == domain.PayloadCopy {
		// резервная стратегия: пересылка вместо копирования
		fallback := s.courier.ForwardMessage(ctx, recipientID, payload.FromChatID, payload.MessageID)
		if fallback.Kind == domain.SignalDelivered {
			return domain.OutcomeDelivered
		}
		s.log.Debug().Int64("recipient", recipientID).Err(sig.Err).Msg("копирование и пересылка не удались")
	}

	return Classify(sig)
}

func (s *Sender) attempt(ctx context.Context, recipientID int64, payload domain.BroadcastPayload) domain.SendSignal {
	switch payload.Kind {
	case domain.PayloadText:
		return s.courier.SendText(ctx, recipientID, payload.Text)
	case domain.PayloadMedia:
		return s.courier.SendMedia(ctx, recipientID, payload.Media)
	case domain.PayloadCopy:
		return s.courier.CopyMessage(ctx, recipientID, payload.FromChatID, payload.MessageID)
	default:
		return domain.SendSignal{Kind: domain.SignalOtherError}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
