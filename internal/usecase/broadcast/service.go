package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tg-broadcast-bot/internal/domain"
	"tg-broadcast-bot/internal/infra/metrics"
)

// ErrBroadcastInProgress возвращается при попытке запустить вторую рассылку.
var ErrBroadcastInProgress = errors.New("рассылка уже выполняется")

// ErrNoRecipients возвращается, когда срез получателей пуст.
var ErrNoRecipients = errors.New("нет получателей для рассылки")

// ErrSnapshotFailed возвращается, если срез получателей снять не удалось.
var ErrSnapshotFailed = errors.New("снимок получателей недоступен")

// ErrAborted сопровождает частичный итог прерванной рассылки.
var ErrAborted = errors.New("рассылка прервана")

// Config задаёт параметры диспетчера.
type Config struct {
	// Throttle — фиксированная пауза между получателями.
	Throttle time.Duration
	// ProgressEvery — шаг публикации промежуточного статуса.
	ProgressEvery int
	// LeaseTTL ограничивает время жизни аренды в Redis.
	LeaseTTL time.Duration
}

const (
	defaultThrottle      = 50 * time.Millisecond
	defaultProgressEvery = 20
	defaultLeaseTTL      = 30 * time.Minute
)

// Service — диспетчер рассылки: владеет циклом обхода получателей,
// счётчиками и жизненным циклом одного запуска.
type Service struct {
	users   domain.UserRepo
	records domain.BroadcastRepo
	sender  *Sender
	lease   domain.RunLease
	log     zerolog.Logger
	cfg     Config

	limiter  *rate.Limiter
	inFlight atomic.Bool

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

// NewService создаёт диспетчер.
func NewService(users domain.UserRepo, records domain.BroadcastRepo, sender *Sender, lease domain.RunLease, logger zerolog.Logger, cfg Config) *Service {
	if cfg.Throttle <= 0 {
		cfg.Throttle = defaultThrottle
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	return &Service{
		users:   users,
		records: records,
		sender:  sender,
		lease:   lease,
		log:     logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.Throttle), 1),
	}
}

// InFlight сообщает, выполняется ли рассылка прямо сейчас.
func (s *Service) InFlight() bool {
	return s.inFlight.Load()
}

// Abort прерывает текущую рассылку. Возвращает false, если нечего прерывать.
func (s *Service) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelRun == nil {
		return false
	}
	s.cancelRun()
	return true
}

type counters struct {
	attempted       int
	delivered       int
	blocked         int
	deactivated     int
	invalid         int
	transientFailed int
}

func (c *counters) add(class domain.OutcomeClass) {
	c.attempted++
	switch class {
	case domain.OutcomeDelivered:
		c.delivered++
	case domain.OutcomeBlocked:
		c.blocked++
	case domain.OutcomeDeactivated:
		c.deactivated++
	case domain.OutcomeInvalidRecipient:
		c.invalid++
	default:
		c.transientFailed++
	}
}

// Run выполняет одну рассылку: снимает срез получателей, последовательно
// доставляет payload каждому и возвращает итоговую запись. Прерванный
// запуск возвращает частичную запись вместе с ErrAborted.
func (s *Service) Run(ctx context.Context, payload domain.BroadcastPayload, initiatedBy int64, sink ProgressSink) (domain.BroadcastRecord, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return domain.BroadcastRecord{}, ErrBroadcastInProgress
	}
	defer s.inFlight.Store(false)

	runID := uuid.New()
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, runID.String(), s.cfg.LeaseTTL)
		if err != nil {
			// аренда — страховка между экземплярами, локальный флаг уже взят
			s.log.Warn().Err(err).Msg("не удалось проверить аренду рассылки, продолжаем")
		} else if !ok {
			return domain.BroadcastRecord{}, ErrBroadcastInProgress
		} else {
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := s.lease.Release(releaseCtx, runID.String()); err != nil {
					s.log.Warn().Err(err).Msg("не удалось освободить аренду рассылки")
				}
			}()
		}
	}

	ids, err := s.users.SnapshotRecipientIDs(ctx, true)
	if err != nil {
		return domain.BroadcastRecord{}, fmt.Errorf("%w: %w", ErrSnapshotFailed, err)
	}
	if len(ids) == 0 {
		return domain.BroadcastRecord{}, ErrNoRecipients
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelRun = nil
		s.mu.Unlock()
	}()

	s.log.Info().
		Str("run", runID.String()).
		Int64("initiated_by", initiatedBy).
		Int("recipients", len(ids)).
		Str("payload", payload.Summary()).
		Msg("рассылка запущена")

	startedAt := time.Now()
	var cnt counters
	aborted := false

	for i, id := range ids {
		if runCtx.Err() != nil {
			aborted = true
			break
		}
		if err := s.limiter.Wait(runCtx); err != nil {
			aborted = true
			break
		}
		class := s.sender.Send(runCtx, id, payload)
		cnt.add(class)
		metrics.IncBroadcastOutcome(class.String())

		if class.Unreachable() {
			// пометка выполняется до перехода к следующему получателю,
			// чтобы срез в хранилище не отставал при падении процесса
			if err := s.users.FlagUnreachable(runCtx, id); err != nil {
				s.log.Error().Err(err).Int64("recipient", id).Msg("не удалось пометить получателя недоступным")
			}
		}

		if sink != nil && (i+1)%s.cfg.ProgressEvery == 0 && i+1 < len(ids) {
			sink.Publish(s.snapshot(runID, initiatedBy, payload, len(ids), cnt, startedAt, false, false))
		}
	}

	finishedAt := time.Now()
	rec := domain.BroadcastRecord{
		RunID:           runID,
		PayloadSummary:  payload.Summary(),
		InitiatedBy:     initiatedBy,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		TotalRecipients: len(ids),
		Delivered:       cnt.delivered,
		Blocked:         cnt.blocked,
		Deactivated:     cnt.deactivated,
		Invalid:         cnt.invalid,
		TransientFailed: cnt.transientFailed,
		Aborted:         aborted,
	}

	if sink != nil {
		sink.Publish(s.snapshot(runID, initiatedBy, payload, len(ids), cnt, startedAt, true, aborted))
	}

	result := "completed"
	if aborted {
		result = "aborted"
	}
	metrics.ObserveBroadcastRun(result, startedAt)

	// итог сохраняется даже после отмены контекста запуска
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelPersist()
	saved, err := s.records.AppendBroadcastRecord(persistCtx, rec)
	if err != nil {
		s.log.Error().Err(err).Str("run", runID.String()).Msg("не удалось сохранить итог рассылки")
		saved = rec
	}

	s.log.Info().
		Str("run", runID.String()).
		Int("delivered", cnt.delivered).
		Int("failed", saved.Failed()).
		Int("total", len(ids)).
		Bool("aborted", aborted).
		Dur("dur", finishedAt.Sub(startedAt)).
		Msg("рассылка завершена")

	if aborted {
		return saved, ErrAborted
	}
	return saved, nil
}

func (s *Service) snapshot(runID uuid.UUID, initiatedBy int64, payload domain.BroadcastPayload, total int, cnt counters, startedAt time.Time, final, aborted bool) Snapshot {
	return Snapshot{
		RunID:           runID,
		InitiatedBy:     initiatedBy,
		PayloadSummary:  payload.Summary(),
		Total:           total,
		Attempted:       cnt.attempted,
		Delivered:       cnt.delivered,
		Blocked:         cnt.blocked,
		Deactivated:     cnt.deactivated,
		Invalid:         cnt.invalid,
		TransientFailed: cnt.transientFailed,
		Elapsed:         time.Since(startedAt),
		Final:           final,
		Aborted:         aborted,
	}
}
