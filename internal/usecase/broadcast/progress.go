package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-broadcast-bot/internal/domain"
)

// Snapshot — моментальный срез хода рассылки. Не сохраняется в БД.
type Snapshot struct {
	RunID           uuid.UUID     `json:"run_id"`
	InitiatedBy     int64         `json:"initiated_by"`
	PayloadSummary  string        `json:"payload_summary"`
	Total           int           `json:"total"`
	Attempted       int           `json:"attempted"`
	Delivered       int           `json:"delivered"`
	Blocked         int           `json:"blocked"`
	Deactivated     int           `json:"deactivated"`
	Invalid         int           `json:"invalid"`
	TransientFailed int           `json:"transient_failed"`
	Elapsed         time.Duration `json:"elapsed"`
	Final           bool          `json:"final"`
	Aborted         bool          `json:"aborted"`
}

// Failed возвращает количество недоставленных получателей.
func (s Snapshot) Failed() int {
	return s.Blocked + s.Deactivated + s.Invalid + s.TransientFailed
}

// SuccessRate возвращает долю доставленных в процентах. 0 при attempted=0.
func (s Snapshot) SuccessRate() float64 {
	if s.Attempted == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(s.Attempted) * 100
}

// AvgPerRecipient возвращает среднее время на одного получателя.
func (s Snapshot) AvgPerRecipient() time.Duration {
	if s.Attempted == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Attempted)
}

// RenderProgress строит короткий статус для редактирования на ходу.
func RenderProgress(s Snapshot) string {
	return fmt.Sprintf(
		"📢 Рассылка: %d/%d ⏳\n\n✅ Доставлено: %d\n❌ Ошибок: %d\n⏱ Прошло: %.0fs",
		s.Attempted, s.Total, s.Delivered, s.Failed(), s.Elapsed.Seconds(),
	)
}

// RenderFinal строит итоговый статус для статусного сообщения.
func RenderFinal(s Snapshot) string {
	header := "📢 Рассылка завершена!"
	if s.Aborted {
		header = "⏹ Рассылка прервана."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", header)
	fmt.Fprintf(&b, "✅ Доставлено: %d\n", s.Delivered)
	fmt.Fprintf(&b, "❌ Ошибок: %d (🚫 заблокировали: %d, 💤 деактивированы: %d, ❓ недоступны: %d, ⚠️ сбои: %d)\n",
		s.Failed(), s.Blocked, s.Deactivated, s.Invalid, s.TransientFailed)
	fmt.Fprintf(&b, "📈 Всего получателей: %d\n", s.Total)
	fmt.Fprintf(&b, "📊 Успешность: %.1f%%\n\n", s.SuccessRate())
	fmt.Fprintf(&b, "⏱ Длительность: %.2fs\n", s.Elapsed.Seconds())
	fmt.Fprintf(&b, "⚡ Среднее на получателя: %.1fms", float64(s.AvgPerRecipient().Microseconds())/1000)
	return b.String()
}

// RenderSummary строит расширенную сводку для лог-канала.
func RenderSummary(s Snapshot) string {
	var b strings.Builder
	b.WriteString("📊 Итоги рассылки\n\n")
	fmt.Fprintf(&b, "🆔 %s\n", s.RunID)
	fmt.Fprintf(&b, "👤 Инициатор: %d\n", s.InitiatedBy)
	if s.PayloadSummary != "" {
		fmt.Fprintf(&b, "📝 %s\n", s.PayloadSummary)
	}
	fmt.Fprintf(&b, "\n✅ Доставлено: %d\n❌ Ошибок: %d\n🚫 Заблокировали: %d\n📈 Всего: %d\n📊 Успешность: %.1f%%\n",
		s.Delivered, s.Failed(), s.Blocked, s.Total, s.SuccessRate())
	fmt.Fprintf(&b, "\n⏱ Длительность: %.2fs\n⚡ Скорость: %.1fms на получателя",
		s.Elapsed.Seconds(), float64(s.AvgPerRecipient().Microseconds())/1000)
	if s.Aborted {
		b.WriteString("\n\n⏹ Рассылка была прервана до завершения.")
	}
	return b.String()
}

// StatusEditor применяет текст к статусному сообщению владельца.
type StatusEditor func(ctx context.Context, text string) error

// ProgressSink принимает срезы хода рассылки от диспетчера.
type ProgressSink interface {
	Publish(s Snapshot)
	Close()
}

// Publisher публикует срезы асинхронно, не блокируя цикл рассылки.
// Промежуточные срезы при занятом редакторе пропускаются, итоговый
// доставляется всегда.
type Publisher struct {
	editor StatusEditor
	audit  domain.AuditSink
	trail  domain.AuditTrail
	log    zerolog.Logger
	ch     chan Snapshot
	done   chan struct{}
}

var _ ProgressSink = (*Publisher)(nil)

// NewPublisher создаёт публикатор и запускает его цикл.
func NewPublisher(editor StatusEditor, audit domain.AuditSink, trail domain.AuditTrail, logger zerolog.Logger) *Publisher {
	p := &Publisher{
		editor: editor,
		audit:  audit,
		trail:  trail,
		log:    logger,
		ch:     make(chan Snapshot, 8),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

// Publish отдаёт срез публикатору. Для промежуточных срезов вызов
// неблокирующий, итоговый срез ставится в очередь обязательно.
func (p *Publisher) Publish(s Snapshot) {
	if s.Final {
		p.ch <- s
		return
	}
	select {
	case p.ch <- s:
	default:
	}
}

// Close останавливает публикатор после доставки всего поставленного.
func (p *Publisher) Close() {
	close(p.ch)
	<-p.done
}

func (p *Publisher) loop() {
	defer close(p.done)
	for snap := range p.ch {
		p.publishOne(snap)
	}
}

func (p *Publisher) publishOne(snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := RenderProgress(snap)
	if snap.Final {
		text = RenderFinal(snap)
	}
	if p.editor != nil {
		if err := p.editor(ctx, text); err != nil {
			p.log.Warn().Err(err).Msg("не удалось обновить статусное сообщение")
		}
	}
	if !snap.Final {
		return
	}
	if p.audit != nil {
		if err := p.audit.PublishAuditSummary(ctx, RenderSummary(snap)); err != nil {
			p.log.Warn().Err(err).Msg("не удалось отправить сводку в лог-канал")
		}
	}
	if p.trail != nil {
		entry, err := json.Marshal(snap)
		if err == nil {
			err = p.trail.Append(ctx, entry)
		}
		if err != nil {
			p.log.Warn().Err(err).Msg("не удалось записать сводку в журнал")
		}
	}
}
