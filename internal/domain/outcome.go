package domain

import "time"

// SignalKind — типизированный исход одной попытки доставки.
// Клиент Telegram возвращает вариант вместо набора исключений,
// классификатор сопоставляет его явно.
type SignalKind int

const (
	SignalDelivered SignalKind = iota
	SignalRateLimited
	SignalBlocked
	SignalDeactivated
	SignalInvalidRecipient
	SignalOtherError
)

// SendSignal несёт сигнал клиента вместе с параметрами.
type SendSignal struct {
	Kind       SignalKind
	RetryAfter time.Duration
	Err        error
}

// OutcomeClass — конечная классификация получателя после всех попыток.
type OutcomeClass int

const (
	OutcomeDelivered OutcomeClass = iota
	OutcomeBlocked
	OutcomeDeactivated
	OutcomeInvalidRecipient
	OutcomeTransientFailure
)

// String возвращает имя класса для метрик и журнала.
func (c OutcomeClass) String() string {
	switch c {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeDeactivated:
		return "deactivated"
	case OutcomeInvalidRecipient:
		return "invalid"
	case OutcomeTransientFailure:
		return "transient_failed"
	default:
		return "unknown"
	}
}

// Unreachable сообщает, требует ли класс пометки получателя в хранилище.
func (c OutcomeClass) Unreachable() bool {
	switch c {
	case OutcomeBlocked, OutcomeDeactivated, OutcomeInvalidRecipient:
		return true
	default:
		return false
	}
}
