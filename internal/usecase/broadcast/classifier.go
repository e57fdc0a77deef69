package broadcast

import "tg-broadcast-bot/internal/domain"

// Classify переводит сигнал клиента в конечный класс исхода.
// RateLimited сюда попадает только после исчерпанного повтора,
// поэтому считается временным сбоем.
func Classify(sig domain.SendSignal) domain.OutcomeClass {
	switch sig.Kind {
	case domain.SignalDelivered:
		return domain.OutcomeDelivered
	case domain.SignalBlocked:
		return domain.OutcomeBlocked
	case domain.SignalDeactivated:
		return domain.OutcomeDeactivated
	case domain.SignalInvalidRecipient:
		return domain.OutcomeInvalidRecipient
	default:
		return domain.OutcomeTransientFailure
	}
}
