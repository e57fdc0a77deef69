package broadcast

import (
	"errors"
	"testing"
	"time"

	"tg-broadcast-bot/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := map[domain.SignalKind]domain.OutcomeClass{
		domain.SignalDelivered:        domain.OutcomeDelivered,
		domain.SignalBlocked:          domain.OutcomeBlocked,
		domain.SignalDeactivated:      domain.OutcomeDeactivated,
		domain.SignalInvalidRecipient: domain.OutcomeInvalidRecipient,
		domain.SignalOtherError:       domain.OutcomeTransientFailure,
	}
	for kind, expected := range cases {
		if got := Classify(domain.SendSignal{Kind: kind, Err: errors.New("boom")}); got != expected {
			t.Fatalf("ожидали %s для сигнала %d, получили %s", expected, kind, got)
		}
	}
}

func TestClassifyRateLimitedCountsAsTransient(t *testing.T) {
	sig := domain.SendSignal{Kind: domain.SignalRateLimited, RetryAfter: 5 * time.Second}
	if got := Classify(sig); got != domain.OutcomeTransientFailure {
		t.Fatalf("ожидали transient_failed, получили %s", got)
	}
}
