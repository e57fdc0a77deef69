package telegram

import (
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-broadcast-bot/internal/domain"
)

func TestClassifySendErrorDelivered(t *testing.T) {
	sig := ClassifySendError(nil)
	if sig.Kind != domain.SignalDelivered {
		t.Fatalf("expected delivered signal, got %d", sig.Kind)
	}
}

func TestClassifySendErrorVariants(t *testing.T) {
	cases := []struct {
		message  string
		expected domain.SignalKind
	}{
		{"Forbidden: bot was blocked by the user", domain.SignalBlocked},
		{"Forbidden: user is deactivated", domain.SignalDeactivated},
		{"Bad Request: chat not found", domain.SignalInvalidRecipient},
		{"Bad Request: PEER_ID_INVALID", domain.SignalInvalidRecipient},
		{"Internal Server Error", domain.SignalOtherError},
	}
	for _, tc := range cases {
		sig := ClassifySendError(&tgbotapi.Error{Code: 403, Message: tc.message})
		if sig.Kind != tc.expected {
			t.Fatalf("message %q: expected signal %d, got %d", tc.message, tc.expected, sig.Kind)
		}
	}
}

func TestClassifySendErrorRateLimited(t *testing.T) {
	apiErr := &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 17",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 17},
	}
	sig := ClassifySendError(apiErr)
	if sig.Kind != domain.SignalRateLimited {
		t.Fatalf("expected rate limited signal, got %d", sig.Kind)
	}
	if sig.RetryAfter != 17*time.Second {
		t.Fatalf("expected 17s retry after, got %v", sig.RetryAfter)
	}
}

func TestClassifySendErrorWrapped(t *testing.T) {
	apiErr := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	sig := ClassifySendError(fmt.Errorf("send: %w", apiErr))
	if sig.Kind != domain.SignalBlocked {
		t.Fatalf("expected blocked signal for wrapped error, got %d", sig.Kind)
	}
}

func TestClassifySendErrorPlain(t *testing.T) {
	plain := errors.New("connection reset")
	sig := ClassifySendError(plain)
	if sig.Kind != domain.SignalOtherError {
		t.Fatalf("expected other error signal, got %d", sig.Kind)
	}
	if !errors.Is(sig.Err, plain) {
		t.Fatalf("signal should carry the original error")
	}
}
