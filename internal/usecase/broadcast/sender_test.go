package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-broadcast-bot/internal/domain"
)

type fakeCourier struct {
	mu      sync.Mutex
	signals map[int64][]domain.SendSignal
	forward domain.SendSignal
	calls   []string
	onSend  func(recipientID int64)
}

func (f *fakeCourier) next(op string, recipientID int64) domain.SendSignal {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", op, recipientID))
	queue := f.signals[recipientID]
	var sig domain.SendSignal
	if len(queue) == 0 {
		sig = domain.SendSignal{Kind: domain.SignalDelivered}
	} else {
		sig = queue[0]
		f.signals[recipientID] = queue[1:]
	}
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(recipientID)
	}
	return sig
}

func (f *fakeCourier) SendText(_ context.Context, recipientID int64, _ string) domain.SendSignal {
	return f.next("text", recipientID)
}

func (f *fakeCourier) SendMedia(_ context.Context, recipientID int64, _ domain.MediaRef) domain.SendSignal {
	return f.next("media", recipientID)
}

func (f *fakeCourier) CopyMessage(_ context.Context, recipientID int64, _ int64, _ int) domain.SendSignal {
	return f.next("copy", recipientID)
}

func (f *fakeCourier) ForwardMessage(_ context.Context, recipientID int64, _ int64, _ int) domain.SendSignal {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("forward:%d", recipientID))
	f.mu.Unlock()
	return f.forward
}

func (f *fakeCourier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestSender(courier *fakeCourier, maxFloodWait time.Duration) (*Sender, *[]time.Duration) {
	sender := NewSender(courier, zerolog.Nop(), maxFloodWait)
	var slept []time.Duration
	sender.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return sender, &slept
}

func textPayload(text string) domain.BroadcastPayload {
	return domain.BroadcastPayload{Kind: domain.PayloadText, Text: text}
}

func TestSendTextDelivered(t *testing.T) {
	courier := &fakeCourier{signals: map[int64][]domain.SendSignal{}}
	sender, slept := newTestSender(courier, time.Minute)

	class := sender.Send(context.Background(), 1, textPayload("привет"))
	if class != domain.OutcomeDelivered {
		t.Fatalf("ожидали delivered, получили %s", class)
	}
	if courier.callCount() != 1 {
		t.Fatalf("ожидали ровно одну попытку, получили %d", courier.callCount())
	}
	if len(*slept) != 0 {
		t.Fatalf("не ожидали пауз, получили %v", *slept)
	}
}

func TestSendRateLimitedRetrySucceeds(t *testing.T) {
	courier := &fakeCourier{signals: map[int64][]domain.SendSignal{
		1: {
			{Kind: domain.SignalRateLimited, RetryAfter: 2 * time.Second},
			{Kind: domain.SignalDelivered},
		},
	}}
	sender, slept := newTestSender(courier, time.Minute)

	class := sender.Send(context.Background(), 1, textPayload("привет"))
	if class != domain.OutcomeDelivered {
		t.Fatalf("ожидали delivered после повтора, получили %s", class)
	}
	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Fatalf("ожидали паузу 2s перед повтором, получили %v", *slept)
	}
	if courier.callCount() != 2 {
		t.Fatalf("ожидали две попытки, получили %d", courier.callCount())
	}
}

func TestSendRateLimitedRetryFails(t *testing.T) {
	courier := &fakeCourier{signals: map[int64][]domain.SendSignal{
		1: {
			{Kind: domain.SignalRateLimited, RetryAfter: time.Second},
			{Kind: domain.SignalBlocked},
		},
	}}
	sender, _ := newTestSender(courier, time.Minute)

	// повтор ограничен одним разом, любой его сбой — временный
	class := sender.Send(context.Background(), 1, textPayload("привет"))
	if class != domain.OutcomeTransientFailure {
		t.Fatalf("ожидали transient_failed, получили %s", class)
	}
	if courier.callCount() != 2 {
		t.Fatalf("ожидали две попытки без рекурсии, получили %d", courier.callCount())
	}
}

func TestSendFloodWaitClamped(t *testing.T) {
	courier := &fakeCourier{signals: map[int64][]domain.SendSignal{
		1: {{Kind: domain.SignalRateLimited, RetryAfter: 10 * time.Minute}},
	}}
	sender, slept := newTestSender(courier, 30*time.Second)

	sender.Send(context.Background(), 1, textPayload("привет"))
	if len(*slept) != 1 || (*slept)[0] != 30*time.Second {
		t.Fatalf("ожидали паузу не больше 30s, получили %v", *slept)
	}
}

func TestSendBlockedNoRetry(t *testing.T) {
	courier := &fakeCourier{signals: map[int64][]domain.SendSignal{
		1: {{Kind: domain.SignalBlocked}},
	}}
	sender, slept := newTestSender(courier, time.Minute)

	class := sender.Send(context.Background(), 1, textPayload("привет"))
	if class != domain.OutcomeBlocked {
		t.Fatalf("ожидали blocked, получили %s", class)
	}
	if courier.callCount() != 1 {
		t.Fatalf("недоступный получатель не должен вызывать повтор, попыток %d", courier.callCount())
	}
	if len(*slept) != 0 {
		t.Fatalf("не ожидали пауз, получили %v", *slept)
	}
}

func TestSendCopyFallsBackToForward(t *testing.T) {
	courier := &fakeCourier{
		signals: map[int64][]domain.SendSignal{
			1: {{Kind: domain.SignalOtherError, Err: errors.New("copy failed")}},
		},
		forward: domain.SendSignal{Kind: domain.SignalDelivered},
	}
	sender, _ := newTestSender(courier, time.Minute)

	payload := domain.BroadcastPayload{Kind: domain.PayloadCopy, FromChatID: 100, MessageID: 7}
	class := sender.Send(context.Background(), 1, payload)
	if class != domain.OutcomeDelivered {
		t.Fatalf("ожидали delivered через пересылку, получили %s", class)
	}
	if courier.calls[len(courier.calls)-1] != "forward:1" {
		t.Fatalf("ожидали резервную пересылку, вызовы: %v", courier.calls)
	}
}

func TestSendCopyFallbackAlsoFails(t *testing.T) {
	courier := &fakeCourier{
		signals: map[int64][]domain.SendSignal{
			1: {{Kind: domain.SignalOtherError, Err: errors.New("copy failed")}},
		},
		forward: domain.SendSignal{Kind: domain.SignalOtherError, Err: errors.New("forward failed")},
	}
	sender, _ := newTestSender(courier, time.Minute)

	payload := domain.BroadcastPayload{Kind: domain.PayloadCopy, FromChatID: 100, MessageID: 7}
	if class := sender.Send(context.Background(), 1, payload); class != domain.OutcomeTransientFailure {
		t.Fatalf("ожидали transient_failed, получили %s", class)
	}
}

func TestSendMediaUsesMediaRoute(t *testing.T) {
	courier := &fakeCourier{signals: map[int64][]domain.SendSignal{}}
	sender, _ := newTestSender(courier, time.Minute)

	payload := domain.BroadcastPayload{Kind: domain.PayloadMedia, Media: domain.MediaRef{Kind: domain.MediaPhoto, FileID: "f1"}}
	sender.Send(context.Background(), 5, payload)
	if courier.calls[0] != "media:5" {
		t.Fatalf("ожидали отправку медиа, вызовы: %v", courier.calls)
	}
}
