package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"tg-broadcast-bot/internal/domain"
)

func commandMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}},
		Chat:     &tgbotapi.Chat{ID: 100},
	}
}

func TestBuildPayloadText(t *testing.T) {
	msg := commandMessage("/broadcast Привет всем!")
	payload, err := BuildPayload(msg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if payload.Kind != domain.PayloadText {
		t.Fatalf("expected text payload, got %v", payload.Kind)
	}
	if payload.Text != "Привет всем!" {
		t.Fatalf("unexpected text: %q", payload.Text)
	}
}

func TestBuildPayloadEmpty(t *testing.T) {
	msg := commandMessage("/broadcast")
	if _, err := BuildPayload(msg); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestBuildPayloadPhotoReply(t *testing.T) {
	msg := commandMessage("/broadcast")
	msg.ReplyToMessage = &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: 100},
		Caption: "подпись",
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small"},
			{FileID: "large"},
		},
	}
	payload, err := BuildPayload(msg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if payload.Kind != domain.PayloadMedia {
		t.Fatalf("expected media payload, got %v", payload.Kind)
	}
	if payload.Media.Kind != domain.MediaPhoto {
		t.Fatalf("expected photo, got %v", payload.Media.Kind)
	}
	if payload.Media.FileID != "large" {
		t.Fatalf("expected largest photo size, got %q", payload.Media.FileID)
	}
	if payload.Media.Caption != "подпись" {
		t.Fatalf("unexpected caption: %q", payload.Media.Caption)
	}
}

func TestBuildPayloadCaptionOverride(t *testing.T) {
	msg := commandMessage("/broadcast новая подпись")
	msg.ReplyToMessage = &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 100},
		Caption:  "старая подпись",
		Document: &tgbotapi.Document{FileID: "doc-1"},
	}
	payload, err := BuildPayload(msg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if payload.Media.Kind != domain.MediaDocument {
		t.Fatalf("expected document, got %v", payload.Media.Kind)
	}
	if payload.Media.Caption != "новая подпись" {
		t.Fatalf("unexpected caption: %q", payload.Media.Caption)
	}
}

func TestBuildPayloadCopyReply(t *testing.T) {
	msg := commandMessage("/broadcast")
	msg.ReplyToMessage = &tgbotapi.Message{
		Chat:      &tgbotapi.Chat{ID: 555},
		MessageID: 42,
		Text:      "сообщение со сложной разметкой",
	}
	payload, err := BuildPayload(msg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if payload.Kind != domain.PayloadCopy {
		t.Fatalf("expected copy payload, got %v", payload.Kind)
	}
	if payload.FromChatID != 555 || payload.MessageID != 42 {
		t.Fatalf("unexpected copy source: %d/%d", payload.FromChatID, payload.MessageID)
	}
}

func TestIsOwner(t *testing.T) {
	h := &Handler{ownerID: 42}
	if !h.IsOwner(42) {
		t.Fatal("expected owner to be recognized")
	}
	if h.IsOwner(43) {
		t.Fatal("expected non-owner to be rejected")
	}
	unset := &Handler{}
	if unset.IsOwner(0) {
		t.Fatal("expected unset owner to reject everyone")
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		user domain.User
		want string
	}{
		{domain.User{Username: "alice", FirstName: "Алиса"}, "@alice"},
		{domain.User{FirstName: "Алиса", LastName: "Иванова"}, "Алиса Иванова"},
		{domain.User{TGUserID: 777}, "777"},
	}
	for _, tc := range cases {
		if got := DisplayName(tc.user); got != tc.want {
			t.Fatalf("DisplayName(%+v) = %q, want %q", tc.user, got, tc.want)
		}
	}
}

func TestRenderHistory(t *testing.T) {
	started := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	records := []domain.BroadcastRecord{
		{
			RunID:           uuid.New(),
			PayloadSummary:  "Анонс релиза",
			StartedAt:       started,
			FinishedAt:      started.Add(90 * time.Second),
			TotalRecipients: 100,
			Delivered:       95,
			Blocked:         5,
		},
		{
			RunID:           uuid.New(),
			StartedAt:       started.Add(-time.Hour),
			FinishedAt:      started.Add(-time.Hour).Add(10 * time.Second),
			TotalRecipients: 50,
			Delivered:       20,
			Aborted:         true,
		},
	}
	text := RenderHistory(records)
	if !strings.Contains(text, "Анонс релиза") {
		t.Fatalf("expected payload summary in history: %q", text)
	}
	if !strings.Contains(text, "Доставлено 95 из 100, ошибок 5, 90s") {
		t.Fatalf("expected delivery line in history: %q", text)
	}
	if !strings.Contains(text, "⏹") {
		t.Fatalf("expected aborted marker in history: %q", text)
	}
}

func TestProfileFrom(t *testing.T) {
	from := &tgbotapi.User{
		ID:           123,
		UserName:     "bob",
		FirstName:    "Боб",
		LanguageCode: "ru",
	}
	profile := ProfileFrom(from)
	if profile.TGUserID != 123 || profile.Username != "bob" || profile.LanguageCode != "ru" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.IsBot {
		t.Fatal("expected human profile")
	}
}
