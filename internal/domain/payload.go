package domain

import (
	"fmt"
	"strings"
)

// PayloadKind определяет способ доставки рассылки.
type PayloadKind int

const (
	PayloadText PayloadKind = iota
	PayloadMedia
	PayloadCopy
)

// MediaKind — тип вложения при медиарассылке.
type MediaKind int

const (
	MediaPhoto MediaKind = iota
	MediaVideo
	MediaDocument
)

// String возвращает имя типа вложения.
func (m MediaKind) String() string {
	switch m {
	case MediaPhoto:
		return "photo"
	case MediaVideo:
		return "video"
	case MediaDocument:
		return "document"
	default:
		return "unknown"
	}
}

// MediaRef ссылается на уже загруженный в Telegram файл.
type MediaRef struct {
	Kind    MediaKind
	FileID  string
	Caption string
}

// BroadcastPayload неизменяем на время одной рассылки.
// Для PayloadCopy хранится ссылка на исходное сообщение владельца.
type BroadcastPayload struct {
	Kind       PayloadKind
	Text       string
	Media      MediaRef
	FromChatID int64
	MessageID  int
}

const summaryLimit = 200

// Summary возвращает короткое описание рассылки для журнала.
func (p BroadcastPayload) Summary() string {
	switch p.Kind {
	case PayloadText:
		return truncateRunes(p.Text, summaryLimit)
	case PayloadMedia:
		if caption := strings.TrimSpace(p.Media.Caption); caption != "" {
			return fmt.Sprintf("[%s] %s", p.Media.Kind, truncateRunes(caption, summaryLimit))
		}
		return fmt.Sprintf("[%s]", p.Media.Kind)
	case PayloadCopy:
		return fmt.Sprintf("[copy %d/%d]", p.FromChatID, p.MessageID)
	default:
		return "[unknown]"
	}
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
