package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-broadcast-bot/internal/adapters/telegram"
	"tg-broadcast-bot/internal/domain"
	"tg-broadcast-bot/internal/infra/metrics"
	"tg-broadcast-bot/internal/usecase/broadcast"
	"tg-broadcast-bot/internal/usecase/stats"
)

// ErrEmptyPayload возвращается, когда /broadcast вызван без текста и без reply.
var ErrEmptyPayload = errors.New("пустой payload рассылки")

// Handler обслуживает вебхук бота.
type Handler struct {
	bot           *tgbotapi.BotAPI
	log           zerolog.Logger
	users         domain.UserRepo
	records       domain.BroadcastRepo
	dispatcher    *broadcast.Service
	statsUC       *stats.Service
	audit         domain.AuditSink
	trail         domain.AuditTrail
	ownerID       int64
	userReplyText string
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, users domain.UserRepo, records domain.BroadcastRepo, dispatcher *broadcast.Service, statsUC *stats.Service, audit domain.AuditSink, trail domain.AuditTrail, ownerID int64, userReplyText string) *Handler {
	if userReplyText == "" {
		userReplyText = "Спасибо за сообщение! Мы свяжемся с вами при необходимости."
	}
	return &Handler{
		bot:           bot,
		log:           log,
		users:         users,
		records:       records,
		dispatcher:    dispatcher,
		statsUC:       statsUC,
		audit:         audit,
		trail:         trail,
		ownerID:       ownerID,
		userReplyText: userReplyText,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	switch cb.Data {
	case "help_menu":
		h.reply(cb.Message.Chat.ID, h.buildHelpMessage(cb.From.ID), h.mainKeyboard())
	case "stats_menu":
		if !h.IsOwner(cb.From.ID) {
			h.reply(cb.Message.Chat.ID, "Эта команда доступна только владельцу бота.", nil)
			return
		}
		h.handleStats(ctx, &tgbotapi.Message{Chat: cb.Message.Chat, From: cb.From})
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	h.registerUser(ctx, msg.From)

	if !msg.IsCommand() {
		h.reply(msg.Chat.ID, h.userReplyText, nil)
		return
	}

	switch msg.Command() {
	case "start":
		h.handleStart(msg)
	case "help":
		h.handleHelp(msg)
	case "broadcast":
		if !h.requireOwner(msg) {
			return
		}
		h.handleBroadcast(ctx, msg)
	case "abort":
		if !h.requireOwner(msg) {
			return
		}
		h.handleAbort(msg)
	case "stats":
		if !h.requireOwner(msg) {
			return
		}
		h.handleStats(ctx, msg)
	case "users":
		if !h.requireOwner(msg) {
			return
		}
		h.handleUsers(ctx, msg)
	case "history":
		if !h.requireOwner(msg) {
			return
		}
		h.handleHistory(ctx, msg)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	}
}

// IsOwner сообщает, принадлежит ли идентификатор владельцу бота.
func (h *Handler) IsOwner(tgUserID int64) bool {
	return h.ownerID != 0 && tgUserID == h.ownerID
}

func (h *Handler) requireOwner(msg *tgbotapi.Message) bool {
	if h.IsOwner(msg.From.ID) {
		return true
	}
	h.log.Warn().Int64("user", msg.From.ID).Str("command", msg.Command()).Msg("команда владельца от постороннего пользователя")
	h.reply(msg.Chat.ID, "Эта команда доступна только владельцу бота.", nil)
	return false
}

func (h *Handler) registerUser(ctx context.Context, from *tgbotapi.User) {
	user, inserted, err := h.users.UpsertByTGID(ctx, ProfileFrom(from))
	if err != nil {
		h.log.Error().Err(err).Int64("user", from.ID).Msg("не удалось сохранить профиль пользователя")
		return
	}
	if inserted && h.audit != nil {
		text := fmt.Sprintf("🆕 Новый пользователь: %s (id %d)", DisplayName(user), user.TGUserID)
		if total, countErr := h.users.CountUsers(ctx); countErr == nil {
			text += fmt.Sprintf("\n👥 Всего пользователей: %s", stats.FormatNumber(total))
		}
		if err := h.audit.PublishAuditSummary(ctx, text); err != nil {
			h.log.Warn().Err(err).Msg("не удалось уведомить лог-канал о новом пользователе")
		}
	}
}

func (h *Handler) handleStart(msg *tgbotapi.Message) {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("👋 Привет, %s!\n\nЯ буду присылать вам новости и объявления. Просто оставайтесь на связи.", name), h.mainKeyboard())
}

func (h *Handler) handleHelp(msg *tgbotapi.Message) {
	h.reply(msg.Chat.ID, h.buildHelpMessage(msg.From.ID), h.mainKeyboard())
}

func (h *Handler) buildHelpMessage(tgUserID int64) string {
	var b strings.Builder
	b.WriteString("Доступные команды:\n")
	b.WriteString("/start — приветствие\n")
	b.WriteString("/help — эта справка\n")
	if h.IsOwner(tgUserID) {
		b.WriteString("\nКоманды владельца:\n")
		b.WriteString("/broadcast <текст> — рассылка текста всем пользователям\n")
		b.WriteString("/broadcast (reply на фото/видео/документ) — рассылка вложения\n")
		b.WriteString("/broadcast (reply на любое сообщение) — рассылка копии\n")
		b.WriteString("/abort — прервать текущую рассылку\n")
		b.WriteString("/stats — статистика бота\n")
		b.WriteString("/users — количество пользователей\n")
		b.WriteString("/history — последние рассылки\n")
	}
	return b.String()
}

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Помощь", "help_menu"),
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", "stats_menu"),
		),
	)
	return &buttons
}

func (h *Handler) handleBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	if h.dispatcher.InFlight() {
		h.reply(msg.Chat.ID, "⏳ Рассылка уже выполняется. Дождитесь завершения или используйте /abort.", nil)
		return
	}

	payload, err := BuildPayload(msg)
	if err != nil {
		h.reply(msg.Chat.ID, "Использование: /broadcast <текст>\nили ответьте командой /broadcast на сообщение, которое нужно разослать.", nil)
		return
	}

	statusID, err := h.sendStatus(msg.Chat.ID, "📢 Рассылка запускается...")
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось отправить статусное сообщение")
		return
	}

	publisher := broadcast.NewPublisher(h.statusEditor(msg.Chat.ID, statusID), h.audit, h.trail, h.log)
	initiatedBy := msg.From.ID

	// рассылка переживает контекст вебхук-запроса
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer publisher.Close()
		_, err := h.dispatcher.Run(runCtx, payload, initiatedBy, publisher)
		switch {
		case err == nil, errors.Is(err, broadcast.ErrAborted):
			// итоговый статус уже опубликован издателем
		case errors.Is(err, broadcast.ErrBroadcastInProgress):
			h.editStatus(msg.Chat.ID, statusID, "⏳ Рассылка уже выполняется. Дождитесь завершения.")
		case errors.Is(err, broadcast.ErrNoRecipients):
			h.editStatus(msg.Chat.ID, statusID, "📭 Нет получателей для рассылки.")
		default:
			h.log.Error().Err(err).Msg("рассылка завершилась с ошибкой")
			h.editStatus(msg.Chat.ID, statusID, "❌ Не удалось выполнить рассылку. Подробности в логах.")
		}
	}()
}

func (h *Handler) handleAbort(msg *tgbotapi.Message) {
	if h.dispatcher.Abort() {
		h.reply(msg.Chat.ID, "⏹ Останавливаю рассылку. Частичный итог будет сохранён.", nil)
		return
	}
	h.reply(msg.Chat.ID, "Сейчас нет активной рассылки.", nil)
}

func (h *Handler) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	statusID, err := h.sendStatus(msg.Chat.ID, "⏳ Считаю статистику...")
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось отправить статусное сообщение")
		return
	}
	text, err := h.statsUC.BuildText(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось собрать статистику")
		h.editStatus(msg.Chat.ID, statusID, "❌ Не удалось собрать статистику. Попробуйте позже.")
		return
	}
	h.editStatus(msg.Chat.ID, statusID, text)
}

func (h *Handler) handleUsers(ctx context.Context, msg *tgbotapi.Message) {
	total, err := h.users.CountUsers(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось посчитать пользователей")
		h.reply(msg.Chat.ID, "❌ Не удалось посчитать пользователей.", nil)
		return
	}
	reachable, err := h.users.CountRecipients(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось посчитать получателей")
		h.reply(msg.Chat.ID, "❌ Не удалось посчитать получателей.", nil)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("👥 Всего пользователей: %s\n📬 Доступны для рассылки: %s",
		stats.FormatNumber(total), stats.FormatNumber(reachable)), nil)
}

func (h *Handler) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	records, err := h.records.ListBroadcastRecords(ctx, 10)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить историю рассылок")
		h.reply(msg.Chat.ID, "❌ Не удалось получить историю рассылок.", nil)
		return
	}
	if len(records) == 0 {
		h.reply(msg.Chat.ID, "История рассылок пуста.", nil)
		return
	}
	h.reply(msg.Chat.ID, RenderHistory(records), nil)
}

// RenderHistory строит текст команды /history по последним итогам.
func RenderHistory(records []domain.BroadcastRecord) string {
	var b strings.Builder
	b.WriteString("📜 Последние рассылки:\n")
	for _, rec := range records {
		status := "✅"
		if rec.Aborted {
			status = "⏹"
		}
		fmt.Fprintf(&b, "\n%s %s\n", status, rec.StartedAt.Format("2006-01-02 15:04"))
		if rec.PayloadSummary != "" {
			fmt.Fprintf(&b, "📝 %s\n", rec.PayloadSummary)
		}
		fmt.Fprintf(&b, "Доставлено %d из %d, ошибок %d, %.0fs\n",
			rec.Delivered, rec.TotalRecipients, rec.Failed(), rec.FinishedAt.Sub(rec.StartedAt).Seconds())
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildPayload собирает payload рассылки из сообщения владельца.
// Текст аргументов задаёт текстовую рассылку, reply на вложение —
// медиарассылку по file_id, reply на любое другое сообщение — копию.
func BuildPayload(msg *tgbotapi.Message) (domain.BroadcastPayload, error) {
	args := strings.TrimSpace(msg.CommandArguments())
	reply := msg.ReplyToMessage

	if reply == nil {
		if args == "" {
			return domain.BroadcastPayload{}, ErrEmptyPayload
		}
		return domain.BroadcastPayload{Kind: domain.PayloadText, Text: args}, nil
	}

	caption := strings.TrimSpace(reply.Caption)
	if args != "" {
		caption = args
	}

	switch {
	case len(reply.Photo) > 0:
		// последний размер — самый крупный
		photo := reply.Photo[len(reply.Photo)-1]
		return domain.BroadcastPayload{
			Kind:  domain.PayloadMedia,
			Media: domain.MediaRef{Kind: domain.MediaPhoto, FileID: photo.FileID, Caption: caption},
		}, nil
	case reply.Video != nil:
		return domain.BroadcastPayload{
			Kind:  domain.PayloadMedia,
			Media: domain.MediaRef{Kind: domain.MediaVideo, FileID: reply.Video.FileID, Caption: caption},
		}, nil
	case reply.Document != nil:
		return domain.BroadcastPayload{
			Kind:  domain.PayloadMedia,
			Media: domain.MediaRef{Kind: domain.MediaDocument, FileID: reply.Document.FileID, Caption: caption},
		}, nil
	default:
		return domain.BroadcastPayload{
			Kind:       domain.PayloadCopy,
			FromChatID: reply.Chat.ID,
			MessageID:  reply.MessageID,
		}, nil
	}
}

// ProfileFrom переводит данные отправителя в профиль пользователя.
func ProfileFrom(from *tgbotapi.User) domain.TelegramProfile {
	return domain.TelegramProfile{
		TGUserID:     from.ID,
		Username:     from.UserName,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
		IsBot:        from.IsBot,
	}
}

// DisplayName возвращает человекочитаемое имя пользователя.
func DisplayName(u domain.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return strconv.FormatInt(u.TGUserID, 10)
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	for i, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) sendStatus(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	start := time.Now()
	sent, err := h.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return 0, err
	}
	return sent.MessageID, nil
}

func (h *Handler) editStatus(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	start := time.Now()
	_, err := h.bot.Request(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Warn().Err(err).Msg("не удалось отредактировать статусное сообщение")
	}
}

func (h *Handler) statusEditor(chatID int64, messageID int) broadcast.StatusEditor {
	return func(_ context.Context, text string) error {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		start := time.Now()
		_, err := h.bot.Request(edit)
		metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(chatID, 10), start, err)
		return err
	}
}
