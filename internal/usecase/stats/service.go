package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-broadcast-bot/internal/domain"
)

const (
	cacheKey = "stats:text"
	cacheTTL = 30 * time.Second
)

// Service собирает статистику бота.
type Service struct {
	users domain.UserRepo
	stats domain.StatsRepo
	cache domain.Cache
	log   zerolog.Logger
	now   func() time.Time
}

// NewService создаёт сервис статистики. cache может быть nil.
func NewService(users domain.UserRepo, stats domain.StatsRepo, cache domain.Cache, logger zerolog.Logger) *Service {
	return &Service{users: users, stats: stats, cache: cache, log: logger, now: time.Now}
}

// Collect возвращает агрегированные показатели.
func (s *Service) Collect(ctx context.Context) (domain.BotStats, error) {
	now := s.now().UTC()

	total, err := s.users.CountUsers(ctx)
	if err != nil {
		return domain.BotStats{}, fmt.Errorf("подсчёт пользователей: %w", err)
	}
	reachable, err := s.users.CountRecipients(ctx)
	if err != nil {
		return domain.BotStats{}, fmt.Errorf("подсчёт получателей: %w", err)
	}
	active, err := s.users.CountActiveSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return domain.BotStats{}, fmt.Errorf("подсчёт активных: %w", err)
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := s.users.CountJoinedSince(ctx, midnight)
	if err != nil {
		return domain.BotStats{}, fmt.Errorf("подсчёт новых за день: %w", err)
	}
	week, err := s.users.CountJoinedSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return domain.BotStats{}, fmt.Errorf("подсчёт новых за неделю: %w", err)
	}
	month, err := s.users.CountJoinedSince(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		return domain.BotStats{}, fmt.Errorf("подсчёт новых за месяц: %w", err)
	}
	startedAt, err := s.stats.BotStartedAt(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("не удалось получить время старта бота")
	}

	return domain.BotStats{
		TotalUsers:    total,
		Reachable:     reachable,
		ActiveLastDay: active,
		NewToday:      today,
		NewLastWeek:   week,
		NewLastMonth:  month,
		BotStartedAt:  startedAt,
	}, nil
}

// BuildText строит текст для команды /stats. Результат кэшируется.
func (s *Service) BuildText(ctx context.Context) (string, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && len(cached) > 0 {
			return string(cached), nil
		}
	}

	st, err := s.Collect(ctx)
	if err != nil {
		return "", err
	}
	text := renderStats(st, s.now().UTC())

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, []byte(text), cacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("не удалось закэшировать статистику")
		}
	}
	return text, nil
}

func renderStats(st domain.BotStats, now time.Time) string {
	var b strings.Builder
	b.WriteString("📊 Статистика бота\n\n")
	fmt.Fprintf(&b, "👥 Всего пользователей: %s\n", FormatNumber(st.TotalUsers))
	fmt.Fprintf(&b, "📬 Доступны для рассылки: %s\n", FormatNumber(st.Reachable))
	fmt.Fprintf(&b, "✅ Активны за сутки: %s\n", FormatNumber(st.ActiveLastDay))
	fmt.Fprintf(&b, "📅 Новых сегодня: %s\n", FormatNumber(st.NewToday))
	fmt.Fprintf(&b, "📈 Новых за неделю: %s\n", FormatNumber(st.NewLastWeek))
	fmt.Fprintf(&b, "📆 Новых за месяц: %s\n\n", FormatNumber(st.NewLastMonth))
	if !st.BotStartedAt.IsZero() {
		fmt.Fprintf(&b, "⏰ Аптайм: %s\n", FormatUptime(now.Sub(st.BotStartedAt)))
		fmt.Fprintf(&b, "🚀 Запущен: %s\n\n", st.BotStartedAt.Format("2006-01-02 15:04 UTC"))
	}
	fmt.Fprintf(&b, "Обновлено: %s UTC", now.Format("2006-01-02 15:04:05"))
	return b.String()
}

// FormatUptime переводит длительность в человекочитаемый вид.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// FormatNumber добавляет разделители тысяч: 12345 -> "12,345".
func FormatNumber(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
