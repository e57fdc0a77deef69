package stats

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-broadcast-bot/internal/domain"
)

type stubUserRepo struct {
	total, reachable, active, joined int
}

func (s *stubUserRepo) UpsertByTGID(context.Context, domain.TelegramProfile) (domain.User, bool, error) {
	return domain.User{}, false, nil
}
func (s *stubUserRepo) SnapshotRecipientIDs(context.Context, bool) ([]int64, error) { return nil, nil }
func (s *stubUserRepo) FlagUnreachable(context.Context, int64) error                { return nil }
func (s *stubUserRepo) CountRecipients(context.Context) (int, error)                { return s.reachable, nil }
func (s *stubUserRepo) CountUsers(context.Context) (int, error)                     { return s.total, nil }
func (s *stubUserRepo) CountActiveSince(context.Context, time.Time) (int, error) {
	return s.active, nil
}
func (s *stubUserRepo) CountJoinedSince(context.Context, time.Time) (int, error) {
	return s.joined, nil
}

type stubStatsRepo struct {
	startedAt time.Time
}

func (s *stubStatsRepo) InitBotStats(context.Context, time.Time) error { return nil }
func (s *stubStatsRepo) BotStartedAt(context.Context) (time.Time, error) {
	return s.startedAt, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	return nil
}
func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func TestBuildTextContainsCounts(t *testing.T) {
	users := &stubUserRepo{total: 12345, reachable: 12000, active: 42, joined: 7}
	repo := &stubStatsRepo{startedAt: time.Now().UTC().Add(-26 * time.Hour)}
	svc := NewService(users, repo, nil, zerolog.Nop())

	text, err := svc.BuildText(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(text, "12,345") {
		t.Fatalf("ожидали форматированное число пользователей: %s", text)
	}
	if !strings.Contains(text, "1d 2h") {
		t.Fatalf("ожидали аптайм больше суток: %s", text)
	}
}

func TestBuildTextUsesCache(t *testing.T) {
	users := &stubUserRepo{total: 1}
	repo := &stubStatsRepo{}
	cache := &memCache{}
	svc := NewService(users, repo, cache, zerolog.Nop())

	first, err := svc.BuildText(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	users.total = 999
	second, err := svc.BuildText(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if first != second {
		t.Fatalf("второй вызов должен отдать кэш")
	}
}

func TestFormatUptime(t *testing.T) {
	cases := map[time.Duration]string{
		30 * time.Minute:             "30m",
		3*time.Hour + 5*time.Minute:  "3h 5m",
		49*time.Hour + 1*time.Minute: "2d 1h 1m",
		-time.Minute:                 "0m",
	}
	for d, expected := range cases {
		if got := FormatUptime(d); got != expected {
			t.Fatalf("для %v ожидали %q, получили %q", d, expected, got)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
		-1234:   "-1,234",
	}
	for n, expected := range cases {
		if got := FormatNumber(n); got != expected {
			t.Fatalf("для %d ожидали %q, получили %q", n, expected, got)
		}
	}
}
