package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-broadcast-bot/internal/adapters/bot"
	"tg-broadcast-bot/internal/adapters/repo"
	"tg-broadcast-bot/internal/adapters/telegram"
	"tg-broadcast-bot/internal/domain"
	"tg-broadcast-bot/internal/infra/cache"
	"tg-broadcast-bot/internal/infra/config"
	"tg-broadcast-bot/internal/infra/db"
	infrahttp "tg-broadcast-bot/internal/infra/http"
	"tg-broadcast-bot/internal/infra/log"
	"tg-broadcast-bot/internal/infra/metrics"
	"tg-broadcast-bot/internal/usecase/broadcast"
	"tg-broadcast-bot/internal/usecase/stats"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var (
		statsCache domain.Cache
		lease      domain.RunLease
		trail      domain.AuditTrail
	)
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewClient(cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к Redis")
		}
		defer redisClient.Close()
		statsCache = cache.NewRedis(redisClient)
		lease = cache.NewRunLease(redisClient, "broadcast:lease")
		trail = cache.NewAuditTrail(redisClient, "broadcast:trail", cfg.Broadcast.AuditTrailMax)
	} else {
		logger.Warn().Msg("Redis не настроен: кэш статистики, аренда и журнал отключены")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	courier := telegram.NewCourier(botAPI, logger)
	sender := broadcast.NewSender(courier, logger, time.Duration(cfg.Broadcast.MaxFloodWaitSec)*time.Second)
	dispatcher := broadcast.NewService(repoAdapter, repoAdapter, sender, lease, logger, broadcast.Config{
		Throttle:      time.Duration(cfg.Broadcast.ThrottleMS) * time.Millisecond,
		ProgressEvery: cfg.Broadcast.ProgressEvery,
	})
	statsUC := stats.NewService(repoAdapter, repoAdapter, statsCache, logger)

	var audit domain.AuditSink
	logChannel := telegram.NewLogChannel(botAPI, cfg.LogChannelID, logger)
	if logChannel.Enabled() {
		audit = logChannel
	}

	h := bot.NewHandler(botAPI, logger, repoAdapter, repoAdapter, dispatcher, statsUC, audit, trail, cfg.OwnerID, cfg.UserReplyText)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 5*time.Second)
	if err := repoAdapter.InitBotStats(startCtx, time.Now().UTC()); err != nil {
		logger.Warn().Err(err).Msg("не удалось зафиксировать время запуска")
	}
	cancelStart()

	srv := infrahttp.NewServer(logger)
	srv.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("некорректный URL вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("не удалось установить вебхук")
		}
	}

	logger.Info().Int("port", cfg.Port).Msg("бот-гейтвей запущен")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")

	// активная рассылка прерывается, частичный итог сохраняется
	if dispatcher.Abort() {
		logger.Info().Msg("рассылка прервана остановкой процесса")
		time.Sleep(2 * time.Second)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("не удалось корректно остановить HTTP сервер")
	}
}
