package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию бота.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	OwnerID      int64 `envconfig:"OWNER_ID"`
	LogChannelID int64 `envconfig:"LOG_CHANNEL_ID"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	// UserReplyText отправляется в ответ на любые сообщения без команды.
	UserReplyText string `envconfig:"USER_REPLY_TEXT"`

	Broadcast struct {
		ThrottleMS      int   `envconfig:"BROADCAST_THROTTLE_MS" default:"50"`
		ProgressEvery   int   `envconfig:"BROADCAST_PROGRESS_EVERY" default:"20"`
		MaxFloodWaitSec int   `envconfig:"BROADCAST_MAX_FLOOD_WAIT_SEC" default:"60"`
		AuditTrailMax   int64 `envconfig:"BROADCAST_AUDIT_TRAIL_MAX" default:"1000"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
