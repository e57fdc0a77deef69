package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BroadcastOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_outcomes_total",
		Help: "Итоги доставки по получателям, по классам",
	}, []string{"outcome"})

	BroadcastRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_runs_total",
		Help: "Количество рассылок по результату",
	}, []string{"result"})

	BroadcastRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "broadcast_run_seconds",
		Help:    "Длительность одной рассылки",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	})

	BroadcastFloodWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_flood_waits_total",
		Help: "Количество пауз по требованию Telegram",
	})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		BroadcastOutcomes,
		BroadcastRuns,
		BroadcastRunSeconds,
		BroadcastFloodWaits,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncBroadcastOutcome увеличивает счётчик итогов по классу.
func IncBroadcastOutcome(outcome string) {
	BroadcastOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveBroadcastRun записывает итог и длительность рассылки.
func ObserveBroadcastRun(result string, start time.Time) {
	BroadcastRuns.WithLabelValues(result).Inc()
	BroadcastRunSeconds.Observe(time.Since(start).Seconds())
}
