package discordblue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "discord_blue"

var (
	// metricInteractions counts received interactions by type and command
	metricInteractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "interactions_total",
		Help:      "Total discord interactions received by type and command",
	}, []string{"type", "command"})

	// metricCommandErrors counts failed commands by command and reply
	metricCommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "command_errors_total",
		Help:      "Total slash command failures by command",
	}, []string{"command"})

	metricCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "command_duration_seconds",
		Help:      "Slash command handling duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"command"})

	metricGatewayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "gateway_events_total",
		Help:      "Discord gateway connects, disconnects and ready events",
	}, []string{"event"})

	metricLoginAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "login_attempts_total",
		Help:      "Discord gateway login attempts",
	})

	// metricPrintJobs counts PrintNode submissions by result
	metricPrintJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "print_jobs_total",
		Help:      "Total PrintNode print jobs by result",
	}, []string{"result"})

	metricShipments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "shipments_total",
		Help:      "Total Shippo label purchases by result",
	}, []string{"result"})

	metricTrainingConversations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "training_conversations_total",
		Help:      "Conversations collected for fine-tuning by channel",
	}, []string{"channel"})

	metricGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "llm_generations_total",
		Help:      "Fine-tuned model replies generated by result",
	}, []string{"result"})

	metricAPIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "api_requests_total",
		Help:      "HTTP API requests by route and status",
	}, []string{"route", "method", "status"})

	metricAPIAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "api_auth_failures_total",
		Help:      "Failed admin API authentication attempts",
	})
)

const (
	resultSuccess = "success"
	resultError   = "error"
)
