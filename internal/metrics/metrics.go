// Package metrics 定義服務對外暴露的 Prometheus 指標。
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRuns 依終止狀態統計每次消息處理
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_pipeline_runs_total",
		Help: "Message pipeline runs by outcome.",
	}, []string{"outcome"})

	ModerationVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_moderation_verdicts_total",
		Help: "Moderation verdicts by source and result.",
	}, []string{"source", "flagged"})

	Replies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_replies_total",
		Help: "Generated replies by source.",
	}, []string{"source"})

	RouterDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_router_deliveries_total",
		Help: "Events queued to live connections.",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "Currently registered websocket connections.",
	})
)

func ObserveVerdict(source string, flagged bool) {
	ModerationVerdicts.WithLabelValues(source, strconv.FormatBool(flagged)).Inc()
}
