// Package metrics exposes AutoSherpa's Prometheus metrics and the recorder
// that feeds them from the dialogue engine and the inbound pipeline.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/BTreeMap/AutoSherpa/internal/dialogue"
	"github.com/BTreeMap/AutoSherpa/internal/models"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosherpa_turns_total",
			Help: "Total number of processed user messages",
		},
		[]string{"flow", "intent"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autosherpa_turn_duration_seconds",
			Help:    "Duration of routing one user message in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"flow"},
	)

	DialogueEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosherpa_dialogue_events_total",
			Help: "Dialogue engine events such as clarifications and ended conversations",
		},
		[]string{"event"},
	)

	DialogueErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosherpa_dialogue_errors_total",
			Help: "Dialogue engine failures by kind",
		},
		[]string{"event"},
	)

	LeadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosherpa_leads_total",
			Help: "Captured leads by kind and persistence status",
		},
		[]string{"kind", "status"},
	)

	OutboundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosherpa_outbound_messages_total",
			Help: "Replies sent by channel and status",
		},
		[]string{"channel", "status"},
	)

	DuplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosherpa_duplicate_messages_total",
			Help: "Redelivered inbound messages dropped by channel",
		},
		[]string{"channel"},
	)

	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autosherpa_sessions_swept_total",
			Help: "Idle sessions removed by the sweeper",
		},
	)
)

// Lead statuses.
const (
	StatusSaved  = "saved"
	StatusFailed = "failed"
	StatusOK     = "ok"
	StatusError  = "error"
)

// Recorder implements dialogue.Reporter and the inbound pipeline's metrics sink.
type Recorder struct{}

var _ dialogue.Reporter = (*Recorder)(nil)

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ReportEvent logs and counts a dialogue event.
func (r *Recorder) ReportEvent(ctx context.Context, event dialogue.Event, attrs ...any) {
	slog.Debug("Recorder.ReportEvent", append([]any{"event", event}, attrs...)...)
	DialogueEvents.WithLabelValues(string(event)).Inc()
	if event == dialogue.EventLeadSaved {
		LeadsTotal.WithLabelValues(attrString(attrs, "kind"), StatusSaved).Inc()
	}
}

// ReportError logs and counts a dialogue failure.
func (r *Recorder) ReportError(ctx context.Context, event dialogue.Event, err error, attrs ...any) {
	slog.Error("Recorder.ReportError", append([]any{"event", event, "error", err}, attrs...)...)
	DialogueErrors.WithLabelValues(string(event)).Inc()
	if event == dialogue.EventLeadFailed {
		LeadsTotal.WithLabelValues(attrString(attrs, "kind"), StatusFailed).Inc()
	}
}

// ObserveTurn records one routed message.
func (r *Recorder) ObserveTurn(flow models.FlowKind, intent models.Intent, d time.Duration) {
	label := flowLabel(flow)
	if intent == "" {
		intent = models.IntentOther
	}
	TurnsTotal.WithLabelValues(label, string(intent)).Inc()
	TurnDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveSend records one outbound reply.
func (r *Recorder) ObserveSend(channel string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	OutboundTotal.WithLabelValues(channel, status).Inc()
}

// ObserveDuplicate records a dropped redelivery.
func (r *Recorder) ObserveDuplicate(channel string) {
	DuplicatesTotal.WithLabelValues(channel).Inc()
}

// ObserveSweep records expired sessions.
func (r *Recorder) ObserveSweep(n int) {
	if n > 0 {
		SessionsSwept.Add(float64(n))
	}
}

func flowLabel(flow models.FlowKind) string {
	if flow == models.FlowNone {
		return "idle"
	}
	return string(flow)
}

// attrString returns the value following key in a slog-style attribute list.
func attrString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			return fmt.Sprint(attrs[i+1])
		}
	}
	return "unknown"
}
