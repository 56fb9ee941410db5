// Package notification provides alert delivery to external channels
// (Telegram, generic webhooks) for signal events.
package notification

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"signal-systemv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// FromSignal renders a signal event as a deliverable alert, e.g.
// "LONG ENTRY BTCUSDT 1m".
func FromSignal(ev model.SignalEvent) Alert {
	title := fmt.Sprintf("%s %s %s %s", ev.Side, ev.Kind, ev.Symbol, ev.Interval)
	msg := fmt.Sprintf("rule: %s\nclose: %s\ntime: %s",
		ev.Rule,
		strconv.FormatFloat(ev.Close, 'f', -1, 64),
		time.Unix(ev.Time, 0).UTC().Format(time.RFC3339))
	if ev.Reason != "" {
		msg += "\n" + ev.Reason
	}
	return Alert{Level: AlertInfo, Title: title, Message: msg}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Name identifies the backend ("log", "telegram", ...) for metrics.
	Name() string
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to several backends. Delivery failures are logged
// and reported through OnResult, never returned: a dead channel must not
// stall the signal path.
type Multi struct {
	backends []Notifier

	// OnResult is called per backend with its delivery error, if any (for metrics).
	OnResult func(backend string, err error)
}

// NewMulti creates a fan-out notifier over the given backends.
func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	for _, n := range m.backends {
		err := n.Send(ctx, alert)
		if err != nil {
			log.Printf("[notify] %s delivery failed: %v", n.Name(), err)
		}
		if m.OnResult != nil {
			m.OnResult(n.Name(), err)
		}
	}
	return nil
}
