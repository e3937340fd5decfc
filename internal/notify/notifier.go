// Package notify delivers operator alerts to chat channels and records every
// attempt in the alert ledger. The notifier never propagates failures into
// the pipeline; a broken webhook costs a log line, not a trade.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// Sender is one outbound channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender in logs, e.g. "telegram".
	Name() string
}

// Notifier fans alerts out to its senders, filtered by event type. Every
// Send lands in the ledger as sent, skipped, or failed.
type Notifier struct {
	senders []Sender
	events  map[string]bool // empty means all events pass
	ledger  domain.AlertStore
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Notifier. events filters which event types are delivered;
// empty allows all. ledger may be nil in tests.
func New(senders []Sender, events []string, ledger domain.AlertStore, log *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		ledger:  ledger,
		log:     log.With("component", "notifier"),
		now:     time.Now,
	}
}

// Send delivers one alert. It satisfies the alert sink consumed by the
// worker and the risk guard.
func (n *Notifier) Send(ctx context.Context, event, message string) {
	if len(n.events) > 0 && !n.events[event] {
		n.log.Debug("event filtered out", "event", event)
		n.record(ctx, event, message, domain.AlertSkipped)
		return
	}

	if n.dispatch(ctx, titleFor(event), message) {
		n.record(ctx, event, message, domain.AlertSent)
		return
	}
	n.record(ctx, event, message, domain.AlertFailed)
}

// dispatch fans out to all senders and reports whether every one succeeded.
// An empty sender list counts as success so headless deployments still get a
// complete ledger.
func (n *Notifier) dispatch(ctx context.Context, title, message string) bool {
	ok := true
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.Error("sender failed", "sender", s.Name(), "error", err.Error())
			ok = false
			continue
		}
		n.log.Debug("notification sent", "sender", s.Name(), "title", title)
	}
	return ok
}

// record appends the attempt to the ledger.
func (n *Notifier) record(ctx context.Context, event, message string, status domain.AlertStatus) {
	if n.ledger == nil {
		return
	}
	a := domain.Alert{
		ID:        uuid.NewString(),
		EventType: event,
		Payload:   message,
		Status:    status,
		CreatedAt: n.now().UTC(),
	}
	if err := n.ledger.Insert(ctx, &a); err != nil {
		n.log.Error("alert ledger write failed", "event", event, "error", err.Error())
	}
}

// titleFor renders the chat title for an event type.
func titleFor(event string) string {
	switch event {
	case domain.EventOrderFilled:
		return "Mirror order filled"
	case domain.EventOrderSent:
		return "Mirror order resting"
	case domain.EventOrderFailed:
		return "Mirror order failed"
	case domain.EventOrderBlocked:
		return "Mirror order blocked"
	case domain.EventOrderCanceled:
		return "Mirror order canceled"
	case domain.EventKillSwitch:
		return "Kill switch engaged"
	case domain.EventRiskAlert:
		return "Risk alert"
	default:
		return event
	}
}
