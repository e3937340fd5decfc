package domain

import "time"

// AlertStatus records the outcome of one notification attempt.
type AlertStatus string

const (
	AlertSent    AlertStatus = "sent"
	AlertSkipped AlertStatus = "skipped"
	AlertFailed  AlertStatus = "failed"
)

// Alert event types. These double as the notifier's filter keys.
const (
	EventOrderFilled   = "filled"
	EventOrderSent     = "sent"
	EventOrderFailed   = "failed"
	EventOrderBlocked  = "blocked"
	EventOrderCanceled = "canceled"
	EventKillSwitch    = "kill_switch"
	EventRiskAlert     = "risk_alert"
)

// Alert is one row of the append-only alert ledger. Every notification
// attempt is recorded regardless of delivery outcome.
type Alert struct {
	ID        string // uuid
	EventType string
	Payload   string
	Status    AlertStatus
	CreatedAt time.Time
}
