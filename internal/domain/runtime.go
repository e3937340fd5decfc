package domain

import "time"

// Runtime state keys persisted in the watcher_state key/value table.
const (
	RuntimeKeyWatcherState     = "watcher:state"
	RuntimeKeyWatcherHeartbeat = "watcher:heartbeat"
	RuntimeKeyWorkerHeartbeat  = "worker:heartbeat"
)

// WatcherState is the durable pacing state of the chain watcher, persisted
// after every successful tick so a restart resumes where it left off.
type WatcherState struct {
	LastProcessedBlock uint64  `json:"last_processed_block"`
	ErrorStreak        int     `json:"error_streak"`
	HealthyStreak      int     `json:"healthy_streak"`
	CurrentPollSeconds float64 `json:"current_poll_seconds"`
}

// Heartbeat is written by the watcher and worker loops each tick so an
// operator can tell a wedged process from an idle one.
type Heartbeat struct {
	At           time.Time `json:"at"`
	PollSeconds  float64   `json:"poll_seconds"`
	TickDuration float64   `json:"tick_duration_seconds"`
}
