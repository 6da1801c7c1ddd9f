package state

import "time"

// Status is the lifecycle phase of a simulation.
type Status string

// Lifecycle phases. A finished simulation accepts no further writes
// through the engine; the store itself stays readable.
const (
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// NormalizeStatus maps a definition-supplied status string to a Status.
// "ended" is a legacy alias for finished. Unknown strings are rejected.
func NormalizeStatus(s string) (Status, bool) {
	switch s {
	case "waiting", "running", "paused", "finished":
		return Status(s), true
	case "ended":
		return StatusFinished, true
	}
	return "", false
}

// Player is a participant in a running simulation. Actions lists the
// names of every attempt the player has made, in order.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Role     string    `json:"role,omitempty"`
	Score    float64   `json:"score"`
	Actions  []string  `json:"actions,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
	LastSeen time.Time `json:"lastSeen"`
}

// Event is a typed occurrence appended to the event feed by add_event
// effects and engine-internal transitions.
type Event struct {
	Type      string    `json:"eventType"`
	Message   string    `json:"message,omitempty"`
	Tick      int64     `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry is one line of the human-readable simulation log.
type LogEntry struct {
	Message   string    `json:"message"`
	Tick      int64     `json:"tick"`
	Timestamp time.Time `json:"timestamp"`
}

// ActionExecution records one processed action attempt, successful or
// not.
type ActionExecution struct {
	ActionName string         `json:"actionName"`
	PlayerID   string         `json:"playerId"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Success    bool           `json:"success"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Snapshot is a deep, JSON-ready copy of the mutable state at one
// instant. Mutating a snapshot never affects the store.
type Snapshot struct {
	Status       Status                    `json:"status"`
	Tick         int64                     `json:"tick"`
	Vars         map[string]float64        `json:"vars"`
	Entities     map[string]map[string]any `json:"entities"`
	Players      []Player                  `json:"players"`
	Scores       map[string]float64        `json:"scores"`
	Logs         []LogEntry                `json:"logs"`
	Events       []Event                   `json:"events"`
	Actions      []ActionExecution         `json:"actions"`
	LastAction   string                    `json:"lastAction,omitempty"`
	LastActionAt *time.Time                `json:"lastActionAt,omitempty"`
	Winner       string                    `json:"winner,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
	StartedAt    *time.Time                `json:"startedAt,omitempty"`
	EndedAt      *time.Time                `json:"endedAt,omitempty"`
}

// Summary is the lightweight listing view of a simulation.
type Summary struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Tick    int64  `json:"tick"`
	Players int    `json:"players"`
	Events  int    `json:"events"`
}
