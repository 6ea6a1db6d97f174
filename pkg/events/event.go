package events

import "time"

const (
	TypeDigestCompleted = "DIGEST_COMPLETED"
	TypeDigestFailed    = "DIGEST_FAILED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "DIGEST_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// DigestCompleted is emitted once a run has committed.
type DigestCompleted struct {
	RunId       string    `json:"run_id"`
	UserId      string    `json:"user_id"`
	Title       string    `json:"title"`
	SourceURL   string    `json:"source_url"`
	New         int       `json:"new"`
	Known       int       `json:"known"`
	NewConcepts []string  `json:"new_concepts"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (e DigestCompleted) EventType() string {
	return TypeDigestCompleted
}

func (e DigestCompleted) Payload() map[string]interface{} {
	return map[string]interface{}{
		"run_id":       e.RunId,
		"user_id":      e.UserId,
		"title":        e.Title,
		"source_url":   e.SourceURL,
		"new":          e.New,
		"known":        e.Known,
		"new_concepts": e.NewConcepts,
		"occurred_at":  e.OccurredAt.Format(time.RFC3339Nano),
	}
}

func (e DigestCompleted) Timestamp() time.Time {
	return e.OccurredAt
}
