package pipeline

import (
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/digest"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateExtracting          State = "extracting"
	StateDeduplicating       State = "deduplicating"
	StatePersonalizing       State = "personalizing"
	StateGeneratingQuestions State = "generating_questions"
	StateCommitting          State = "committing"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Stages lists the working states in execution order.
var Stages = []State{
	StateExtracting,
	StateDeduplicating,
	StatePersonalizing,
	StateGeneratingQuestions,
	StateCommitting,
}

type Request struct {
	UserId     uuid.UUID
	Text       string
	Title      string
	SourceURL  string
	SourceType string
	// Threshold overrides the configured similarity threshold when > 0.
	Threshold float64
}

type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

type RunStats struct {
	New     int `json:"new"`
	Known   int `json:"known"`
	Dropped int `json:"dropped"`
}

type Result struct {
	RunId       uuid.UUID         `json:"run_id"`
	Title       string            `json:"title"`
	SourceURL   string            `json:"source_url"`
	Sections    []digest.Section  `json:"sections"`
	Concepts    []digest.Concept  `json:"concepts"`
	Questions   []digest.Question `json:"questions"`
	Dropped     []digest.Dropped  `json:"dropped"`
	Stats       RunStats          `json:"stats"`
	Transitions []Transition      `json:"transitions"`
}

// RunError is returned for any run that ends in StateFailed. Stage is the
// state the run was in when it failed.
type RunError struct {
	RunID uuid.UUID
	Stage State
	Kind  apperr.Kind
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed during %s (%s): %v", e.RunID, e.Stage, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Run is the scratch state of one execution. Nothing in it is visible to
// other runs until commit.
type Run struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	State     State
	StartedAt time.Time

	transitions []Transition
	now         func() time.Time
}

func newRun(userId uuid.UUID, now func() time.Time) *Run {
	return &Run{
		Id:        uuid.New(),
		UserId:    userId,
		StartedAt: now(),
		now:       now,
	}
}

func (r *Run) moveTo(to State) Transition {
	t := Transition{From: r.State, To: to, At: r.now()}
	r.transitions = append(r.transitions, t)
	r.State = to
	return t
}

func (r *Run) Transitions() []Transition {
	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}
