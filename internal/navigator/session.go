package navigator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/applypilot/internal/form"
	"github.com/xkilldash9x/applypilot/internal/resolver"
)

// Outcome is the state of a session.
type Outcome string

const (
	Pending         Outcome = "Pending"
	Submitted       Outcome = "Submitted"
	Aborted         Outcome = "Aborted"
	DryRunCompleted Outcome = "DryRunCompleted"
)

// Reason classifies why a session was aborted.
type Reason string

const (
	// UnrecognizedStructure covers a missing navigation control, a disabled advance control and
	// an unmet required question.
	UnrecognizedStructure Reason = "UnrecognizedStructure"
	LoopDetected          Reason = "LoopDetected"
	BudgetExhausted       Reason = "BudgetExhausted"
	SubmitFailed          Reason = "SubmitFailed"
)

// AbortError ends a session without submitting.
type AbortError struct {
	Reason   Reason
	Step     int
	Location string
	// Question is the unmet required question, when that is the cause.
	Question string
	Detail   string
	Err      error
}

func (e *AbortError) Error() string {
	msg := fmt.Sprintf("session aborted at step %d (%s): %s", e.Step, e.Reason, e.Detail)
	if e.Question != "" {
		msg += fmt.Sprintf(" %q", e.Question)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AbortError) Unwrap() error { return e.Err }

// Job identifies the application a session is working on.
type Job struct {
	Title    string
	URL      string
	Location string
	Salary   string
}

// AnsweredQuestion is one audit entry of a session.
type AnsweredQuestion struct {
	Step     int
	Question string
	Type     form.ControlType
	Required bool
	Answer   string
	Source   resolver.Source
	Filled   bool
}

// Session is one form-completion attempt.
type Session struct {
	ID             string
	Job            Job
	CurrentStepURL string
	StepIndex      int
	StallCount     int
	Answered       []AnsweredQuestion
	Outcome        Outcome
	AbortReason    Reason
	StartedAt      time.Time
	FinishedAt     time.Time

	lastLocation string
	diagnosed    bool
}

func newSession(job Job, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Job:       job,
		Outcome:   Pending,
		StartedAt: now,
	}
}

// observe records a visit to location and returns the consecutive visit count.
func (s *Session) observe(location string) int {
	if location == s.lastLocation {
		s.StallCount++
	} else {
		s.lastLocation = location
		s.StallCount = 1
	}
	s.CurrentStepURL = location
	return s.StallCount
}

// resetStall forgets the last location, so the step after an interruption is not a repeat.
func (s *Session) resetStall() {
	s.lastLocation = ""
	s.StallCount = 0
}
