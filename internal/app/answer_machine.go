package app

import (
	"log"

	"livequiz-client/internal/domain"
)

// AnswerState is the primary state of the answer control surface for one question.
type AnswerState int

const (
	StateIdle AnswerState = iota
	StateSubmitting
	StateCommitted
)

func (s AnswerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateCommitted:
		return "committed"
	}
	return "unknown"
}

// FeedbackKind discriminates what the participant is told.
type FeedbackKind int

const (
	FeedbackNone FeedbackKind = iota
	FeedbackTimeExpired
	FeedbackAccepted
	FeedbackFailed
)

const (
	timeUpMessage       = "Time's up! You can still answer for base points (no speed bonus)."
	timeUpClosedMessage = "Time's up!"
	acceptedMessage     = "Answer submitted!"
	failedMessage       = "Failed to submit answer. Please try again."
)

// Feedback is the message, if any, shown next to the answer options.
type Feedback struct {
	Kind           FeedbackKind
	Message        string
	CanStillAnswer bool
}

// QuestionRef identifies the active question. Seq grows on every question
// event so a re-pushed question with the same ID still counts as new.
type QuestionRef struct {
	ID  string
	Seq uint64
}

// Dispatch describes a submit request the caller must perform and later resolve.
type Dispatch struct {
	Ref      QuestionRef
	OptionID string
}

// AnswerMachine tracks selection, in-flight submission and time expiry for the
// active question. It is not safe for concurrent use; Participant serializes access.
type AnswerMachine struct {
	question  QuestionRef
	hasQ      bool
	seq       uint64
	state     AnswerState
	selection string
	expired   bool
	feedback  Feedback
}

func NewAnswerMachine() *AnswerMachine {
	return &AnswerMachine{}
}

// OnQuestionChanged resets all per-question state for a newly pushed question.
func (m *AnswerMachine) OnQuestionChanged(questionID string) QuestionRef {
	m.seq++
	m.question = QuestionRef{ID: questionID, Seq: m.seq}
	m.hasQ = true
	m.reset()
	return m.question
}

// Clear drops the active question, e.g. when the session ends.
func (m *AnswerMachine) Clear() {
	m.hasQ = false
	m.question = QuestionRef{}
	m.reset()
}

func (m *AnswerMachine) reset() {
	m.state = StateIdle
	m.selection = ""
	m.expired = false
	m.feedback = Feedback{}
}

// SubmitAnswer records optionID as the pending selection and returns the
// submit request to perform. It returns false, with no side effect, when
// there is no question, a selection already exists or a submit is in flight.
func (m *AnswerMachine) SubmitAnswer(optionID string) (Dispatch, bool) {
	if !m.hasQ {
		log.Printf("answer %q ignored: no active question", optionID)
		return Dispatch{}, false
	}
	if m.state != StateIdle {
		log.Printf("answer %q ignored: question %s already %s", optionID, m.question.ID, m.state)
		return Dispatch{}, false
	}
	m.state = StateSubmitting
	m.selection = optionID
	m.feedback = Feedback{}
	return Dispatch{Ref: m.question, OptionID: optionID}, true
}

// Resolve applies the outcome of a dispatched submit. Resolutions for a
// question that is no longer active are discarded and reported as false.
func (m *AnswerMachine) Resolve(d Dispatch, err error) bool {
	if !m.hasQ || d.Ref != m.question {
		log.Printf("discarding stale submit result for question %s", d.Ref.ID)
		return false
	}
	if m.state != StateSubmitting || m.selection != d.OptionID {
		log.Printf("discarding unexpected submit result for question %s in state %s", d.Ref.ID, m.state)
		return false
	}
	if err != nil {
		log.Printf("submit for question %s failed: %v", d.Ref.ID, err)
		m.state = StateIdle
		m.selection = ""
		m.feedback = Feedback{Kind: FeedbackFailed, Message: failedMessage}
		return true
	}
	m.state = StateCommitted
	m.feedback = Feedback{Kind: FeedbackAccepted, Message: acceptedMessage}
	return true
}

// OnExpiryNotification marks the active question as expired. The notice is
// only shown when the participant has not picked an answer yet.
func (m *AnswerMachine) OnExpiryNotification(n domain.TimeUp) bool {
	if !m.hasQ {
		return false
	}
	if n.QuestionID != "" && n.QuestionID != m.question.ID {
		log.Printf("discarding time-up for question %s, active is %s", n.QuestionID, m.question.ID)
		return false
	}
	m.expired = true
	if m.selection != "" {
		return true
	}
	msg := timeUpMessage
	if !n.CanStillAnswer {
		msg = timeUpClosedMessage
	}
	m.feedback = Feedback{Kind: FeedbackTimeExpired, Message: msg, CanStillAnswer: n.CanStillAnswer}
	return true
}

// IsInteractive reports whether answer options accept input. Expiry never affects it.
func (m *AnswerMachine) IsInteractive() bool {
	return m.state == StateIdle
}

func (m *AnswerMachine) CurrentFeedback() Feedback { return m.feedback }
func (m *AnswerMachine) State() AnswerState        { return m.state }
func (m *AnswerMachine) Expired() bool             { return m.expired }

// Selection returns the pending or committed option for the active question.
func (m *AnswerMachine) Selection() (string, bool) {
	return m.selection, m.selection != ""
}

// Question returns the active question reference, if any.
func (m *AnswerMachine) Question() (QuestionRef, bool) {
	return m.question, m.hasQ
}
