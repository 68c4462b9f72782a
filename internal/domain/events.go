package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind is the explicit discriminator carried by every real-time message.
type EventKind string

const (
	KindQuestion    EventKind = "question"
	KindTimeUp      EventKind = "time_up"
	KindCompletion  EventKind = "completion"
	KindScoreUpdate EventKind = "score_update"
	KindAnswer      EventKind = "answer"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindQuestion, KindTimeUp, KindCompletion, KindScoreUpdate, KindAnswer:
		return true
	}
	return false
}

// Event is the envelope delivered on session topics.
type Event struct {
	ID          string          `json:"id"`
	Kind        EventKind       `json:"kind"`
	SessionCode string          `json:"sessionCode"`
	SentAt      time.Time       `json:"sentAt"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEvent builds an event with a fresh id, encoding payload as JSON.
func NewEvent(kind EventKind, sessionCode string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		SessionCode: sessionCode,
		SentAt:      time.Now().UTC(),
		Payload:     data,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event %s: empty payload", e.Kind, e.ID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s event %s: %w", e.Kind, e.ID, err)
	}
	return nil
}

// QuestionOption is one selectable answer.
type QuestionOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// Question is pushed to participants when the host advances.
type Question struct {
	ID               string           `json:"id"`
	Text             string           `json:"text"`
	Type             string           `json:"type"`
	Points           int              `json:"points"`
	ImageURL         string           `json:"imageUrl,omitempty"`
	Options          []QuestionOption `json:"options"`
	Number           int              `json:"number"`
	Total            int              `json:"total"`
	TimeLimitSeconds int              `json:"timeLimitSeconds"`
}

// TimeUp is the server's declaration that the answer window closed.
// CanStillAnswer is true when late answers still earn base points.
type TimeUp struct {
	QuestionID     string `json:"questionId"`
	CanStillAnswer bool   `json:"canStillAnswer"`
}

// UnmarshalJSON treats a missing canStillAnswer as true: answers stay open
// after expiry unless the server says otherwise.
func (t *TimeUp) UnmarshalJSON(data []byte) error {
	var raw struct {
		QuestionID     string `json:"questionId"`
		CanStillAnswer *bool  `json:"canStillAnswer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.QuestionID = raw.QuestionID
	t.CanStillAnswer = raw.CanStillAnswer == nil || *raw.CanStillAnswer
	return nil
}

// Completion announces the end of a session.
type Completion struct {
	Message    string `json:"message"`
	FinalScore int    `json:"finalScore"`
	FinalRank  int    `json:"finalRank"`
}

// ScoreUpdate carries a participant's running total.
type ScoreUpdate struct {
	ParticipantID string `json:"participantId"`
	TotalScore    int    `json:"totalScore"`
	PointsEarned  int    `json:"pointsEarned"`
	Rank          int    `json:"rank"`
}

// AnswerSubmission is what a participant publishes on the answer topic.
type AnswerSubmission struct {
	ParticipantID  string `json:"participantId"`
	Nickname       string `json:"nickname,omitempty"`
	QuestionID     string `json:"questionId"`
	OptionID       string `json:"optionId"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

// Topic names, one per concern, addressed by session code.
func QuestionTopic(code string) string   { return "session/" + code + "/question" }
func TimeUpTopic(code string) string     { return "session/" + code + "/time-up" }
func CompletionTopic(code string) string { return "session/" + code + "/completion" }
func ScoreTopic(code string) string      { return "session/" + code + "/score" }
func AnswerTopic(code string) string     { return "session/" + code + "/answer" }

// ParticipantTopics lists the topics a participant screen listens on.
func ParticipantTopics(code string) []string {
	return []string{QuestionTopic(code), TimeUpTopic(code), CompletionTopic(code), ScoreTopic(code)}
}

// TopicForKind maps an event kind to the topic it is published on.
func TopicForKind(code string, kind EventKind) (string, error) {
	switch kind {
	case KindQuestion:
		return QuestionTopic(code), nil
	case KindTimeUp:
		return TimeUpTopic(code), nil
	case KindCompletion:
		return CompletionTopic(code), nil
	case KindScoreUpdate:
		return ScoreTopic(code), nil
	case KindAnswer:
		return AnswerTopic(code), nil
	}
	return "", ErrUnknownEventKind
}
