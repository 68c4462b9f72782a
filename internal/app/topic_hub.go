package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"livequiz-client/internal/domain"

	"github.com/google/uuid"
)

// ErrInvalidTopic is returned for topics outside the session namespace.
var ErrInvalidTopic = errors.New("invalid topic")

// TopicRepository abstracts where topics live (in-process, Redis-bridged, etc).
// Subscribe creates the topic and attaches to it under one lock, and the
// returned cancel detaches and drops the topic once it is empty under that
// same lock, so a subscriber never ends up on a topic no longer in the map.
type TopicRepository interface {
	Subscribe(name string) (<-chan domain.Event, func())
	// ClearRetained forgets the last event of a topic so it is not replayed.
	ClearRetained(ctx context.Context, name string) error
}

// EventPublisher delivers an event to every subscriber of a topic, possibly
// across relay instances.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, ev domain.Event) error
}

// RelayService contains the topic relay use cases.
type RelayService struct {
	topics    TopicRepository
	publisher EventPublisher
}

func NewRelayService(topics TopicRepository, publisher EventPublisher) *RelayService {
	return &RelayService{topics: topics, publisher: publisher}
}

// Subscribe returns a channel that receives events published on topic.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *RelayService) Subscribe(_ context.Context, topic string) (<-chan domain.Event, func(), error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.topics.Subscribe(topic)
	return ch, cancel, nil
}

// Publish fills in missing envelope fields and fans ev out on topic.
func (s *RelayService) Publish(ctx context.Context, topic string, ev domain.Event) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if !ev.Kind.Valid() {
		return domain.ErrUnknownEventKind
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.SentAt.IsZero() {
		ev.SentAt = time.Now().UTC()
	}
	if ev.Kind == domain.KindQuestion {
		// a new question resets expiry: late joiners must not replay the previous time-up
		code := strings.Split(topic, "/")[1]
		if err := s.topics.ClearRetained(ctx, domain.TimeUpTopic(code)); err != nil {
			return err
		}
	}
	return s.publisher.Publish(ctx, topic, ev)
}

// PublishKind publishes payload on the topic owned by kind for a session.
func (s *RelayService) PublishKind(ctx context.Context, sessionCode string, kind domain.EventKind, payload []byte) (domain.Event, error) {
	topic, err := domain.TopicForKind(sessionCode, kind)
	if err != nil {
		return domain.Event{}, err
	}
	ev := domain.Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		SessionCode: sessionCode,
		SentAt:      time.Now().UTC(),
		Payload:     payload,
	}
	return ev, s.Publish(ctx, topic, ev)
}

// ValidateTopic accepts only "session/{code}/{name}".
func ValidateTopic(topic string) error {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "session" || parts[1] == "" || parts[2] == "" {
		return ErrInvalidTopic
	}
	return nil
}

// Topic is an in-memory fan-out point. The last event is retained so late
// subscribers see the current question or time-up state.
type Topic struct {
	name        string
	mu          sync.RWMutex
	retained    *domain.Event
	subscribers map[chan domain.Event]struct{}
}

// NewTopic is exported for infrastructure layers that keep their own topic maps.
func NewTopic(name string) *Topic {
	return &Topic{
		name:        name,
		subscribers: make(map[chan domain.Event]struct{}),
	}
}

func (t *Topic) Name() string { return t.name }

// IsEmpty reports whether the topic has no subscribers.
func (t *Topic) IsEmpty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers) == 0
}

// Deliver fans ev out to local subscribers. Redelivery of the retained event is ignored.
func (t *Topic) Deliver(ev domain.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retained != nil && ev.ID != "" && t.retained.ID == ev.ID {
		return
	}
	retained := ev
	t.retained = &retained
	for ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber: drop its oldest event rather than block the publisher
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// ClearRetained forgets the retained event.
func (t *Topic) ClearRetained() {
	t.mu.Lock()
	t.retained = nil
	t.mu.Unlock()
}

// Attach adds a subscriber primed with the retained event. Stores call it
// while holding their own lock.
func (t *Topic) Attach() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 32)

	t.mu.Lock()
	t.subscribers[ch] = struct{}{}
	if t.retained != nil {
		ch <- *t.retained
	}
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		if _, ok := t.subscribers[ch]; ok {
			delete(t.subscribers, ch)
			close(ch)
		}
		t.mu.Unlock()
	}
	return ch, cancel
}
