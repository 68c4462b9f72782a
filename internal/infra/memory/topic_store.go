package memory

import (
	"context"
	"sync"

	"livequiz-client/internal/app"
	"livequiz-client/internal/domain"
)

// TopicStore is an in-memory implementation of app.TopicRepository and
// app.EventPublisher for a single relay instance.
type TopicStore struct {
	mu     sync.RWMutex
	topics map[string]*app.Topic
}

func NewTopicStore() *TopicStore {
	return &TopicStore{
		topics: make(map[string]*app.Topic),
	}
}

// Subscribe attaches to name, creating the topic if needed.
func (s *TopicStore) Subscribe(name string) (<-chan domain.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	topic := s.getOrCreateLocked(name)
	ch, detach := topic.Attach()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			detach()
			if topic.IsEmpty() && s.topics[name] == topic {
				delete(s.topics, name)
			}
		})
	}
	return ch, cancel
}

func (s *TopicStore) Get(name string) (*app.Topic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topic, ok := s.topics[name]
	return topic, ok
}

func (s *TopicStore) ClearRetained(_ context.Context, name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topic, ok := s.topics[name]; ok {
		topic.ClearRetained()
	}
	return nil
}

// Publish delivers ev to local subscribers, creating the topic so the event
// is retained for the first subscriber.
func (s *TopicStore) Publish(_ context.Context, name string, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(name).Deliver(ev)
	return nil
}

func (s *TopicStore) getOrCreateLocked(name string) *app.Topic {
	if topic, ok := s.topics[name]; ok {
		return topic
	}
	topic := app.NewTopic(name)
	s.topics[name] = topic
	return topic
}
