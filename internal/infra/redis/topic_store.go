package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"livequiz-client/internal/app"
	"livequiz-client/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	topicChannelPrefix = "livequiz:topic:"
	clearChannelPrefix = "livequiz:clear:"
)

// TopicStore is a Redis-bridged implementation of app.TopicRepository and
// app.EventPublisher.
//   - Subscribers are still served from a local map of topics, reusing the
//     in-process fan-out.
//   - Publishes go through a Redis channel per topic so every relay instance
//     sharing the Redis sees them.
//   - The last event per topic is kept in Redis so a topic created on another
//     instance is primed with it.
type TopicStore struct {
	client *redis.Client
	ttl    time.Duration

	mu     sync.RWMutex
	topics map[string]*app.Topic
}

func NewTopicStore(client *redis.Client, ttl time.Duration) *TopicStore {
	return &TopicStore{
		client: client,
		ttl:    ttl,
		topics: make(map[string]*app.Topic),
	}
}

// Start subscribes to every topic channel and forwards messages to local
// topics until ctx is canceled. It returns once the subscription is active.
func (s *TopicStore) Start(ctx context.Context) error {
	pubsub := s.client.PSubscribe(ctx, topicChannelPrefix+"*", clearChannelPrefix+"*")
	// one confirmation per pattern
	for i := 0; i < 2; i++ {
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return fmt.Errorf("subscribe topic channels: %w", err)
		}
	}

	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				s.forward(msg.Channel, msg.Payload)
			}
		}
	}()
	return nil
}

func (s *TopicStore) forward(channel, payload string) {
	if name, ok := strings.CutPrefix(channel, clearChannelPrefix); ok {
		s.mu.RLock()
		if topic, ok := s.topics[name]; ok {
			topic.ClearRetained()
		}
		s.mu.RUnlock()
		return
	}
	name := strings.TrimPrefix(channel, topicChannelPrefix)
	var ev domain.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		log.Printf("dropping malformed event on %s: %v", channel, err)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topic, ok := s.topics[name]; ok {
		topic.Deliver(ev)
	}
}

// Subscribe attaches to name, creating the local topic primed with the last
// event stored in Redis.
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
				_ = s.client.Del(context.Background(), s.liveKey(name)).Err()
			}
		})
	}
	return ch, cancel
}

func (s *TopicStore) getOrCreateLocked(name string) *app.Topic {
	if topic, ok := s.topics[name]; ok {
		return topic
	}
	topic := app.NewTopic(name)
	ctx := context.Background()
	if raw, err := s.client.Get(ctx, s.lastKey(name)).Bytes(); err == nil {
		var ev domain.Event
		if err := json.Unmarshal(raw, &ev); err == nil {
			topic.Deliver(ev)
		}
	}
	s.topics[name] = topic
	// best-effort liveness marker
	_ = s.client.Set(ctx, s.liveKey(name), "1", s.ttl).Err()
	return topic
}

func (s *TopicStore) Get(name string) (*app.Topic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topic, ok := s.topics[name]
	return topic, ok
}

// ClearRetained drops the stored last event and tells every instance to
// forget its local copy.
func (s *TopicStore) ClearRetained(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.lastKey(name))
	pipe.Publish(ctx, clearChannelPrefix+name, "")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}
	return nil
}

// Publish stores ev as the topic's last event and broadcasts it on Redis.
// Local subscribers receive it through the pattern subscription.
func (s *TopicStore) Publish(ctx context.Context, name string, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.lastKey(name), data, s.ttl)
	pipe.Publish(ctx, topicChannelPrefix+name, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

func (s *TopicStore) lastKey(name string) string {
	return topicChannelPrefix + name + ":last"
}

func (s *TopicStore) liveKey(name string) string {
	return topicChannelPrefix + name + ":live"
}
