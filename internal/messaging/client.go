package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"livequiz-client/internal/app"
	"livequiz-client/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	subscriberBuffer = 32
)

type outgoing struct {
	frame  domain.Frame
	result chan error
}

type subscription struct {
	ch     chan domain.Event
	topics []string
}

// Client is a connection to the topic relay. It is safe for concurrent use;
// a single goroutine owns all socket writes.
type Client struct {
	conn *websocket.Conn
	send chan outgoing

	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay at url. A non-empty token is sent as a bearer
// Authorization header.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("relay rejected token: %w", domain.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: dial relay: %v", domain.ErrServiceUnavailable, err)
	}

	c := &Client{
		conn: conn,
		send: make(chan outgoing, 16),
		subs: make(map[string]map[*subscription]struct{}),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Subscribe returns a channel receiving events published on topic. The
// cancel function unsubscribes and closes the channel.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan domain.Event, func(), error) {
	return c.SubscribeAll(ctx, []string{topic})
}

// SubscribeAll merges several topics into one channel, preserving the
// relay's delivery order across them.
func (c *Client) SubscribeAll(ctx context.Context, topics []string) (<-chan domain.Event, func(), error) {
	if len(topics) == 0 {
		return nil, nil, errors.New("no topics")
	}
	for _, topic := range topics {
		if err := app.ValidateTopic(topic); err != nil {
			return nil, nil, fmt.Errorf("%w: %q", err, topic)
		}
	}

	sub := &subscription{ch: make(chan domain.Event, subscriberBuffer), topics: topics}
	var fresh []string

	c.mu.Lock()
	if c.subs == nil {
		c.mu.Unlock()
		return nil, nil, domain.ErrNotConnected
	}
	for _, topic := range topics {
		set, ok := c.subs[topic]
		if !ok {
			set = make(map[*subscription]struct{})
			c.subs[topic] = set
			fresh = append(fresh, topic)
		}
		set[sub] = struct{}{}
	}
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { c.unsubscribe(sub) })
	}

	for _, topic := range fresh {
		if err := c.write(ctx, domain.Frame{Op: domain.OpSubscribe, Topic: topic}); err != nil {
			cancel()
			return nil, nil, err
		}
	}
	return sub.ch, cancel, nil
}

func (c *Client) unsubscribe(sub *subscription) {
	var emptied []string

	c.mu.Lock()
	if c.subs == nil {
		c.mu.Unlock()
		return
	}
	for _, topic := range sub.topics {
		set := c.subs[topic]
		delete(set, sub)
		if len(set) == 0 {
			delete(c.subs, topic)
			emptied = append(emptied, topic)
		}
	}
	close(sub.ch)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	for _, topic := range emptied {
		if err := c.write(ctx, domain.Frame{Op: domain.OpUnsubscribe, Topic: topic}); err != nil {
			return
		}
	}
}

// Publish sends ev on topic and returns once the frame was written.
func (c *Client) Publish(ctx context.Context, topic string, ev domain.Event) error {
	if err := app.ValidateTopic(topic); err != nil {
		return err
	}
	return c.write(ctx, domain.Frame{Op: domain.OpPublish, Topic: topic, Event: &ev})
}

// Close tears the connection down and closes every subscription channel.
func (c *Client) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.shutdown()
	return nil
}

func (c *Client) write(ctx context.Context, frame domain.Frame) error {
	out := outgoing{frame: frame, result: make(chan error, 1)}
	select {
	case c.send <- out:
	case <-c.done:
		return domain.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-out.result:
		return err
	case <-c.done:
		return domain.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case out := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteJSON(out.frame)
			out.result <- err
			if err != nil {
				log.Printf("relay write error: %v", err)
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("relay read error: %v", err)
				}
			}
			return
		}

		var frame domain.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("dropping malformed relay frame: %v", err)
			continue
		}
		switch frame.Op {
		case domain.OpEvent:
			if frame.Event == nil {
				log.Printf("dropping event frame without event on %s", frame.Topic)
				continue
			}
			c.dispatch(frame.Topic, *frame.Event)
		case domain.OpError:
			log.Printf("relay error on %q: %s", frame.Topic, frame.Error)
		default:
			log.Printf("dropping relay frame with op %q", frame.Op)
		}
	}
}

func (c *Client) dispatch(topic string, ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subs[topic] {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- ev
		}
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		closed := make(map[*subscription]struct{})
		for _, set := range c.subs {
			for sub := range set {
				if _, ok := closed[sub]; !ok {
					close(sub.ch)
					closed[sub] = struct{}{}
				}
			}
		}
		c.subs = nil
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

// AnswerPublisher submits answers by publishing them on the session's answer topic.
type AnswerPublisher struct {
	client *Client
}

func NewAnswerPublisher(client *Client) *AnswerPublisher {
	return &AnswerPublisher{client: client}
}

func (p *AnswerPublisher) SubmitAnswer(ctx context.Context, sessionCode string, submission domain.AnswerSubmission) error {
	ev, err := domain.NewEvent(domain.KindAnswer, sessionCode, submission)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, domain.AnswerTopic(sessionCode), ev)
}

var _ app.Submitter = (*AnswerPublisher)(nil)
