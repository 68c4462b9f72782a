package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"livequiz-client/internal/app"
	"livequiz-client/internal/auth"
	"livequiz-client/internal/domain"

	"github.com/gorilla/websocket"
)

// WSHandler serves the relay WebSocket: clients subscribe to session topics
// and publish events onto them.
type WSHandler struct {
	relay    *app.RelayService
	verifier *auth.Verifier
	upgrader websocket.Upgrader
}

func NewWSHandler(relay *app.RelayService, verifier *auth.Verifier) *WSHandler {
	return &WSHandler{
		relay:    relay,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the relay.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims := &auth.Claims{}
	if h.verifier.Enabled() {
		token := auth.BearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing authorization"}`, http.StatusUnauthorized)
			return
		}
		var err error
		claims, err = h.verifier.Verify(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan domain.Frame, 64)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for frame := range send {
			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	var forwarders sync.WaitGroup
	subscriptions := make(map[string]func())
	reply := func(frame domain.Frame) {
		select {
		case send <- frame:
		case <-writerDone:
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var frame domain.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			reply(domain.Frame{Op: domain.OpError, Error: "malformed frame"})
			continue
		}
		if !allowed(claims, frame.Topic) {
			reply(domain.Frame{Op: domain.OpError, Topic: frame.Topic, Error: "topic not permitted"})
			continue
		}

		switch frame.Op {
		case domain.OpSubscribe:
			if _, ok := subscriptions[frame.Topic]; ok {
				continue
			}
			events, cancel, err := h.relay.Subscribe(r.Context(), frame.Topic)
			if err != nil {
				reply(domain.Frame{Op: domain.OpError, Topic: frame.Topic, Error: err.Error()})
				continue
			}
			subscriptions[frame.Topic] = cancel
			forwarders.Add(1)
			go forward(frame.Topic, events, send, closeSignals, &forwarders)
		case domain.OpUnsubscribe:
			if cancel, ok := subscriptions[frame.Topic]; ok {
				cancel()
				delete(subscriptions, frame.Topic)
			}
		case domain.OpPublish:
			if frame.Event == nil {
				reply(domain.Frame{Op: domain.OpError, Topic: frame.Topic, Error: "publish without event"})
				continue
			}
			if err := h.relay.Publish(r.Context(), frame.Topic, *frame.Event); err != nil {
				reply(domain.Frame{Op: domain.OpError, Topic: frame.Topic, Error: err.Error()})
			}
		default:
			reply(domain.Frame{Op: domain.OpError, Error: "unsupported op"})
		}
	}

	close(closeSignals)
	for _, cancel := range subscriptions {
		cancel()
	}
	forwarders.Wait()
	close(send)
	<-writerDone
}

func forward(topic string, events <-chan domain.Event, send chan<- domain.Frame, closeSignals <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case send <- domain.Frame{Op: domain.OpEvent, Topic: topic, Event: &ev}:
			case <-closeSignals:
				return
			}
		case <-closeSignals:
			return
		}
	}
}

// allowed restricts session-scoped tokens to their own session's topics.
func allowed(claims *auth.Claims, topic string) bool {
	if claims == nil || claims.SessionCode == "" || topic == "" {
		return true
	}
	return strings.HasPrefix(topic, "session/"+claims.SessionCode+"/")
}
