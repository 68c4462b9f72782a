package domain

// Frame operations exchanged between the messaging client and the relay.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
	OpEvent       = "event"
	OpError       = "error"
)

// Frame is one JSON message on the relay WebSocket.
type Frame struct {
	Op    string `json:"op"`
	Topic string `json:"topic,omitempty"`
	Event *Event `json:"event,omitempty"`
	Error string `json:"error,omitempty"`
}
