package bus

// Event represents a server-side event to broadcast to subscribers
// (WebSocket clients, the routing consumer, NATS).
type Event struct {
	Name    string      `json:"name"` // protocol.Event* constant
	Payload interface{} `json:"payload,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Used by the gateway server and the routing engine to decouple from the
// concrete transport.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}
