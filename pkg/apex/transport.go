package apex

import (
	"context"
	"encoding/json"
)

// Transport carries request/reply calls to the gateway.
type Transport interface {
	// Call sends method with req as payload and returns the reply payload.
	Call(ctx context.Context, method string, req any) (json.RawMessage, error)
	Close() error
}

// Handler receives the payload of a pushed event.
type Handler func(payload json.RawMessage)

// EventSource is implemented by transports that receive pushed events.
type EventSource interface {
	// On registers h for event and returns a func that removes it.
	On(event string, h Handler) (remove func())
}

// Closer is implemented by transports whose connection can drop on its own.
type Closer interface {
	Done() <-chan struct{}
}

// TokenSetter is implemented by transports that must attach the session
// token to each request themselves.
type TokenSetter interface {
	SetSessionToken(token string)
}
