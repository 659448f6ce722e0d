package bus

import (
	"context"
	"encoding/json"
)

// Message is one room broadcast mirrored across relay instances.
// Exclude lists session ids that already received (or originated) the
// event; Origin lets an instance skip its own publications.
type Message struct {
	Origin  string          `json:"origin"`
	RoomID  string          `json:"roomId"`
	Exclude []string        `json:"exclude,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Bus interface {
	Publish(ctx context.Context, m Message) error
	Subscribe(ctx context.Context, fn func(Message))
	Close() error
}

// Noop is the single-instance default: broadcasts stay local.
type Noop struct{}

func (Noop) Publish(context.Context, Message) error { return nil }

func (Noop) Subscribe(context.Context, func(Message)) {}

func (Noop) Close() error { return nil }
