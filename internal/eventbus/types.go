package eventbus

import (
	"context"
)

// Event is one message on the bus. Events with the same Key are delivered
// in publish order.
type Event struct {
	Topic   string      `json:"topic"`
	Key     string      `json:"key"`
	Payload interface{} `json:"payload"`
}

// Handler consumes one event.
type Handler func(event *Event) error

type partition struct {
	id     int
	queue  chan *Event
	ctx    context.Context
	cancel context.CancelFunc
}
