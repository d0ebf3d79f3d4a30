package eventbus

import (
	"time"

	"firestige.xyz/swctl/internal/core"
)

const TopicLink = "link"

// LinkEvent reports one observed link transition. Port is zero for the
// aggregate interface.
type LinkEvent struct {
	Interface string          `json:"interface"`
	Port      core.PortID     `json:"port,omitempty"`
	State     core.LinkState  `json:"-"`
	Up        bool            `json:"up"`
	Speed     core.LinkSpeed  `json:"speed_mbps,omitempty"`
	Duplex    core.DuplexMode `json:"-"`
	Time      time.Time       `json:"time"`
}

// LinkBus narrows an EventBus to link events.
type LinkBus struct {
	bus EventBus
}

func NewLinkBus(bus EventBus) *LinkBus {
	return &LinkBus{bus: bus}
}

// PublishLink publishes ev keyed by interface so each interface's
// transitions stay ordered.
func (l *LinkBus) PublishLink(ev LinkEvent) error {
	ev.Up = ev.State == core.LinkUp
	return l.bus.Publish(&Event{Topic: TopicLink, Key: ev.Interface, Payload: ev})
}

func (l *LinkBus) SubscribeLink(handler func(LinkEvent) error) error {
	return l.bus.Subscribe(TopicLink, func(event *Event) error {
		ev, ok := event.Payload.(LinkEvent)
		if !ok {
			return nil
		}
		return handler(ev)
	})
}
