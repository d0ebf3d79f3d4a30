package controller

import (
	"fmt"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/eventbus"
)

// Tick is the periodic link poll.
func (c *Controller) Tick() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollLinks()
}

// EventHandler services an edge-triggered recheck, including the one
// requested at the end of Init.
func (c *Controller) EventHandler() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollLinks()
}

type transition struct {
	port core.PortID
	link core.PortLink
}

// pollLinks reads every port's link and reports the transitions since the
// previous poll. A register failure leaves the cached state untouched so
// the transition is reported by the next successful poll.
func (c *Controller) pollLinks() error {
	if c.state != StateReady {
		return core.ErrNotReady
	}

	current := make([]core.PortLink, len(c.links))
	for i := range current {
		l, err := c.chip.PortLink(core.PortID(i + 1))
		if err != nil {
			return fmt.Errorf("port %d link: %w", i+1, err)
		}
		if l.State == core.LinkDown {
			l = core.PortLink{}
		}
		current[i] = l
	}

	var changed []transition
	wentUp := false
	aggregate := core.LinkDown
	for i, l := range current {
		if l.State == core.LinkUp {
			aggregate = core.LinkUp
		}
		if l.State != c.links[i].State {
			changed = append(changed, transition{port: core.PortID(i + 1), link: l})
			if l.State == core.LinkUp {
				wentUp = true
			}
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if wentUp {
		hl, err := c.chip.HostLink()
		if err != nil {
			return fmt.Errorf("host link: %w", err)
		}
		c.hostLink = hl
		if c.host != nil {
			c.host.OnMacConfig(hl.Speed, hl.Duplex)
		}
	}

	copy(c.links, current)
	aggregateChanged := aggregate != c.aggregate
	c.aggregate = aggregate

	for _, t := range changed {
		iface, bound := c.bindingFor(t.port)
		if !bound {
			iface = c.cfg.Interface
		}
		c.log.WithFields(map[string]interface{}{
			"port":   t.port,
			"speed":  t.link.Speed.String(),
			"duplex": t.link.Duplex.String(),
		}).Infof("link %s", t.link.State)

		if c.cfg.PortSeparation && bound && c.host != nil {
			c.host.OnLinkChange(iface, t.link.State)
		}
		c.publish(eventbus.LinkEvent{
			Interface: iface,
			Port:      t.port,
			State:     t.link.State,
			Speed:     t.link.Speed,
			Duplex:    t.link.Duplex,
		})
	}

	if aggregateChanged {
		if !c.cfg.PortSeparation && c.host != nil {
			c.host.OnLinkChange(c.cfg.Interface, aggregate)
		}
		ev := eventbus.LinkEvent{Interface: c.cfg.Interface, State: aggregate}
		if aggregate == core.LinkUp {
			ev.Speed, ev.Duplex = c.hostLink.Speed, c.hostLink.Duplex
		}
		c.publish(ev)
	}
	return nil
}

func (c *Controller) bindingFor(p core.PortID) (string, bool) {
	for _, b := range c.cfg.Bindings {
		if b.Port == p {
			return b.Interface, true
		}
	}
	return "", false
}

func (c *Controller) publish(ev eventbus.LinkEvent) {
	if c.bus == nil {
		return
	}
	ev.Time = c.now()
	if err := c.bus.PublishLink(ev); err != nil {
		c.log.WithError(err).Warn("link event dropped")
	}
}
