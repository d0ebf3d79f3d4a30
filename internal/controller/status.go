package controller

import (
	"firestige.xyz/swctl/internal/core"
)

type PortStatus struct {
	Port      core.PortID    `json:"port"`
	Interface string         `json:"interface,omitempty"`
	State     core.PortState `json:"state"`
	Link      string         `json:"link"`
	Speed     string         `json:"speed,omitempty"`
	Duplex    string         `json:"duplex,omitempty"`
}

// Status is a snapshot of the controller for the command surface.
type Status struct {
	Chip      string       `json:"chip"`
	State     string       `json:"state"`
	Interface string       `json:"interface"`
	Link      string       `json:"link"`
	HostSpeed string       `json:"host_speed,omitempty"`
	Ports     []PortStatus `json:"ports"`
	Mgmt      Toggles      `json:"mgmt"`
	Statics   int          `json:"static_entries"`
}

// Status reports the cached link view and reads each port's state. Port
// states are omitted before Init.
func (c *Controller) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Chip:      c.info.Name,
		State:     c.state.String(),
		Interface: c.cfg.Interface,
		Link:      c.aggregate.String(),
		Mgmt:      c.mgmt,
		Statics:   len(c.authored),
	}
	if c.aggregate == core.LinkUp {
		st.HostSpeed = c.hostLink.Speed.String() + "/" + c.hostLink.Duplex.String()
	}

	for i, l := range c.links {
		p := core.PortID(i + 1)
		ps := PortStatus{Port: p, Link: l.State.String()}
		ps.Interface, _ = c.bindingFor(p)
		if l.State == core.LinkUp {
			ps.Speed, ps.Duplex = l.Speed.String(), l.Duplex.String()
		}
		if c.state == StateReady {
			s, err := c.getPortState(p)
			if err != nil {
				return st, err
			}
			ps.State = s
		}
		st.Ports = append(st.Ports, ps)
	}
	return st, nil
}

// PortLinks returns the cached per-port link view.
func (c *Controller) PortLinks() []core.PortLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.PortLink(nil), c.links...)
}
