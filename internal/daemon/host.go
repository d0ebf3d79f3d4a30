package daemon

import (
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/log"
)

// host is the controller's view of the local network stack. Carrier and
// MAC changes are reported through the log and the link event bus;
// deferred work requests are coalesced into a one-slot channel drained by
// the controller loop.
type host struct {
	events chan struct{}
	log    log.Logger
}

func newHost() *host {
	return &host{
		events: make(chan struct{}, 1),
		log:    log.GetLogger().WithField("component", "host"),
	}
}

func (h *host) OnLinkChange(iface string, state core.LinkState) {
	h.log.WithFields(map[string]interface{}{
		"interface": iface,
		"link":      state.String(),
	}).Info("carrier changed")
}

func (h *host) OnMacConfig(speed core.LinkSpeed, duplex core.DuplexMode) {
	h.log.WithFields(map[string]interface{}{
		"speed":  speed.String(),
		"duplex": duplex.String(),
	}).Info("host mac reconfigured")
}

func (h *host) ScheduleEvent() {
	select {
	case h.events <- struct{}{}:
	default:
	}
}
