// Package controller drives one switch: it brings the chip up, tracks port
// links and notifies the host stack, and fronts the forwarding database
// and management toggles for the daemon's command surface.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/eventbus"
	"firestige.xyz/swctl/internal/log"
	"firestige.xyz/swctl/internal/metrics"
	"firestige.xyz/swctl/internal/portstate"
	"firestige.xyz/swctl/internal/regio"
)

// Host is the network stack the switch is attached to.
type Host interface {
	// OnLinkChange is called once per observed transition of an interface.
	OnLinkChange(iface string, state core.LinkState)
	// OnMacConfig asks the host MAC to match the CPU port's negotiated link.
	OnMacConfig(speed core.LinkSpeed, duplex core.DuplexMode)
	// ScheduleEvent requests a later call to EventHandler.
	ScheduleEvent()
}

// VirtualPortBinding attaches one physical port to a host interface in
// port separation mode.
type VirtualPortBinding struct {
	Port      core.PortID `mapstructure:"port" json:"port"`
	Interface string      `mapstructure:"interface" json:"interface"`
}

// StaticStore persists host-authored static entries across restarts.
type StaticStore interface {
	Load() ([]core.FdbEntry, error)
	Save(entries []core.FdbEntry) error
}

type Config struct {
	// Interface names the aggregate host interface.
	Interface      string
	PortSeparation bool
	TailTag        bool
	Bindings       []VirtualPortBinding
	// StaticEntries are installed at Init in addition to stored ones.
	StaticEntries []core.FdbEntry
	// Poller bounds the identification wait. The zero value waits forever.
	Poller regio.Poller
}

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

type Option func(*Controller)

// WithLinkBus publishes every link transition on bus.
func WithLinkBus(bus *eventbus.LinkBus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithStore replays and persists host-authored static entries.
func WithStore(s StaticStore) Option {
	return func(c *Controller) { c.store = s }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the register channel of one chip. Methods are
// serialized on an internal lock, except the identification wait of Init.
type Controller struct {
	mu    sync.Mutex
	chip  chip.Chip
	info  chip.Info
	host  Host
	cfg   Config
	bus   *eventbus.LinkBus
	store StaticStore
	now   func() time.Time
	log   log.Logger

	state     State
	links     []core.PortLink
	aggregate core.LinkState
	hostLink  core.PortLink

	authored map[core.MAC]core.FdbEntry
	mgmt     Toggles
}

// New validates cfg against the chip and returns an uninitialized
// controller.
func New(c chip.Chip, host Host, cfg Config, opts ...Option) (*Controller, error) {
	info := c.Info()
	if cfg.Interface == "" {
		cfg.Interface = info.Name
	}
	seen := make(map[core.PortID]bool)
	for _, b := range cfg.Bindings {
		if !chip.ValidPort(info, b.Port) {
			return nil, fmt.Errorf("binding %s: port %d: %w", b.Interface, b.Port, core.ErrInvalidPort)
		}
		if seen[b.Port] {
			return nil, fmt.Errorf("port %d bound twice", b.Port)
		}
		seen[b.Port] = true
	}

	ctl := &Controller{
		chip:     c,
		info:     info,
		host:     host,
		cfg:      cfg,
		now:      time.Now,
		log:      log.GetLogger().WithField("chip", info.Name),
		links:    make([]core.PortLink, info.Ports),
		authored: make(map[core.MAC]core.FdbEntry),
	}
	for _, o := range opts {
		o(ctl)
	}
	ctl.setState(StateUninitialized)
	return ctl, nil
}

func (c *Controller) setState(s State) {
	c.state = s
	metrics.ControllerState.WithLabelValues(c.info.Name).Set(float64(s))
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Info() chip.Info { return c.info }

// Init brings the switch to Ready. It waits for the chip to identify,
// programs tail tagging and the initial port states, replays static
// entries and asks the host for a link recheck. A failed Init leaves the
// controller uninitialized and may be retried.
//
// The identification wait runs without the controller lock, so State,
// Status and the register passthroughs stay responsive while the chip is
// still coming up.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateInitializing {
		c.mu.Unlock()
		return fmt.Errorf("%s: init already in progress", c.info.Name)
	}
	c.setState(StateInitializing)
	c.mu.Unlock()

	err := c.identify(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = c.configure()
	}
	if err != nil {
		c.setState(StateUninitialized)
		return err
	}
	c.setState(StateReady)
	c.log.WithFields(map[string]interface{}{
		"ports":           c.info.Ports,
		"port_separation": c.cfg.PortSeparation,
		"tail_tag":        c.cfg.TailTag,
	}).Info("switch ready")

	if c.host != nil {
		c.host.ScheduleEvent()
	}
	return nil
}

func (c *Controller) identify(ctx context.Context) error {
	err := c.cfg.Poller.Until("identify "+c.info.Name, func() (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return c.chip.Identify()
	})
	if errors.Is(err, core.ErrHardwareTimeout) {
		return fmt.Errorf("identify %s: %w", c.info.Name, core.ErrWrongDevice)
	}
	if err != nil {
		return fmt.Errorf("identify %s: %w", c.info.Name, err)
	}
	return nil
}

func (c *Controller) configure() error {
	if err := c.chip.EnableTailTag(c.cfg.TailTag); err != nil {
		return fmt.Errorf("tail tag: %w", err)
	}

	initial := core.PortStateForwarding
	if c.cfg.PortSeparation {
		initial = core.PortStateListening
	}
	for p := core.PortID(1); int(p) <= c.info.Ports; p++ {
		if err := c.setPortState(p, initial); err != nil {
			return fmt.Errorf("port %d: %w", p, err)
		}
		c.links[p-1] = core.PortLink{}
	}
	c.aggregate = core.LinkDown

	return c.replayStatic()
}

// replayStatic installs configured and stored entries. Table outcomes are
// logged and skipped; register failures abort Init.
func (c *Controller) replayStatic() error {
	entries := append([]core.FdbEntry(nil), c.cfg.StaticEntries...)
	if c.store != nil {
		stored, err := c.store.Load()
		if err != nil {
			c.log.WithError(err).Warn("static fdb store unreadable, skipping replay")
		}
		entries = append(entries, stored...)
	}

	for _, e := range entries {
		err := c.addStatic(e)
		switch {
		case err == nil:
			c.authored[e.MAC] = e
		case isTableOutcome(err):
			c.log.WithError(err).Warnf("static entry %s not installed", e.MAC)
		default:
			return fmt.Errorf("replay %s: %w", e.MAC, err)
		}
	}
	if len(entries) > 0 {
		c.log.Infof("replayed %d static entries", len(c.authored))
	}
	return nil
}

func isTableOutcome(err error) bool {
	return errors.Is(err, core.ErrTableFull) ||
		errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrInvalidPort) ||
		errors.Is(err, core.ErrInvalidEntry)
}

func (c *Controller) SetPortState(p core.PortID, s core.PortState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPortState(p, s)
}

func (c *Controller) setPortState(p core.PortID, s core.PortState) error {
	if !chip.ValidPort(c.info, p) {
		return core.ErrInvalidPort
	}
	b, err := portstate.Encode(s)
	if err != nil {
		return err
	}
	return c.chip.WritePortBits(p, b)
}

func (c *Controller) GetPortState(p core.PortID) (core.PortState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getPortState(p)
}

func (c *Controller) getPortState(p core.PortID) (core.PortState, error) {
	if !chip.ValidPort(c.info, p) {
		return core.PortStateUnknown, core.ErrInvalidPort
	}
	b, err := c.chip.ReadPortBits(p)
	if err != nil {
		return core.PortStateUnknown, err
	}
	return portstate.Decode(b), nil
}
