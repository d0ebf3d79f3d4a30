package daemon

import (
	"fmt"
	"io"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/config"
	"firestige.xyz/swctl/internal/metrics"
	"firestige.xyz/swctl/internal/regio"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// switchHandle is an opened chip together with the bus it sits on. sim is
// set when the transport is the in-memory simulator.
type switchHandle struct {
	chip chip.Chip
	bus  io.Closer
	sim  chip.Simulator
}

// openSwitch resolves the configured driver, opens its bus and binds the
// adapter.
func openSwitch(cfg config.SwitchConfig) (*switchHandle, error) {
	drv, err := chip.Lookup(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %v)", err, chip.Names())
	}

	h := &switchHandle{bus: nopCloser{}}
	var port regio.RegisterPort
	switch cfg.Transport.Type {
	case "sim":
		h.sim = drv.Sim()
		port = h.sim

	case "spi":
		if drv.Bus != chip.BusSPI {
			return nil, fmt.Errorf("chip %s is not reachable over spi", drv.Name)
		}
		bus, err := regio.OpenSPI(cfg.Transport.Device, cfg.Transport.SpeedHz)
		if err != nil {
			return nil, err
		}
		h.bus, port = bus, drv.SPI(bus)

	case "mdio":
		if drv.Bus != chip.BusMDIO {
			return nil, fmt.Errorf("chip %s is not reachable over mdio", drv.Name)
		}
		bus, err := regio.OpenMDIO(cfg.Transport.Interface)
		if err != nil {
			return nil, err
		}
		h.bus, port = bus, drv.MDIO(bus)

	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport.Type)
	}

	var opts chip.Options
	if err := chip.DecodeOptions(cfg.Options, &opts); err != nil {
		h.bus.Close()
		return nil, err
	}
	opts.Poller = poller(cfg)

	h.chip, err = drv.New(port, opts, cfg.Options)
	if err != nil {
		h.bus.Close()
		return nil, fmt.Errorf("bind %s: %w", drv.Name, err)
	}
	return h, nil
}

func poller(cfg config.SwitchConfig) regio.Poller {
	timeouts := metrics.HardwareTimeoutsTotal.WithLabelValues(cfg.Chip)
	return regio.Poller{
		MaxAttempts: cfg.Poll.MaxAttempts,
		BackoffMin:  cfg.Poll.BackoffMin,
		BackoffMax:  cfg.Poll.BackoffMax,
		OnTimeout:   func(string) { timeouts.Inc() },
	}
}
