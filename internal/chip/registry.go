package chip

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/regio"
)

// BusKind is the management bus a chip hangs off.
type BusKind string

const (
	BusSPI  BusKind = "spi"
	BusMDIO BusKind = "mdio"
)

// Simulator is an in-memory chip model usable in place of hardware.
type Simulator interface {
	regio.RegisterPort
	SetLink(p core.PortID, l core.PortLink)
	Learn(mac core.MAC, p core.PortID)
}

// Driver describes how to reach and construct one chip model.
type Driver struct {
	Name string
	Bus  BusKind
	// SPI frames register accesses over an SPI bus. Set for BusSPI.
	SPI func(bus regio.SPIBus) regio.RegisterPort
	// MDIO frames register accesses over SMI. Set for BusMDIO.
	MDIO func(bus regio.MDIOBus) regio.RegisterPort
	New  func(port regio.RegisterPort, opts Options, raw map[string]any) (Chip, error)
	Sim  func() Simulator
}

var (
	mu      sync.RWMutex
	drivers = make(map[string]Driver)
)

// Register adds a driver. Adapters call it from init.
func Register(d Driver) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := drivers[d.Name]; exists {
		panic(fmt.Sprintf("chip driver %q already registered", d.Name))
	}
	drivers[d.Name] = d
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return Driver{}, fmt.Errorf("chip %q not registered", name)
	}
	return d, nil
}

// Names lists the registered drivers in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
