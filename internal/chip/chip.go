// Package chip defines the capability interface every switch adapter
// implements and the registry the daemon resolves adapters from.
package chip

import (
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/fdb"
	"firestige.xyz/swctl/internal/portstate"
	"firestige.xyz/swctl/internal/tailtag"
)

// Info is the static description of a chip.
type Info struct {
	Name string
	// Ports is the number of physical ports, numbered 1..Ports.
	Ports int
	// CPU is the port number of the host-facing port.
	CPU          core.PortID
	StaticSlots  int
	DynamicSlots int
	TailTag      tailtag.Dialect
	// AgingFixed is the hard-wired aging period in seconds, zero when the
	// period is programmable.
	AgingFixed int
}

// Management holds the switch-wide policy toggles. Adapters return
// core.ErrUnsupported for toggles the silicon lacks.
type Management interface {
	SetIgmpSnooping(enable bool) error
	SetMldSnooping(enable bool) error
	SetUnknownMcastFwd(enable bool, ports core.PortMask) error
	SetUnknownUcastFwd(enable bool, ports core.PortMask) error
	SetAgingTime(seconds int) error
}

// Chip is one switch reachable through a register port.
type Chip interface {
	Management

	Info() Info

	// Identify reads the identification registers once and reports
	// whether they match this chip.
	Identify() (bool, error)

	EnableTailTag(enable bool) error

	ReadPortBits(p core.PortID) (portstate.Bits, error)
	WritePortBits(p core.PortID, b portstate.Bits) error

	// PortLink reports the link of physical port p.
	PortLink(p core.PortID) (core.PortLink, error)
	// HostLink reports the speed and duplex of the CPU-facing port.
	HostLink() (core.PortLink, error)

	Database() *fdb.Database
}

// ValidPort checks p against the physical port range of c.
func ValidPort(info Info, p core.PortID) bool {
	return p >= 1 && int(p) <= info.Ports
}
