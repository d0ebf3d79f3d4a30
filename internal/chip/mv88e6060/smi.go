package mv88e6060

import (
	"fmt"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/regio"
)

// smiPort maps register addresses of the form device<<5 | register onto
// clause 22 SMI accesses. Registers are 16 bits wide.
type smiPort struct {
	bus regio.MDIOBus
}

// NewSMI returns a register port over a clause 22 SMI bus.
func NewSMI(bus regio.MDIOBus) regio.RegisterPort {
	return &smiPort{bus: bus}
}

func split(addr uint32) (dev, r uint8) {
	return uint8(addr >> 5 & 0x1f), uint8(addr & 0x1f)
}

func (p *smiPort) Read16(addr uint32) (uint16, error) {
	dev, r := split(addr)
	return p.bus.ReadPHY(dev, r)
}

func (p *smiPort) Write16(addr uint32, v uint16) error {
	dev, r := split(addr)
	return p.bus.WritePHY(dev, r, v)
}

func (p *smiPort) Read8(addr uint32) (uint8, error) {
	v, err := p.Read16(addr)
	return uint8(v), err
}

func (p *smiPort) Write8(addr uint32, v uint8) error {
	return p.Write16(addr, uint16(v))
}

func (p *smiPort) Read32(addr uint32) (uint32, error) {
	return 0, fmt.Errorf("smi 32-bit read 0x%03x: %w", addr, core.ErrUnsupported)
}

func (p *smiPort) Write32(addr uint32, _ uint32) error {
	return fmt.Errorf("smi 32-bit write 0x%03x: %w", addr, core.ErrUnsupported)
}
