package ksz8463

import (
	"firestige.xyz/swctl/internal/regio"
)

// spiPort frames accesses as a 16-bit command (write flag, address bits
// 10:2, four byte enables) followed by little-endian data.
type spiPort struct {
	bus regio.SPIBus
}

// NewSPI returns a register port speaking the KSZ8463 SPI protocol.
func NewSPI(bus regio.SPIBus) regio.RegisterPort {
	return &spiPort{bus: bus}
}

func command(write bool, addr uint32, enables uint8) []byte {
	cmd := uint16(addr>>2&0x1ff)<<6 | uint16(enables&0x0f)<<2
	if write {
		cmd |= 0x8000
	}
	return []byte{byte(cmd >> 8), byte(cmd)}
}

func (p *spiPort) Read16(addr uint32) (uint16, error) {
	rx, err := p.bus.Transfer(append(command(false, addr, 0x3<<(addr&0x2)), 0, 0))
	if err != nil {
		return 0, err
	}
	return uint16(rx[2]) | uint16(rx[3])<<8, nil
}

func (p *spiPort) Write16(addr uint32, v uint16) error {
	_, err := p.bus.Transfer(append(command(true, addr, 0x3<<(addr&0x2)), byte(v), byte(v>>8)))
	return err
}

func (p *spiPort) Read8(addr uint32) (uint8, error) {
	rx, err := p.bus.Transfer(append(command(false, addr, 0x1<<(addr&0x3)), 0, 0))
	if err != nil {
		return 0, err
	}
	return rx[2+addr&1], nil
}

func (p *spiPort) Write8(addr uint32, v uint8) error {
	data := []byte{0, 0}
	data[addr&1] = v
	_, err := p.bus.Transfer(append(command(true, addr, 0x1<<(addr&0x3)), data...))
	return err
}

func (p *spiPort) Read32(addr uint32) (uint32, error) {
	lo, err := p.Read16(addr)
	if err != nil {
		return 0, err
	}
	hi, err := p.Read16(addr + 2)
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

func (p *spiPort) Write32(addr uint32, v uint32) error {
	if err := p.Write16(addr, uint16(v)); err != nil {
		return err
	}
	return p.Write16(addr+2, uint16(v>>16))
}
