package ksz88xx

import (
	"fmt"

	"firestige.xyz/swctl/internal/regio"
)

const (
	spi8Write = 0x02
	spi8Read  = 0x03

	spi16Write = 0x2
	spi16Read  = 0x3
)

// bytePort carries single-byte registers over SPI. Wider accesses are
// split into consecutive big-endian byte accesses.
type bytePort struct {
	bus   regio.SPIBus
	frame func(write bool, addr uint32) []byte
}

// NewSPI8 frames each access as an 8-bit opcode and an 8-bit address
// (KSZ8863, KSZ8864).
func NewSPI8(bus regio.SPIBus) regio.RegisterPort {
	return &bytePort{bus: bus, frame: func(write bool, addr uint32) []byte {
		op := byte(spi8Read)
		if write {
			op = spi8Write
		}
		return []byte{op, byte(addr)}
	}}
}

// NewSPI16 frames each access as a 16-bit command word: a 3-bit opcode,
// a 12-bit address and a turnaround bit (KSZ8795).
func NewSPI16(bus regio.SPIBus) regio.RegisterPort {
	return &bytePort{bus: bus, frame: func(write bool, addr uint32) []byte {
		op := uint16(spi16Read)
		if write {
			op = spi16Write
		}
		cmd := op<<13 | uint16(addr&0xfff)<<1
		return []byte{byte(cmd >> 8), byte(cmd)}
	}}
}

func (p *bytePort) Read8(addr uint32) (uint8, error) {
	tx := append(p.frame(false, addr), 0)
	rx, err := p.bus.Transfer(tx)
	if err != nil {
		return 0, err
	}
	if len(rx) != len(tx) {
		return 0, fmt.Errorf("spi read 0x%02x: short transfer", addr)
	}
	return rx[len(rx)-1], nil
}

func (p *bytePort) Write8(addr uint32, v uint8) error {
	_, err := p.bus.Transfer(append(p.frame(true, addr), v))
	return err
}

func (p *bytePort) Read16(addr uint32) (uint16, error) {
	hi, err := p.Read8(addr)
	if err != nil {
		return 0, err
	}
	lo, err := p.Read8(addr + 1)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

func (p *bytePort) Write16(addr uint32, v uint16) error {
	if err := p.Write8(addr, uint8(v>>8)); err != nil {
		return err
	}
	return p.Write8(addr+1, uint8(v))
}

func (p *bytePort) Read32(addr uint32) (uint32, error) {
	hi, err := p.Read16(addr)
	if err != nil {
		return 0, err
	}
	lo, err := p.Read16(addr + 2)
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

func (p *bytePort) Write32(addr uint32, v uint32) error {
	if err := p.Write16(addr, uint16(v>>16)); err != nil {
		return err
	}
	return p.Write16(addr+2, uint16(v))
}
