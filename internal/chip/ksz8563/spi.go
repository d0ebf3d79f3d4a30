package ksz8563

import (
	"encoding/binary"

	"firestige.xyz/swctl/internal/regio"
)

const (
	opRead  = 0x3
	opWrite = 0x2
)

// spiPort frames accesses as a 32-bit command word (3-bit opcode, 24-bit
// address, 5 turnaround bits) followed by big-endian data of the access
// width.
type spiPort struct {
	bus regio.SPIBus
}

// NewSPI returns a register port speaking the KSZ8563 SPI protocol.
func NewSPI(bus regio.SPIBus) regio.RegisterPort {
	return &spiPort{bus: bus}
}

func (p *spiPort) xfer(op uint32, addr uint32, data []byte) ([]byte, error) {
	tx := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(tx, op<<29|(addr&0xffffff)<<5)
	copy(tx[4:], data)
	rx, err := p.bus.Transfer(tx)
	if err != nil {
		return nil, err
	}
	return rx[4:], nil
}

func (p *spiPort) Read8(addr uint32) (uint8, error) {
	rx, err := p.xfer(opRead, addr, make([]byte, 1))
	if err != nil {
		return 0, err
	}
	return rx[0], nil
}

func (p *spiPort) Read16(addr uint32) (uint16, error) {
	rx, err := p.xfer(opRead, addr, make([]byte, 2))
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(rx), nil
}

func (p *spiPort) Read32(addr uint32) (uint32, error) {
	rx, err := p.xfer(opRead, addr, make([]byte, 4))
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(rx), nil
}

func (p *spiPort) Write8(addr uint32, v uint8) error {
	_, err := p.xfer(opWrite, addr, []byte{v})
	return err
}

func (p *spiPort) Write16(addr uint32, v uint16) error {
	_, err := p.xfer(opWrite, addr, binary.BigEndian.AppendUint16(nil, v))
	return err
}

func (p *spiPort) Write32(addr uint32, v uint32) error {
	_, err := p.xfer(opWrite, addr, binary.BigEndian.AppendUint32(nil, v))
	return err
}
