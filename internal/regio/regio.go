// Package regio provides register access to switch chips.
package regio

// RegisterPort is a synchronous register channel to one device. Every call
// is a full bus round-trip; the caller owns the channel for the duration
// of each operation.
type RegisterPort interface {
	Read8(addr uint32) (uint8, error)
	Read16(addr uint32) (uint16, error)
	Read32(addr uint32) (uint32, error)
	Write8(addr uint32, v uint8) error
	Write16(addr uint32, v uint16) error
	Write32(addr uint32, v uint32) error
}

// SPIBus is a full-duplex SPI transfer primitive. The returned slice has
// the same length as tx.
type SPIBus interface {
	Transfer(tx []byte) ([]byte, error)
	Close() error
}

// MDIOBus is a clause-22 SMI primitive.
type MDIOBus interface {
	ReadPHY(phy, reg uint8) (uint16, error)
	WritePHY(phy, reg uint8, v uint16) error
	Close() error
}

// Update16 performs a read-modify-write of a 16-bit register.
func Update16(p RegisterPort, addr uint32, clear, set uint16) error {
	v, err := p.Read16(addr)
	if err != nil {
		return err
	}
	return p.Write16(addr, (v&^clear)|set)
}

// Update8 performs a read-modify-write of an 8-bit register.
func Update8(p RegisterPort, addr uint32, clear, set uint8) error {
	v, err := p.Read8(addr)
	if err != nil {
		return err
	}
	return p.Write8(addr, (v&^clear)|set)
}

// Update32 performs a read-modify-write of a 32-bit register.
func Update32(p RegisterPort, addr uint32, clear, set uint32) error {
	v, err := p.Read32(addr)
	if err != nil {
		return err
	}
	return p.Write32(addr, (v&^clear)|set)
}
