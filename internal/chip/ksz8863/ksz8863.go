// Package ksz8863 registers the KSZ8863 switch, reached through an 8-bit SPI opcode and address.
package ksz8863

import (
	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/chip/ksz88xx"
	"firestige.xyz/swctl/internal/regio"
	"firestige.xyz/swctl/internal/tailtag"
)

const Name = "ksz8863"

// Layout is the KSZ8863 register description.
var Layout = ksz88xx.Layout{
	Name:         Name,
	ChipID:       0x88,
	Ports:        2,
	StaticSlots:  8,
	DynamicSlots: 1024,
	Dialect:      tailtag.KSZ8863,
	Indirect:     0x79,
	HasMLD:       false,
}

func init() {
	chip.Register(chip.Driver{
		Name: Name,
		Bus:  chip.BusSPI,
		SPI:  ksz88xx.NewSPI8,
		New:  New,
		Sim:  func() chip.Simulator { return NewSim() },
	})
}

// New binds a KSZ8863 to port.
func New(port regio.RegisterPort, opts chip.Options, _ map[string]any) (chip.Chip, error) {
	sw, err := ksz88xx.New(Layout, port, opts)
	if err != nil {
		return nil, err
	}
	return sw, nil
}

// NewSim returns a simulated KSZ8863.
func NewSim() *ksz88xx.Sim {
	return ksz88xx.NewSim(Layout)
}
