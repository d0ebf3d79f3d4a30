// Package ksz8795 registers the KSZ8795 switch, reached through a 16-bit SPI command word.
package ksz8795

import (
	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/chip/ksz88xx"
	"firestige.xyz/swctl/internal/regio"
	"firestige.xyz/swctl/internal/tailtag"
)

const Name = "ksz8795"

// Layout is the KSZ8795 register description.
var Layout = ksz88xx.Layout{
	Name:         Name,
	ChipID:       0x87,
	Ports:        4,
	StaticSlots:  32,
	DynamicSlots: 1024,
	Dialect:      tailtag.KSZ8795,
	Indirect:     0x6e,
	HasMLD:       true,
}

func init() {
	chip.Register(chip.Driver{
		Name: Name,
		Bus:  chip.BusSPI,
		SPI:  ksz88xx.NewSPI16,
		New:  New,
		Sim:  func() chip.Simulator { return NewSim() },
	})
}

// New binds a KSZ8795 to port.
func New(port regio.RegisterPort, opts chip.Options, _ map[string]any) (chip.Chip, error) {
	sw, err := ksz88xx.New(Layout, port, opts)
	if err != nil {
		return nil, err
	}
	return sw, nil
}

// NewSim returns a simulated KSZ8795.
func NewSim() *ksz88xx.Sim {
	return ksz88xx.NewSim(Layout)
}
