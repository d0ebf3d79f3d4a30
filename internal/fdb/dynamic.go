package fdb

import (
	"fmt"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/regio"
)

type indexedDynamic struct {
	t      IndexedDynamic
	poller regio.Poller
}

func (d *indexedDynamic) get(i int) (core.FdbEntry, error) {
	if i >= d.t.DynamicSlots() {
		return core.FdbEntry{}, core.ErrEndOfTable
	}
	var r DynamicRecord
	err := d.poller.Until(fmt.Sprintf("dynamic entry %d ready", i), func() (bool, error) {
		var err error
		r, err = d.t.ReadDynamic(i)
		if err != nil {
			return false, err
		}
		return !r.NotReady, nil
	})
	if err != nil {
		return core.FdbEntry{}, err
	}
	if r.Empty || i >= r.Count {
		return core.FdbEntry{}, core.ErrEndOfTable
	}
	return core.FdbEntry{MAC: r.MAC, SrcPort: r.Port}, nil
}

type cursorDynamic struct {
	t     AddressTable
	ports PortMap
}

func (d *cursorDynamic) get(i int) (core.FdbEntry, error) {
	var out core.FdbEntry
	n := 0
	hit := false
	err := walk(d.t, func(r AddressRecord) (bool, error) {
		if r.Static {
			return true, nil
		}
		if n == i {
			out = core.FdbEntry{
				MAC:       r.MAC,
				SrcPort:   lowestPort(r.Ports),
				DestPorts: d.ports.FromHardware(r.Ports),
			}
			hit = true
			return false, nil
		}
		n++
		return true, nil
	})
	if err != nil {
		return core.FdbEntry{}, err
	}
	if !hit {
		return core.FdbEntry{}, core.ErrEndOfTable
	}
	return out, nil
}

// lowestPort returns the port of the lowest set bit, 0 when none is set.
func lowestPort(v uint32) core.PortID {
	for p := core.PortID(1); p <= 32; p++ {
		if v&(1<<(p-1)) != 0 {
			return p
		}
	}
	return 0
}
