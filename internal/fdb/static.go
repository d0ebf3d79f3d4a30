package fdb

import (
	"fmt"

	"firestige.xyz/swctl/internal/core"
)

type slotStatic struct {
	t     SlotTable
	ports PortMap
}

func (s *slotStatic) capacity() int { return s.t.Slots() }

// scan returns the slot holding mac and the first free slot seen, -1 when
// absent.
func (s *slotStatic) scan(mac core.MAC) (match, free int, err error) {
	match, free = -1, -1
	for i := 0; i < s.t.Slots(); i++ {
		r, err := s.t.ReadSlot(i)
		if err != nil {
			return -1, -1, fmt.Errorf("read static slot %d: %w", i, err)
		}
		if !r.Valid {
			if free < 0 {
				free = i
			}
			continue
		}
		if r.MAC == mac {
			return i, free, nil
		}
	}
	return -1, free, nil
}

func (s *slotStatic) add(e core.FdbEntry) error {
	match, free, err := s.scan(e.MAC)
	if err != nil {
		return err
	}
	slot := match
	if slot < 0 {
		slot = free
	}
	if slot < 0 {
		return fmt.Errorf("add %s: %w", e.MAC, core.ErrTableFull)
	}
	return s.t.WriteSlot(slot, StaticRecord{
		Valid:    true,
		Override: e.Override,
		MAC:      e.MAC,
		Ports:    s.ports.ToHardware(e.DestPorts),
	})
}

func (s *slotStatic) remove(mac core.MAC) error {
	match, _, err := s.scan(mac)
	if err != nil {
		return err
	}
	if match < 0 {
		return fmt.Errorf("delete %s: %w", mac, core.ErrNotFound)
	}
	return s.t.WriteSlot(match, StaticRecord{})
}

func (s *slotStatic) get(i int) (core.FdbEntry, error) {
	if i < 0 || i >= s.t.Slots() {
		return core.FdbEntry{}, core.ErrEndOfTable
	}
	r, err := s.t.ReadSlot(i)
	if err != nil {
		return core.FdbEntry{}, fmt.Errorf("read static slot %d: %w", i, err)
	}
	if !r.Valid {
		return core.FdbEntry{}, core.ErrInvalidEntry
	}
	return core.FdbEntry{
		MAC:       r.MAC,
		DestPorts: s.ports.FromHardware(r.Ports),
		Override:  r.Override,
	}, nil
}

func (s *slotStatic) clear() error {
	for i := 0; i < s.t.Slots(); i++ {
		if err := s.t.WriteSlot(i, StaticRecord{}); err != nil {
			return fmt.Errorf("clear static slot %d: %w", i, err)
		}
	}
	return nil
}

// walk visits every valid entry of an address table in cursor order until
// fn returns false. It always terminates: the cursor only moves forward and
// the broadcast entry, being the highest address, ends the walk.
func walk(t AddressTable, fn func(r AddressRecord) (bool, error)) error {
	cursor := core.Broadcast
	for {
		r, err := t.Next(cursor)
		if err != nil {
			return err
		}
		if !r.Valid {
			return nil
		}
		more, err := fn(r)
		if err != nil || !more {
			return err
		}
		if r.MAC == core.Broadcast {
			return nil
		}
		cursor = r.MAC
	}
}

type cursorStatic struct {
	t     AddressTable
	ports PortMap
}

func (s *cursorStatic) capacity() int { return 0 }

func (s *cursorStatic) find(mac core.MAC) (AddressRecord, bool, error) {
	var found AddressRecord
	var ok bool
	err := walk(s.t, func(r AddressRecord) (bool, error) {
		if r.MAC == mac {
			found, ok = r, true
			return false, nil
		}
		return true, nil
	})
	return found, ok, err
}

func (s *cursorStatic) add(e core.FdbEntry) error {
	err := s.t.Load(AddressRecord{
		Valid:    true,
		Static:   true,
		Override: e.Override,
		MAC:      e.MAC,
		Ports:    s.ports.ToHardware(e.DestPorts),
	})
	if err != nil {
		return fmt.Errorf("add %s: %w", e.MAC, err)
	}
	return nil
}

func (s *cursorStatic) remove(mac core.MAC) error {
	r, ok, err := s.find(mac)
	if err != nil {
		return err
	}
	if !ok || !r.Static {
		return fmt.Errorf("delete %s: %w", mac, core.ErrNotFound)
	}
	return s.t.Purge(mac)
}

func (s *cursorStatic) get(i int) (core.FdbEntry, error) {
	if i < 0 {
		return core.FdbEntry{}, core.ErrEndOfTable
	}
	var out core.FdbEntry
	n := 0
	hit := false
	err := walk(s.t, func(r AddressRecord) (bool, error) {
		if !r.Static {
			return true, nil
		}
		if n == i {
			out = core.FdbEntry{
				MAC:       r.MAC,
				DestPorts: s.ports.FromHardware(r.Ports),
				Override:  r.Override,
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

func (s *cursorStatic) clear() error {
	var macs []core.MAC
	err := walk(s.t, func(r AddressRecord) (bool, error) {
		if r.Static {
			macs = append(macs, r.MAC)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, mac := range macs {
		if err := s.t.Purge(mac); err != nil {
			return fmt.Errorf("purge %s: %w", mac, err)
		}
	}
	return nil
}
