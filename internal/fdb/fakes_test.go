package fdb

import (
	"bytes"
	"errors"
	"sort"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/portstate"
)

type fakeSlots struct {
	slots []StaticRecord
	reads int
}

func newFakeSlots(n int) *fakeSlots {
	return &fakeSlots{slots: make([]StaticRecord, n)}
}

func (f *fakeSlots) Slots() int { return len(f.slots) }

func (f *fakeSlots) ReadSlot(i int) (StaticRecord, error) {
	f.reads++
	return f.slots[i], nil
}

func (f *fakeSlots) WriteSlot(i int, r StaticRecord) error {
	f.slots[i] = r
	return nil
}

type fakePorts struct {
	bits   []portstate.Bits
	failOn core.PortID
}

func newFakePorts(n int) *fakePorts {
	p := &fakePorts{bits: make([]portstate.Bits, n)}
	for i := range p.bits {
		p.bits[i] = portstate.Bits{Transmit: true, Receive: true}
	}
	return p
}

func (f *fakePorts) NumPorts() int { return len(f.bits) }

func (f *fakePorts) ReadPortBits(p core.PortID) (portstate.Bits, error) {
	return f.bits[p-1], nil
}

func (f *fakePorts) WritePortBits(p core.PortID, b portstate.Bits) error {
	if p == f.failOn && b.LearningDisable {
		return errors.New("write failed")
	}
	f.bits[p-1] = b
	return nil
}

// fakeFlusher records which ports had learning disabled when triggered.
type fakeFlusher struct {
	ports    *fakePorts
	slots    *fakeSlots
	kinds    []FlushKind
	disabled [][]core.PortID
	err      error
}

func (f *fakeFlusher) TriggerFlush(kind FlushKind) error {
	f.kinds = append(f.kinds, kind)
	var off []core.PortID
	for i, b := range f.ports.bits {
		if b.LearningDisable {
			off = append(off, core.PortID(i+1))
		}
	}
	f.disabled = append(f.disabled, off)
	if f.err != nil {
		return f.err
	}
	if kind == FlushStatic && f.slots != nil {
		for i := range f.slots.slots {
			f.slots.slots[i] = StaticRecord{}
		}
	}
	return nil
}

type fakeIndexed struct {
	entries  []DynamicRecord
	notReady int
	reads    int
}

func (f *fakeIndexed) DynamicSlots() int { return 1024 }

func (f *fakeIndexed) ReadDynamic(i int) (DynamicRecord, error) {
	f.reads++
	if f.notReady > 0 {
		f.notReady--
		return DynamicRecord{NotReady: true}, nil
	}
	if len(f.entries) == 0 {
		return DynamicRecord{Empty: true}, nil
	}
	r := DynamicRecord{Count: len(f.entries)}
	if i < len(f.entries) {
		r.MAC = f.entries[i].MAC
		r.Port = f.entries[i].Port
	}
	return r, nil
}

// fakeATU is a sorted content-addressed table.
type fakeATU struct {
	entries map[core.MAC]AddressRecord
	limit   int
}

func newFakeATU() *fakeATU {
	return &fakeATU{entries: make(map[core.MAC]AddressRecord), limit: 64}
}

func (f *fakeATU) Load(r AddressRecord) error {
	if _, ok := f.entries[r.MAC]; !ok && len(f.entries) >= f.limit {
		return core.ErrTableFull
	}
	f.entries[r.MAC] = r
	return nil
}

func (f *fakeATU) Purge(mac core.MAC) error {
	delete(f.entries, mac)
	return nil
}

func (f *fakeATU) Next(cursor core.MAC) (AddressRecord, error) {
	macs := make([]core.MAC, 0, len(f.entries))
	for m := range f.entries {
		macs = append(macs, m)
	}
	sort.Slice(macs, func(i, j int) bool { return bytes.Compare(macs[i][:], macs[j][:]) < 0 })
	for _, m := range macs {
		if cursor == core.Broadcast || bytes.Compare(m[:], cursor[:]) > 0 {
			return f.entries[m], nil
		}
	}
	return AddressRecord{MAC: core.Broadcast}, nil
}
