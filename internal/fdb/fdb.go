// Package fdb implements the static and dynamic forwarding database
// algorithms once, against the table primitives each chip exposes.
//
// Two table shapes exist. Slot tables (KSZ family) are addressed by index
// through the chip's indirect access window. Address tables (Marvell ATU)
// are content addressed and enumerated with a get-next cursor that starts
// and ends at the broadcast address. Both are presented through the same
// Database API.
package fdb

import (
	"errors"
	"fmt"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/portstate"
	"firestige.xyz/swctl/internal/regio"
)

// StaticRecord is one slot of a slot-addressed static table. Ports holds
// hardware forward bits.
type StaticRecord struct {
	Valid    bool
	Override bool
	MAC      core.MAC
	Ports    uint32
}

// SlotTable is a fixed-size static table addressed by slot index.
type SlotTable interface {
	Slots() int
	ReadSlot(i int) (StaticRecord, error)
	WriteSlot(i int, r StaticRecord) error
}

// DynamicRecord is the result of one indexed dynamic table read.
type DynamicRecord struct {
	NotReady bool
	Empty    bool
	// Count is the number of valid entries reported by the hardware.
	Count int
	MAC   core.MAC
	Port  core.PortID
}

// IndexedDynamic reads the hardware-learned table by sequential index.
type IndexedDynamic interface {
	DynamicSlots() int
	ReadDynamic(i int) (DynamicRecord, error)
}

// AddressRecord is one entry of a content-addressed table.
type AddressRecord struct {
	Valid    bool
	Static   bool
	Override bool
	MAC      core.MAC
	Ports    uint32
}

// AddressTable is a content-addressed table with a get-next cursor.
// Next returns the first entry whose address is greater than cursor, with
// the broadcast cursor meaning "from the start". An invalid record means
// the search wrapped without finding one. Load reports core.ErrTableFull
// when the hardware has no room for a new address.
type AddressTable interface {
	Load(r AddressRecord) error
	Purge(mac core.MAC) error
	Next(cursor core.MAC) (AddressRecord, error)
}

// PortControl gives access to each port's control triple.
type PortControl interface {
	NumPorts() int
	ReadPortBits(p core.PortID) (portstate.Bits, error)
	WritePortBits(p core.PortID, b portstate.Bits) error
}

// FlushKind selects which table a hardware flush trigger targets.
type FlushKind int

const (
	FlushStatic FlushKind = iota
	FlushDynamic
)

func (k FlushKind) String() string {
	if k == FlushStatic {
		return "static"
	}
	return "dynamic"
}

// Flusher issues a chip's flush trigger and waits for it to complete.
type Flusher interface {
	TriggerFlush(kind FlushKind) error
}

// FlushMode selects how FlushStatic empties the static table.
type FlushMode int

const (
	// FlushByLearning forces learning off on every port around the
	// hardware static flush trigger.
	FlushByLearning FlushMode = iota
	// FlushByClear invalidates every static entry one by one.
	FlushByClear
)

// PortMap translates between port masks and hardware forward bits. Bit p-1
// of the hardware value is port p; the CPU port's bit maps to
// core.CPUPort.
type PortMap struct {
	Physical int
	CPU      core.PortID
}

func (m PortMap) physicalBits() uint32 {
	return uint32(1)<<m.Physical - 1
}

func (m PortMap) cpuBit() uint32 {
	if m.CPU < 1 {
		return 0
	}
	return 1 << (m.CPU - 1)
}

// ToHardware maps ports to hardware bits, dropping ports out of range.
func (m PortMap) ToHardware(ports core.PortMask) uint32 {
	v := uint32(ports.Physical()) & (m.physicalBits() | m.cpuBit())
	if ports&core.CPUPort != 0 {
		v |= m.cpuBit()
	}
	return v
}

// FromHardware maps hardware bits back to a port mask.
func (m PortMap) FromHardware(v uint32) core.PortMask {
	ports := core.PortMask(v & m.physicalBits())
	if cpu := m.cpuBit(); cpu != 0 && v&cpu != 0 {
		ports |= core.CPUPort
	}
	return ports
}

// Config assembles a Database from a chip's table primitives. Exactly one
// of Slots or Addresses provides the static table. The dynamic table comes
// from Dynamic when set, otherwise from Addresses.
type Config struct {
	Ports       PortMap
	Control     PortControl
	Flusher     Flusher
	Slots       SlotTable
	Addresses   AddressTable
	Dynamic     IndexedDynamic
	StaticFlush FlushMode
	Poller      regio.Poller
}

type staticTable interface {
	capacity() int
	add(e core.FdbEntry) error
	remove(mac core.MAC) error
	get(i int) (core.FdbEntry, error)
	clear() error
}

type dynamicTable interface {
	get(i int) (core.FdbEntry, error)
}

// Database is the forwarding database of one switch.
type Database struct {
	ports       PortMap
	control     PortControl
	flusher     Flusher
	static      staticTable
	dynamic     dynamicTable
	staticFlush FlushMode
}

// New builds a Database from cfg.
func New(cfg Config) (*Database, error) {
	if cfg.Control == nil || cfg.Flusher == nil {
		return nil, errors.New("fdb: port control and flusher are required")
	}
	if cfg.Slots != nil && cfg.Addresses != nil {
		return nil, errors.New("fdb: slot and address tables are exclusive")
	}
	db := &Database{
		ports:       cfg.Ports,
		control:     cfg.Control,
		flusher:     cfg.Flusher,
		staticFlush: cfg.StaticFlush,
	}
	switch {
	case cfg.Slots != nil:
		db.static = &slotStatic{t: cfg.Slots, ports: cfg.Ports}
	case cfg.Addresses != nil:
		db.static = &cursorStatic{t: cfg.Addresses, ports: cfg.Ports}
	}
	switch {
	case cfg.Dynamic != nil:
		db.dynamic = &indexedDynamic{t: cfg.Dynamic, poller: cfg.Poller}
	case cfg.Addresses != nil:
		db.dynamic = &cursorDynamic{t: cfg.Addresses, ports: cfg.Ports}
	}
	return db, nil
}

// StaticCapacity is the number of static entries the chip can hold, or 0
// when the static table is content addressed and shares its capacity with
// learned entries.
func (db *Database) StaticCapacity() int {
	if db.static == nil {
		return 0
	}
	return db.static.capacity()
}

// AddStatic inserts e, or updates the entry already holding e.MAC.
func (db *Database) AddStatic(e core.FdbEntry) error {
	if db.static == nil {
		return fmt.Errorf("add static entry: %w", core.ErrUnsupported)
	}
	return db.static.add(e)
}

// DeleteStatic removes the static entry for mac.
func (db *Database) DeleteStatic(mac core.MAC) error {
	if db.static == nil {
		return fmt.Errorf("delete static entry: %w", core.ErrUnsupported)
	}
	return db.static.remove(mac)
}

// GetStatic returns the static entry at index i. It returns
// core.ErrEndOfTable past the last index and core.ErrInvalidEntry for an
// unused slot.
func (db *Database) GetStatic(i int) (core.FdbEntry, error) {
	if db.static == nil {
		return core.FdbEntry{}, fmt.Errorf("get static entry: %w", core.ErrUnsupported)
	}
	return db.static.get(i)
}

// GetDynamic returns the i-th hardware-learned entry, or
// core.ErrEndOfTable once i passes the number of valid entries.
func (db *Database) GetDynamic(i int) (core.FdbEntry, error) {
	if db.dynamic == nil {
		return core.FdbEntry{}, fmt.Errorf("get dynamic entry: %w", core.ErrUnsupported)
	}
	if i < 0 {
		return core.FdbEntry{}, core.ErrEndOfTable
	}
	return db.dynamic.get(i)
}

// NumPorts is the number of physical ports.
func (db *Database) NumPorts() int {
	return db.control.NumPorts()
}

// PortMap returns the port translation the database was built with.
func (db *Database) PortMap() PortMap {
	return db.ports
}
