// Package ksz8563 drives the KSZ8563 three-port switch. Its register space
// is 24 bits wide with per-port 4 KiB pages; the address lookup unit (ALU)
// exposes a static table of its own and an indexed view of learned
// entries.
package ksz8563

import (
	"fmt"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/fdb"
	"firestige.xyz/swctl/internal/portstate"
	"firestige.xyz/swctl/internal/regio"
	"firestige.xyz/swctl/internal/tailtag"
)

const Name = "ksz8563"

const (
	numPorts     = 2
	cpuPort      = core.PortID(3)
	staticSlots  = 16
	dynamicSlots = 1024
	chipID       = 0x9893

	regChipID     = 0x0001
	regLookup1    = 0x0311
	regLookup2    = 0x0312
	regAgePeriod  = 0x0320
	regUnkUcast   = 0x0324
	regUnkMcast   = 0x0328
	regSnoop      = 0x0370
	regALUIndex   = 0x0410
	regALUCtrl    = 0x0418
	regStaticCtrl = 0x041c
	regEntry1     = 0x0420
	regEntry2     = 0x0424
	regEntry3     = 0x0428
	regEntry4     = 0x042c

	lookup1Flush = 0x20
	lookup1Aging = 0x04
	flushOptMask = 0x30
	flushDynamic = 0x10
	flushStatic  = 0x20

	snoopIgmp = 0x40
	snoopMld  = 0x04

	unkEnable = 1 << 31

	aluStart      = 1 << 7
	aluRead       = 0x01
	aluCountShift = 16
	aluCountMask  = 0x3fff

	staticIndexShift = 16
	staticRead       = 0x01

	entryValid    = 1 << 31
	entryOverride = 1 << 31
	entryPorts    = 0x07

	// per-port page offsets
	portOpCtrl0  = 0x020
	portStatus   = 0x030
	portPhyBMSR  = 0x102
	portMSTP     = 0xb04
	opCtrlTail   = 0x04
	mstpTx       = 0x04
	mstpRx       = 0x02
	mstpLearnOff = 0x01
	bmsrLink     = 0x0004
	statusFull   = 0x04
	statusSpeed  = 0x18
)

func portReg(p core.PortID, off uint32) uint32 {
	return uint32(p)<<12 | off
}

func init() {
	chip.Register(chip.Driver{
		Name: Name,
		Bus:  chip.BusSPI,
		SPI:  NewSPI,
		New:  New,
		Sim:  func() chip.Simulator { return NewSim() },
	})
}

// Switch is a KSZ8563 bound to a register port.
type Switch struct {
	port   regio.RegisterPort
	poller regio.Poller
	db     *fdb.Database
}

// New binds a KSZ8563 to port. The static table is flushed slot by slot.
func New(port regio.RegisterPort, opts chip.Options, _ map[string]any) (chip.Chip, error) {
	s := &Switch{port: port, poller: opts.Poller}
	db, err := fdb.New(fdb.Config{
		Ports:       fdb.PortMap{Physical: numPorts, CPU: cpuPort},
		Control:     s,
		Flusher:     s,
		Slots:       s,
		Dynamic:     s,
		StaticFlush: fdb.FlushByClear,
		Poller:      opts.Poller,
	})
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

func (s *Switch) Info() chip.Info {
	return chip.Info{
		Name:         Name,
		Ports:        numPorts,
		CPU:          cpuPort,
		StaticSlots:  staticSlots,
		DynamicSlots: dynamicSlots,
		TailTag:      tailtag.KSZ8563,
	}
}

func (s *Switch) Database() *fdb.Database { return s.db }

func (s *Switch) Identify() (bool, error) {
	v, err := s.port.Read16(regChipID)
	if err != nil {
		return false, err
	}
	return v == chipID, nil
}

func (s *Switch) setBit8(addr uint32, bit uint8, on bool) error {
	if on {
		return regio.Update8(s.port, addr, 0, bit)
	}
	return regio.Update8(s.port, addr, bit, 0)
}

// EnableTailTag switches tail tagging on the host port.
func (s *Switch) EnableTailTag(enable bool) error {
	return s.setBit8(portReg(cpuPort, portOpCtrl0), opCtrlTail, enable)
}

func checkPort(p core.PortID) error {
	if p < 1 || p > numPorts {
		return fmt.Errorf("%s port %d: %w", Name, p, core.ErrInvalidPort)
	}
	return nil
}

func (s *Switch) NumPorts() int { return numPorts }

func (s *Switch) ReadPortBits(p core.PortID) (portstate.Bits, error) {
	if err := checkPort(p); err != nil {
		return portstate.Bits{}, err
	}
	v, err := s.port.Read8(portReg(p, portMSTP))
	if err != nil {
		return portstate.Bits{}, err
	}
	return portstate.Bits{
		Transmit:        v&mstpTx != 0,
		Receive:         v&mstpRx != 0,
		LearningDisable: v&mstpLearnOff != 0,
	}, nil
}

func (s *Switch) WritePortBits(p core.PortID, b portstate.Bits) error {
	if err := checkPort(p); err != nil {
		return err
	}
	var set uint8
	if b.Transmit {
		set |= mstpTx
	}
	if b.Receive {
		set |= mstpRx
	}
	if b.LearningDisable {
		set |= mstpLearnOff
	}
	return regio.Update8(s.port, portReg(p, portMSTP), mstpTx|mstpRx|mstpLearnOff, set)
}

func (s *Switch) readStatus(p core.PortID) (core.PortLink, error) {
	v, err := s.port.Read8(portReg(p, portStatus))
	if err != nil {
		return core.PortLink{}, err
	}
	l := core.PortLink{State: core.LinkUp, Duplex: core.DuplexHalf}
	switch (v & statusSpeed) >> 3 {
	case 0:
		l.Speed = core.Speed10M
	case 1:
		l.Speed = core.Speed100M
	case 2:
		l.Speed = core.Speed1G
	}
	if v&statusFull != 0 {
		l.Duplex = core.DuplexFull
	}
	return l, nil
}

func (s *Switch) PortLink(p core.PortID) (core.PortLink, error) {
	if err := checkPort(p); err != nil {
		return core.PortLink{}, err
	}
	bmsr, err := s.port.Read16(portReg(p, portPhyBMSR))
	if err != nil {
		return core.PortLink{}, err
	}
	if bmsr&bmsrLink == 0 {
		return core.PortLink{State: core.LinkDown}, nil
	}
	return s.readStatus(p)
}

// HostLink reads the negotiated settings of the XMII host port.
func (s *Switch) HostLink() (core.PortLink, error) {
	return s.readStatus(cpuPort)
}

func (s *Switch) TriggerFlush(kind fdb.FlushKind) error {
	opt := uint8(flushStatic)
	if kind == fdb.FlushDynamic {
		opt = flushDynamic
	}
	if err := regio.Update8(s.port, regLookup2, flushOptMask, opt); err != nil {
		return err
	}
	if err := regio.Update8(s.port, regLookup1, 0, lookup1Flush); err != nil {
		return err
	}
	return s.poller.WaitClear8(s.port, regLookup1, lookup1Flush)
}

func (s *Switch) Slots() int        { return staticSlots }
func (s *Switch) DynamicSlots() int { return dynamicSlots }

func (s *Switch) readEntries() (e [4]uint32, err error) {
	for i, addr := range []uint32{regEntry1, regEntry2, regEntry3, regEntry4} {
		if e[i], err = s.port.Read32(addr); err != nil {
			return e, err
		}
	}
	return e, nil
}

func entryMAC(e3, e4 uint32) core.MAC {
	return core.MAC{byte(e3 >> 8), byte(e3), byte(e4 >> 24), byte(e4 >> 16), byte(e4 >> 8), byte(e4)}
}

func macWords(m core.MAC) (e3, e4 uint32) {
	e3 = uint32(m[0])<<8 | uint32(m[1])
	e4 = uint32(m[2])<<24 | uint32(m[3])<<16 | uint32(m[4])<<8 | uint32(m[5])
	return e3, e4
}

func (s *Switch) ReadSlot(i int) (fdb.StaticRecord, error) {
	ctrl := uint32(i)<<staticIndexShift | aluStart | staticRead
	if err := s.port.Write32(regStaticCtrl, ctrl); err != nil {
		return fdb.StaticRecord{}, err
	}
	if err := s.poller.WaitClear32(s.port, regStaticCtrl, aluStart); err != nil {
		return fdb.StaticRecord{}, err
	}
	e, err := s.readEntries()
	if err != nil {
		return fdb.StaticRecord{}, err
	}
	return fdb.StaticRecord{
		Valid:    e[0]&entryValid != 0,
		Override: e[1]&entryOverride != 0,
		Ports:    e[1] & entryPorts,
		MAC:      entryMAC(e[2], e[3]),
	}, nil
}

func (s *Switch) WriteSlot(i int, r fdb.StaticRecord) error {
	var e1, e2 uint32
	if r.Valid {
		e1 |= entryValid
	}
	if r.Override {
		e2 |= entryOverride
	}
	e2 |= r.Ports & entryPorts
	e3, e4 := macWords(r.MAC)
	for _, w := range []struct {
		addr, v uint32
	}{{regEntry1, e1}, {regEntry2, e2}, {regEntry3, e3}, {regEntry4, e4}} {
		if err := s.port.Write32(w.addr, w.v); err != nil {
			return err
		}
	}
	if err := s.port.Write32(regStaticCtrl, uint32(i)<<staticIndexShift|aluStart); err != nil {
		return err
	}
	return s.poller.WaitClear32(s.port, regStaticCtrl, aluStart)
}

// ReadDynamic starts an indexed ALU read. A read still in progress is
// reported as not ready so the caller retries it.
func (s *Switch) ReadDynamic(i int) (fdb.DynamicRecord, error) {
	if err := s.port.Write32(regALUIndex, uint32(i)); err != nil {
		return fdb.DynamicRecord{}, err
	}
	if err := s.port.Write32(regALUCtrl, aluStart|aluRead); err != nil {
		return fdb.DynamicRecord{}, err
	}
	ctrl, err := s.port.Read32(regALUCtrl)
	if err != nil {
		return fdb.DynamicRecord{}, err
	}
	if ctrl&aluStart != 0 {
		return fdb.DynamicRecord{NotReady: true}, nil
	}
	count := int(ctrl >> aluCountShift & aluCountMask)
	if count == 0 {
		return fdb.DynamicRecord{Empty: true}, nil
	}
	e, err := s.readEntries()
	if err != nil {
		return fdb.DynamicRecord{}, err
	}
	return fdb.DynamicRecord{
		Count: count,
		MAC:   entryMAC(e[2], e[3]),
		Port:  lowestPort(e[1] & entryPorts),
	}, nil
}

func lowestPort(v uint32) core.PortID {
	for p := core.PortID(1); p <= cpuPort; p++ {
		if v&(1<<(p-1)) != 0 {
			return p
		}
	}
	return 0
}

func (s *Switch) SetIgmpSnooping(enable bool) error {
	return s.setBit8(regSnoop, snoopIgmp, enable)
}

func (s *Switch) SetMldSnooping(enable bool) error {
	return s.setBit8(regSnoop, snoopMld, enable)
}

func (s *Switch) unknownFwd(addr uint32, enable bool, ports core.PortMask) error {
	v := s.db.PortMap().ToHardware(ports)
	if enable {
		v |= unkEnable
	}
	return s.port.Write32(addr, v)
}

func (s *Switch) SetUnknownMcastFwd(enable bool, ports core.PortMask) error {
	return s.unknownFwd(regUnkMcast, enable, ports)
}

func (s *Switch) SetUnknownUcastFwd(enable bool, ports core.PortMask) error {
	return s.unknownFwd(regUnkUcast, enable, ports)
}

// SetAgingTime programs the age period in seconds; zero turns aging off.
func (s *Switch) SetAgingTime(seconds int) error {
	if seconds < 0 || seconds > 0xffff {
		return fmt.Errorf("%s aging time %ds: %w", Name, seconds, core.ErrUnsupported)
	}
	if seconds == 0 {
		return s.setBit8(regLookup1, lookup1Aging, false)
	}
	if err := s.port.Write16(regAgePeriod, uint16(seconds)); err != nil {
		return err
	}
	return s.setBit8(regLookup1, lookup1Aging, true)
}
