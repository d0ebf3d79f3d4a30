package ksz88xx

import (
	"fmt"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/fdb"
	"firestige.xyz/swctl/internal/portstate"
	"firestige.xyz/swctl/internal/regio"
)

// Switch drives one 8-bit KSZ switch.
type Switch struct {
	l    Layout
	port regio.RegisterPort
	opts chip.Options
	db   *fdb.Database
}

// New binds a switch of layout l to port.
func New(l Layout, port regio.RegisterPort, opts chip.Options) (*Switch, error) {
	s := &Switch{l: l, port: port, opts: opts}
	db, err := fdb.New(fdb.Config{
		Ports:       fdb.PortMap{Physical: l.Ports, CPU: l.cpu()},
		Control:     s,
		Flusher:     s,
		Slots:       s,
		Dynamic:     s,
		StaticFlush: fdb.FlushByLearning,
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
		Name:         s.l.Name,
		Ports:        s.l.Ports,
		CPU:          s.l.cpu(),
		StaticSlots:  s.l.StaticSlots,
		DynamicSlots: s.l.DynamicSlots,
		TailTag:      s.l.Dialect,
		AgingFixed:   AgingSeconds,
	}
}

func (s *Switch) Database() *fdb.Database { return s.db }

func (s *Switch) Identify() (bool, error) {
	v, err := s.port.Read8(regChipID0)
	if err != nil {
		return false, err
	}
	return v == s.l.ChipID, nil
}

func (s *Switch) EnableTailTag(enable bool) error {
	return s.setBit(regGlobal1, global1TailTag, enable)
}

func (s *Switch) setBit(addr uint32, bit uint8, on bool) error {
	if on {
		return regio.Update8(s.port, addr, 0, bit)
	}
	return regio.Update8(s.port, addr, bit, 0)
}

func (s *Switch) checkPort(p core.PortID) error {
	if p < 1 || int(p) > s.l.Ports {
		return fmt.Errorf("%s port %d: %w", s.l.Name, p, core.ErrInvalidPort)
	}
	return nil
}

func (s *Switch) NumPorts() int { return s.l.Ports }

func (s *Switch) ReadPortBits(p core.PortID) (portstate.Bits, error) {
	if err := s.checkPort(p); err != nil {
		return portstate.Bits{}, err
	}
	v, err := s.port.Read8(portBase(p) + portCtrl2)
	if err != nil {
		return portstate.Bits{}, err
	}
	return portstate.Bits{
		Transmit:        v&ctrl2Tx != 0,
		Receive:         v&ctrl2Rx != 0,
		LearningDisable: v&ctrl2LearnOff != 0,
	}, nil
}

func (s *Switch) WritePortBits(p core.PortID, b portstate.Bits) error {
	if err := s.checkPort(p); err != nil {
		return err
	}
	var set uint8
	if b.Transmit {
		set |= ctrl2Tx
	}
	if b.Receive {
		set |= ctrl2Rx
	}
	if b.LearningDisable {
		set |= ctrl2LearnOff
	}
	return regio.Update8(s.port, portBase(p)+portCtrl2, ctrl2Tx|ctrl2Rx|ctrl2LearnOff, set)
}

func (s *Switch) PortLink(p core.PortID) (core.PortLink, error) {
	if err := s.checkPort(p); err != nil {
		return core.PortLink{}, err
	}
	st0, err := s.port.Read8(portBase(p) + portStatus0)
	if err != nil {
		return core.PortLink{}, err
	}
	if st0&status0Link == 0 {
		return core.PortLink{State: core.LinkDown}, nil
	}
	st1, err := s.port.Read8(portBase(p) + portStatus1)
	if err != nil {
		return core.PortLink{}, err
	}
	l := core.PortLink{State: core.LinkUp, Speed: core.Speed10M, Duplex: core.DuplexHalf}
	if st1&status1Speed != 0 {
		l.Speed = core.Speed100M
	}
	if st1&status1Full != 0 {
		l.Duplex = core.DuplexFull
	}
	return l, nil
}

// HostLink returns the strapped MII settings of the CPU port.
func (s *Switch) HostLink() (core.PortLink, error) {
	return s.opts.StrappedHostLink(), nil
}

func (s *Switch) TriggerFlush(kind fdb.FlushKind) error {
	bit := uint8(global0FlushStatic)
	if kind == fdb.FlushDynamic {
		bit = global0FlushDynamic
	}
	if err := regio.Update8(s.port, regGlobal0, 0, bit); err != nil {
		return err
	}
	return s.opts.Poller.WaitClear8(s.port, regGlobal0, bit)
}

func (s *Switch) Slots() int        { return s.l.StaticSlots }
func (s *Switch) DynamicSlots() int { return s.l.DynamicSlots }

func (s *Switch) selectEntry(read bool, table uint8, index int) error {
	c0 := table | uint8(index>>8)&0x03
	if read {
		c0 |= indirectRead
	}
	if err := s.port.Write8(s.l.Indirect, c0); err != nil {
		return err
	}
	return s.port.Write8(s.l.ctrl1(), uint8(index))
}

func (s *Switch) ReadSlot(i int) (fdb.StaticRecord, error) {
	if err := s.selectEntry(true, indirectStatic, i); err != nil {
		return fdb.StaticRecord{}, err
	}
	var raw [StaticRecordLen]byte
	for n := 7; n >= 0; n-- {
		v, err := s.port.Read8(s.l.data(n))
		if err != nil {
			return fdb.StaticRecord{}, err
		}
		raw[7-n] = v
	}
	r := DecodeStatic(raw)
	return fdb.StaticRecord{Valid: r.Valid, Override: r.Override, MAC: r.MAC, Ports: uint32(r.Ports)}, nil
}

func (s *Switch) WriteSlot(i int, r fdb.StaticRecord) error {
	raw := EncodeStatic(StaticRecord{Valid: r.Valid, Override: r.Override, MAC: r.MAC, Ports: uint8(r.Ports)})
	for n := 7; n >= 0; n-- {
		if err := s.port.Write8(s.l.data(n), raw[7-n]); err != nil {
			return err
		}
	}
	return s.selectEntry(false, indirectStatic, i)
}

func (s *Switch) ReadDynamic(i int) (fdb.DynamicRecord, error) {
	if err := s.selectEntry(true, indirectDynamic, i); err != nil {
		return fdb.DynamicRecord{}, err
	}
	var raw [DynamicRecordLen]byte
	for n := 8; n >= 0; n-- {
		v, err := s.port.Read8(s.l.data(n))
		if err != nil {
			return fdb.DynamicRecord{}, err
		}
		raw[8-n] = v
	}
	r := DecodeDynamic(raw)
	return fdb.DynamicRecord{NotReady: r.NotReady, Empty: r.Empty, Count: r.Count, MAC: r.MAC, Port: r.Port}, nil
}

func (s *Switch) SetIgmpSnooping(enable bool) error {
	return s.setBit(regGlobal3, global3Igmp, enable)
}

func (s *Switch) SetMldSnooping(enable bool) error {
	if !s.l.HasMLD {
		return fmt.Errorf("%s mld snooping: %w", s.l.Name, core.ErrUnsupported)
	}
	return s.setBit(regGlobal12, global12Mld, enable)
}

func (s *Switch) unknownFwd(addr uint32, enable bool, ports core.PortMask) error {
	v := uint8(s.db.PortMap().ToHardware(ports)) & staticPorts
	if enable {
		v |= unkFwdEnable
	}
	return s.port.Write8(addr, v)
}

func (s *Switch) SetUnknownMcastFwd(enable bool, ports core.PortMask) error {
	return s.unknownFwd(regUnkMcast, enable, ports)
}

func (s *Switch) SetUnknownUcastFwd(enable bool, ports core.PortMask) error {
	return s.unknownFwd(regUnkUcast, enable, ports)
}

// SetAgingTime only switches the fixed-period aging on (AgingSeconds) or
// off (0).
func (s *Switch) SetAgingTime(seconds int) error {
	switch seconds {
	case 0:
		return s.setBit(regGlobal1, global1Aging, false)
	case AgingSeconds:
		return s.setBit(regGlobal1, global1Aging, true)
	default:
		return fmt.Errorf("%s aging time %ds: %w", s.l.Name, seconds, core.ErrUnsupported)
	}
}

var _ chip.Chip = (*Switch)(nil)
