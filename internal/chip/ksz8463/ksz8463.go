// Package ksz8463 drives the KSZ8463 three-port switch. Registers are 16
// bits wide; the address tables are reached through the IACR indirect
// access register and five 16-bit data registers that hold the same
// record layout as the 8-bit KSZ models.
package ksz8463

import (
	"fmt"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/chip/ksz88xx"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/fdb"
	"firestige.xyz/swctl/internal/portstate"
	"firestige.xyz/swctl/internal/regio"
	"firestige.xyz/swctl/internal/tailtag"
)

const Name = "ksz8463"

const (
	numPorts     = 2
	cpuPort      = core.PortID(3)
	staticSlots  = 8
	dynamicSlots = 1024

	regCIDER = 0x000
	regSGCR1 = 0x002
	regSGCR3 = 0x006
	regSGCR7 = 0x00e
	regIACR  = 0x030
	regIADR1 = 0x032

	cidMask   = 0xfff0
	cidFamily = 0x8450

	sgcr1FlushDynamic = 0x0020
	sgcr1FlushStatic  = 0x0010
	sgcr1Aging        = 0x0400
	sgcr3TailTag      = 0x0100
	sgcr3Igmp         = 0x4000

	sgcr7UcastEnable = 0x0080
	sgcr7McastEnable = 0x8000

	iacrRead    = 0x1000
	iacrStatic  = 0x0000
	iacrDynamic = 0x0800
	iacrTable   = 0x0c00
	iacrIndex   = 0x03ff

	ctrl2Tx       = 0x0004
	ctrl2Rx       = 0x0002
	ctrl2LearnOff = 0x0001
	statusLink    = 0x0020
	statusSpeed   = 0x0200
	statusFull    = 0x0400

	// iadrLen is the size of the indirect data window in bytes.
	iadrLen = 10
)

var (
	portCtrl2  = [...]uint32{1: 0x06e, 2: 0x08a}
	portStatus = [...]uint32{1: 0x080, 2: 0x09c}
)

func init() {
	chip.Register(chip.Driver{
		Name: Name,
		Bus:  chip.BusSPI,
		SPI:  NewSPI,
		New:  New,
		Sim:  func() chip.Simulator { return NewSim() },
	})
}

// Switch is a KSZ8463 bound to a register port.
type Switch struct {
	port regio.RegisterPort
	opts chip.Options
	db   *fdb.Database
}

// New binds a KSZ8463 to port.
func New(port regio.RegisterPort, opts chip.Options, _ map[string]any) (chip.Chip, error) {
	s := &Switch{port: port, opts: opts}
	db, err := fdb.New(fdb.Config{
		Ports:       fdb.PortMap{Physical: numPorts, CPU: cpuPort},
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
		Name:         Name,
		Ports:        numPorts,
		CPU:          cpuPort,
		StaticSlots:  staticSlots,
		DynamicSlots: dynamicSlots,
		TailTag:      tailtag.KSZ8463,
		AgingFixed:   ksz88xx.AgingSeconds,
	}
}

func (s *Switch) Database() *fdb.Database { return s.db }

func (s *Switch) Identify() (bool, error) {
	v, err := s.port.Read16(regCIDER)
	if err != nil {
		return false, err
	}
	return v&cidMask == cidFamily, nil
}

func (s *Switch) setBit(addr uint32, bit uint16, on bool) error {
	if on {
		return regio.Update16(s.port, addr, 0, bit)
	}
	return regio.Update16(s.port, addr, bit, 0)
}

func (s *Switch) EnableTailTag(enable bool) error {
	return s.setBit(regSGCR3, sgcr3TailTag, enable)
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
	v, err := s.port.Read16(portCtrl2[p])
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
	if err := checkPort(p); err != nil {
		return err
	}
	var set uint16
	if b.Transmit {
		set |= ctrl2Tx
	}
	if b.Receive {
		set |= ctrl2Rx
	}
	if b.LearningDisable {
		set |= ctrl2LearnOff
	}
	return regio.Update16(s.port, portCtrl2[p], ctrl2Tx|ctrl2Rx|ctrl2LearnOff, set)
}

func (s *Switch) PortLink(p core.PortID) (core.PortLink, error) {
	if err := checkPort(p); err != nil {
		return core.PortLink{}, err
	}
	v, err := s.port.Read16(portStatus[p])
	if err != nil {
		return core.PortLink{}, err
	}
	if v&statusLink == 0 {
		return core.PortLink{State: core.LinkDown}, nil
	}
	l := core.PortLink{State: core.LinkUp, Speed: core.Speed10M, Duplex: core.DuplexHalf}
	if v&statusSpeed != 0 {
		l.Speed = core.Speed100M
	}
	if v&statusFull != 0 {
		l.Duplex = core.DuplexFull
	}
	return l, nil
}

func (s *Switch) HostLink() (core.PortLink, error) {
	return s.opts.StrappedHostLink(), nil
}

func (s *Switch) TriggerFlush(kind fdb.FlushKind) error {
	bit := uint16(sgcr1FlushStatic)
	if kind == fdb.FlushDynamic {
		bit = sgcr1FlushDynamic
	}
	if err := regio.Update16(s.port, regSGCR1, 0, bit); err != nil {
		return err
	}
	return s.opts.Poller.WaitClear16(s.port, regSGCR1, bit)
}

func (s *Switch) Slots() int        { return staticSlots }
func (s *Switch) DynamicSlots() int { return dynamicSlots }

func (s *Switch) readWindow(table uint16, index int) ([iadrLen]byte, error) {
	var b [iadrLen]byte
	if err := s.port.Write16(regIACR, iacrRead|table|uint16(index)&iacrIndex); err != nil {
		return b, err
	}
	for i := 0; i < iadrLen/2; i++ {
		v, err := s.port.Read16(regIADR1 + uint32(2*i))
		if err != nil {
			return b, err
		}
		b[2*i], b[2*i+1] = byte(v>>8), byte(v)
	}
	return b, nil
}

func (s *Switch) ReadSlot(i int) (fdb.StaticRecord, error) {
	b, err := s.readWindow(iacrStatic, i)
	if err != nil {
		return fdb.StaticRecord{}, err
	}
	var raw [ksz88xx.StaticRecordLen]byte
	copy(raw[:], b[iadrLen-ksz88xx.StaticRecordLen:])
	r := ksz88xx.DecodeStatic(raw)
	return fdb.StaticRecord{Valid: r.Valid, Override: r.Override, MAC: r.MAC, Ports: uint32(r.Ports)}, nil
}

func (s *Switch) WriteSlot(i int, r fdb.StaticRecord) error {
	raw := ksz88xx.EncodeStatic(ksz88xx.StaticRecord{Valid: r.Valid, Override: r.Override, MAC: r.MAC, Ports: uint8(r.Ports)})
	var b [iadrLen]byte
	copy(b[iadrLen-ksz88xx.StaticRecordLen:], raw[:])
	for i := 0; i < iadrLen/2; i++ {
		if err := s.port.Write16(regIADR1+uint32(2*i), uint16(b[2*i])<<8|uint16(b[2*i+1])); err != nil {
			return err
		}
	}
	return s.port.Write16(regIACR, iacrStatic|uint16(i)&iacrIndex)
}

func (s *Switch) ReadDynamic(i int) (fdb.DynamicRecord, error) {
	b, err := s.readWindow(iacrDynamic, i)
	if err != nil {
		return fdb.DynamicRecord{}, err
	}
	var raw [ksz88xx.DynamicRecordLen]byte
	copy(raw[:], b[iadrLen-ksz88xx.DynamicRecordLen:])
	r := ksz88xx.DecodeDynamic(raw)
	return fdb.DynamicRecord{NotReady: r.NotReady, Empty: r.Empty, Count: r.Count, MAC: r.MAC, Port: r.Port}, nil
}

func (s *Switch) SetIgmpSnooping(enable bool) error {
	return s.setBit(regSGCR3, sgcr3Igmp, enable)
}

func (s *Switch) SetMldSnooping(bool) error {
	return fmt.Errorf("%s mld snooping: %w", Name, core.ErrUnsupported)
}

func (s *Switch) SetUnknownUcastFwd(enable bool, ports core.PortMask) error {
	v := uint16(s.db.PortMap().ToHardware(ports))
	if enable {
		v |= sgcr7UcastEnable
	}
	return regio.Update16(s.port, regSGCR7, sgcr7UcastEnable|0x0007, v)
}

func (s *Switch) SetUnknownMcastFwd(enable bool, ports core.PortMask) error {
	v := uint16(s.db.PortMap().ToHardware(ports)) << 8
	if enable {
		v |= sgcr7McastEnable
	}
	return regio.Update16(s.port, regSGCR7, sgcr7McastEnable|0x0700, v)
}

func (s *Switch) SetAgingTime(seconds int) error {
	switch seconds {
	case 0:
		return s.setBit(regSGCR1, sgcr1Aging, false)
	case ksz88xx.AgingSeconds:
		return s.setBit(regSGCR1, sgcr1Aging, true)
	}
	return fmt.Errorf("%s aging time %ds: %w", Name, seconds, core.ErrUnsupported)
}
