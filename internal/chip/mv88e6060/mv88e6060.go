// Package mv88e6060 drives the Marvell 88E6060 six-port switch over SMI.
// Physical ports 1 to 5 are switch ports 0 to 4; switch port 5 faces the
// host. The address translation unit (ATU) is a content addressed table
// holding both static and learned entries.
package mv88e6060

import (
	"fmt"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/fdb"
	"firestige.xyz/swctl/internal/portstate"
	"firestige.xyz/swctl/internal/regio"
	"firestige.xyz/swctl/internal/tailtag"
)

const Name = "mv88e6060"

const (
	numPorts  = 5
	cpuPort   = core.PortID(6)
	hwCPU     = 5
	atuSize   = 1024
	devPort0  = 0x08
	devGlobal = 0x0f

	regPortStatus  = 0x00
	regSwitchID    = 0x03
	regPortControl = 0x04
	regPAV         = 0x0b

	statusLink   = 1 << 12
	statusFull   = 1 << 9
	status100    = 1 << 8
	switchIDMask = 0xfff0
	switchID     = 0x0600

	ctrlState   = 0x0003
	ctrlFwdUnk  = 1 << 2
	ctrlTrailer = 1 << 14

	stateDisabled   = 0x0
	stateBlocking   = 0x1
	stateLearning   = 0x2
	stateForwarding = 0x3

	regGlobalStatus = 0x00
	regATUControl   = 0x0a
	regATUOp        = 0x0b
	regATUData      = 0x0c
	regATUMac01     = 0x0d
	regATUMac23     = 0x0e
	regATUMac45     = 0x0f

	globalATUFull = 1 << 3

	atuBusy       = 1 << 15
	atuOpShift    = 12
	atuFlushAll   = 0x1
	atuFlushDyn   = 0x2
	atuLoadPurge  = 0x3
	atuGetNext    = 0x4
	atuAgeShift   = 4
	atuAgeMask    = 0xff << atuAgeShift
	atuAgeUnit    = 16
	dataDPVShift  = 4
	dataDPVMask   = 0x3f
	dataState     = 0x0f
	stateStatic   = 0xe
	stateOverride = 0xf
	stateDynamic  = 0x7
)

func reg(dev, r uint8) uint32 {
	return uint32(dev)<<5 | uint32(r)
}

func portReg(hw int, r uint8) uint32 {
	return reg(devPort0+uint8(hw), r)
}

func globalReg(r uint8) uint32 {
	return reg(devGlobal, r)
}

func init() {
	chip.Register(chip.Driver{
		Name: Name,
		Bus:  chip.BusMDIO,
		MDIO: NewSMI,
		New:  New,
		Sim:  func() chip.Simulator { return NewSim() },
	})
}

// Switch is an 88E6060 bound to a register port.
type Switch struct {
	port   regio.RegisterPort
	poller regio.Poller
	db     *fdb.Database
}

// New binds an 88E6060 to port.
func New(port regio.RegisterPort, opts chip.Options, _ map[string]any) (chip.Chip, error) {
	s := &Switch{port: port, poller: opts.Poller}
	db, err := fdb.New(fdb.Config{
		Ports:       fdb.PortMap{Physical: numPorts, CPU: cpuPort},
		Control:     s,
		Flusher:     s,
		Addresses:   s,
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
		DynamicSlots: atuSize,
		TailTag:      tailtag.MV88E6060,
	}
}

func (s *Switch) Database() *fdb.Database { return s.db }

func (s *Switch) Identify() (bool, error) {
	v, err := s.port.Read16(portReg(0, regSwitchID))
	if err != nil {
		return false, err
	}
	return v&switchIDMask == switchID, nil
}

// EnableTailTag switches the ingress and egress trailer on the host port.
func (s *Switch) EnableTailTag(enable bool) error {
	if enable {
		return regio.Update16(s.port, portReg(hwCPU, regPortControl), 0, ctrlTrailer)
	}
	return regio.Update16(s.port, portReg(hwCPU, regPortControl), ctrlTrailer, 0)
}

func hwPort(p core.PortID) (int, error) {
	if p < 1 || p > numPorts {
		return 0, fmt.Errorf("%s port %d: %w", Name, p, core.ErrInvalidPort)
	}
	return int(p) - 1, nil
}

func (s *Switch) NumPorts() int { return numPorts }

// ReadPortBits derives the control triple from the STP state field and the
// port association vector, which is cleared while learning is off. A
// disabled port never learns, so its learning-disable bit always reads
// set.
func (s *Switch) ReadPortBits(p core.PortID) (portstate.Bits, error) {
	hw, err := hwPort(p)
	if err != nil {
		return portstate.Bits{}, err
	}
	ctrl, err := s.port.Read16(portReg(hw, regPortControl))
	if err != nil {
		return portstate.Bits{}, err
	}
	pav, err := s.port.Read16(portReg(hw, regPAV))
	if err != nil {
		return portstate.Bits{}, err
	}
	b := portstate.Bits{LearningDisable: pav&dataDPVMask == 0}
	switch ctrl & ctrlState {
	case stateDisabled:
		b.LearningDisable = true
	case stateBlocking:
		b.Receive = true
	case stateForwarding:
		b.Transmit, b.Receive = true, true
	}
	return b, nil
}

func (s *Switch) WritePortBits(p core.PortID, b portstate.Bits) error {
	hw, err := hwPort(p)
	if err != nil {
		return err
	}
	var state uint16
	switch {
	case b.Transmit && b.Receive:
		state = stateForwarding
	case b.Receive:
		state = stateBlocking
	case b.Transmit:
		return fmt.Errorf("%s port %d transmit without receive: %w", Name, p, core.ErrUnsupported)
	case b.LearningDisable:
		state = stateDisabled
	default:
		state = stateLearning
	}
	var pav uint16
	if !b.LearningDisable {
		pav = 1 << hw
	}
	if err := s.port.Write16(portReg(hw, regPAV), pav); err != nil {
		return err
	}
	return regio.Update16(s.port, portReg(hw, regPortControl), ctrlState, state)
}

func (s *Switch) readLink(hw int) (core.PortLink, error) {
	v, err := s.port.Read16(portReg(hw, regPortStatus))
	if err != nil {
		return core.PortLink{}, err
	}
	l := core.PortLink{State: core.LinkDown, Speed: core.Speed10M, Duplex: core.DuplexHalf}
	if v&statusLink != 0 {
		l.State = core.LinkUp
	}
	if v&status100 != 0 {
		l.Speed = core.Speed100M
	}
	if v&statusFull != 0 {
		l.Duplex = core.DuplexFull
	}
	return l, nil
}

func (s *Switch) PortLink(p core.PortID) (core.PortLink, error) {
	hw, err := hwPort(p)
	if err != nil {
		return core.PortLink{}, err
	}
	l, err := s.readLink(hw)
	if err != nil || l.State == core.LinkDown {
		return core.PortLink{State: core.LinkDown}, err
	}
	return l, nil
}

// HostLink reads the MII settings of switch port 5.
func (s *Switch) HostLink() (core.PortLink, error) {
	l, err := s.readLink(hwCPU)
	if err != nil {
		return core.PortLink{}, err
	}
	l.State = core.LinkUp
	return l, nil
}

func (s *Switch) atuOp(op uint16) error {
	if err := s.poller.WaitClear16(s.port, globalReg(regATUOp), atuBusy); err != nil {
		return err
	}
	if err := s.port.Write16(globalReg(regATUOp), atuBusy|op<<atuOpShift); err != nil {
		return err
	}
	return s.poller.WaitClear16(s.port, globalReg(regATUOp), atuBusy)
}

// TriggerFlush removes all entries for a static flush and all learned
// entries for a dynamic flush.
func (s *Switch) TriggerFlush(kind fdb.FlushKind) error {
	if kind == fdb.FlushStatic {
		return s.atuOp(atuFlushAll)
	}
	return s.atuOp(atuFlushDyn)
}

func (s *Switch) writeMAC(m core.MAC) error {
	for i, r := range []uint8{regATUMac01, regATUMac23, regATUMac45} {
		if err := s.port.Write16(globalReg(r), uint16(m[2*i])<<8|uint16(m[2*i+1])); err != nil {
			return err
		}
	}
	return nil
}

func (s *Switch) readMAC() (core.MAC, error) {
	var m core.MAC
	for i, r := range []uint8{regATUMac01, regATUMac23, regATUMac45} {
		v, err := s.port.Read16(globalReg(r))
		if err != nil {
			return m, err
		}
		m[2*i], m[2*i+1] = byte(v>>8), byte(v)
	}
	return m, nil
}

func (s *Switch) loadPurge(mac core.MAC, data uint16) error {
	if err := s.writeMAC(mac); err != nil {
		return err
	}
	if err := s.port.Write16(globalReg(regATUData), data); err != nil {
		return err
	}
	return s.atuOp(atuLoadPurge)
}

func (s *Switch) Load(r fdb.AddressRecord) error {
	state := uint16(stateDynamic)
	if r.Static {
		state = stateStatic
		if r.Override {
			state = stateOverride
		}
	}
	data := uint16(r.Ports&dataDPVMask)<<dataDPVShift | state
	if err := s.loadPurge(r.MAC, data); err != nil {
		return err
	}
	st, err := s.port.Read16(globalReg(regGlobalStatus))
	if err != nil {
		return err
	}
	if st&globalATUFull != 0 {
		return core.ErrTableFull
	}
	return nil
}

func (s *Switch) Purge(mac core.MAC) error {
	return s.loadPurge(mac, 0)
}

func (s *Switch) Next(cursor core.MAC) (fdb.AddressRecord, error) {
	if err := s.writeMAC(cursor); err != nil {
		return fdb.AddressRecord{}, err
	}
	if err := s.atuOp(atuGetNext); err != nil {
		return fdb.AddressRecord{}, err
	}
	data, err := s.port.Read16(globalReg(regATUData))
	if err != nil {
		return fdb.AddressRecord{}, err
	}
	mac, err := s.readMAC()
	if err != nil {
		return fdb.AddressRecord{}, err
	}
	state := data & dataState
	return fdb.AddressRecord{
		Valid:    state != 0,
		Static:   state == stateStatic || state == stateOverride,
		Override: state == stateOverride,
		MAC:      mac,
		Ports:    uint32(data>>dataDPVShift) & dataDPVMask,
	}, nil
}

func (s *Switch) SetIgmpSnooping(bool) error {
	return fmt.Errorf("%s igmp snooping: %w", Name, core.ErrUnsupported)
}

func (s *Switch) SetMldSnooping(bool) error {
	return fmt.Errorf("%s mld snooping: %w", Name, core.ErrUnsupported)
}

func (s *Switch) SetUnknownMcastFwd(bool, core.PortMask) error {
	return fmt.Errorf("%s unknown multicast forwarding: %w", Name, core.ErrUnsupported)
}

// SetUnknownUcastFwd sets the forward-unknown bit on the ports in the
// mask and clears it on every other port.
func (s *Switch) SetUnknownUcastFwd(enable bool, ports core.PortMask) error {
	hw := s.db.PortMap().ToHardware(ports)
	for i := 0; i <= hwCPU; i++ {
		var set, clr uint16
		if enable && hw&(1<<i) != 0 {
			set = ctrlFwdUnk
		} else {
			clr = ctrlFwdUnk
		}
		if err := regio.Update16(s.port, portReg(i, regPortControl), clr, set); err != nil {
			return err
		}
	}
	return nil
}

// SetAgingTime programs the ATU age time, rounded to its 16 second
// granularity. Zero turns aging off.
func (s *Switch) SetAgingTime(seconds int) error {
	units := (seconds + atuAgeUnit/2) / atuAgeUnit
	if seconds > 0 && units == 0 {
		units = 1
	}
	if seconds < 0 || units > 0xff {
		return fmt.Errorf("%s aging time %ds: %w", Name, seconds, core.ErrUnsupported)
	}
	return regio.Update16(s.port, globalReg(regATUControl), atuAgeMask, uint16(units)<<atuAgeShift)
}
