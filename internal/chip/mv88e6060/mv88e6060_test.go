package mv88e6060

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/portstate"
	"firestige.xyz/swctl/internal/regio"
)

func newTestChip(t *testing.T) (chip.Chip, *Sim) {
	t.Helper()
	sim := NewSim()
	c, err := New(sim, chip.Options{Poller: regio.Poller{MaxAttempts: 10}}, nil)
	require.NoError(t, err)
	return c, sim
}

func TestIdentify(t *testing.T) {
	c, sim := newTestChip(t)
	ok, err := c.Identify()
	require.NoError(t, err)
	assert.True(t, ok)

	sim.Set(portReg(0, regSwitchID), 0x1a52)
	ok, err = c.Identify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPortStates(t *testing.T) {
	c, sim := newTestChip(t)

	for _, st := range []core.PortState{
		core.PortStateDisabled,
		core.PortStateListening,
		core.PortStateLearning,
		core.PortStateForwarding,
	} {
		b, err := portstate.Encode(st)
		require.NoError(t, err)
		require.NoError(t, c.WritePortBits(3, b))
		got, err := c.ReadPortBits(3)
		require.NoError(t, err)
		assert.Equal(t, st, portstate.Decode(got), st.String())
	}

	listening, _ := portstate.Encode(core.PortStateListening)
	require.NoError(t, c.WritePortBits(1, listening))
	assert.Equal(t, uint32(stateBlocking), sim.Get(portReg(0, regPortControl))&ctrlState)
	assert.Zero(t, sim.Get(portReg(0, regPAV)))

	err := c.WritePortBits(1, portstate.Bits{Transmit: true})
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.ErrorIs(t, c.WritePortBits(6, listening), core.ErrInvalidPort)
}

func TestLinks(t *testing.T) {
	c, sim := newTestChip(t)
	sim.SetLink(5, core.PortLink{State: core.LinkUp, Speed: core.Speed100M, Duplex: core.DuplexHalf})

	l, err := c.PortLink(5)
	require.NoError(t, err)
	assert.Equal(t, core.PortLink{State: core.LinkUp, Speed: core.Speed100M, Duplex: core.DuplexHalf}, l)

	l, err = c.PortLink(2)
	require.NoError(t, err)
	assert.Equal(t, core.PortLink{State: core.LinkDown}, l)

	host, err := c.HostLink()
	require.NoError(t, err)
	assert.Equal(t, core.PortLink{State: core.LinkUp, Speed: core.Speed100M, Duplex: core.DuplexFull}, host)
}

func TestATUStaticAndDynamic(t *testing.T) {
	c, sim := newTestChip(t)
	db := c.Database()

	sim.Learn(core.MAC{0, 1, 2, 3, 4, 5}, 4)
	rsvd := core.FdbEntry{MAC: core.MAC{0x01, 0x80, 0xc2, 0, 0, 0}, DestPorts: core.CPUPort, Override: true}
	require.NoError(t, db.AddStatic(rsvd))
	require.NoError(t, db.AddStatic(core.FdbEntry{MAC: core.MAC{2, 0, 0, 0, 0, 1}, DestPorts: core.MaskOf(1, 2)}))

	statics, err := db.ListStatic()
	require.NoError(t, err)
	require.Len(t, statics, 2)
	assert.Equal(t, rsvd, statics[0])

	dyn, err := db.ListDynamic(0)
	require.NoError(t, err)
	require.Len(t, dyn, 1)
	assert.Equal(t, core.PortID(4), dyn[0].SrcPort)

	require.NoError(t, db.DeleteStatic(rsvd.MAC))
	assert.ErrorIs(t, db.DeleteStatic(rsvd.MAC), core.ErrNotFound)
	assert.ErrorIs(t, db.DeleteStatic(core.MAC{0, 1, 2, 3, 4, 5}), core.ErrNotFound)

	require.NoError(t, db.FlushDynamic(4))
	dyn, err = db.ListDynamic(0)
	require.NoError(t, err)
	assert.Empty(t, dyn)

	b, err := c.ReadPortBits(4)
	require.NoError(t, err)
	assert.Equal(t, core.PortStateForwarding, portstate.Decode(b))

	require.NoError(t, db.FlushStatic())
	assert.Zero(t, sim.Len())
}

func TestATUFull(t *testing.T) {
	c, sim := newTestChip(t)
	sim.Capacity = 2
	db := c.Database()

	require.NoError(t, db.AddStatic(core.FdbEntry{MAC: core.MAC{2, 0, 0, 0, 0, 1}, DestPorts: core.MaskOf(1)}))
	require.NoError(t, db.AddStatic(core.FdbEntry{MAC: core.MAC{2, 0, 0, 0, 0, 2}, DestPorts: core.MaskOf(1)}))
	assert.ErrorIs(t, db.AddStatic(core.FdbEntry{MAC: core.MAC{2, 0, 0, 0, 0, 3}}), core.ErrTableFull)
	assert.NoError(t, db.AddStatic(core.FdbEntry{MAC: core.MAC{2, 0, 0, 0, 0, 2}, DestPorts: core.MaskOf(2)}))
}

func TestManagement(t *testing.T) {
	c, sim := newTestChip(t)

	assert.ErrorIs(t, c.SetIgmpSnooping(true), core.ErrUnsupported)
	assert.ErrorIs(t, c.SetMldSnooping(true), core.ErrUnsupported)
	assert.ErrorIs(t, c.SetUnknownMcastFwd(true, core.CPUPort), core.ErrUnsupported)

	require.NoError(t, c.SetUnknownUcastFwd(true, core.MaskOf(2)|core.CPUPort))
	assert.NotZero(t, sim.Get(portReg(1, regPortControl))&ctrlFwdUnk)
	assert.NotZero(t, sim.Get(portReg(hwCPU, regPortControl))&ctrlFwdUnk)
	assert.Zero(t, sim.Get(portReg(0, regPortControl))&ctrlFwdUnk)

	require.NoError(t, c.SetAgingTime(160))
	assert.Equal(t, uint32(10<<atuAgeShift), sim.Get(globalReg(regATUControl)))
	require.NoError(t, c.SetAgingTime(3))
	assert.Equal(t, uint32(1<<atuAgeShift), sim.Get(globalReg(regATUControl)))
	assert.ErrorIs(t, c.SetAgingTime(5000), core.ErrUnsupported)

	require.NoError(t, c.EnableTailTag(true))
	assert.NotZero(t, sim.Get(portReg(hwCPU, regPortControl))&ctrlTrailer)
}

type fakeSMI struct {
	regs map[[2]uint8]uint16
}

func (f *fakeSMI) ReadPHY(phy, r uint8) (uint16, error) { return f.regs[[2]uint8{phy, r}], nil }

func (f *fakeSMI) WritePHY(phy, r uint8, v uint16) error {
	f.regs[[2]uint8{phy, r}] = v
	return nil
}

func (f *fakeSMI) Close() error { return nil }

func TestSMIAddressing(t *testing.T) {
	bus := &fakeSMI{regs: map[[2]uint8]uint16{{0x08, 0x03}: 0x0601}}
	port := NewSMI(bus)

	v, err := port.Read16(portReg(0, regSwitchID))
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0601), v)

	require.NoError(t, port.Write16(globalReg(regATUOp), 0xc000))
	assert.Equal(t, uint16(0xc000), bus.regs[[2]uint8{0x0f, 0x0b}])

	_, err = port.Read32(0)
	assert.ErrorIs(t, err, core.ErrUnsupported)
}
