package ksz88xx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/portstate"
	"firestige.xyz/swctl/internal/regio"
	"firestige.xyz/swctl/internal/tailtag"
)

var testLayout = Layout{
	Name:         "ksz-test",
	ChipID:       0x88,
	Ports:        2,
	StaticSlots:  8,
	DynamicSlots: 1024,
	Dialect:      tailtag.KSZ8863,
	Indirect:     0x79,
}

func newTestSwitch(t *testing.T, l Layout) (*Switch, *Sim) {
	t.Helper()
	sim := NewSim(l)
	sw, err := New(l, sim, chip.Options{Poller: regio.Poller{MaxAttempts: 100}})
	require.NoError(t, err)
	return sw, sim
}

func mac(last byte) core.MAC {
	return core.MAC{0x02, 0x11, 0x22, 0x33, 0x44, last}
}

func TestIdentify(t *testing.T) {
	sw, sim := newTestSwitch(t, testLayout)
	ok, err := sw.Identify()
	require.NoError(t, err)
	assert.True(t, ok)

	sim.Set(regChipID0, 0x95)
	ok, err = sw.Identify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPortBits(t *testing.T) {
	sw, sim := newTestSwitch(t, testLayout)

	b, err := sw.ReadPortBits(1)
	require.NoError(t, err)
	assert.Equal(t, core.PortStateForwarding, portstate.Decode(b))

	sim.Set(portBase(2)+portCtrl2, 0x80|ctrl2Tx|ctrl2Rx)
	listening, _ := portstate.Encode(core.PortStateListening)
	require.NoError(t, sw.WritePortBits(2, listening))
	assert.Equal(t, uint32(0x80|ctrl2Rx|ctrl2LearnOff), sim.Get(portBase(2)+portCtrl2), "unrelated bits preserved")

	_, err = sw.ReadPortBits(3)
	assert.ErrorIs(t, err, core.ErrInvalidPort)
	assert.ErrorIs(t, sw.WritePortBits(0, listening), core.ErrInvalidPort)
}

func TestPortLink(t *testing.T) {
	sw, sim := newTestSwitch(t, testLayout)

	l, err := sw.PortLink(1)
	require.NoError(t, err)
	assert.Equal(t, core.LinkDown, l.State)

	sim.SetLink(1, core.PortLink{State: core.LinkUp, Speed: core.Speed100M, Duplex: core.DuplexFull})
	l, err = sw.PortLink(1)
	require.NoError(t, err)
	assert.Equal(t, core.PortLink{State: core.LinkUp, Speed: core.Speed100M, Duplex: core.DuplexFull}, l)

	host, err := sw.HostLink()
	require.NoError(t, err)
	assert.Equal(t, core.Speed100M, host.Speed)
}

func TestStaticTable(t *testing.T) {
	sw, sim := newTestSwitch(t, testLayout)
	db := sw.Database()

	e := core.FdbEntry{MAC: mac(1), DestPorts: core.MaskOf(2) | core.CPUPort, Override: true}
	require.NoError(t, db.AddStatic(e))

	recs := sim.StaticRecords()
	assert.Equal(t, StaticRecord{Valid: true, Override: true, Ports: 0x06, MAC: mac(1)}, recs[0])

	got, err := db.GetStatic(0)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = db.GetStatic(1)
	assert.ErrorIs(t, err, core.ErrInvalidEntry)

	require.NoError(t, db.DeleteStatic(mac(1)))
	entries, err := db.ListStatic()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStaticFlushProtocol(t *testing.T) {
	sw, sim := newTestSwitch(t, testLayout)
	db := sw.Database()
	for i := byte(0); i < 3; i++ {
		require.NoError(t, db.AddStatic(core.FdbEntry{MAC: mac(i), DestPorts: core.MaskOf(1)}))
	}
	before1 := sim.Get(portBase(1) + portCtrl2)
	before2 := sim.Get(portBase(2) + portCtrl2)

	require.NoError(t, db.FlushStatic())

	entries, err := db.ListStatic()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, before1, sim.Get(portBase(1)+portCtrl2))
	assert.Equal(t, before2, sim.Get(portBase(2)+portCtrl2))
	assert.Zero(t, sim.Get(regGlobal0), "trigger self-clears")
}

func TestDynamicTable(t *testing.T) {
	sw, sim := newTestSwitch(t, testLayout)
	db := sw.Database()

	_, err := db.GetDynamic(0)
	assert.ErrorIs(t, err, core.ErrEndOfTable)

	sim.Learn(mac(0xa0), 1)
	sim.Learn(mac(0xa1), 2)
	sim.Learn(mac(0xa2), 2)
	sim.SetNotReady(3)

	entries, err := db.ListDynamic(0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, core.FdbEntry{MAC: mac(0xa1), SrcPort: 2}, entries[1])

	require.NoError(t, db.FlushDynamic(2))
	entries, err = db.ListDynamic(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, mac(0xa0), entries[0].MAC)

	b, err := sw.ReadPortBits(2)
	require.NoError(t, err)
	assert.False(t, b.LearningDisable, "learning restored")

	require.NoError(t, db.FlushDynamic(0))
	entries, err = db.ListDynamic(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDynamicNotReadyTimeout(t *testing.T) {
	sim := NewSim(testLayout)
	sw, err := New(testLayout, sim, chip.Options{Poller: regio.Poller{MaxAttempts: 2}})
	require.NoError(t, err)
	sim.Learn(mac(1), 1)
	sim.SetNotReady(5)

	_, err = sw.Database().GetDynamic(0)
	assert.ErrorIs(t, err, core.ErrHardwareTimeout)
}

func TestManagement(t *testing.T) {
	sw, sim := newTestSwitch(t, testLayout)

	require.NoError(t, sw.SetIgmpSnooping(true))
	assert.Equal(t, uint32(global3Igmp), sim.Get(regGlobal3))
	require.NoError(t, sw.SetIgmpSnooping(false))
	assert.Zero(t, sim.Get(regGlobal3))

	assert.ErrorIs(t, sw.SetMldSnooping(true), core.ErrUnsupported)

	require.NoError(t, sw.SetUnknownMcastFwd(true, core.CPUPort))
	assert.Equal(t, uint32(unkFwdEnable|0x04), sim.Get(regUnkMcast))
	require.NoError(t, sw.SetUnknownUcastFwd(false, 0))
	assert.Zero(t, sim.Get(regUnkUcast))

	require.NoError(t, sw.SetAgingTime(0))
	assert.Zero(t, sim.Get(regGlobal1)&global1Aging)
	require.NoError(t, sw.SetAgingTime(AgingSeconds))
	assert.NotZero(t, sim.Get(regGlobal1)&global1Aging)
	assert.ErrorIs(t, sw.SetAgingTime(60), core.ErrUnsupported)

	require.NoError(t, sw.EnableTailTag(true))
	assert.NotZero(t, sim.Get(regGlobal1)&global1TailTag)
}

func TestMldWhenPresent(t *testing.T) {
	l := testLayout
	l.HasMLD = true
	sw, sim := newTestSwitch(t, l)
	require.NoError(t, sw.SetMldSnooping(true))
	assert.Equal(t, uint32(global12Mld), sim.Get(regGlobal12))
}

func TestRecordCodec(t *testing.T) {
	raw := EncodeStatic(StaticRecord{Valid: true, Ports: 0x05, MAC: core.MAC{1, 2, 3, 4, 5, 6}})
	assert.Equal(t, [StaticRecordLen]byte{0x00, 0x25, 1, 2, 3, 4, 5, 6}, raw)

	dyn := DecodeDynamic([DynamicRecordLen]byte{0x01, 0x03, 0x01, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	assert.Equal(t, DynamicRecord{
		Count: 0x104,
		Port:  2,
		MAC:   core.MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
	}, dyn)

	assert.Equal(t, dyn, DecodeDynamic(EncodeDynamic(dyn)))
	assert.True(t, DecodeDynamic(EncodeDynamic(DynamicRecord{Empty: true})).Empty)
}
