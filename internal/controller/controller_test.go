package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/swctl/internal/chip"
	"firestige.xyz/swctl/internal/chip/ksz8795"
	"firestige.xyz/swctl/internal/chip/ksz8863"
	"firestige.xyz/swctl/internal/chip/ksz88xx"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/eventbus"
	"firestige.xyz/swctl/internal/regio"
)

type mockHost struct {
	mock.Mock
}

func (m *mockHost) OnLinkChange(iface string, state core.LinkState) { m.Called(iface, state) }
func (m *mockHost) OnMacConfig(speed core.LinkSpeed, duplex core.DuplexMode) {
	m.Called(speed, duplex)
}
func (m *mockHost) ScheduleEvent() { m.Called() }

type memStore struct {
	mu      sync.Mutex
	entries []core.FdbEntry
	saves   int
	loadErr error
}

func (s *memStore) Load() ([]core.FdbEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.FdbEntry(nil), s.entries...), s.loadErr
}

func (s *memStore) Save(entries []core.FdbEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]core.FdbEntry(nil), entries...)
	s.saves++
	return nil
}

// spyChip wraps a chip to observe or delay identification.
type spyChip struct {
	chip.Chip
	misses     int
	identifies int
	tailTag    *bool
}

func (p *spyChip) Identify() (bool, error) {
	p.identifies++
	if p.misses > 0 {
		p.misses--
		return false, nil
	}
	return p.Chip.Identify()
}

func (p *spyChip) EnableTailTag(enable bool) error {
	p.tailTag = &enable
	return p.Chip.EnableTailTag(enable)
}

var (
	up100Full = core.PortLink{State: core.LinkUp, Speed: core.Speed100M, Duplex: core.DuplexFull}
	down      = core.PortLink{State: core.LinkDown}
	epoch     = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	sim    *ksz88xx.Sim
	chip   *spyChip
	host   *mockHost
	ctl    *Controller
	bus    *eventbus.InMemoryEventBus
	mu     sync.Mutex
	events []eventbus.LinkEvent
}

func newFixture(t *testing.T, sim *ksz88xx.Sim, newChip func(regio.RegisterPort, chip.Options, map[string]any) (chip.Chip, error), cfg Config, opts ...Option) *fixture {
	t.Helper()
	c, err := newChip(sim, chip.Options{Poller: regio.Poller{MaxAttempts: 20}}, nil)
	require.NoError(t, err)

	f := &fixture{sim: sim, chip: &spyChip{Chip: c}, host: &mockHost{}}
	f.bus = eventbus.NewInMemoryEventBus(1, 64)
	links := eventbus.NewLinkBus(f.bus)
	require.NoError(t, links.SubscribeLink(func(ev eventbus.LinkEvent) error {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
		return nil
	}))

	opts = append([]Option{WithLinkBus(links), WithClock(func() time.Time { return epoch })}, opts...)
	f.ctl, err = New(f.chip, f.host, cfg, opts...)
	require.NoError(t, err)
	return f
}

func newKSZ8795(t *testing.T, cfg Config, opts ...Option) *fixture {
	return newFixture(t, ksz8795.NewSim(), ksz8795.New, cfg, opts...)
}

func (f *fixture) init(t *testing.T) {
	t.Helper()
	f.host.On("ScheduleEvent").Return().Once()
	require.NoError(t, f.ctl.Init(context.Background()))
}

// drain closes the bus and returns every published link event.
func (f *fixture) drain(t *testing.T) []eventbus.LinkEvent {
	t.Helper()
	require.NoError(t, f.bus.Close())
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events
}

func TestNew_RejectsBadBindings(t *testing.T) {
	c, err := ksz8795.New(ksz8795.NewSim(), chip.Options{}, nil)
	require.NoError(t, err)

	_, err = New(c, nil, Config{Bindings: []VirtualPortBinding{{Port: 5, Interface: "lan5"}}})
	assert.ErrorIs(t, err, core.ErrInvalidPort)

	_, err = New(c, nil, Config{Bindings: []VirtualPortBinding{{Port: 1, Interface: "a"}, {Port: 1, Interface: "b"}}})
	assert.Error(t, err)

	ctl, err := New(c, nil, Config{})
	require.NoError(t, err)
	assert.Equal(t, "ksz8795", ctl.cfg.Interface)
	assert.Equal(t, StateUninitialized, ctl.State())
}

func TestInit_PortsForwarding(t *testing.T) {
	f := newKSZ8795(t, Config{Interface: "sw0", TailTag: true})
	f.init(t)

	assert.Equal(t, StateReady, f.ctl.State())
	require.NotNil(t, f.chip.tailTag)
	assert.True(t, *f.chip.tailTag)
	for p := core.PortID(1); p <= 4; p++ {
		s, err := f.ctl.GetPortState(p)
		require.NoError(t, err)
		assert.Equal(t, core.PortStateForwarding, s, "port %d", p)
	}
	f.host.AssertExpectations(t)
}

func TestInit_PortSeparationListening(t *testing.T) {
	f := newKSZ8795(t, Config{PortSeparation: true})
	f.init(t)

	for p := core.PortID(1); p <= 4; p++ {
		s, err := f.ctl.GetPortState(p)
		require.NoError(t, err)
		assert.Equal(t, core.PortStateListening, s)
	}
	require.NotNil(t, f.chip.tailTag)
	assert.False(t, *f.chip.tailTag)
}

func TestInit_WaitsForIdentification(t *testing.T) {
	f := newKSZ8795(t, Config{})
	f.chip.misses = 5
	f.init(t)
	assert.Equal(t, 6, f.chip.identifies)
}

func TestInit_WrongDevice(t *testing.T) {
	c, err := ksz8795.New(regio.NewSim(), chip.Options{}, nil)
	require.NoError(t, err)
	host := &mockHost{}
	ctl, err := New(c, host, Config{Poller: regio.Poller{MaxAttempts: 3}})
	require.NoError(t, err)

	err = ctl.Init(context.Background())
	assert.ErrorIs(t, err, core.ErrWrongDevice)
	assert.Equal(t, StateUninitialized, ctl.State())
	host.AssertNotCalled(t, "ScheduleEvent")

	assert.ErrorIs(t, ctl.Tick(), core.ErrNotReady)
}

func TestInit_Cancelled(t *testing.T) {
	c, err := ksz8795.New(regio.NewSim(), chip.Options{}, nil)
	require.NoError(t, err)
	ctl, err := New(c, nil, Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ctl.Init(ctx), context.Canceled)
}

func TestInit_BusFailureIsPermanent(t *testing.T) {
	f := newKSZ8795(t, Config{})
	boom := errors.New("spi: no ack")
	f.sim.FailWith(boom)

	err := f.ctl.Init(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.chip.identifies)
	assert.Equal(t, StateUninitialized, f.ctl.State())
}

// gatedChip does not identify until opened.
type gatedChip struct {
	chip.Chip
	open atomic.Bool
}

func (g *gatedChip) Identify() (bool, error) {
	if !g.open.Load() {
		return false, nil
	}
	return g.Chip.Identify()
}

func TestInit_StatusWhileIdentifying(t *testing.T) {
	c, err := ksz8795.New(ksz8795.NewSim(), chip.Options{Poller: regio.Poller{MaxAttempts: 20}}, nil)
	require.NoError(t, err)
	g := &gatedChip{Chip: c}
	host := &mockHost{}
	host.On("ScheduleEvent").Return().Once()
	wait := regio.Poller{BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}
	ctl, err := New(g, host, Config{TailTag: true, Poller: wait})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- ctl.Init(context.Background()) }()
	require.Eventually(t, func() bool { return ctl.State() == StateInitializing }, 2*time.Second, time.Millisecond)

	statusCh := make(chan Status, 1)
	go func() {
		st, err := ctl.Status()
		assert.NoError(t, err)
		statusCh <- st
	}()
	select {
	case st := <-statusCh:
		assert.Equal(t, "initializing", st.State)
		assert.Len(t, st.Ports, 4)
	case <-time.After(time.Second):
		t.Fatal("Status blocked while Init waits for identification")
	}

	assert.ErrorContains(t, ctl.Init(context.Background()), "in progress")
	assert.ErrorIs(t, ctl.Tick(), core.ErrNotReady)

	g.open.Store(true)
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Init did not finish after identification")
	}
	assert.Equal(t, StateReady, ctl.State())
	host.AssertExpectations(t)
}

func TestTick_NotReady(t *testing.T) {
	f := newKSZ8795(t, Config{})
	assert.ErrorIs(t, f.ctl.Tick(), core.ErrNotReady)
	assert.ErrorIs(t, f.ctl.EventHandler(), core.ErrNotReady)
}

func TestTick_AggregateLink(t *testing.T) {
	f := newKSZ8795(t, Config{Interface: "sw0"})
	f.init(t)

	// nothing changed since Init
	require.NoError(t, f.ctl.EventHandler())

	f.sim.SetLink(2, up100Full)
	f.host.On("OnMacConfig", core.Speed100M, core.DuplexFull).Return().Once()
	f.host.On("OnLinkChange", "sw0", core.LinkUp).Return().Once()
	require.NoError(t, f.ctl.Tick())
	require.NoError(t, f.ctl.Tick())
	f.host.AssertExpectations(t)

	// second port up: MAC reconfigured, aggregate unchanged
	f.sim.SetLink(3, core.PortLink{State: core.LinkUp, Speed: core.Speed10M, Duplex: core.DuplexHalf})
	f.host.On("OnMacConfig", core.Speed100M, core.DuplexFull).Return().Once()
	require.NoError(t, f.ctl.Tick())
	f.host.AssertExpectations(t)

	f.sim.SetLink(2, down)
	require.NoError(t, f.ctl.Tick())

	f.sim.SetLink(3, down)
	f.host.On("OnLinkChange", "sw0", core.LinkDown).Return().Once()
	require.NoError(t, f.ctl.Tick())
	require.NoError(t, f.ctl.Tick())
	f.host.AssertExpectations(t)
	f.host.AssertNumberOfCalls(t, "OnLinkChange", 2)
	f.host.AssertNumberOfCalls(t, "OnMacConfig", 2)

	events := f.drain(t)
	type key struct {
		port core.PortID
		up   bool
	}
	var got []key
	for _, ev := range events {
		assert.Equal(t, "sw0", ev.Interface)
		assert.Equal(t, epoch, ev.Time)
		got = append(got, key{ev.Port, ev.Up})
	}
	assert.Equal(t, []key{
		{2, true}, {0, true},
		{3, true},
		{2, false},
		{3, false}, {0, false},
	}, got)
	assert.Equal(t, core.Speed10M, events[2].Speed)
}

func TestEventHandler_PortSeparation(t *testing.T) {
	f := newKSZ8795(t, Config{
		Interface:      "sw0",
		PortSeparation: true,
		Bindings: []VirtualPortBinding{
			{Port: 1, Interface: "lan1"},
			{Port: 2, Interface: "lan2"},
		},
	})
	f.init(t)

	f.sim.SetLink(1, up100Full)
	f.sim.SetLink(2, up100Full)
	f.host.On("OnMacConfig", core.Speed100M, core.DuplexFull).Return().Once()
	f.host.On("OnLinkChange", "lan1", core.LinkUp).Return().Once()
	f.host.On("OnLinkChange", "lan2", core.LinkUp).Return().Once()
	require.NoError(t, f.ctl.EventHandler())
	f.host.AssertExpectations(t)

	// unbound port: MAC config only
	f.sim.SetLink(4, up100Full)
	f.host.On("OnMacConfig", core.Speed100M, core.DuplexFull).Return().Once()
	require.NoError(t, f.ctl.EventHandler())

	f.sim.SetLink(1, down)
	f.host.On("OnLinkChange", "lan1", core.LinkDown).Return().Once()
	require.NoError(t, f.ctl.EventHandler())
	require.NoError(t, f.ctl.EventHandler())

	f.host.AssertExpectations(t)
	f.host.AssertNumberOfCalls(t, "OnLinkChange", 3)
	f.host.AssertNotCalled(t, "OnLinkChange", "sw0", mock.Anything)

	st, err := f.ctl.Status()
	require.NoError(t, err)
	assert.Equal(t, "up", st.Link)
	assert.Equal(t, "lan2", st.Ports[1].Interface)
	assert.Equal(t, "up", st.Ports[1].Link)
	assert.Equal(t, "down", st.Ports[0].Link)
	assert.Equal(t, core.PortStateListening, st.Ports[0].State)
}

func TestTick_RegisterFailureRetriesTransition(t *testing.T) {
	f := newKSZ8795(t, Config{Interface: "sw0"})
	f.init(t)

	boom := errors.New("spi: timeout")
	f.sim.SetLink(1, up100Full)
	f.sim.FailWith(boom)
	assert.ErrorIs(t, f.ctl.Tick(), boom)

	f.sim.FailWith(nil)
	f.host.On("OnMacConfig", core.Speed100M, core.DuplexFull).Return().Once()
	f.host.On("OnLinkChange", "sw0", core.LinkUp).Return().Once()
	require.NoError(t, f.ctl.Tick())
	f.host.AssertExpectations(t)
}

func TestPortState(t *testing.T) {
	f := newKSZ8795(t, Config{})
	f.init(t)

	require.NoError(t, f.ctl.SetPortState(3, core.PortStateLearning))
	s, err := f.ctl.GetPortState(3)
	require.NoError(t, err)
	assert.Equal(t, core.PortStateLearning, s)

	require.NoError(t, f.ctl.SetPortState(3, core.PortStateDisabled))
	s, err = f.ctl.GetPortState(3)
	require.NoError(t, err)
	assert.Equal(t, core.PortStateDisabled, s)

	assert.ErrorIs(t, f.ctl.SetPortState(3, core.PortStateBlocking), core.ErrUnsupported)
	assert.ErrorIs(t, f.ctl.SetPortState(0, core.PortStateForwarding), core.ErrInvalidPort)
	assert.ErrorIs(t, f.ctl.SetPortState(5, core.PortStateForwarding), core.ErrInvalidPort)
	_, err = f.ctl.GetPortState(9)
	assert.ErrorIs(t, err, core.ErrInvalidPort)
}

func TestStatic_PersistAndReplay(t *testing.T) {
	configured := core.FdbEntry{MAC: core.MAC{0x02, 0, 0, 0, 0, 0x10}, DestPorts: core.MaskOf(1)}
	stored := core.FdbEntry{MAC: core.MAC{0x02, 0, 0, 0, 0, 0x20}, DestPorts: core.MaskOf(2, 3)}
	store := &memStore{entries: []core.FdbEntry{stored}}

	f := newKSZ8795(t, Config{StaticEntries: []core.FdbEntry{configured}}, WithStore(store))
	f.init(t)

	entries, err := f.ctl.ListStatic()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	added := core.FdbEntry{MAC: core.MAC{0x02, 0, 0, 0, 0, 0x01}, DestPorts: core.MaskOf(4) | core.CPUPort, Override: true}
	require.NoError(t, f.ctl.AddStaticEntry(added))
	require.Len(t, store.entries, 3)
	assert.Equal(t, added, store.entries[0])

	require.NoError(t, f.ctl.DeleteStaticEntry(stored.MAC))
	assert.Len(t, store.entries, 2)
	assert.ErrorIs(t, f.ctl.DeleteStaticEntry(stored.MAC), core.ErrNotFound)

	assert.ErrorIs(t, f.ctl.AddStaticEntry(core.FdbEntry{MAC: core.MAC{2}, DestPorts: core.MaskOf(6)}), core.ErrInvalidPort)

	saves := store.saves
	require.NoError(t, f.ctl.FlushStatic())
	assert.Equal(t, saves+1, store.saves)
	assert.Empty(t, store.entries)
	entries, err = f.ctl.ListStatic()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatic_ReplaySkipsTableFull(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 9; i++ {
		store.entries = append(store.entries, core.FdbEntry{MAC: core.MAC{0x02, 0, 0, 0, 1, byte(i)}, DestPorts: core.MaskOf(1)})
	}
	f := newFixture(t, ksz8863.NewSim(), ksz8863.New, Config{}, WithStore(store))
	f.init(t)

	entries, err := f.ctl.ListStatic()
	require.NoError(t, err)
	assert.Len(t, entries, 8)

	st, err := f.ctl.Status()
	require.NoError(t, err)
	assert.Equal(t, 8, st.Statics)
}

func TestStatic_StoreUnreadable(t *testing.T) {
	store := &memStore{loadErr: errors.New("corrupt")}
	f := newKSZ8795(t, Config{}, WithStore(store))
	f.init(t)
}

func TestDynamic(t *testing.T) {
	f := newKSZ8795(t, Config{})
	f.init(t)

	f.sim.Learn(core.MAC{0x02, 0, 0, 0, 0, 1}, 1)
	f.sim.Learn(core.MAC{0x02, 0, 0, 0, 0, 2}, 2)

	entries, err := f.ctl.ListDynamic(0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	e, err := f.ctl.GetDynamicEntry(0)
	require.NoError(t, err)
	assert.Equal(t, core.MAC{0x02, 0, 0, 0, 0, 1}, e.MAC)
	_, err = f.ctl.GetDynamicEntry(2)
	assert.ErrorIs(t, err, core.ErrEndOfTable)

	assert.ErrorIs(t, f.ctl.FlushDynamic(9), core.ErrInvalidPort)

	require.NoError(t, f.ctl.FlushDynamic(1))
	entries, err = f.ctl.ListDynamic(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.PortID(2), entries[0].SrcPort)

	s, err := f.ctl.GetPortState(1)
	require.NoError(t, err)
	assert.Equal(t, core.PortStateForwarding, s)

	require.NoError(t, f.ctl.FlushDynamic(0))
	entries, err = f.ctl.ListDynamic(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReservedMcast_Toggle(t *testing.T) {
	f := newKSZ8795(t, Config{})
	f.init(t)

	other := core.FdbEntry{MAC: core.MAC{0x02, 0xaa, 0, 0, 0, 1}, DestPorts: core.MaskOf(2)}
	require.NoError(t, f.ctl.AddStaticEntry(other))

	require.NoError(t, f.ctl.SetReservedMcast(true))
	assert.True(t, f.ctl.ReservedMcast())

	entries, err := f.ctl.ListStatic()
	require.NoError(t, err)
	require.Len(t, entries, 17)
	reserved := 0
	for _, e := range entries {
		if e.MAC == other.MAC {
			continue
		}
		assert.Equal(t, ReservedMcastMAC(reserved), e.MAC)
		assert.Equal(t, core.CPUPort, e.DestPorts)
		assert.True(t, e.Override)
		reserved++
	}
	assert.Equal(t, ReservedMcastCount, reserved)

	require.NoError(t, f.ctl.SetReservedMcast(false))
	assert.False(t, f.ctl.ReservedMcast())
	entries, err = f.ctl.ListStatic()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, other.MAC, entries[0].MAC)

	// disabling twice is harmless
	require.NoError(t, f.ctl.SetReservedMcast(false))
}

func TestReservedMcast_KeepsHostAuthoredAddress(t *testing.T) {
	store := &memStore{}
	f := newKSZ8795(t, Config{}, WithStore(store))
	f.init(t)

	mine := core.FdbEntry{MAC: ReservedMcastMAC(0x0e), DestPorts: core.MaskOf(1, 3)}
	require.NoError(t, f.ctl.AddStaticEntry(mine))

	require.NoError(t, f.ctl.SetReservedMcast(true))
	entries, err := f.ctl.ListStatic()
	require.NoError(t, err)
	require.Len(t, entries, ReservedMcastCount)
	for _, e := range entries {
		if e.MAC == mine.MAC {
			assert.Equal(t, mine.DestPorts, e.DestPorts, "host entry must not be overwritten")
			assert.False(t, e.Override)
		}
	}

	require.NoError(t, f.ctl.SetReservedMcast(false))
	entries, err = f.ctl.ListStatic()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, mine.MAC, entries[0].MAC)
	assert.Equal(t, []core.FdbEntry{mine}, store.entries)
}

func TestReservedMcast_RollbackOnTableFull(t *testing.T) {
	f := newFixture(t, ksz8863.NewSim(), ksz8863.New, Config{})
	f.init(t)

	other := core.FdbEntry{MAC: core.MAC{0x02, 0xaa, 0, 0, 0, 1}, DestPorts: core.MaskOf(1)}
	require.NoError(t, f.ctl.AddStaticEntry(other))

	err := f.ctl.SetReservedMcast(true)
	assert.ErrorIs(t, err, core.ErrTableFull)
	assert.False(t, f.ctl.ReservedMcast())

	entries, err := f.ctl.ListStatic()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, other.MAC, entries[0].MAC)
}

func TestManagement(t *testing.T) {
	f := newKSZ8795(t, Config{})
	f.init(t)

	require.NoError(t, f.ctl.SetIgmpSnooping(true))
	require.NoError(t, f.ctl.SetMldSnooping(true))
	require.NoError(t, f.ctl.SetUnknownMcastFwd(true, core.MaskOf(1)|core.CPUPort))
	require.NoError(t, f.ctl.SetUnknownUcastFwd(true, core.MaskOf(2)))
	assert.ErrorIs(t, f.ctl.SetUnknownUcastFwd(true, core.MaskOf(7)), core.ErrInvalidPort)
	assert.ErrorIs(t, f.ctl.SetAgingTime(120), core.ErrUnsupported)

	st, err := f.ctl.Status()
	require.NoError(t, err)
	assert.True(t, st.Mgmt.IgmpSnooping)
	assert.True(t, st.Mgmt.MldSnooping)
	assert.Equal(t, core.MaskOf(1)|core.CPUPort, st.Mgmt.UnknownMcastTo)
	assert.Equal(t, core.MaskOf(2), st.Mgmt.UnknownUcastTo)
	assert.Zero(t, st.Mgmt.AgingSeconds)

	g := newFixture(t, ksz8863.NewSim(), ksz8863.New, Config{})
	g.init(t)
	assert.ErrorIs(t, g.ctl.SetMldSnooping(true), core.ErrUnsupported)
}
