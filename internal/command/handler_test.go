package command

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/swctl/internal/controller"
	"firestige.xyz/swctl/internal/core"
)

type mockSwitch struct {
	mock.Mock
}

func (m *mockSwitch) Status() (controller.Status, error) {
	args := m.Called()
	return args.Get(0).(controller.Status), args.Error(1)
}

func (m *mockSwitch) GetPortState(p core.PortID) (core.PortState, error) {
	args := m.Called(p)
	return args.Get(0).(core.PortState), args.Error(1)
}

func (m *mockSwitch) SetPortState(p core.PortID, s core.PortState) error {
	return m.Called(p, s).Error(0)
}

func (m *mockSwitch) AddStaticEntry(e core.FdbEntry) error { return m.Called(e).Error(0) }
func (m *mockSwitch) DeleteStaticEntry(mac core.MAC) error { return m.Called(mac).Error(0) }

func (m *mockSwitch) ListStatic() ([]core.FdbEntry, error) {
	args := m.Called()
	entries, _ := args.Get(0).([]core.FdbEntry)
	return entries, args.Error(1)
}

func (m *mockSwitch) FlushStatic() error { return m.Called().Error(0) }

func (m *mockSwitch) ListDynamic(limit int) ([]core.FdbEntry, error) {
	args := m.Called(limit)
	entries, _ := args.Get(0).([]core.FdbEntry)
	return entries, args.Error(1)
}

func (m *mockSwitch) FlushDynamic(p core.PortID) error   { return m.Called(p).Error(0) }
func (m *mockSwitch) SetIgmpSnooping(enable bool) error  { return m.Called(enable).Error(0) }
func (m *mockSwitch) SetMldSnooping(enable bool) error   { return m.Called(enable).Error(0) }
func (m *mockSwitch) SetAgingTime(seconds int) error     { return m.Called(seconds).Error(0) }
func (m *mockSwitch) SetReservedMcast(enable bool) error { return m.Called(enable).Error(0) }
func (m *mockSwitch) SetUnknownMcastFwd(enable bool, ports core.PortMask) error {
	return m.Called(enable, ports).Error(0)
}
func (m *mockSwitch) SetUnknownUcastFwd(enable bool, ports core.PortMask) error {
	return m.Called(enable, ports).Error(0)
}

func call(t *testing.T, h *CommandHandler, method, params string) Response {
	t.Helper()
	cmd := Command{Method: method, ID: "1"}
	if params != "" {
		cmd.Params = json.RawMessage(params)
	}
	return h.Handle(context.Background(), cmd)
}

var testMAC = core.MAC{0x01, 0x00, 0x5e, 0x00, 0x00, 0xfb}

func TestHandle_UnknownMethod(t *testing.T) {
	h := NewCommandHandler(&mockSwitch{}, "test")
	resp := call(t, h, "task_create", "")
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "1", resp.ID)
}

func TestHandle_InvalidParams(t *testing.T) {
	h := NewCommandHandler(&mockSwitch{}, "test")

	for _, tc := range []struct{ method, params string }{
		{MethodPortSet, `{"port": 1, "state": "sleeping"}`},
		{MethodFdbAdd, `{"mac": "zz", "ports": "1"}`},
		{MethodFdbAdd, `{"mac": "01:00:5e:00:00:fb", "ports": "1,x"}`},
		{MethodMgmtAging, `{"seconds": "long"}`},
	} {
		t.Run(tc.method, func(t *testing.T) {
			resp := call(t, h, tc.method, tc.params)
			require.NotNil(t, resp.Error)
			assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
		})
	}
}

func TestHandle_Port(t *testing.T) {
	sw := &mockSwitch{}
	sw.On("GetPortState", core.PortID(2)).Return(core.PortStateForwarding, nil)
	sw.On("SetPortState", core.PortID(2), core.PortStateBlocking).Return(nil)
	sw.On("GetPortState", core.PortID(9)).Return(core.PortStateUnknown, core.ErrInvalidPort)
	h := NewCommandHandler(sw, "test")

	resp := call(t, h, MethodPortGet, `{"port": 2}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, PortParams{Port: 2, State: core.PortStateForwarding}, resp.Result)

	resp = call(t, h, MethodPortSet, `{"port": 2, "state": "blocking"}`)
	require.Nil(t, resp.Error)

	resp = call(t, h, MethodPortGet, `{"port": 9}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	sw.AssertExpectations(t)
}

func TestHandle_Fdb(t *testing.T) {
	sw := &mockSwitch{}
	entry := core.FdbEntry{MAC: testMAC, DestPorts: core.MaskOf(1, 2) | core.CPUPort, Override: true}
	sw.On("AddStaticEntry", entry).Return(nil).Once()
	sw.On("AddStaticEntry", mock.Anything).Return(core.ErrTableFull).Once()
	sw.On("DeleteStaticEntry", testMAC).Return(core.ErrNotFound)
	sw.On("ListStatic").Return([]core.FdbEntry{entry}, nil)
	sw.On("ListDynamic", 10).Return(nil, nil)
	sw.On("FlushDynamic", core.PortID(3)).Return(nil)
	sw.On("FlushStatic").Return(nil)
	h := NewCommandHandler(sw, "test")

	resp := call(t, h, MethodFdbAdd, `{"mac": "01:00:5e:00:00:fb", "ports": "1,2,cpu", "override": true}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, entry, resp.Result)

	resp = call(t, h, MethodFdbAdd, `{"mac": "01:00:5e:00:00:fc", "ports": "1"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTableFull, resp.Error.Code)

	resp = call(t, h, MethodFdbDel, `{"mac": "01:00:5e:00:00:fb"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	resp = call(t, h, MethodFdbList, "")
	require.Nil(t, resp.Error)
	assert.Equal(t, EntryList{Entries: []core.FdbEntry{entry}, Count: 1}, resp.Result)

	resp = call(t, h, MethodDynamicList, `{"limit": 10}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, EntryList{Entries: []core.FdbEntry{}, Count: 0}, resp.Result)

	assert.Nil(t, call(t, h, MethodDynamicFlush, `{"port": 3}`).Error)
	assert.Nil(t, call(t, h, MethodFdbFlush, "").Error)
	sw.AssertExpectations(t)
}

func TestHandle_Mgmt(t *testing.T) {
	sw := &mockSwitch{}
	sw.On("SetIgmpSnooping", true).Return(nil)
	sw.On("SetMldSnooping", true).Return(core.ErrUnsupported)
	sw.On("SetUnknownMcastFwd", true, core.MaskOf(1)).Return(nil)
	sw.On("SetUnknownUcastFwd", false, core.PortMask(0)).Return(nil)
	sw.On("SetAgingTime", 300).Return(nil)
	sw.On("SetReservedMcast", true).Return(fmt.Errorf("install: %w", core.ErrHardwareTimeout))
	h := NewCommandHandler(sw, "test")

	assert.Nil(t, call(t, h, MethodMgmtIgmp, `{"enable": true}`).Error)
	assert.Equal(t, ErrCodeUnsupported, call(t, h, MethodMgmtMld, `{"enable": true}`).Error.Code)
	assert.Nil(t, call(t, h, MethodMgmtUnknownMcast, `{"enable": true, "ports": "1"}`).Error)
	assert.Nil(t, call(t, h, MethodMgmtUnknownUcast, `{"enable": false}`).Error)
	assert.Nil(t, call(t, h, MethodMgmtAging, `{"seconds": 300}`).Error)
	assert.Equal(t, ErrCodeTimeout, call(t, h, MethodMgmtReservedMcast, `{"enable": true}`).Error.Code)
	sw.AssertExpectations(t)
}

func TestHandle_Daemon(t *testing.T) {
	sw := &mockSwitch{}
	sw.On("Status").Return(controller.Status{Chip: "ksz8795", State: "ready"}, nil)
	h := NewCommandHandler(sw, "1.2.3")

	resp := call(t, h, MethodDaemonStatus, "")
	require.Nil(t, resp.Error)
	ds := resp.Result.(DaemonStatus)
	assert.Equal(t, "1.2.3", ds.Version)
	assert.Equal(t, "ksz8795", ds.Chip)
	assert.Equal(t, "ready", ds.State)

	resp = call(t, h, MethodDaemonShutdown, "")
	require.NotNil(t, resp.Error)

	done := make(chan struct{})
	h.SetShutdownFunc(func() { close(done) })
	resp = call(t, h, MethodDaemonShutdown, "")
	require.Nil(t, resp.Error)
	<-done
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotReady, errorCode(core.ErrNotReady))
	assert.Equal(t, ErrCodeNotFound, errorCode(core.ErrEndOfTable))
	assert.Equal(t, ErrCodeInvalidParams, errorCode(fmt.Errorf("x: %w", core.ErrInvalidEntry)))
	assert.Equal(t, ErrCodeInternalError, errorCode(fmt.Errorf("spi: bus error")))
}
