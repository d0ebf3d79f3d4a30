// Package command implements the control plane command channels.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"firestige.xyz/swctl/internal/controller"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/log"
)

// Switch is the controller surface exposed to commands.
type Switch interface {
	Status() (controller.Status, error)
	GetPortState(p core.PortID) (core.PortState, error)
	SetPortState(p core.PortID, s core.PortState) error
	AddStaticEntry(e core.FdbEntry) error
	DeleteStaticEntry(mac core.MAC) error
	ListStatic() ([]core.FdbEntry, error)
	FlushStatic() error
	ListDynamic(limit int) ([]core.FdbEntry, error)
	FlushDynamic(p core.PortID) error
	SetIgmpSnooping(enable bool) error
	SetMldSnooping(enable bool) error
	SetUnknownMcastFwd(enable bool, ports core.PortMask) error
	SetUnknownUcastFwd(enable bool, ports core.PortMask) error
	SetAgingTime(seconds int) error
	SetReservedMcast(enable bool) error
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	sw           Switch
	shutdownFunc func() // Called by daemon_shutdown to trigger graceful stop
	startTime    time.Time
	version      string
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(sw Switch, version string) *CommandHandler {
	return &CommandHandler{
		sw:        sw,
		startTime: time.Now(),
		version:   version,
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "fdb_add", "port_set"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error

	ErrCodeTableFull   = -32001
	ErrCodeNotFound    = -32002
	ErrCodeUnsupported = -32003
	ErrCodeNotReady    = -32004
	ErrCodeTimeout     = -32005
)

// Method names.
const (
	MethodSwitchStatus      = "switch_status"
	MethodPortGet           = "port_get"
	MethodPortSet           = "port_set"
	MethodFdbAdd            = "fdb_add"
	MethodFdbDel            = "fdb_del"
	MethodFdbList           = "fdb_list"
	MethodFdbFlush          = "fdb_flush"
	MethodDynamicList       = "dynamic_list"
	MethodDynamicFlush      = "dynamic_flush"
	MethodMgmtIgmp          = "mgmt_igmp"
	MethodMgmtMld           = "mgmt_mld"
	MethodMgmtUnknownMcast  = "mgmt_unknown_mcast"
	MethodMgmtUnknownUcast  = "mgmt_unknown_ucast"
	MethodMgmtAging         = "mgmt_aging"
	MethodMgmtReservedMcast = "mgmt_rsvd_mcast"
	MethodDaemonStatus      = "daemon_status"
	MethodDaemonShutdown    = "daemon_shutdown"
)

// PortParams addresses one port. State is only used by port_set.
type PortParams struct {
	Port  core.PortID    `json:"port"`
	State core.PortState `json:"state,omitempty"`
}

// FdbEntryParams carries a static entry. Ports uses the "1,2,cpu" notation.
type FdbEntryParams struct {
	MAC      core.MAC      `json:"mac"`
	Ports    core.PortMask `json:"ports"`
	Override bool          `json:"override,omitempty"`
}

// DynamicParams selects dynamic entries. Port 0 means all ports.
type DynamicParams struct {
	Limit int         `json:"limit,omitempty"`
	Port  core.PortID `json:"port,omitempty"`
}

// ToggleParams switches a management feature. Ports applies to the
// unknown-destination forwarding toggles.
type ToggleParams struct {
	Enable bool          `json:"enable"`
	Ports  core.PortMask `json:"ports,omitempty"`
}

// AgingParams sets the dynamic entry aging period.
type AgingParams struct {
	Seconds int `json:"seconds"`
}

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	log.GetLogger().WithFields(map[string]interface{}{
		"method": cmd.Method,
		"id":     cmd.ID,
	}).Debug("handling command")

	switch cmd.Method {
	case MethodSwitchStatus:
		st, err := h.sw.Status()
		return h.reply(cmd, st, err)

	case MethodPortGet:
		var p PortParams
		if resp, ok := decodeParams(cmd, &p); !ok {
			return resp
		}
		s, err := h.sw.GetPortState(p.Port)
		return h.reply(cmd, PortParams{Port: p.Port, State: s}, err)

	case MethodPortSet:
		var p PortParams
		if resp, ok := decodeParams(cmd, &p); !ok {
			return resp
		}
		return h.reply(cmd, p, h.sw.SetPortState(p.Port, p.State))

	case MethodFdbAdd:
		var p FdbEntryParams
		if resp, ok := decodeParams(cmd, &p); !ok {
			return resp
		}
		e := core.FdbEntry{MAC: p.MAC, DestPorts: p.Ports, Override: p.Override}
		return h.reply(cmd, e, h.sw.AddStaticEntry(e))

	case MethodFdbDel:
		var p FdbEntryParams
		if resp, ok := decodeParams(cmd, &p); !ok {
			return resp
		}
		return h.reply(cmd, map[string]interface{}{"mac": p.MAC, "status": "deleted"}, h.sw.DeleteStaticEntry(p.MAC))

	case MethodFdbList:
		entries, err := h.sw.ListStatic()
		return h.reply(cmd, entryList(entries), err)

	case MethodFdbFlush:
		return h.reply(cmd, map[string]interface{}{"status": "flushed"}, h.sw.FlushStatic())

	case MethodDynamicList:
		var p DynamicParams
		if resp, ok := decodeParams(cmd, &p); !ok {
			return resp
		}
		entries, err := h.sw.ListDynamic(p.Limit)
		return h.reply(cmd, entryList(entries), err)

	case MethodDynamicFlush:
		var p DynamicParams
		if resp, ok := decodeParams(cmd, &p); !ok {
			return resp
		}
		return h.reply(cmd, map[string]interface{}{"port": p.Port, "status": "flushed"}, h.sw.FlushDynamic(p.Port))

	case MethodMgmtIgmp, MethodMgmtMld, MethodMgmtUnknownMcast, MethodMgmtUnknownUcast, MethodMgmtReservedMcast:
		var p ToggleParams
		if resp, ok := decodeParams(cmd, &p); !ok {
			return resp
		}
		return h.reply(cmd, p, h.toggle(cmd.Method, p))

	case MethodMgmtAging:
		var p AgingParams
		if resp, ok := decodeParams(cmd, &p); !ok {
			return resp
		}
		return h.reply(cmd, p, h.sw.SetAgingTime(p.Seconds))

	case MethodDaemonStatus:
		return h.handleDaemonStatus(cmd)
	case MethodDaemonShutdown:
		return h.handleDaemonShutdown(cmd)

	default:
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", cmd.Method))
	}
}

func (h *CommandHandler) toggle(method string, p ToggleParams) error {
	switch method {
	case MethodMgmtIgmp:
		return h.sw.SetIgmpSnooping(p.Enable)
	case MethodMgmtMld:
		return h.sw.SetMldSnooping(p.Enable)
	case MethodMgmtUnknownMcast:
		return h.sw.SetUnknownMcastFwd(p.Enable, p.Ports)
	case MethodMgmtUnknownUcast:
		return h.sw.SetUnknownUcastFwd(p.Enable, p.Ports)
	default:
		return h.sw.SetReservedMcast(p.Enable)
	}
}

// EntryList is the result of the list methods.
type EntryList struct {
	Entries []core.FdbEntry `json:"entries" yaml:"entries"`
	Count   int             `json:"count" yaml:"count"`
}

func entryList(entries []core.FdbEntry) EntryList {
	if entries == nil {
		entries = []core.FdbEntry{}
	}
	return EntryList{Entries: entries, Count: len(entries)}
}

// DaemonStatus is the result of daemon_status.
type DaemonStatus struct {
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptime_sec"`
	Chip      string `json:"chip"`
	State     string `json:"state"`
}

func (h *CommandHandler) handleDaemonStatus(cmd Command) Response {
	ds := DaemonStatus{
		Version:   h.version,
		UptimeSec: int64(time.Since(h.startTime) / time.Second),
	}
	st, err := h.sw.Status()
	if err == nil {
		ds.Chip, ds.State = st.Chip, st.State
	}
	return h.reply(cmd, ds, err)
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(cmd Command) Response {
	if h.shutdownFunc == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "shutdown handler not registered")
	}

	log.GetLogger().Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "shutting_down"},
	}
}

func (h *CommandHandler) reply(cmd Command, result interface{}, err error) Response {
	if err != nil {
		log.GetLogger().WithError(err).WithField("method", cmd.Method).Warn("command failed")
		return errorResponse(cmd.ID, errorCode(err), err.Error())
	}
	return Response{ID: cmd.ID, Result: result}
}

// decodeParams unmarshals optional params. It returns false together with
// the error response when they do not parse.
func decodeParams(cmd Command, v interface{}) (Response, bool) {
	if len(cmd.Params) == 0 {
		return Response{}, true
	}
	if err := json.Unmarshal(cmd.Params, v); err != nil {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, fmt.Sprintf("invalid params: %v", err)), false
	}
	return Response{}, true
}

func errorResponse(id string, code int, msg string) Response {
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: msg}}
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidPort), errors.Is(err, core.ErrInvalidEntry):
		return ErrCodeInvalidParams
	case errors.Is(err, core.ErrTableFull):
		return ErrCodeTableFull
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrEndOfTable):
		return ErrCodeNotFound
	case errors.Is(err, core.ErrUnsupported):
		return ErrCodeUnsupported
	case errors.Is(err, core.ErrNotReady):
		return ErrCodeNotReady
	case errors.Is(err, core.ErrHardwareTimeout):
		return ErrCodeTimeout
	default:
		return ErrCodeInternalError
	}
}
