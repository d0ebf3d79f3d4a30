package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/swctl/internal/log"
)

// maxRequestSize bounds one request line.
const maxRequestSize = 64 << 10

// JSONRPCRequest is one line sent by a client.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse is one line written back.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

func rpcError(id interface{}, code int, format string, args ...interface{}) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

// check rejects requests the handler should never see.
func (r *JSONRPCRequest) check() *ErrorInfo {
	if r.JSONRPC != "2.0" {
		return &ErrorInfo{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf("unsupported jsonrpc version %q", r.JSONRPC)}
	}
	if r.Method == "" {
		return &ErrorInfo{Code: ErrCodeInvalidRequest, Message: "method is required"}
	}
	return nil
}

// UDSServer serves the control socket: one JSON-RPC request per line, one
// response per line, requests on a connection handled in order.
type UDSServer struct {
	socketPath string
	handler    *CommandHandler
	ready      chan struct{}
	nextConn   atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool
	wg       sync.WaitGroup
}

func NewUDSServer(socketPath string, handler *CommandHandler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
		ready:      make(chan struct{}),
	}
}

// Start listens on the socket and serves until ctx is cancelled. A stale
// socket file left by a crashed daemon is replaced.
func (s *UDSServer) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("remove stale socket %s: %w", s.socketPath, err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	// Register and fdb writes are privileged: owner only.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.GetLogger().WithField("socket", s.socketPath).Info("control socket listening")
	close(s.ready)

	go s.accept(ctx, ln)

	<-ctx.Done()
	return s.Stop()
}

// Ready is closed once the socket accepts connections.
func (s *UDSServer) Ready() <-chan struct{} {
	return s.ready
}

func (s *UDSServer) accept(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.GetLogger().WithError(err).Warn("control socket accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go s.serve(ctx, conn, s.nextConn.Add(1))
	}
}

func (s *UDSServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *UDSServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *UDSServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *UDSServer) serve(ctx context.Context, conn net.Conn, id uint64) {
	defer s.wg.Done()
	defer s.untrack(conn)

	logger := log.GetLogger().WithField("conn", id)
	logger.Debug("control connection opened")

	in := bufio.NewScanner(conn)
	in.Buffer(make([]byte, 0, 4096), maxRequestSize)
	out := json.NewEncoder(conn)

	for in.Scan() {
		resp := s.dispatch(ctx, in.Bytes(), logger)
		if err := out.Encode(resp); err != nil {
			logger.WithError(err).Warn("write response failed")
			return
		}
	}
	if err := in.Err(); err != nil && !s.isStopped() {
		if errors.Is(err, bufio.ErrTooLong) {
			out.Encode(rpcError(nil, ErrCodeInvalidRequest, "request exceeds %d bytes", maxRequestSize))
		}
		logger.WithError(err).Warn("control connection read failed")
	}
	logger.Debug("control connection closed")
}

func (s *UDSServer) dispatch(ctx context.Context, line []byte, logger log.Logger) JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		logger.WithError(err).Warn("malformed request")
		return rpcError(nil, ErrCodeParseError, "parse error: %v", err)
	}
	if bad := req.check(); bad != nil {
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: bad}
	}

	start := time.Now()
	resp := s.handler.Handle(ctx, Command{
		Method: req.Method,
		Params: req.Params,
		ID:     fmt.Sprint(req.ID),
	})
	entry := logger.WithFields(map[string]interface{}{
		"method":  req.Method,
		"elapsed": time.Since(start).String(),
	})
	if resp.Error != nil {
		entry.WithField("code", resp.Error.Code).Info(resp.Error.Message)
	} else {
		entry.Debug("request served")
	}

	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  resp.Result,
		Error:   resp.Error,
	}
}

// Stop closes the listener and every open connection, waits for the
// connection goroutines and removes the socket file. It is safe to call
// more than once.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.GetLogger().WithError(err).Warn("remove control socket")
	}
	log.GetLogger().Info("control socket closed")
	return nil
}
