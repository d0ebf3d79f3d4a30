package regio

import (
	"sync"
)

// Sim is an in-memory register file. Each address holds one value of the
// width it is accessed with. Hooks emulate registers with side effects
// (self-clearing triggers, indirect table windows) and run without the
// register file lock held, so they may call Get and Set.
type Sim struct {
	mu         sync.Mutex
	regs       map[uint32]uint32
	readHooks  map[uint32]func() uint32
	writeHooks map[uint32]func(v uint32)
	fail       error

	reads  int
	writes int
}

// NewSim creates an empty register file.
func NewSim() *Sim {
	return &Sim{
		regs:       make(map[uint32]uint32),
		readHooks:  make(map[uint32]func() uint32),
		writeHooks: make(map[uint32]func(v uint32)),
	}
}

// Set stores a value without triggering hooks.
func (s *Sim) Set(addr, v uint32) {
	s.mu.Lock()
	s.regs[addr] = v
	s.mu.Unlock()
}

// Get loads a value without triggering hooks.
func (s *Sim) Get(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr]
}

// OnRead installs a hook computing the value returned for addr.
func (s *Sim) OnRead(addr uint32, fn func() uint32) {
	s.mu.Lock()
	s.readHooks[addr] = fn
	s.mu.Unlock()
}

// OnWrite installs a hook run after a bus write to addr is stored.
func (s *Sim) OnWrite(addr uint32, fn func(v uint32)) {
	s.mu.Lock()
	s.writeHooks[addr] = fn
	s.mu.Unlock()
}

// FailWith makes every subsequent bus access return err. A nil err
// restores normal operation.
func (s *Sim) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Counts returns the number of bus reads and writes seen so far.
func (s *Sim) Counts() (reads, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.writes
}

func (s *Sim) read(addr uint32) (uint32, error) {
	s.mu.Lock()
	if s.fail != nil {
		err := s.fail
		s.mu.Unlock()
		return 0, err
	}
	s.reads++
	v := s.regs[addr]
	hook := s.readHooks[addr]
	s.mu.Unlock()

	if hook != nil {
		v = hook()
	}
	return v, nil
}

func (s *Sim) write(addr, v uint32) error {
	s.mu.Lock()
	if s.fail != nil {
		err := s.fail
		s.mu.Unlock()
		return err
	}
	s.writes++
	s.regs[addr] = v
	hook := s.writeHooks[addr]
	s.mu.Unlock()

	if hook != nil {
		hook(v)
	}
	return nil
}

func (s *Sim) Read8(addr uint32) (uint8, error) {
	v, err := s.read(addr)
	return uint8(v), err
}

func (s *Sim) Read16(addr uint32) (uint16, error) {
	v, err := s.read(addr)
	return uint16(v), err
}

func (s *Sim) Read32(addr uint32) (uint32, error) {
	return s.read(addr)
}

func (s *Sim) Write8(addr uint32, v uint8) error {
	return s.write(addr, uint32(v))
}

func (s *Sim) Write16(addr uint32, v uint16) error {
	return s.write(addr, uint32(v))
}

func (s *Sim) Write32(addr uint32, v uint32) error {
	return s.write(addr, v)
}
