package ksz88xx

import (
	"sync"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/regio"
)

type learned struct {
	mac  core.MAC
	port core.PortID
}

// Sim models an 8-bit KSZ switch: identification, port control and status,
// the indirect table window and the flush triggers.
//
// A static flush only clears the table when every port has learning
// disabled; a dynamic flush drops entries learned on learning-disabled
// ports, or everything when no port has learning disabled.
type Sim struct {
	*regio.Sim
	l Layout

	mu      sync.Mutex
	static  [][StaticRecordLen]byte
	dynamic []learned
	// notReady makes the next n dynamic reads report data not ready.
	notReady int
}

// NewSim returns a powered-up switch of layout l with every port
// forwarding and learning.
func NewSim(l Layout) *Sim {
	s := &Sim{Sim: regio.NewSim(), l: l, static: make([][StaticRecordLen]byte, l.StaticSlots)}
	s.Set(regChipID0, uint32(l.ChipID))
	s.Set(regGlobal1, global1Aging)
	for p := core.PortID(1); int(p) <= l.Ports; p++ {
		s.Set(portBase(p)+portCtrl2, ctrl2Tx|ctrl2Rx)
	}
	s.OnWrite(l.ctrl1(), func(uint32) { s.indirect() })
	s.OnWrite(regGlobal0, s.flush)
	return s
}

// SetNotReady makes the next n dynamic table reads report data not ready.
func (s *Sim) SetNotReady(n int) {
	s.mu.Lock()
	s.notReady = n
	s.mu.Unlock()
}

func (s *Sim) SetLink(p core.PortID, l core.PortLink) {
	var st0, st1 uint32
	if l.State == core.LinkUp {
		st0 = status0Link
	}
	if l.Speed >= core.Speed100M {
		st1 |= status1Speed
	}
	if l.Duplex == core.DuplexFull {
		st1 |= status1Full
	}
	s.Set(portBase(p)+portStatus0, st0)
	s.Set(portBase(p)+portStatus1, st1)
}

func (s *Sim) Learn(mac core.MAC, p core.PortID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.dynamic {
		if e.mac == mac {
			s.dynamic[i].port = p
			return
		}
	}
	s.dynamic = append(s.dynamic, learned{mac: mac, port: p})
}

// StaticRecords returns a copy of the static table.
func (s *Sim) StaticRecords() []StaticRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StaticRecord, len(s.static))
	for i, raw := range s.static {
		out[i] = DecodeStatic(raw)
	}
	return out
}

func (s *Sim) learningOff(p core.PortID) bool {
	return s.Get(portBase(p)+portCtrl2)&ctrl2LearnOff != 0
}

func (s *Sim) indirect() {
	c0 := uint8(s.Get(s.l.Indirect))
	index := int(c0&0x03)<<8 | int(s.Get(s.l.ctrl1()))
	read := c0&indirectRead != 0

	s.mu.Lock()
	defer s.mu.Unlock()
	switch c0 & indirectTable {
	case indirectStatic:
		if index >= len(s.static) {
			return
		}
		if read {
			for n := 7; n >= 0; n-- {
				s.Set(s.l.data(n), uint32(s.static[index][7-n]))
			}
			return
		}
		for n := 7; n >= 0; n-- {
			s.static[index][7-n] = uint8(s.Get(s.l.data(n)))
		}
	case indirectDynamic:
		if !read {
			return
		}
		r := DynamicRecord{Empty: len(s.dynamic) == 0, Count: len(s.dynamic)}
		if s.notReady > 0 {
			s.notReady--
			r.NotReady = true
		}
		if index < len(s.dynamic) {
			r.MAC = s.dynamic[index].mac
			r.Port = s.dynamic[index].port
		}
		raw := EncodeDynamic(r)
		for n := 8; n >= 0; n-- {
			s.Set(s.l.data(n), uint32(raw[8-n]))
		}
	}
}

func (s *Sim) flush(v uint32) {
	off := make(map[core.PortID]bool)
	for p := core.PortID(1); int(p) <= s.l.Ports; p++ {
		if s.learningOff(p) {
			off[p] = true
		}
	}

	s.mu.Lock()
	if v&global0FlushStatic != 0 && len(off) == s.l.Ports {
		for i := range s.static {
			s.static[i] = [StaticRecordLen]byte{}
		}
	}
	if v&global0FlushDynamic != 0 {
		kept := s.dynamic[:0]
		for _, e := range s.dynamic {
			if len(off) > 0 && !off[e.port] {
				kept = append(kept, e)
			}
		}
		s.dynamic = kept
	}
	s.mu.Unlock()

	s.Set(regGlobal0, v&^(global0FlushStatic|global0FlushDynamic))
}
