package ksz8463

import (
	"sync"

	"firestige.xyz/swctl/internal/chip/ksz88xx"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/regio"
)

// Sim models a KSZ8463 on top of a register file. Flush triggers follow
// the hardware's learning scoped semantics.
type Sim struct {
	*regio.Sim

	mu      sync.Mutex
	static  [staticSlots]ksz88xx.StaticRecord
	dynamic []ksz88xx.DynamicRecord
}

// NewSim returns a KSZ8463 with both ports forwarding.
func NewSim() *Sim {
	s := &Sim{Sim: regio.NewSim()}
	s.Set(regCIDER, 0x8452)
	s.Set(regSGCR1, sgcr1Aging)
	for p := core.PortID(1); p <= numPorts; p++ {
		s.Set(portCtrl2[p], ctrl2Tx|ctrl2Rx)
	}
	s.OnWrite(regIACR, s.access)
	s.OnWrite(regSGCR1, s.flush)
	return s
}

func (s *Sim) SetLink(p core.PortID, l core.PortLink) {
	var v uint32
	if l.State == core.LinkUp {
		v |= statusLink
	}
	if l.Speed >= core.Speed100M {
		v |= statusSpeed
	}
	if l.Duplex == core.DuplexFull {
		v |= statusFull
	}
	s.Set(portStatus[p], v)
}

func (s *Sim) Learn(mac core.MAC, p core.PortID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dynamic = append(s.dynamic, ksz88xx.DynamicRecord{MAC: mac, Port: p})
}

// StaticRecords returns a copy of the static table.
func (s *Sim) StaticRecords() []ksz88xx.StaticRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ksz88xx.StaticRecord(nil), s.static[:]...)
}

func (s *Sim) window() (b [iadrLen]byte) {
	for i := 0; i < iadrLen/2; i++ {
		v := s.Get(regIADR1 + uint32(2*i))
		b[2*i], b[2*i+1] = byte(v>>8), byte(v)
	}
	return b
}

func (s *Sim) setWindow(b [iadrLen]byte) {
	for i := 0; i < iadrLen/2; i++ {
		s.Set(regIADR1+uint32(2*i), uint32(b[2*i])<<8|uint32(b[2*i+1]))
	}
}

func (s *Sim) access(v uint32) {
	index := int(v & iacrIndex)
	read := v&iacrRead != 0

	s.mu.Lock()
	defer s.mu.Unlock()
	var b [iadrLen]byte
	switch v & iacrTable {
	case iacrStatic:
		if index >= staticSlots {
			return
		}
		if !read {
			w := s.window()
			var raw [ksz88xx.StaticRecordLen]byte
			copy(raw[:], w[iadrLen-ksz88xx.StaticRecordLen:])
			s.static[index] = ksz88xx.DecodeStatic(raw)
			return
		}
		raw := ksz88xx.EncodeStatic(s.static[index])
		copy(b[iadrLen-ksz88xx.StaticRecordLen:], raw[:])
	case iacrDynamic:
		if !read {
			return
		}
		r := ksz88xx.DynamicRecord{Empty: len(s.dynamic) == 0, Count: len(s.dynamic)}
		if index < len(s.dynamic) {
			r.MAC, r.Port = s.dynamic[index].MAC, s.dynamic[index].Port
		}
		raw := ksz88xx.EncodeDynamic(r)
		copy(b[iadrLen-ksz88xx.DynamicRecordLen:], raw[:])
	default:
		return
	}
	s.setWindow(b)
}

func (s *Sim) flush(v uint32) {
	off := make(map[core.PortID]bool)
	for p := core.PortID(1); p <= numPorts; p++ {
		if s.Get(portCtrl2[p])&ctrl2LearnOff != 0 {
			off[p] = true
		}
	}

	s.mu.Lock()
	if v&sgcr1FlushStatic != 0 && len(off) == numPorts {
		s.static = [staticSlots]ksz88xx.StaticRecord{}
	}
	if v&sgcr1FlushDynamic != 0 {
		kept := s.dynamic[:0]
		for _, e := range s.dynamic {
			if len(off) > 0 && !off[e.Port] {
				kept = append(kept, e)
			}
		}
		s.dynamic = kept
	}
	s.mu.Unlock()

	s.Set(regSGCR1, v&^(sgcr1FlushStatic|sgcr1FlushDynamic))
}
