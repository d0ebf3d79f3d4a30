package ksz8563

import (
	"sync"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/regio"
)

type staticEntry struct {
	valid, override bool
	ports           uint32
	mac             core.MAC
}

type learnedEntry struct {
	mac  core.MAC
	port core.PortID
}

// Sim models the KSZ8563 ALU, port pages and flush control.
type Sim struct {
	*regio.Sim

	mu      sync.Mutex
	static  [staticSlots]staticEntry
	dynamic []learnedEntry
	pending bool
	// NotReadyReads is the number of upcoming dynamic reads that are
	// still busy when first polled.
	NotReadyReads int
}

// NewSim returns a KSZ8563 with both ports forwarding.
func NewSim() *Sim {
	s := &Sim{Sim: regio.NewSim()}
	s.Set(regChipID, chipID)
	s.Set(regLookup1, lookup1Aging)
	s.Set(regAgePeriod, 300)
	for p := core.PortID(1); p <= numPorts; p++ {
		s.Set(portReg(p, portMSTP), mstpTx|mstpRx)
	}
	s.Set(portReg(cpuPort, portStatus), 0x08|statusFull)
	s.OnWrite(regStaticCtrl, s.staticAccess)
	s.OnWrite(regALUCtrl, s.aluAccess)
	s.OnRead(regALUCtrl, s.aluPoll)
	s.OnWrite(regLookup1, s.flush)
	return s
}

func (s *Sim) SetLink(p core.PortID, l core.PortLink) {
	if l.State != core.LinkUp {
		s.Set(portReg(p, portPhyBMSR), 0)
		return
	}
	s.Set(portReg(p, portPhyBMSR), bmsrLink)
	var st uint32
	switch l.Speed {
	case core.Speed100M:
		st = 1 << 3
	case core.Speed1G:
		st = 2 << 3
	}
	if l.Duplex == core.DuplexFull {
		st |= statusFull
	}
	s.Set(portReg(p, portStatus), st)
}

func (s *Sim) Learn(mac core.MAC, p core.PortID) {
	s.mu.Lock()
	s.dynamic = append(s.dynamic, learnedEntry{mac: mac, port: p})
	s.mu.Unlock()
}

// StaticCount returns the number of valid static slots.
func (s *Sim) StaticCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.static {
		if e.valid {
			n++
		}
	}
	return n
}

func (s *Sim) staticAccess(v uint32) {
	if v&aluStart == 0 {
		return
	}
	index := int(v >> staticIndexShift & 0xf)
	s.mu.Lock()
	if v&staticRead != 0 {
		e := s.static[index]
		var e1, e2 uint32
		if e.valid {
			e1 = entryValid
		}
		if e.override {
			e2 = entryOverride
		}
		e2 |= e.ports
		e3, e4 := macWords(e.mac)
		s.mu.Unlock()
		s.Set(regEntry1, e1)
		s.Set(regEntry2, e2)
		s.Set(regEntry3, e3)
		s.Set(regEntry4, e4)
	} else {
		e2 := s.Get(regEntry2)
		s.static[index] = staticEntry{
			valid:    s.Get(regEntry1)&entryValid != 0,
			override: e2&entryOverride != 0,
			ports:    e2 & entryPorts,
			mac:      entryMAC(s.Get(regEntry3), s.Get(regEntry4)),
		}
		s.mu.Unlock()
	}
	s.Set(regStaticCtrl, v&^aluStart)
}

func (s *Sim) aluAccess(v uint32) {
	if v&aluStart == 0 || v&0x3 != aluRead {
		return
	}
	index := int(s.Get(regALUIndex))
	s.mu.Lock()
	s.pending = s.NotReadyReads > 0
	if s.pending {
		s.NotReadyReads--
	}
	count := len(s.dynamic)
	var e learnedEntry
	if index < count {
		e = s.dynamic[index]
	}
	s.mu.Unlock()

	e3, e4 := macWords(e.mac)
	var ports uint32
	if e.port > 0 {
		ports = 1 << (e.port - 1)
	}
	s.Set(regEntry1, entryValid)
	s.Set(regEntry2, ports)
	s.Set(regEntry3, e3)
	s.Set(regEntry4, e4)
	s.Set(regALUCtrl, uint32(count)<<aluCountShift|aluRead)
}

func (s *Sim) aluPoll() uint32 {
	v := s.Get(regALUCtrl)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		s.pending = false
		return v | aluStart
	}
	return v
}

func (s *Sim) flush(v uint32) {
	if v&lookup1Flush == 0 {
		return
	}
	opt := s.Get(regLookup2) & flushOptMask
	off := make(map[core.PortID]bool)
	for p := core.PortID(1); p <= numPorts; p++ {
		if s.Get(portReg(p, portMSTP))&mstpLearnOff != 0 {
			off[p] = true
		}
	}

	s.mu.Lock()
	if opt&flushStatic != 0 {
		s.static = [staticSlots]staticEntry{}
	}
	if opt&flushDynamic != 0 {
		kept := s.dynamic[:0]
		for _, e := range s.dynamic {
			if len(off) > 0 && !off[e.port] {
				kept = append(kept, e)
			}
		}
		s.dynamic = kept
	}
	s.mu.Unlock()
	s.Set(regLookup1, v&^lookup1Flush)
}
