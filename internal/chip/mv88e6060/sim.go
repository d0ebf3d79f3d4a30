package mv88e6060

import (
	"bytes"
	"sort"
	"sync"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/regio"
)

type atuEntry struct {
	dpv   uint16
	state uint16
}

// Sim models the 88E6060 port devices and the ATU operation engine.
type Sim struct {
	*regio.Sim

	mu  sync.Mutex
	atu map[core.MAC]atuEntry
	// Capacity bounds the ATU; loads beyond it set the ATU full flag.
	Capacity int
}

// NewSim returns an 88E6060 with every port forwarding and learning.
func NewSim() *Sim {
	s := &Sim{Sim: regio.NewSim(), atu: make(map[core.MAC]atuEntry), Capacity: atuSize}
	s.Set(portReg(0, regSwitchID), 0x0601)
	for hw := 0; hw <= hwCPU; hw++ {
		s.Set(portReg(hw, regPortControl), stateForwarding)
		s.Set(portReg(hw, regPAV), 1<<hw)
	}
	s.Set(portReg(hwCPU, regPortStatus), statusLink|status100|statusFull)
	s.Set(globalReg(regATUControl), (300/atuAgeUnit)<<atuAgeShift)
	s.OnWrite(globalReg(regATUOp), s.operate)
	return s
}

func (s *Sim) SetLink(p core.PortID, l core.PortLink) {
	var v uint32
	if l.State == core.LinkUp {
		v |= statusLink
	}
	if l.Speed >= core.Speed100M {
		v |= status100
	}
	if l.Duplex == core.DuplexFull {
		v |= statusFull
	}
	s.Set(portReg(int(p)-1, regPortStatus), v)
}

// Learn adds a learned entry for port p unless its learning is off.
func (s *Sim) Learn(mac core.MAC, p core.PortID) {
	hw := int(p) - 1
	if s.Get(portReg(hw, regPAV))&dataDPVMask == 0 {
		return
	}
	s.mu.Lock()
	s.atu[mac] = atuEntry{dpv: 1 << hw, state: stateDynamic}
	s.mu.Unlock()
}

// Len returns the number of ATU entries.
func (s *Sim) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.atu)
}

func (s *Sim) mac() core.MAC {
	var m core.MAC
	for i, r := range []uint8{regATUMac01, regATUMac23, regATUMac45} {
		v := s.Get(globalReg(r))
		m[2*i], m[2*i+1] = byte(v>>8), byte(v)
	}
	return m
}

func (s *Sim) setMAC(m core.MAC) {
	for i, r := range []uint8{regATUMac01, regATUMac23, regATUMac45} {
		s.Set(globalReg(r), uint32(m[2*i])<<8|uint32(m[2*i+1]))
	}
}

func (s *Sim) operate(v uint32) {
	if v&atuBusy == 0 {
		return
	}
	s.mu.Lock()
	switch (v >> atuOpShift) & 0x7 {
	case atuFlushAll:
		s.atu = make(map[core.MAC]atuEntry)
	case atuFlushDyn:
		for m, e := range s.atu {
			if e.state != stateStatic && e.state != stateOverride {
				delete(s.atu, m)
			}
		}
	case atuLoadPurge:
		s.loadPurge()
	case atuGetNext:
		s.getNext()
	}
	s.mu.Unlock()
	s.Set(globalReg(regATUOp), v&^atuBusy)
}

func (s *Sim) loadPurge() {
	mac := s.mac()
	data := uint16(s.Get(globalReg(regATUData)))
	st := s.Get(globalReg(regGlobalStatus)) &^ globalATUFull
	defer func() { s.Set(globalReg(regGlobalStatus), st) }()

	if data&dataState == 0 {
		delete(s.atu, mac)
		return
	}
	if _, ok := s.atu[mac]; !ok && len(s.atu) >= s.Capacity {
		st |= globalATUFull
		return
	}
	s.atu[mac] = atuEntry{dpv: data >> dataDPVShift & dataDPVMask, state: data & dataState}
}

func (s *Sim) getNext() {
	cursor := s.mac()
	macs := make([]core.MAC, 0, len(s.atu))
	for m := range s.atu {
		macs = append(macs, m)
	}
	sort.Slice(macs, func(i, j int) bool { return bytes.Compare(macs[i][:], macs[j][:]) < 0 })
	for _, m := range macs {
		if cursor == core.Broadcast || bytes.Compare(m[:], cursor[:]) > 0 {
			e := s.atu[m]
			s.setMAC(m)
			s.Set(globalReg(regATUData), uint32(e.dpv<<dataDPVShift|e.state))
			return
		}
	}
	s.setMAC(core.Broadcast)
	s.Set(globalReg(regATUData), 0)
}
