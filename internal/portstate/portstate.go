// Package portstate maps the transmit/receive/learning-disable control bits
// found on every supported switch onto 802.1D-style port states.
package portstate

import (
	"fmt"

	"firestige.xyz/swctl/internal/core"
)

// Bits is the raw control triple of one port.
type Bits struct {
	Transmit        bool
	Receive         bool
	LearningDisable bool
}

func (b Bits) String() string {
	return fmt.Sprintf("tx=%t rx=%t learn-disable=%t", b.Transmit, b.Receive, b.LearningDisable)
}

var encodeTable = map[core.PortState]Bits{
	core.PortStateDisabled:   {Transmit: false, Receive: false, LearningDisable: true},
	core.PortStateListening:  {Transmit: false, Receive: true, LearningDisable: true},
	core.PortStateLearning:   {Transmit: false, Receive: false, LearningDisable: false},
	core.PortStateForwarding: {Transmit: true, Receive: true, LearningDisable: false},
}

// Decode classifies a control triple. Combinations outside the four
// settable states decode to PortStateUnknown.
func Decode(b Bits) core.PortState {
	for st, want := range encodeTable {
		if b == want {
			return st
		}
	}
	return core.PortStateUnknown
}

// Encode returns the control triple for a settable state. Blocking and
// Unknown are observed-only and return core.ErrUnsupported.
func Encode(st core.PortState) (Bits, error) {
	b, ok := encodeTable[st]
	if !ok {
		return Bits{}, fmt.Errorf("encode port state %s: %w", st, core.ErrUnsupported)
	}
	return b, nil
}

// Settable reports whether st can be written to a port.
func Settable(st core.PortState) bool {
	_, ok := encodeTable[st]
	return ok
}
