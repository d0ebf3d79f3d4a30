// Package core defines core types with zero external dependencies.
package core

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// PortID is a 1-based switch port number. Zero means "no port".
type PortID int

// PortMask is a bitmap of ports: bit p-1 stands for port p.
type PortMask uint32

// CPUPort denotes the host-facing port rather than a physical port. Chip
// adapters translate it to their dedicated CPU port bit.
const CPUPort PortMask = 1 << 31

// MaskOf returns the mask holding the given ports.
func MaskOf(ports ...PortID) PortMask {
	var m PortMask
	for _, p := range ports {
		if p > 0 && p < 32 {
			m |= 1 << (p - 1)
		}
	}
	return m
}

// Has reports whether port p is set.
func (m PortMask) Has(p PortID) bool {
	return p > 0 && p < 32 && m&(1<<(p-1)) != 0
}

// Physical strips the CPU sentinel.
func (m PortMask) Physical() PortMask {
	return m &^ CPUPort
}

func (m PortMask) String() string {
	var parts []string
	for p := PortID(1); p < 32; p++ {
		if m.Has(p) {
			parts = append(parts, fmt.Sprintf("%d", p))
		}
	}
	if m&CPUPort != 0 {
		parts = append(parts, "cpu")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

// Ports lists the physical ports in ascending order.
func (m PortMask) Ports() []PortID {
	var ports []PortID
	for p := PortID(1); p < 32; p++ {
		if m.Has(p) {
			ports = append(ports, p)
		}
	}
	return ports
}

// ParsePortMask parses the String form: comma separated port numbers and
// "cpu", or "-" for the empty mask.
func ParsePortMask(s string) (PortMask, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	var m PortMask
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if strings.EqualFold(f, "cpu") {
			m |= CPUPort
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > 31 {
			return 0, fmt.Errorf("invalid port %q in mask %q", f, s)
		}
		m |= MaskOf(PortID(n))
	}
	return m, nil
}

// MarshalText implements encoding.TextMarshaler.
func (m PortMask) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *PortMask) UnmarshalText(b []byte) error {
	v, err := ParsePortMask(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// PortState is the 802.1D-style classification of a port.
type PortState int

const (
	PortStateUnknown PortState = iota
	PortStateDisabled
	PortStateBlocking
	PortStateListening
	PortStateLearning
	PortStateForwarding
)

var portStateNames = map[PortState]string{
	PortStateUnknown:    "unknown",
	PortStateDisabled:   "disabled",
	PortStateBlocking:   "blocking",
	PortStateListening:  "listening",
	PortStateLearning:   "learning",
	PortStateForwarding: "forwarding",
}

func (s PortState) String() string {
	if n, ok := portStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("PortState(%d)", int(s))
}

// ParsePortState parses the lower-case state name.
func ParsePortState(s string) (PortState, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for st, name := range portStateNames {
		if name == want {
			return st, nil
		}
	}
	return PortStateUnknown, fmt.Errorf("unknown port state %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s PortState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PortState) UnmarshalText(b []byte) error {
	st, err := ParsePortState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// MAC is an Ethernet hardware address.
type MAC [6]byte

// Broadcast is ff:ff:ff:ff:ff:ff.
var Broadcast = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC accepts colon, dash or dot-less hex notation.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	clean := strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.TrimSpace(s))
	if len(clean) != 12 {
		return m, fmt.Errorf("invalid MAC address %q", s)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return m, fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	copy(m[:], b)
	return m, nil
}

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsBroadcast reports whether m is ff:ff:ff:ff:ff:ff.
func (m MAC) IsBroadcast() bool { return m == Broadcast }

// IsMulticast reports whether the group bit is set.
func (m MAC) IsMulticast() bool { return m[0]&0x01 != 0 }

// IsZero reports whether m is all zeros.
func (m MAC) IsZero() bool { return m == MAC{} }

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(b []byte) error {
	v, err := ParseMAC(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// FdbEntry is one forwarding database binding.
type FdbEntry struct {
	MAC       MAC      `json:"mac" yaml:"mac"`
	SrcPort   PortID   `json:"src_port,omitempty" yaml:"src_port,omitempty"`
	DestPorts PortMask `json:"dest_ports" yaml:"dest_ports"`
	Override  bool     `json:"override,omitempty" yaml:"override,omitempty"`
}

// LinkState is the state of one port's link.
type LinkState int

const (
	LinkDown LinkState = iota
	LinkUp
)

func (l LinkState) String() string {
	if l == LinkUp {
		return "up"
	}
	return "down"
}

// LinkSpeed is the negotiated speed of a link.
type LinkSpeed int

const (
	SpeedUnknown LinkSpeed = 0
	Speed10M     LinkSpeed = 10
	Speed100M    LinkSpeed = 100
	Speed1G      LinkSpeed = 1000
)

func (s LinkSpeed) String() string {
	switch s {
	case Speed10M:
		return "10M"
	case Speed100M:
		return "100M"
	case Speed1G:
		return "1G"
	default:
		return "unknown"
	}
}

// DuplexMode is the negotiated duplex of a link.
type DuplexMode int

const (
	DuplexUnknown DuplexMode = iota
	DuplexHalf
	DuplexFull
)

func (d DuplexMode) String() string {
	switch d {
	case DuplexHalf:
		return "half"
	case DuplexFull:
		return "full"
	default:
		return "unknown"
	}
}

// PortLink is a link observation for one port.
type PortLink struct {
	State  LinkState
	Speed  LinkSpeed
	Duplex DuplexMode
}
