package tailtag

import (
	"fmt"
	"sort"

	"firestige.xyz/swctl/internal/core"
)

// Dialect describes one chip's tail tag format. Egress and ingress tags
// differ: the host addresses destination ports with a per-port select
// pattern, while the switch reports the source port as a small index.
type Dialect struct {
	Name  string
	Width int
	Ports int

	// Egress holds the tag the host appends to address each destination
	// port. Index 0 is unused.
	Egress [][]byte

	// Ingress holds the tag the switch appends to frames received on each
	// port. Index 0 is unused.
	Ingress [][]byte

	// Source extracts the 1-based source port from an ingress tag. It may
	// return an out-of-range port, which Decode rejects.
	Source func(tag []byte) core.PortID
}

const (
	// KSZ8795 family: one destination bit per port, forced by PORT_SEL.
	ksz8795PortSelect = 0x40

	// KSZ8563 (KSZ9893 tag): destination bits forwarded past port
	// blocking. 0x40 would request a normal address lookup instead.
	ksz8563Override = 0x20

	// MV88E6060 trailer, byte 0 and byte 2.
	mvOverride = 0x80
	mvMgmt     = 0x10
)

// oneHot returns the per-port select tags 1<<(p-1) | flags.
func oneHot(ports int, flags byte) [][]byte {
	out := make([][]byte, ports+1)
	for p := 1; p <= ports; p++ {
		out[p] = []byte{1<<(p-1) | flags}
	}
	return out
}

// zeroBased returns the ingress tags 0..ports-1.
func zeroBased(ports int) [][]byte {
	out := make([][]byte, ports+1)
	for p := 1; p <= ports; p++ {
		out[p] = []byte{byte(p - 1)}
	}
	return out
}

// zero-based source port in the low two bits
func srcZeroBased(tag []byte) core.PortID {
	return core.PortID(tag[0]&0x03) + 1
}

func marvellEgress(ports int) [][]byte {
	out := make([][]byte, ports+1)
	for p := 1; p <= ports; p++ {
		out[p] = []byte{mvOverride, 1 << (p - 1), mvMgmt, 0x00}
	}
	return out
}

func marvellIngress(ports int) [][]byte {
	out := make([][]byte, ports+1)
	for p := 1; p <= ports; p++ {
		out[p] = []byte{mvOverride, byte(p - 1), 0x00, 0x00}
	}
	return out
}

// srcMarvell reads SPID from byte 1. A trailer without the leading 0x80
// marker is not a switch trailer and yields port 0.
func srcMarvell(tag []byte) core.PortID {
	if tag[0]&mvOverride == 0 {
		return 0
	}
	return core.PortID(tag[1]&0x07) + 1
}

var (
	KSZ8463 = Dialect{
		Name: "ksz8463", Width: 1, Ports: 2,
		Egress:  oneHot(2, 0),
		Ingress: zeroBased(2),
		Source:  srcZeroBased,
	}
	KSZ8563 = Dialect{
		Name: "ksz8563", Width: 1, Ports: 2,
		Egress:  oneHot(2, ksz8563Override),
		Ingress: zeroBased(2),
		Source:  srcZeroBased,
	}
	KSZ8795 = Dialect{
		Name: "ksz8795", Width: 1, Ports: 4,
		Egress:  oneHot(4, ksz8795PortSelect),
		Ingress: zeroBased(4),
		Source:  srcZeroBased,
	}
	KSZ8863 = Dialect{
		Name: "ksz8863", Width: 1, Ports: 2,
		Egress:  oneHot(2, 0),
		Ingress: zeroBased(2),
		Source:  srcZeroBased,
	}
	KSZ8864 = Dialect{
		Name: "ksz8864", Width: 1, Ports: 3,
		Egress:  oneHot(3, ksz8795PortSelect),
		Ingress: zeroBased(3),
		Source:  srcZeroBased,
	}
	MV88E6060 = Dialect{
		Name: "mv88e6060", Width: 4, Ports: 5,
		Egress:  marvellEgress(5),
		Ingress: marvellIngress(5),
		Source:  srcMarvell,
	}
)

var dialects = map[string]Dialect{}

func init() {
	for _, d := range []Dialect{KSZ8463, KSZ8563, KSZ8795, KSZ8863, KSZ8864, MV88E6060} {
		dialects[d.Name] = d
	}
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("unknown tail tag dialect %q", name)
	}
	return d, nil
}

// Names lists the known dialects in sorted order.
func Names() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
