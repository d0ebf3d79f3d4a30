// Package tap watches the host side of the CPU port: it captures frames on
// the host MAC interface, strips their tail tags and attributes each one
// to the switch port it entered on.
package tap

import (
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/metrics"
	"firestige.xyz/swctl/internal/tailtag"
)

const headerLen = tailtag.HeaderLen

type Config struct {
	Interface    string `mapstructure:"interface"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
}

func (c *Config) applyDefaults() {
	if c.SnapLen <= 0 {
		c.SnapLen = 1600
	}
	if c.BufferSizeMB <= 0 {
		c.BufferSizeMB = 2
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 100
	}
}

// Frame is one decoded frame.
type Frame struct {
	Time    time.Time
	SrcPort core.PortID
	Length  int
	Packet  gopacket.Packet
}

// Summary renders the Ethernet addressing of f on one line.
func (f Frame) Summary() string {
	s := f.Time.Format("15:04:05.000000") + " port " + strconv.Itoa(int(f.SrcPort)) + " len " + strconv.Itoa(f.Length)
	if eth, ok := f.Packet.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok {
		s += " " + eth.SrcMAC.String() + " > " + eth.DstMAC.String() + " " + eth.EthernetType.String()
	}
	return s
}

// Decoder strips tags and keeps per-port counters. It is safe for
// concurrent use.
type Decoder struct {
	iface string
	codec *tailtag.Codec

	mu     sync.Mutex
	counts map[core.PortID]uint64
	errors map[string]uint64
}

func NewDecoder(iface string, codec *tailtag.Codec) *Decoder {
	return &Decoder{
		iface:  iface,
		codec:  codec,
		counts: make(map[core.PortID]uint64),
		errors: make(map[string]uint64),
	}
}

// Process decodes one captured frame.
func (d *Decoder) Process(data []byte, ci gopacket.CaptureInfo) (Frame, error) {
	src, pkt, err := d.codec.Inspect(data)
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, core.ErrInvalidLength):
			reason = "short"
		case errors.Is(err, core.ErrInvalidPort):
			reason = "bad_port"
		}
		d.mu.Lock()
		d.errors[reason]++
		d.mu.Unlock()
		metrics.TailTagErrorsTotal.WithLabelValues(d.iface, reason).Inc()
		return Frame{}, err
	}

	d.mu.Lock()
	d.counts[src]++
	d.mu.Unlock()
	metrics.TailTagFramesTotal.WithLabelValues(d.iface, strconv.Itoa(int(src))).Inc()

	return Frame{Time: ci.Timestamp, SrcPort: src, Length: len(data) - d.codec.Width(), Packet: pkt}, nil
}

// PortCount is the number of frames seen from one port.
type PortCount struct {
	Port   core.PortID `json:"port"`
	Frames uint64      `json:"frames"`
}

// Counts returns the per-port frame counts in port order.
func (d *Decoder) Counts() []PortCount {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PortCount, 0, len(d.counts))
	for p, n := range d.counts {
		out = append(out, PortCount{Port: p, Frames: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// Errors returns the undecodable frame counts by reason.
func (d *Decoder) Errors() map[string]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]uint64, len(d.errors))
	for k, v := range d.errors {
		out[k] = v
	}
	return out
}
