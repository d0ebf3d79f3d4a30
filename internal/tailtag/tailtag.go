// Package tailtag appends and strips the per-frame trailer a switch uses to
// address its ports from the host CPU port.
//
// Egress frames are padded to the Ethernet minimum before tagging so the
// tag stays at a fixed offset from the end of the frame. Decode must be
// called exactly once per received frame: the trimmed result no longer
// carries the tag and decoding it again strips payload.
package tailtag

import (
	"fmt"

	"github.com/google/gopacket"

	"firestige.xyz/swctl/internal/core"
)

const (
	// HeaderLen is the Ethernet header length.
	HeaderLen = 14
	// MinFrameLen is the minimum frame length without FCS.
	MinFrameLen = 60
)

// Codec encodes and decodes tags of one dialect. It holds no mutable state
// and may be shared across goroutines.
type Codec struct {
	d Dialect
}

// New returns a codec for d.
func New(d Dialect) *Codec {
	return &Codec{d: d}
}

// ForChip returns the codec of a registered dialect.
func ForChip(name string) (*Codec, error) {
	d, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return New(d), nil
}

func (c *Codec) Name() string { return c.d.Name }
func (c *Codec) Width() int   { return c.d.Width }
func (c *Codec) Ports() int   { return c.d.Ports }

// Tag returns the tag bytes addressing dest.
func (c *Codec) Tag(dest core.PortID) ([]byte, error) {
	if dest < 1 || int(dest) > c.d.Ports {
		return nil, fmt.Errorf("%s tail tag port %d: %w", c.d.Name, dest, core.ErrInvalidPort)
	}
	return c.d.Egress[dest], nil
}

// Encode pads the frame in buf to MinFrameLen and appends the tag for dest.
// buf is left untouched when dest is invalid.
func (c *Codec) Encode(buf gopacket.SerializeBuffer, dest core.PortID) error {
	tag, err := c.Tag(dest)
	if err != nil {
		return err
	}
	if n := len(buf.Bytes()); n < MinFrameLen {
		pad, err := buf.AppendBytes(MinFrameLen - n)
		if err != nil {
			return err
		}
		clear(pad)
	}
	b, err := buf.AppendBytes(len(tag))
	if err != nil {
		return err
	}
	copy(b, tag)
	return nil
}

// EncodeFrame copies frame into a new buffer and tags it for dest.
func (c *Codec) EncodeFrame(frame []byte, dest core.PortID) ([]byte, error) {
	size := max(len(frame), MinFrameLen) + c.d.Width
	buf := gopacket.NewSerializeBufferExpectedSize(0, size)
	b, err := buf.AppendBytes(len(frame))
	if err != nil {
		return nil, err
	}
	copy(b, frame)
	if err := c.Encode(buf, dest); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IngressTag returns the tag the switch appends to a frame it received on
// src.
func (c *Codec) IngressTag(src core.PortID) ([]byte, error) {
	if src < 1 || int(src) > c.d.Ports {
		return nil, fmt.Errorf("%s tail tag port %d: %w", c.d.Name, src, core.ErrInvalidPort)
	}
	return c.d.Ingress[src], nil
}

// Deliver builds frame as the switch hands it to the host after receiving
// it on src: padded to MinFrameLen with the ingress tag appended. Switch
// simulators and replay tools use it to produce what Decode consumes.
func (c *Codec) Deliver(frame []byte, src core.PortID) ([]byte, error) {
	tag, err := c.IngressTag(src)
	if err != nil {
		return nil, err
	}
	out := make([]byte, max(len(frame), MinFrameLen), max(len(frame), MinFrameLen)+len(tag))
	copy(out, frame)
	return append(out, tag...), nil
}

// Destination reports which port an egress tag addresses, as the switch
// reads it. It returns 0 when tag selects no port or more than one.
func (c *Codec) Destination(tag []byte) core.PortID {
	if len(tag) != c.d.Width {
		return 0
	}
	for p := 1; p <= c.d.Ports; p++ {
		if string(c.d.Egress[p]) == string(tag) {
			return core.PortID(p)
		}
	}
	return 0
}

// Decode extracts the source port from the trailing tag and returns the
// frame without it. The returned slice aliases frame.
func (c *Codec) Decode(frame []byte) (core.PortID, []byte, error) {
	if len(frame) < HeaderLen+c.d.Width {
		return 0, nil, fmt.Errorf("%s frame of %d bytes: %w", c.d.Name, len(frame), core.ErrInvalidLength)
	}
	cut := len(frame) - c.d.Width
	src := c.d.Source(frame[cut:])
	if src < 1 || int(src) > c.d.Ports {
		return 0, nil, fmt.Errorf("%s source port %d: %w", c.d.Name, src, core.ErrInvalidPort)
	}
	return src, frame[:cut], nil
}
