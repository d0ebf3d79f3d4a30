package tailtag

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/swctl/internal/core"
)

// LayerTypeTailTag identifies a switch tail tag inside gopacket.
var LayerTypeTailTag = gopacket.RegisterLayerType(2301, gopacket.LayerTypeMetadata{
	Name:    "TailTag",
	Decoder: gopacket.DecodePayload,
})

// Layer appends a tail tag during gopacket.SerializeLayers. It must be the
// last layer passed, and the payload before it must already be padded to
// MinFrameLen, since serialization runs back to front.
type Layer struct {
	Codec *Codec
	Port  core.PortID
}

func (l *Layer) LayerType() gopacket.LayerType { return LayerTypeTailTag }

func (l *Layer) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	tag, err := l.Codec.Tag(l.Port)
	if err != nil {
		return err
	}
	out, err := b.AppendBytes(len(tag))
	if err != nil {
		return err
	}
	copy(out, tag)
	return nil
}

// Inspect decodes the tag of a received frame and parses the rest as an
// Ethernet packet.
func (c *Codec) Inspect(frame []byte) (core.PortID, gopacket.Packet, error) {
	src, trimmed, err := c.Decode(frame)
	if err != nil {
		return 0, nil, err
	}
	pkt := gopacket.NewPacket(trimmed, layers.LayerTypeEthernet, gopacket.Default)
	return src, pkt, nil
}
