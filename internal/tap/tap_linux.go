//go:build linux

package tap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/swctl/internal/log"
	"firestige.xyz/swctl/internal/tailtag"
)

// Tap is an AF_PACKET capture on the host MAC interface.
type Tap struct {
	handle  *afpacket.TPacket
	decoder *Decoder
}

// Open binds a TPACKET_V3 ring to cfg.Interface and installs the length
// filter for codec's tag width.
func Open(cfg Config, codec *tailtag.Codec) (*Tap, error) {
	cfg.applyDefaults()
	frameSize, blockSize, numBlocks, err := ringSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	h, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(cfg.TimeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Interface, err)
	}

	filter, err := lengthFilter(codec.Width(), cfg.SnapLen)
	if err == nil {
		err = h.SetBPF(filter)
	}
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("install filter on %s: %w", cfg.Interface, err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"interface": cfg.Interface,
		"dialect":   codec.Name(),
		"blocks":    numBlocks,
		"block":     blockSize,
	}).Info("tap opened")
	return &Tap{handle: h, decoder: NewDecoder(cfg.Interface, codec)}, nil
}

func (t *Tap) Decoder() *Decoder { return t.decoder }

// Run reads frames until ctx is done, passing each decoded one to fn.
// Undecodable frames are counted and skipped.
func (t *Tap) Run(ctx context.Context, fn func(Frame)) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		data, ci, err := t.handle.ZeroCopyReadPacketData()
		if errors.Is(err, afpacket.ErrTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		// the ring slot is reused by the next read
		frame := append([]byte(nil), data...)
		f, err := t.decoder.Process(frame, ci)
		if err != nil {
			log.GetLogger().WithError(err).Debug("frame skipped")
			continue
		}
		if fn != nil {
			fn(f)
		}
	}
}

func (t *Tap) Close() error {
	t.handle.Close()
	return nil
}
