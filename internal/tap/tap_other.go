//go:build !linux

package tap

import (
	"context"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/tailtag"
)

type Tap struct{}

func Open(Config, *tailtag.Codec) (*Tap, error) { return nil, core.ErrUnsupported }

func (t *Tap) Decoder() *Decoder                      { return nil }
func (t *Tap) Run(context.Context, func(Frame)) error { return core.ErrUnsupported }
func (t *Tap) Close() error                           { return nil }
