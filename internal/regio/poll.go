package regio

import (
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"firestige.xyz/swctl/internal/core"
)

// Poller bounds the hardware wait loops (identification, busy bits,
// data-ready). The zero value spins without limit and without sleeping,
// which matches the hardware's own completion guarantee.
type Poller struct {
	// MaxAttempts is the number of condition checks before giving up with
	// core.ErrHardwareTimeout. Zero means unbounded.
	MaxAttempts int

	// BackoffMin and BackoffMax enable exponential sleeps between checks
	// when BackoffMin is non-zero.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// OnTimeout is called when a bounded wait gives up.
	OnTimeout func(what string)
}

// Until calls cond until it reports done, returns an error, or the attempt
// bound is reached.
func (p Poller) Until(what string, cond func() (bool, error)) error {
	var b *backoff.Backoff
	if p.BackoffMin > 0 {
		b = &backoff.Backoff{Min: p.BackoffMin, Max: p.BackoffMax, Factor: 2}
		if b.Max < b.Min {
			b.Max = b.Min
		}
	}

	for attempt := 1; ; attempt++ {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			if p.OnTimeout != nil {
				p.OnTimeout(what)
			}
			return fmt.Errorf("%s after %d attempts: %w", what, attempt, core.ErrHardwareTimeout)
		}
		if b != nil {
			time.Sleep(b.Duration())
		}
	}
}

// WaitClear16 polls a 16-bit register until all bits in mask read zero.
func (p Poller) WaitClear16(port RegisterPort, addr uint32, mask uint16) error {
	return p.Until(fmt.Sprintf("wait 0x%04x & 0x%04x", addr, mask), func() (bool, error) {
		v, err := port.Read16(addr)
		return v&mask == 0, err
	})
}

// WaitClear8 polls an 8-bit register until all bits in mask read zero.
func (p Poller) WaitClear8(port RegisterPort, addr uint32, mask uint8) error {
	return p.Until(fmt.Sprintf("wait 0x%04x & 0x%02x", addr, mask), func() (bool, error) {
		v, err := port.Read8(addr)
		return v&mask == 0, err
	})
}

// WaitClear32 polls a 32-bit register until all bits in mask read zero.
func (p Poller) WaitClear32(port RegisterPort, addr uint32, mask uint32) error {
	return p.Until(fmt.Sprintf("wait 0x%04x & 0x%08x", addr, mask), func() (bool, error) {
		v, err := port.Read32(addr)
		return v&mask == 0, err
	})
}
