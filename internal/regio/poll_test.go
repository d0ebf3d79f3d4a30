package regio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/swctl/internal/core"
)

func TestPoller_UnboundedWaitsForCondition(t *testing.T) {
	calls := 0
	err := Poller{}.Until("ready", func() (bool, error) {
		calls++
		return calls == 50, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 50, calls)
}

func TestPoller_BoundedTimesOut(t *testing.T) {
	var timedOut string
	p := Poller{MaxAttempts: 3, OnTimeout: func(what string) { timedOut = what }}

	calls := 0
	err := p.Until("busy", func() (bool, error) {
		calls++
		return false, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrHardwareTimeout))
	assert.Equal(t, 3, calls)
	assert.Equal(t, "busy", timedOut)
}

func TestPoller_ConditionErrorStopsImmediately(t *testing.T) {
	boom := errors.New("bus fault")
	calls := 0
	err := Poller{MaxAttempts: 10}.Until("x", func() (bool, error) {
		calls++
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPoller_Backoff(t *testing.T) {
	p := Poller{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}
	start := time.Now()
	err := p.Until("slow", func() (bool, error) { return false, nil })
	assert.ErrorIs(t, err, core.ErrHardwareTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)
}

func TestPoller_WaitClear(t *testing.T) {
	sim := NewSim()
	sim.Set(0x10, 0x80)
	reads := 0
	sim.OnRead(0x10, func() uint32 {
		reads++
		if reads < 4 {
			return 0x80
		}
		return 0x01
	})

	require.NoError(t, Poller{}.WaitClear8(sim, 0x10, 0x80))
	assert.Equal(t, 4, reads)

	sim.Set(0x20, 0x8000)
	err := Poller{MaxAttempts: 2}.WaitClear16(sim, 0x20, 0x8000)
	assert.ErrorIs(t, err, core.ErrHardwareTimeout)

	sim.Set(0x30, 0)
	assert.NoError(t, Poller{MaxAttempts: 1}.WaitClear32(sim, 0x30, 0xffffffff))
}
