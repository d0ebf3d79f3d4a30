package regio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSim_ReadWriteWidths(t *testing.T) {
	sim := NewSim()

	require.NoError(t, sim.Write8(0x01, 0xab))
	require.NoError(t, sim.Write16(0x02, 0xbeef))
	require.NoError(t, sim.Write32(0x04, 0xdeadbeef))

	v8, err := sim.Read8(0x01)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xab), v8)

	v16, err := sim.Read16(0x02)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xbeef), v16)

	v32, err := sim.Read32(0x04)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v32)

	reads, writes := sim.Counts()
	assert.Equal(t, 3, reads)
	assert.Equal(t, 3, writes)
}

func TestSim_Hooks(t *testing.T) {
	sim := NewSim()
	// self-clearing trigger
	sim.OnWrite(0x10, func(v uint32) {
		if v&0x80 != 0 {
			sim.Set(0x11, v&0x7f)
			sim.Set(0x10, v&^0x80)
		}
	})
	sim.OnRead(0x12, func() uint32 { return 0x42 })

	require.NoError(t, sim.Write8(0x10, 0x85))
	assert.Equal(t, uint32(0x05), sim.Get(0x10))
	assert.Equal(t, uint32(0x05), sim.Get(0x11))

	v, err := sim.Read8(0x12)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), v)
}

func TestSim_FailWith(t *testing.T) {
	sim := NewSim()
	boom := errors.New("no ack")
	sim.FailWith(boom)

	_, err := sim.Read16(0)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, sim.Write16(0, 1), boom)

	sim.FailWith(nil)
	assert.NoError(t, sim.Write16(0, 1))
}

func TestUpdate(t *testing.T) {
	sim := NewSim()
	sim.Set(0x6e, 0x07)
	require.NoError(t, Update8(sim, 0x6e, 0x04, 0x00))
	assert.Equal(t, uint32(0x03), sim.Get(0x6e))

	sim.Set(0x80, 0xf0f0)
	require.NoError(t, Update16(sim, 0x80, 0x00f0, 0x000f))
	assert.Equal(t, uint32(0xf00f), sim.Get(0x80))

	sim.Set(0x400, 0)
	require.NoError(t, Update32(sim, 0x400, 0, 1<<31))
	assert.Equal(t, uint32(1<<31), sim.Get(0x400))
}
