package events_test

import (
	"testing"

	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents(t *testing.T) {
	evts := events.New()

	a := evts.Acquire("a")
	b := evts.Acquire("b")
	assert.Equal(t, a, evts.Acquire("a"), "acquiring twice returns the same channel")
	assert.Equal(t, 2, evts.Count())

	evts.Send("block mined")
	assert.Equal(t, "block mined", <-a)
	assert.Equal(t, "block mined", <-b)

	require.NoError(t, evts.Release("a"))
	require.Error(t, evts.Release("a"))

	_, open := <-a
	assert.False(t, open, "released channels are closed")

	for range 101 {
		evts.Send("flood")
	}
	assert.Equal(t, uint64(1), evts.Dropped(), "a full receiver never blocks the sender")

	evts.Shutdown()
	assert.Zero(t, evts.Count())
}
