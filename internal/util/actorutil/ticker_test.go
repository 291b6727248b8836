package actorutil

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickMsg struct{}

func TestQuartzTicker(t *testing.T) {
	as := actor.NewActorSystem()
	defer as.Shutdown()

	var ticks atomic.Int32
	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if _, ok := ctx.Message().(tickMsg); ok {
			ticks.Add(1)
		}
	}))

	ticker, err := StartQuartzTicker(as.Root, pid, "test_ticker", 50*time.Millisecond, func() any { return tickMsg{} })
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)

	ticker.Stop()
	time.Sleep(100 * time.Millisecond)
	stopped := ticks.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load())

	// stopping twice or a nil ticker is harmless
	ticker.Stop()
	var none *QuartzTicker
	none.Stop()
}
