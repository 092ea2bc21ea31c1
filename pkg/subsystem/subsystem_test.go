package subsystem

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	name string
	log  *[]string
}

func (r *recorder) Update() {
	*r.log = append(*r.log, r.name)
}

func (r *recorder) Name() string {
	return r.name
}

// funcSubsystem adapts a function to Subsystem.
type funcSubsystem func()

func (f funcSubsystem) Update() {
	f()
}

func TestTickRunsSubsystemsInOrder(t *testing.T) {
	var calls []string
	s := New(DefaultPeriod, clock.NewMock(), zaptest.NewLogger(t).Sugar())
	s.Register(&recorder{"drive", &calls}, &recorder{"lift", &calls})
	s.Register(&recorder{"roller", &calls})

	s.Tick()
	s.Tick()

	assert.Equal(t, []string{"drive", "lift", "roller", "drive", "lift", "roller"}, calls)
	assert.Equal(t, uint64(2), s.Stats().Ticks)
	assert.Len(t, s.Subsystems(), 3)
}

func TestAfterTickRunsOnceSubsystemsHaveUpdated(t *testing.T) {
	var calls []string
	s := New(DefaultPeriod, clock.NewMock(), zaptest.NewLogger(t).Sugar())
	s.AfterTick(func() {
		calls = append(calls, "status")
	})
	s.Register(&recorder{"drive", &calls}, &recorder{"lift", &calls})

	s.Tick()

	assert.Equal(t, []string{"drive", "lift", "status"}, calls)
	assert.Len(t, s.Subsystems(), 2)
}

func TestNewRejectsBadPeriod(t *testing.T) {
	assert.Panics(t, func() {
		New(0, clock.NewMock(), zaptest.NewLogger(t).Sugar())
	})
}

func expectTick(t *testing.T, ticks chan int, n int) {
	t.Helper()
	select {
	case got := <-ticks:
		require.Equal(t, n, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("Timed out waiting for tick %d", n)
	}
}

func expectNoTick(t *testing.T, ticks chan int) {
	t.Helper()
	select {
	case got := <-ticks:
		t.Fatalf("Unexpected tick %d", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunTicksOncePerPeriod(t *testing.T) {
	clk := clock.NewMock()
	s := New(DefaultPeriod, clk, zaptest.NewLogger(t).Sugar())
	ticks := make(chan int, 100)
	count := 0
	s.Register(funcSubsystem(func() {
		count++
		ticks <- count
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.Run(ctx)
	}()

	expectTick(t, ticks, 1)
	expectNoTick(t, ticks)

	clk.Add(DefaultPeriod)
	expectTick(t, ticks, 2)
	expectNoTick(t, ticks)

	clk.Add(DefaultPeriod)
	expectTick(t, ticks, 3)

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, uint64(3), s.Stats().Ticks)
}

func TestRunStartsNextTickImmediatelyAfterOverrun(t *testing.T) {
	clk := clock.NewMock()
	s := New(DefaultPeriod, clk, zaptest.NewLogger(t).Sugar())
	ticks := make(chan int, 100)
	count := 0
	s.Register(funcSubsystem(func() {
		count++
		if count == 1 {
			// Simulate a slow first tick.
			clk.Add(3 * DefaultPeriod)
		}
		ticks <- count
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.Run(ctx)
	}()

	expectTick(t, ticks, 1)
	// No time passes, but tick 2 still runs: the first one overran.
	expectTick(t, ticks, 2)
	// Only one extra tick, no catch-up burst.
	expectNoTick(t, ticks)

	clk.Add(DefaultPeriod)
	expectTick(t, ticks, 3)

	cancel()
	require.Equal(t, context.Canceled, <-done)
	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Overruns)
	assert.Equal(t, 3*DefaultPeriod, stats.MaxTickDuration)
}

func TestRunReturnsImmediatelyIfCancelled(t *testing.T) {
	s := New(DefaultPeriod, clock.NewMock(), zaptest.NewLogger(t).Sugar())
	called := false
	s.Register(funcSubsystem(func() { called = true }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, s.Run(ctx))
	assert.False(t, called)
}
