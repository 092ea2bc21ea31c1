package subsystem

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Subsystem is one independently-updated part of the robot.  Update reads the subsystem's inputs and
// issues commands to the actuators it owns.  It is called once per tick from a single goroutine and
// must not block.
type Subsystem interface {
	Update()
}

// Named subsystems are identified by name in logs.
type Named interface {
	Name() string
}

const DefaultPeriod = 25 * time.Millisecond

// How often Run logs its statistics.
const statsInterval = 5 * time.Second

type Stats struct {
	Ticks    uint64
	Overruns uint64
	// Longest time spent running the subsystems in one tick.
	MaxTickDuration time.Duration
}

// Scheduler updates its subsystems, in registration order, once per period.
//
// Deadlines advance by exactly one period per tick, so the loop does not drift.  If a tick finishes at
// or after the next deadline, the next tick starts straight away and the schedule restarts from that
// moment: there is no burst of catch-up ticks and no tick is skipped.
type Scheduler struct {
	period     time.Duration
	clock      clock.Clock
	log        *zap.SugaredLogger
	subsystems []Subsystem
	observers  []func()

	stats Stats
}

func New(period time.Duration, clk clock.Clock, log *zap.SugaredLogger) *Scheduler {
	if period <= 0 {
		panic(fmt.Sprintf("subsystem: non-positive tick period %v", period))
	}
	return &Scheduler{
		period: period,
		clock:  clk,
		log:    log,
	}
}

// Register appends subsystems to the update order.  Must not be called once Run has started.
func (s *Scheduler) Register(subsystems ...Subsystem) {
	for _, sub := range subsystems {
		s.log.Infow("Registered subsystem", "name", nameOf(sub), "position", len(s.subsystems))
		s.subsystems = append(s.subsystems, sub)
	}
}

// AfterTick adds fn to run at the end of every tick, once all subsystems have updated.  Observers see
// the subsystems' settled state; they are not subsystems and must not drive actuators.
func (s *Scheduler) AfterTick(fn func()) {
	s.observers = append(s.observers, fn)
}

func (s *Scheduler) Subsystems() []Subsystem {
	return append([]Subsystem(nil), s.subsystems...)
}

func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Tick updates every subsystem once.
func (s *Scheduler) Tick() {
	start := s.clock.Now()
	for _, sub := range s.subsystems {
		sub.Update()
	}
	for _, fn := range s.observers {
		fn()
	}
	s.stats.Ticks++
	if d := s.clock.Since(start); d > s.stats.MaxTickDuration {
		s.stats.MaxTickDuration = d
	}
}

// Run ticks until ctx is cancelled.  It only returns ctx's error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Infow("Scheduler starting", "period", s.period, "subsystems", len(s.subsystems))
	deadline := s.clock.Now()
	lastStats := deadline
	for {
		if err := ctx.Err(); err != nil {
			s.log.Infow("Scheduler stopping", "ticks", s.stats.Ticks, "overruns", s.stats.Overruns)
			return err
		}

		s.Tick()

		deadline = deadline.Add(s.period)
		now := s.clock.Now()
		if now.Sub(lastStats) >= statsInterval {
			s.log.Debugw("Scheduler still running", "ticks", s.stats.Ticks, "overruns", s.stats.Overruns,
				"maxTick", s.stats.MaxTickDuration)
			lastStats = now
		}
		if !now.Before(deadline) {
			s.stats.Overruns++
			s.log.Debugw("Tick overran", "late", now.Sub(deadline))
			deadline = now
			continue
		}

		timer := s.clock.Timer(deadline.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) Stats() Stats {
	return s.stats
}

func nameOf(sub Subsystem) string {
	if n, ok := sub.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", sub)
}
