package robot

import (
	"sync"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/lift"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/screen"
)

// Announcer plays a sound without blocking.
type Announcer interface {
	Play(path string)
}

// statusTracker runs after each tick, outside the subsystem list.  It copies what the subsystems did
// into a snapshot that other goroutines may read, and announces lift presets as they are selected.
type statusTracker struct {
	drive   string
	lift    *lift.Lift
	battery func() float32
	sounds  config.SoundConfig
	speaker Announcer

	lock     sync.Mutex
	snapshot screen.Status
	// Only touched from sample.
	lastLift lift.State
}

func (t *statusTracker) sample() {
	state := t.lift.State()
	if state != t.lastLift {
		t.lastLift = state
		t.announce(state)
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	t.snapshot = screen.Status{
		BatteryVolts: float64(t.battery()),
		Drive:        t.drive,
		Lift:         state.String(),
	}
}

func (t *statusTracker) announce(state lift.State) {
	if t.speaker == nil {
		return
	}
	switch state {
	case lift.Ground:
		t.speaker.Play(t.sounds.Ground)
	case lift.LowerTower:
		t.speaker.Play(t.sounds.LowerTower)
	case lift.UpperTower:
		t.speaker.Play(t.sounds.UpperTower)
	}
}

func (t *statusTracker) Status() screen.Status {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.snapshot
}
