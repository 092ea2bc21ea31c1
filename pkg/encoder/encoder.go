package encoder

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// How long each edge wait blocks before re-checking for cancellation.
const edgeTimeout = 100 * time.Millisecond

// Pin is the part of a periph GPIO input the encoder uses.
type Pin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

// Quadrature counts the steps of a two-channel incremental encoder.
type Quadrature struct {
	a, b Pin
	log  *zap.SugaredLogger

	lock  sync.Mutex
	state uint8
	count int64
	// Transitions that skipped a state, so the direction is unknown.
	missed uint64
}

// Open initialises periph and claims the two named GPIO pins, for example "GPIO17" and "GPIO27".
func Open(pinA, pinB string, log *zap.SugaredLogger) (*Quadrature, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initialising periph")
	}
	a := gpioreg.ByName(pinA)
	if a == nil {
		return nil, errors.Errorf("no GPIO pin named %q", pinA)
	}
	b := gpioreg.ByName(pinB)
	if b == nil {
		return nil, errors.Errorf("no GPIO pin named %q", pinB)
	}
	return New(a, b, log.With("pinA", pinA, "pinB", pinB))
}

func New(a, b Pin, log *zap.SugaredLogger) (*Quadrature, error) {
	for _, p := range []Pin{a, b} {
		if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return nil, errors.Wrap(err, "configuring encoder pin")
		}
	}
	q := &Quadrature{
		a:   a,
		b:   b,
		log: log,
	}
	q.state = q.sample()
	return q, nil
}

func (q *Quadrature) sample() uint8 {
	var s uint8
	if q.a.Read() == gpio.High {
		s |= 2
	}
	if q.b.Read() == gpio.High {
		s |= 1
	}
	return s
}

// Count delta indexed by previous<<2 | current, with the state as A<<1 | B.  Zero entries are either no
// change or a skipped state.
var transitions = [16]int8{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// Update samples both pins and applies any transition since the last sample.
func (q *Quadrature) Update() {
	q.lock.Lock()
	defer q.lock.Unlock()
	next := q.sample()
	if next == q.state {
		return
	}
	idx := q.state<<2 | next
	if d := transitions[idx]; d != 0 {
		q.count += int64(d)
	} else {
		q.missed++
	}
	q.state = next
}

func (q *Quadrature) Count() int64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.count
}

func (q *Quadrature) Missed() uint64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.missed
}

// Reset makes the current position zero.
func (q *Quadrature) Reset() {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.count = 0
}

// Run watches both pins for edges until ctx is done.
func (q *Quadrature) Run(ctx context.Context) error {
	q.log.Infow("Encoder running")
	var wg sync.WaitGroup
	for _, p := range []Pin{q.a, q.b} {
		wg.Add(1)
		go func(p Pin) {
			defer wg.Done()
			for ctx.Err() == nil {
				if p.WaitForEdge(edgeTimeout) {
					q.Update()
				}
			}
		}(p)
	}
	wg.Wait()
	q.log.Infow("Encoder stopped", "count", q.Count(), "missed", q.Missed())
	return ctx.Err()
}
