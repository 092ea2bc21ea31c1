package sound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingBackend struct {
	lock   sync.Mutex
	played []string
	fail   bool
}

func (b *recordingBackend) Play(path string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.played = append(b.played, path)
	if b.fail {
		return errors.New("no sound card")
	}
	return nil
}

func (b *recordingBackend) get() []string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]string(nil), b.played...)
}

func TestPlayerPlaysInOrder(t *testing.T) {
	b := &recordingBackend{}
	p := NewPlayer(b, zaptest.NewLogger(t).Sugar())
	p.Play("hello.wav")
	p.Play("")
	p.Play("ground.wav")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- p.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return len(b.get()) == 2
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, []string{"hello.wav", "ground.wav"}, b.get())

	cancel()
	assert.Equal(t, context.Canceled, <-done)
}

func TestPlayNeverBlocks(t *testing.T) {
	p := NewPlayer(&recordingBackend{}, zaptest.NewLogger(t).Sugar())
	// Nothing is draining the queue.
	for i := 0; i < queueLength*3; i++ {
		p.Play("beep.wav")
	}
	assert.Len(t, p.sounds, queueLength)
}

func TestBackendErrorsAreNotFatal(t *testing.T) {
	b := &recordingBackend{fail: true}
	p := NewPlayer(b, zaptest.NewLogger(t).Sugar())
	p.Play("a.wav")
	p.Play("b.wav")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = p.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return len(b.get()) == 2
	}, 5*time.Second, time.Millisecond)
}
