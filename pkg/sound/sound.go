package sound

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultSampleRate = 44100

	// Sounds requested while the queue is full are dropped; the control loop must never wait for
	// the speaker.
	queueLength = 4
)

// Backend starts playing the sound at path, cutting off whatever was playing before.
type Backend interface {
	Play(path string) error
}

// Player queues sounds for a Backend.  Play never blocks; Run does the work.
type Player struct {
	sounds  chan string
	backend Backend
	log     *zap.SugaredLogger
}

func NewPlayer(backend Backend, log *zap.SugaredLogger) *Player {
	return &Player{
		sounds:  make(chan string, queueLength),
		backend: backend,
		log:     log,
	}
}

func (p *Player) Play(path string) {
	if path == "" {
		return
	}
	select {
	case p.sounds <- path:
	default:
		p.log.Debugw("Sound queue full, dropping", "sound", path)
	}
}

func (p *Player) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-p.sounds:
			if err := p.backend.Play(s); err != nil {
				p.log.Warnw("Unable to play sound", "sound", s, "error", err)
			}
		}
	}
}

// Speaker plays WAV files on the default audio device.
type Speaker struct {
	rate beep.SampleRate

	lock   sync.Mutex
	ctrl   *beep.Ctrl
	stream beep.StreamSeekCloser
}

func NewSpeaker(sampleRate int) (s *Speaker, err error) {
	rate := beep.SampleRate(sampleRate)
	defer func() {
		// The audio driver panics rather than failing when there is no sound card.
		if r := recover(); r != nil {
			s, err = nil, errors.Errorf("opening speaker: %v", r)
		}
	}()
	if err := speaker.Init(rate, rate.N(time.Second/5)); err != nil {
		return nil, errors.Wrap(err, "opening speaker")
	}
	return &Speaker{rate: rate}, nil
}

func (s *Speaker) Play(path string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopLocked()

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening sound")
	}
	stream, format, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "decoding %s", path)
	}
	if format.SampleRate != s.rate {
		_ = stream.Close()
		return errors.Errorf("%s is %d Hz, speaker runs at %d Hz", path, format.SampleRate, s.rate)
	}
	s.stream = stream
	s.ctrl = &beep.Ctrl{Streamer: stream}
	speaker.Play(s.ctrl)
	return nil
}

func (s *Speaker) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stopLocked()
}

func (s *Speaker) stopLocked() error {
	if s.ctrl != nil {
		speaker.Lock()
		s.ctrl.Paused = true
		s.ctrl.Streamer = nil
		speaker.Unlock()
		s.ctrl = nil
	}
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	return err
}
