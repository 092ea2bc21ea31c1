package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/robot"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/screen"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/sound"
)

const (
	defaultJoystick = "/dev/input/js0"

	// How long shutdown may take after a signal before we give up and exit.
	shutdownGrace = 2 * time.Second
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "controller:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "controller",
		Usage: "drive a mecanum robot from a joystick",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file; defaults are used if unset",
				EnvVars: []string{"MECANUM_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "joystick",
				Usage:   "joystick device",
				Value:   defaultJoystick,
				EnvVars: []string{"JOYSTICK_DEVICE"},
			},
			&cli.BoolFlag{
				Name:    "dummy",
				Usage:   "run against simulated motors instead of the I2C hardware",
				EnvVars: []string{"IGNORE_MISSING_HARDWARE"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "overrides the configured log level (debug, info, warn, error)",
			},
		},
		Action: run,
	}
}

func newLogger(cfg config.LogConfig) (*zap.SugaredLogger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "parsing log level")
	}
	zc.Level = level
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger.Sugar(), nil
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()
	log = log.With("run", uuid.New().String())
	log.Infow("---- Mecanum controller ----", "GOMAXPROCS", runtime.GOMAXPROCS(0))
	if out, err := cfg.Marshal(); err == nil {
		log.Debugw("Effective config", "config", out)
	}

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	registerSignalHandlers(cancel, log)

	var hw hardware.Interface
	if c.Bool("dummy") {
		hw = hardware.NewDummy(clock.New(), log.Named("hw"))
	} else {
		hw, err = hardware.Open(cfg.Hardware, log.Named("hw"))
		if err != nil {
			return err
		}
	}
	defer func() {
		log.Infow("Zeroing motors for shut down")
		cancel()
		if err := hw.Shutdown(); err != nil {
			log.Warnw("Errors during hardware shutdown", "error", err)
		}
	}()
	if err := hw.Start(ctx); err != nil {
		return err
	}

	var opts []robot.Option
	var player *sound.Player
	if cfg.Sound.Enabled {
		spk, err := sound.NewSpeaker(cfg.Sound.SampleRate)
		if err != nil {
			log.Warnw("Sound unavailable, continuing without it", "error", err)
		} else {
			defer func() {
				_ = spk.Close()
			}()
			player = sound.NewPlayer(spk, log.Named("sound"))
			opts = append(opts, robot.WithAnnouncer(player))
			player.Play(cfg.Sound.Startup)
		}
	}

	js := joystick.NewState()
	bot := robot.New(cfg, hw, robot.JoystickControls(js), clock.New(), log, opts...)

	g, gctx := errgroup.WithContext(ctx)
	if player != nil {
		g.Go(func() error {
			return player.Run(gctx)
		})
	}
	if cfg.Screen.Enabled {
		startScreen(gctx, g, cfg, bot, log.Named("screen"))
	}
	g.Go(func() error {
		return runJoystick(gctx, c.String("joystick"), js, log.Named("joystick"))
	})
	g.Go(func() error {
		return bot.Run(gctx)
	})

	err = g.Wait()
	if ctx.Err() != nil {
		// Shut down on request.
		return nil
	}
	return err
}

// startScreen shows the robot's status.  The screen is a nice-to-have, so failures are logged and
// otherwise ignored.
func startScreen(ctx context.Context, g *errgroup.Group, cfg config.Config, bot *robot.Robot, log *zap.SugaredLogger) {
	display, err := screen.Open(cfg.Screen.Device, bot.Status, clock.New(), log)
	if err != nil {
		log.Warnw("Failed to open screen, ignoring", "device", cfg.Screen.Device, "error", err)
		return
	}
	g.Go(func() error {
		err := display.Run(ctx, cfg.ScreenRefresh())
		if ctx.Err() == nil {
			log.Warnw("Screen stopped", "error", err)
		}
		return nil
	})
}

// runJoystick waits for the joystick to appear, then feeds its events into js.  Losing the joystick is
// fatal: the robot must not keep driving on stale input.
func runJoystick(ctx context.Context, device string, js *joystick.State, log *zap.SugaredLogger) error {
	var j *joystick.Joystick
	firstLog := true
	for {
		var err error
		j, err = joystick.NewJoystick(device)
		if err == nil {
			break
		}
		if firstLog {
			log.Warnw("Waiting for joystick", "device", device, "error", err)
			firstLog = false
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	log.Infow("Opened joystick", "device", device)

	// Closing the device unblocks the pending read.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = j.Close()
	}()

	err := joystick.Pump(ctx, j, js, log)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Wrap(err, "joystick failed")
}

func registerSignalHandlers(cancel context.CancelFunc, log *zap.SugaredLogger) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Infow("Signal", "signal", s)
		cancel()
		time.Sleep(shutdownGrace)
		log.Errorw("Shutdown timed out")
		os.Exit(1)
	}()
}
