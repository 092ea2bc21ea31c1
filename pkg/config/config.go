package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/actuator"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/lift"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/mecanum"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/roller"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/screen"
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/sound"
)

const (
	EnvPrefix = "MECANUM_"

	DriveModeArcade = "arcade"
	DriveModeTank   = "tank"

	DefaultTickMS      = 25
	DefaultBumperPower = 80
)

type Config struct {
	TickMS      int          `yaml:"tick_ms"`
	BumperPower int32        `yaml:"bumper_power"`
	Drive       DriveConfig  `yaml:"drive"`
	Lift        LiftConfig   `yaml:"lift"`
	Roller      RollerConfig `yaml:"roller"`
	Hardware    Hardware     `yaml:"hardware"`
	Sound       SoundConfig  `yaml:"sound"`
	Screen      ScreenConfig `yaml:"screen"`
	Log         LogConfig    `yaml:"log"`
}

type DriveConfig struct {
	Mode     string `yaml:"mode"`
	Deadband int32  `yaml:"deadband"`

	// Shaping flags left unset take the defaults for Mode: arcade cubes twist, tank shapes nothing.
	CubicDrive  *bool `yaml:"cubic_drive,omitempty"`
	CubicStrafe *bool `yaml:"cubic_strafe,omitempty"`
	CubicTwist  *bool `yaml:"cubic_twist,omitempty"`

	// Tank mode only: hold the left stick button to halve wheel power.
	HalfSpeed bool `yaml:"half_speed"`
}

type LiftConfig struct {
	Deadband    int32   `yaml:"deadband"`
	Floor       float64 `yaml:"floor"`
	LowerTower  float64 `yaml:"lower_tower"`
	UpperTower  float64 `yaml:"upper_tower"`
	MaxHeight   float64 `yaml:"max_height"`
	Unit        string  `yaml:"unit"`
	ClampManual bool    `yaml:"clamp_manual"`
}

type RollerConfig struct {
	Enabled bool  `yaml:"enabled"`
	Power   int32 `yaml:"power"`
}

type Hardware struct {
	I2CBus      string `yaml:"i2c_bus"`
	PicoAddr    int    `yaml:"pico_addr"`
	PWMAddr     int    `yaml:"pwm_addr"`
	PicoMaxRaw  int16  `yaml:"pico_max_raw"`
	LiftLeft    ESC    `yaml:"lift_left"`
	LiftRight   ESC    `yaml:"lift_right"`
	RollerLeft  ESC    `yaml:"roller_left"`
	RollerRight ESC    `yaml:"roller_right"`
}

// ESC describes one speed controller on the PWM board and its optional quadrature encoder.
type ESC struct {
	Channel     int     `yaml:"channel"`
	Inverted    bool    `yaml:"inverted"`
	EncoderA    string  `yaml:"encoder_a"`
	EncoderB    string  `yaml:"encoder_b"`
	TicksPerRev float64 `yaml:"ticks_per_rev"`
}

// SoundConfig names the WAV files to play.  Empty paths are silent.
type SoundConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SampleRate int    `yaml:"sample_rate"`
	Startup    string `yaml:"startup"`
	Ground     string `yaml:"ground"`
	LowerTower string `yaml:"lower_tower"`
	UpperTower string `yaml:"upper_tower"`
}

type ScreenConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Device    string `yaml:"device"`
	RefreshMS int    `yaml:"refresh_ms"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	lc := lift.DefaultConfig()
	return Config{
		TickMS:      DefaultTickMS,
		BumperPower: DefaultBumperPower,
		Drive: DriveConfig{
			Mode:     DriveModeArcade,
			Deadband: mecanum.DefaultDeadband,
		},
		Lift: LiftConfig{
			Deadband:    lc.Deadband,
			Floor:       lc.Floor,
			LowerTower:  lc.LowerTower,
			UpperTower:  lc.UpperTower,
			MaxHeight:   lc.MaxHeight,
			Unit:        lc.Unit.String(),
			ClampManual: lc.ClampManual,
		},
		Roller: RollerConfig{
			Power: roller.DefaultPower,
		},
		Hardware: Hardware{
			I2CBus:      "/dev/i2c-1",
			PicoAddr:    0x42,
			PWMAddr:     0x40,
			PicoMaxRaw:  4000,
			LiftLeft:    ESC{Channel: 0, TicksPerRev: actuator.RawPerRev},
			LiftRight:   ESC{Channel: 1, TicksPerRev: actuator.RawPerRev},
			RollerLeft:  ESC{Channel: 2, TicksPerRev: actuator.RawPerRev},
			RollerRight: ESC{Channel: 3, TicksPerRev: actuator.RawPerRev},
		},
		Sound: SoundConfig{
			SampleRate: sound.DefaultSampleRate,
		},
		Screen: ScreenConfig{
			Device:    screen.DefaultDevice,
			RefreshMS: int(screen.DefaultRefresh / time.Millisecond),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies environment overrides.  An empty
// path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := ioutil.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.TickMS = GetIntEnv("TICK_MS", c.TickMS)
	c.BumperPower = int32(GetIntEnv("BUMPER_POWER", int(c.BumperPower)))
	c.Drive.Mode = GetStringEnv("DRIVE_MODE", c.Drive.Mode)
	c.Drive.Deadband = int32(GetIntEnv("DRIVE_DEADBAND", int(c.Drive.Deadband)))
	c.Drive.HalfSpeed = GetBoolEnv("DRIVE_HALF_SPEED", c.Drive.HalfSpeed)
	c.Lift.Deadband = int32(GetIntEnv("LIFT_DEADBAND", int(c.Lift.Deadband)))
	c.Lift.Unit = GetStringEnv("LIFT_UNIT", c.Lift.Unit)
	c.Lift.ClampManual = GetBoolEnv("LIFT_CLAMP", c.Lift.ClampManual)
	c.Roller.Enabled = GetBoolEnv("ROLLER_ENABLED", c.Roller.Enabled)
	c.Roller.Power = int32(GetIntEnv("ROLLER_POWER", int(c.Roller.Power)))
	c.Hardware.I2CBus = GetStringEnv("I2C_BUS", c.Hardware.I2CBus)
	c.Sound.Enabled = GetBoolEnv("SOUND_ENABLED", c.Sound.Enabled)
	c.Screen.Enabled = GetBoolEnv("SCREEN_ENABLED", c.Screen.Enabled)
	c.Screen.Device = GetStringEnv("SCREEN_DEVICE", c.Screen.Device)
	c.Log.Level = GetStringEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Development = GetBoolEnv("LOG_DEVELOPMENT", c.Log.Development)
}

func (c Config) Validate() error {
	if c.TickMS <= 0 {
		return errors.Errorf("tick_ms must be positive, got %d", c.TickMS)
	}
	switch c.Drive.Mode {
	case DriveModeArcade, DriveModeTank:
	default:
		return errors.Errorf("unknown drive mode %q", c.Drive.Mode)
	}
	if c.Drive.Deadband < 0 || c.Lift.Deadband < 0 {
		return errors.New("deadbands must not be negative")
	}
	if _, err := actuator.ParseRotationUnit(c.Lift.Unit); err != nil {
		return errors.Wrap(err, "lift")
	}
	l := c.Lift
	if !(l.Floor <= l.LowerTower && l.LowerTower <= l.UpperTower && l.UpperTower <= l.MaxHeight) {
		return errors.Errorf("lift setpoints out of order: floor=%v lower=%v upper=%v max=%v",
			l.Floor, l.LowerTower, l.UpperTower, l.MaxHeight)
	}
	if c.Roller.Power < 0 || c.Roller.Power > 100 {
		return errors.Errorf("roller power must be in [0, 100], got %d", c.Roller.Power)
	}
	if c.Sound.Enabled && c.Sound.SampleRate <= 0 {
		return errors.Errorf("sound sample_rate must be positive, got %d", c.Sound.SampleRate)
	}
	if c.Screen.Enabled && c.Screen.RefreshMS <= 0 {
		return errors.Errorf("screen refresh_ms must be positive, got %d", c.Screen.RefreshMS)
	}
	return nil
}

func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

func (c Config) ScreenRefresh() time.Duration {
	return time.Duration(c.Screen.RefreshMS) * time.Millisecond
}

func (c Config) DriveOptions() mecanum.Options {
	opts := mecanum.DefaultArcadeOptions()
	if c.Drive.Mode == DriveModeTank {
		opts = mecanum.DefaultTankOptions()
	}
	opts.Deadband = c.Drive.Deadband
	setIfPresent(&opts.CubicDrive, c.Drive.CubicDrive)
	setIfPresent(&opts.CubicStrafe, c.Drive.CubicStrafe)
	setIfPresent(&opts.CubicTwist, c.Drive.CubicTwist)
	return opts
}

func setIfPresent(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// LiftOptions converts to the lift package's config.  Call Validate first.
func (c Config) LiftOptions() lift.Config {
	unit, _ := actuator.ParseRotationUnit(c.Lift.Unit)
	return lift.Config{
		Deadband:    c.Lift.Deadband,
		Floor:       c.Lift.Floor,
		LowerTower:  c.Lift.LowerTower,
		UpperTower:  c.Lift.UpperTower,
		MaxHeight:   c.Lift.MaxHeight,
		Unit:        unit,
		ClampManual: c.Lift.ClampManual,
	}
}

// Marshal renders the effective config, for logging what is in use.
func (c Config) Marshal() (string, error) {
	out, err := yaml.Marshal(&c)
	if err != nil {
		return "", errors.Wrap(err, "marshalling config")
	}
	return string(out), nil
}

func GetIntEnv(env string, defaultValue int) int {
	envValue, found := os.LookupEnv(EnvPrefix + env)
	if !found {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(envValue))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetBoolEnv(env string, defaultValue bool) bool {
	envValue, found := os.LookupEnv(EnvPrefix + env)
	if !found {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(envValue))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetStringEnv(env string, defaultValue string) string {
	envValue, found := os.LookupEnv(EnvPrefix + env)
	if !found {
		return defaultValue
	}
	return strings.TrimSpace(envValue)
}
