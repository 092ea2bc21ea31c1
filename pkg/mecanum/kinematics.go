package mecanum

import (
	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/input"
)

const (
	DefaultDeadband = 5

	// MaxPower is the largest wheel power that can be commanded, in percent.
	MaxPower = 100
)

// Indexes into Powers.
const (
	FrontLeft = iota
	FrontRight
	BackLeft
	BackRight
)

// Powers holds one velocity percentage per wheel, indexed by FrontLeft..BackRight.
type Powers [4]int32

// Options controls input conditioning.  The cubic flags trade top-end linearity for finer control near
// the centre of the stick; full deflection still maps to full power.
type Options struct {
	Deadband    int32
	CubicDrive  bool
	CubicStrafe bool
	CubicTwist  bool
}

func DefaultArcadeOptions() Options {
	return Options{
		Deadband:   DefaultDeadband,
		CubicTwist: true,
	}
}

func DefaultTankOptions() Options {
	return Options{
		Deadband: DefaultDeadband,
	}
}

// ApplyDeadband returns 0 if |v| <= threshold, otherwise v.
func ApplyDeadband(v, threshold int32) int32 {
	if input.Abs(v) > threshold {
		return v
	}
	return 0
}

// Cubic maps v in [-100, 100] to (v/100)^3 * 100, truncated toward zero.
func Cubic(v int32) int32 {
	scaled := float64(v) / input.FullScale
	scaled = scaled * scaled * scaled
	return int32(scaled * input.FullScale)
}

// Mix maps drive, strafe and twist onto the four mecanum wheels.
func Mix(drive, strafe, twist int32) Powers {
	return Powers{
		FrontLeft:  drive + twist + strafe,
		FrontRight: drive - twist - strafe,
		BackLeft:   drive + twist - strafe,
		BackRight:  drive - twist + strafe,
	}
}

// Normalize scales p down so the largest magnitude is exactly MaxPower, keeping the ratios between
// wheels.  Values already in range are returned unchanged.
//
// The scaling is v*100/max in integer arithmetic, which truncates toward zero exactly.  Dividing by a
// floating point max/100 instead lands on 99 for some maxima (109, 136, 299, ...).
func Normalize(p Powers) Powers {
	var maxPower int64
	for _, v := range p {
		if a := int64(input.Abs(v)); a > maxPower {
			maxPower = a
		}
	}
	if maxPower <= MaxPower {
		return p
	}
	for i, v := range p {
		p[i] = int32(int64(v) * MaxPower / maxPower)
	}
	return p
}

func condition(v int32, opts Options, cubic bool) int32 {
	v = input.Saturate(v, input.FullScale)
	v = ApplyDeadband(v, opts.Deadband)
	if cubic {
		v = Cubic(v)
	}
	return v
}

// Compute runs the full arcade pipeline: saturate, deadband, shape, mix, normalize.
func Compute(drive, strafe, twist int32, opts Options) Powers {
	drive = condition(drive, opts, opts.CubicDrive)
	strafe = condition(strafe, opts, opts.CubicStrafe)
	twist = condition(twist, opts, opts.CubicTwist)
	return Normalize(Mix(drive, strafe, twist))
}

// TankInputs converts left/right drive sticks into drive and twist.  The right stick is inverted
// before the deadband is applied.
func TankInputs(left, right int32, opts Options) (drive, twist int32) {
	left = ApplyDeadband(input.Saturate(left, input.FullScale), opts.Deadband)
	right = ApplyDeadband(-input.Saturate(right, input.FullScale), opts.Deadband)
	drive = (left + right) / 2
	twist = (left - right) / 2
	return
}

// ComputeTank is the tank-control counterpart of Compute.
func ComputeTank(left, right, strafe int32, opts Options) Powers {
	drive, twist := TankInputs(left, right, opts)
	if opts.CubicDrive {
		drive = Cubic(drive)
	}
	if opts.CubicTwist {
		twist = Cubic(twist)
	}
	strafe = condition(strafe, opts, opts.CubicStrafe)
	return Normalize(Mix(drive, strafe, twist))
}
