package mecanum

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerbot-team/tigerbot/mecanum-controller/pkg/input"
)

func TestDeadband(t *testing.T) {
	for v := int32(-DefaultDeadband); v <= DefaultDeadband; v++ {
		if got := ApplyDeadband(v, DefaultDeadband); got != 0 {
			t.Fatalf("Input %v inside deadband returned %v", v, got)
		}
		p := Compute(v, v, v, DefaultArcadeOptions())
		if p != (Powers{}) {
			t.Fatalf("Input %v inside deadband produced powers %v", v, p)
		}
	}
	assert.Equal(t, int32(6), ApplyDeadband(6, DefaultDeadband))
	assert.Equal(t, int32(-6), ApplyDeadband(-6, DefaultDeadband))
}

func TestDeadbandPerAxis(t *testing.T) {
	// A sub-deadband twist contributes nothing on top of a real drive input.
	p := Compute(50, 0, 4, DefaultArcadeOptions())
	assert.Equal(t, Powers{50, 50, 50, 50}, p)
}

func TestCubic(t *testing.T) {
	assert.Equal(t, int32(0), Cubic(0))
	assert.Equal(t, int32(100), Cubic(100))
	assert.Equal(t, int32(-100), Cubic(-100))
	assert.Equal(t, int32(12), Cubic(50))
	for v := int32(-100); v <= 100; v++ {
		if Cubic(-v) != -Cubic(v) {
			t.Fatalf("Cubic not odd-symmetric at %v: %v vs %v", v, Cubic(-v), Cubic(v))
		}
		if input.Abs(Cubic(v)) > input.Abs(v) {
			t.Fatalf("Cubic(%v) = %v grew the input", v, Cubic(v))
		}
	}
}

func TestMix(t *testing.T) {
	assert.Equal(t, Powers{0, 0, 0, 0}, Mix(0, 0, 0))
	assert.Equal(t, Powers{10, 10, 10, 10}, Mix(10, 0, 0))
	assert.Equal(t, Powers{10, -10, -10, 10}, Mix(0, 10, 0))
	assert.Equal(t, Powers{10, -10, 10, -10}, Mix(0, 0, 10))
}

func TestComputeTwistOnly(t *testing.T) {
	p := Compute(0, 0, 50, DefaultArcadeOptions())
	assert.Equal(t, Powers{12, -12, 12, -12}, p)
}

func TestComputeDriveAndStrafe(t *testing.T) {
	assert.Equal(t, Powers{200, 0, 0, 200}, Mix(100, 100, 0))
	p := Compute(100, 100, 0, DefaultArcadeOptions())
	assert.Equal(t, Powers{100, 0, 0, 100}, p)
}

func TestComputeSaturatesInputs(t *testing.T) {
	p := Compute(32767, 0, 0, DefaultArcadeOptions())
	assert.Equal(t, Powers{100, 100, 100, 100}, p)
}

func TestNormalizeLeavesWeakSignals(t *testing.T) {
	p := Powers{10, -20, 30, -40}
	assert.Equal(t, p, Normalize(p))
	p = Powers{100, -100, 0, 50}
	assert.Equal(t, p, Normalize(p))
}

func TestNormalizeProperties(t *testing.T) {
	opts := Options{Deadband: DefaultDeadband}
	for d := int32(-100); d <= 100; d += 3 {
		for s := int32(-100); s <= 100; s += 7 {
			for tw := int32(-100); tw <= 100; tw += 11 {
				raw := Mix(ApplyDeadband(d, 5), ApplyDeadband(s, 5), ApplyDeadband(tw, 5))
				rawMax := maxAbs(raw)
				p := Compute(d, s, tw, opts)
				if rawMax <= MaxPower {
					if p != raw {
						t.Fatalf("In-range powers %v were rescaled to %v", raw, p)
					}
					continue
				}
				if maxAbs(p) != MaxPower {
					t.Fatalf("Powers %v normalized to %v; max should be exactly %v", raw, p, MaxPower)
				}
				for i := range p {
					ideal := float64(raw[i]) * MaxPower / float64(rawMax)
					if diff := ideal - float64(p[i]); diff > 1 || diff < -1 {
						t.Fatalf("Ratio not preserved for %v -> %v at wheel %d", raw, p, i)
					}
				}
			}
		}
	}
}

func TestNormalizeAwkwardMaxima(t *testing.T) {
	for _, m := range []int32{109, 110, 136, 218, 299} {
		p := Normalize(Powers{m, -m, 0, m / 2})
		assert.Equal(t, int32(100), p[FrontLeft], "max %d", m)
		assert.Equal(t, int32(-100), p[FrontRight], "max %d", m)
	}
}

func TestTankInputs(t *testing.T) {
	opts := DefaultTankOptions()

	// Both sticks forward: right is inverted by wiring, so pushing both "up" reads l=+v, r=-v.
	drive, twist := TankInputs(60, -60, opts)
	assert.Equal(t, int32(60), drive)
	assert.Equal(t, int32(0), twist)

	drive, twist = TankInputs(60, 60, opts)
	assert.Equal(t, int32(0), drive)
	assert.Equal(t, int32(60), twist)

	drive, twist = TankInputs(3, -4, opts)
	assert.Equal(t, int32(0), drive)
	assert.Equal(t, int32(0), twist)
}

func TestTankSignFlip(t *testing.T) {
	opts := DefaultTankOptions()
	for l := int32(-100); l <= 100; l += 9 {
		for r := int32(-100); r <= 100; r += 13 {
			d1, t1 := TankInputs(l, r, opts)
			d2, t2 := TankInputs(-l, -r, opts)
			if d2 != -d1 || t2 != -t1 {
				t.Fatalf("Sign flip of (%v, %v) gave (%v, %v) vs (%v, %v)", l, r, d2, t2, d1, t1)
			}
		}
	}
}

func TestComputeTank(t *testing.T) {
	opts := DefaultTankOptions()
	assert.Equal(t, Powers{50, 50, 50, 50}, ComputeTank(50, -50, 0, opts))
	assert.Equal(t, Powers{100, 0, 0, 100}, ComputeTank(100, -100, 100, opts))
	assert.Equal(t, Powers{30, -30, -30, 30}, ComputeTank(0, 0, 30, opts))
}

func maxAbs(p Powers) int32 {
	var m int32
	for _, v := range p {
		if input.Abs(v) > m {
			m = input.Abs(v)
		}
	}
	return m
}
