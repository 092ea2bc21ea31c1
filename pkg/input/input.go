package input

// Axis returns the instantaneous position of an operator control, conventionally in [-100, 100]
// (percent of full deflection).  Axis functions must be side-effect free; subsystems call each one at
// most once per tick.
type Axis func() int32

// Button returns true while an operator control is held down.  Same sampling rules as Axis.
type Button func() bool

// FullScale is the magnitude of a fully-deflected axis.
const FullScale = 100

// Never is a Button that is never pressed.  Used to disable optional controls.
func Never() bool {
	return false
}

// Constant returns an Axis that always reads v.
func Constant(v int32) Axis {
	return func() int32 { return v }
}

// Pressed returns a Button that always reads pressed.
func Pressed(pressed bool) Button {
	return func() bool { return pressed }
}

// ButtonAxis folds a pair of buttons into a single axis.  If both or neither are held the axis reads 0,
// otherwise it reads +power or -power.
func ButtonAxis(positive, negative Button, power int32) Axis {
	return func() int32 {
		p, n := positive(), negative()
		if p == n {
			return 0
		}
		if p {
			return power
		}
		return -power
	}
}

// Saturate clamps v to [-limit, limit].
func Saturate(v, limit int32) int32 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// Abs returns |v|.
func Abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
