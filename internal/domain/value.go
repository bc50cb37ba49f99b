package domain

import "math"

// Value is a single sensor reading that is either present or explicitly
// missing. A missing reading is never conflated with zero.
type Value struct {
	val float64
	ok  bool
}

// Some wraps a present reading. NaN and infinities count as missing so a
// glitched conversion can never masquerade as data.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{val: v, ok: true}
}

// Missing is the explicit "no reading" marker.
func Missing() Value { return Value{} }

// Float returns the reading and whether it is present.
func (v Value) Float() (float64, bool) { return v.val, v.ok }

// Valid reports whether the reading is present.
func (v Value) Valid() bool { return v.ok }

// Or returns the reading, or def when missing.
func (v Value) Or(def float64) float64 {
	if v.ok {
		return v.val
	}
	return def
}

// Map applies fn to a present reading and leaves a missing one untouched.
func (v Value) Map(fn func(float64) float64) Value {
	if !v.ok {
		return v
	}
	return Some(fn(v.val))
}
