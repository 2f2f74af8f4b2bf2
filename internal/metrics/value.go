package metrics

import (
	"fmt"
	"math"
)

// Value is a metric outcome that is either a computed finite number or an
// explicit undefined marker.
type Value struct {
	v       float64
	defined bool
}

// Defined wraps v. Non-finite inputs produce an undefined Value.
func Defined(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{v: v, defined: true}
}

func Undefined() Value {
	return Value{}
}

func (x Value) Float() (float64, bool) {
	return x.v, x.defined
}

func (x Value) Valid() bool {
	return x.defined
}

// Or returns the computed number, or def when undefined.
func (x Value) Or(def float64) float64 {
	if !x.defined {
		return def
	}
	return x.v
}

// Less reports whether x is defined and strictly below limit.
func (x Value) Less(limit float64) bool {
	return x.defined && x.v < limit
}

// Greater reports whether x is defined and strictly above limit.
func (x Value) Greater(limit float64) bool {
	return x.defined && x.v > limit
}

func (x Value) String() string {
	if !x.defined {
		return "undefined"
	}
	return fmt.Sprintf("%g", x.v)
}
