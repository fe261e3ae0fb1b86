// Package qubit provides a single two-level quantum state, prepared in the
// computational basis and measured exactly once.
package qubit

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"
)

const (
	// Resolution is the number of equally likely draws a measurement samples
	// from. Outcome 0 is chosen when the draw falls below the scaled
	// probability of |0>.
	Resolution = 1000000

	// ProbabilityPrecision is the number of decimals the probability of |0> is
	// rounded to before sampling. Changing it changes the statistics of every
	// run.
	ProbabilityPrecision = 2

	showWidth = 17
)

// ErrAlreadyMeasured is returned when a qubit that has already been measured is
// rotated or measured again.
var ErrAlreadyMeasured = errors.New("qubit: already measured")

// hadamard is the 1/sqrt(2) normalisation of the Hadamard transform.
var hadamard = complex(1/math.Sqrt2, 0)

// A Bit is a classical binary value, 0 or 1.
type Bit uint8

// A Basis selects how a bit is encoded into, or read out of, a qubit.
type Basis uint8

const (
	// Rectilinear encodes bits as |0> and |1>.
	Rectilinear Basis = iota
	// Diagonal encodes bits as (|0>+|1>)/sqrt2 and (|0>-|1>)/sqrt2.
	Diagonal
)

// Symbol returns "+" for the rectilinear basis and "X" for the diagonal one.
func (b Basis) Symbol() string {
	if b == Rectilinear {
		return "+"
	}
	return "X"
}

// Symbol returns "|" for 0 and "-" for 1.
func (b Bit) Symbol() string {
	if b == 0 {
		return "|"
	}
	return "-"
}

// PolarizationSymbol returns the polarization glyph of b sent or read in basis.
func PolarizationSymbol(b Bit, basis Basis) string {
	switch {
	case basis == Rectilinear && b == 0:
		return "|"
	case basis == Rectilinear:
		return "━"
	case b == 0:
		return "╱"
	default:
		return "╲"
	}
}

// A Qubit is a unit vector alpha|0> + beta|1>. Once measured it cannot be
// rotated or measured again.
type Qubit struct {
	alpha    complex128
	beta     complex128
	measured bool
}

// New returns the computational basis state |b>.
func New(b Bit) *Qubit {
	if b == 0 {
		return &Qubit{alpha: 1}
	}
	return &Qubit{beta: 1}
}

// Rotate applies the Hadamard transform, mapping the computational basis onto
// the diagonal one and back.
func (q *Qubit) Rotate() error {
	if q.measured {
		return ErrAlreadyMeasured
	}
	alpha := (q.alpha + q.beta) * hadamard
	beta := (q.alpha - q.beta) * hadamard
	q.alpha, q.beta = alpha, beta
	return nil
}

// Measure performs a projective measurement onto the computational basis,
// drawing from r, and collapses q onto the outcome.
func (q *Qubit) Measure(r *rand.Rand) (Bit, error) {
	if q.measured {
		return 0, ErrAlreadyMeasured
	}
	q.measured = true
	m := r.Intn(Resolution)
	if float64(m) < q.ProbabilityZero()*Resolution {
		q.alpha, q.beta = 1, 0
		return 0, nil
	}
	q.alpha, q.beta = 0, 1
	return 1, nil
}

// ProbabilityZero returns |<0|q>|^2 rounded to ProbabilityPrecision decimals.
func (q *Qubit) ProbabilityZero() float64 {
	a := cmplx.Abs(q.alpha)
	return scalar.RoundEven(a*a, ProbabilityPrecision)
}

// Measured reports whether q has been consumed by a measurement.
func (q *Qubit) Measured() bool {
	return q.measured
}

// Amplitudes returns the coefficients of |0> and |1>.
func (q *Qubit) Amplitudes() (alpha, beta complex128) {
	return q.alpha, q.beta
}

// Show renders the magnitudes of q's amplitudes, e.g. "0.71|0> + 0.71|1>",
// padded or truncated to a fixed width.
func (q *Qubit) Show() string {
	var sb strings.Builder
	for i, amp := range []complex128{q.alpha, q.beta} {
		mag := scalar.RoundEven(cmplx.Abs(amp), 2)
		if mag == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" + ")
		}
		if mag != 1 {
			sb.WriteString(strconv.FormatFloat(mag, 'f', -1, 64))
		}
		sb.WriteString("|" + strconv.Itoa(i) + ">")
	}
	s := []rune(sb.String())
	if len(s) > showWidth {
		return string(s[:showWidth])
	}
	return string(s) + strings.Repeat(" ", showWidth-len(s))
}
