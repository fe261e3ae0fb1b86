// Package party provides the participants of a key exchange: a named sender
// or receiver that turns classical bit and basis choices into qubits, and
// measures qubits back into bits.
package party

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/alan-christopher/qkdsim/qkd/qubit"
)

// ErrLengthMismatch is returned when the bit or qubit sequence handed to a
// party does not line up with its basis sequence.
var ErrLengthMismatch = errors.New("party: length mismatch")

// A LengthError reports which operation was handed sequences of unequal
// length.
type LengthError struct {
	Op     string
	Values int
	Bases  int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s: %d values but %d bases: %v", e.Op, e.Values, e.Bases, ErrLengthMismatch)
}

func (e *LengthError) Unwrap() error {
	return ErrLengthMismatch
}

// A Scheme prepares the qubit that carries a bit in a given basis.
type Scheme interface {
	Prepare(b qubit.Bit, basis qubit.Basis) *qubit.Qubit
}

// BB84Scheme prepares |b> for the rectilinear basis and H|b> for the diagonal
// one.
type BB84Scheme struct{}

// Prepare implements the Scheme interface.
func (BB84Scheme) Prepare(b qubit.Bit, basis qubit.Basis) *qubit.Qubit {
	q := qubit.New(b)
	if basis == qubit.Diagonal {
		// A fresh qubit is never measured.
		_ = q.Rotate()
	}
	return q
}

// KMB09Scheme prepares one state per basis, |0> for rectilinear and H|1> for
// diagonal. The bit itself is conveyed through the index markers.
type KMB09Scheme struct{}

// Prepare implements the Scheme interface.
func (KMB09Scheme) Prepare(_ qubit.Bit, basis qubit.Basis) *qubit.Qubit {
	if basis == qubit.Rectilinear {
		return qubit.New(0)
	}
	q := qubit.New(1)
	_ = q.Rotate()
	return q
}

// A Party is one of Alice, Bob or Eve.
type Party struct {
	Name   string
	scheme Scheme
}

// New returns a party that prepares qubits according to s.
func New(name string, s Scheme) *Party {
	return &Party{Name: name, scheme: s}
}

// Encode prepares one qubit per position, carrying bits[i] in bases[i].
func (p *Party) Encode(bits []qubit.Bit, bases []qubit.Basis) ([]*qubit.Qubit, error) {
	if len(bits) != len(bases) {
		return nil, &LengthError{Op: p.Name + " encode", Values: len(bits), Bases: len(bases)}
	}
	qs := make([]*qubit.Qubit, len(bits))
	for i := range bits {
		qs[i] = p.scheme.Prepare(bits[i], bases[i])
	}
	return qs, nil
}

// Decode measures qs[i] in bases[i], consuming every qubit.
func (p *Party) Decode(qs []*qubit.Qubit, bases []qubit.Basis, r *rand.Rand) ([]qubit.Bit, error) {
	if len(qs) != len(bases) {
		return nil, &LengthError{Op: p.Name + " decode", Values: len(qs), Bases: len(bases)}
	}
	bits := make([]qubit.Bit, len(qs))
	for i, q := range qs {
		if bases[i] == qubit.Diagonal {
			if err := q.Rotate(); err != nil {
				return nil, fmt.Errorf("%s rotating qubit %d: %w", p.Name, i, err)
			}
		}
		b, err := q.Measure(r)
		if err != nil {
			return nil, fmt.Errorf("%s measuring qubit %d: %w", p.Name, i, err)
		}
		bits[i] = b
	}
	return bits, nil
}

// An Index marks which of the two states within a basis a KMB09 party used or
// observed.
type Index uint8

const (
	First  Index = 1
	Second Index = 2
)

// Markers returns the index marker of every bit: First for 0, Second for 1.
func Markers(bits []qubit.Bit) []Index {
	r := make([]Index, len(bits))
	for i, b := range bits {
		if b == 0 {
			r[i] = First
		} else {
			r[i] = Second
		}
	}
	return r
}

// RandomBits draws n independent uniform bits from r.
func RandomBits(r *rand.Rand, n int) []qubit.Bit {
	bits := make([]qubit.Bit, n)
	for i := range bits {
		bits[i] = qubit.Bit(r.Intn(2))
	}
	return bits
}

// RandomBases draws n independent uniform bases from r.
func RandomBases(r *rand.Rand, n int) []qubit.Basis {
	bases := make([]qubit.Basis, n)
	for i := range bases {
		bases[i] = qubit.Basis(r.Intn(2))
	}
	return bases
}
