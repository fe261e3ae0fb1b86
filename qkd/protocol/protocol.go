// Package protocol runs single cycles of a prepare-and-measure key exchange:
// Alice prepares qubits, an optional eavesdropper intercepts and resends them,
// Bob measures them, and the two sift their results into a key whose error
// rate betrays the eavesdropper.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/party"
	"github.com/alan-christopher/qkdsim/qkd/qubit"
	"gonum.org/v1/gonum/floats/scalar"
)

// ErrUnknownProtocol is returned by ByName for unrecognised protocol names.
var ErrUnknownProtocol = errors.New("protocol: unknown protocol")

// A Protocol is one prepare-and-measure variant. Implementations are
// stateless and safe for concurrent use.
type Protocol interface {
	// Name returns the protocol's display name, e.g. "BB84".
	Name() string
	// Scheme returns how every party of this protocol prepares qubits.
	Scheme() party.Scheme
	// Sift reconciles Alice's and Bob's choices into a raw key.
	Sift(x *Exchange) Sifting
	// QBER returns the percentage of mismatched key positions, rounded to the
	// protocol's precision. It is 0 for an empty key.
	QBER(s Sifting) float64
	// Symbol renders a bit sent or read in the given basis for traces.
	Symbol(b qubit.Bit, basis qubit.Basis) string
}

// ByName returns the protocol called name, ignoring case.
func ByName(name string) (Protocol, error) {
	switch strings.ToLower(name) {
	case "bb84":
		return BB84{}, nil
	case "kmb09":
		return KMB09{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
}

// A Mark records what sifting did with one position.
type Mark uint8

const (
	Discarded Mark = iota
	Correct
	Incorrect
)

func (m Mark) String() string {
	switch m {
	case Correct:
		return "1"
	case Incorrect:
		return "0"
	default:
		return "x"
	}
}

// An Outcome classifies a cycle by its sifted keys.
type Outcome uint8

const (
	// KeyAgreed means a non-empty key survived sifting and both sides hold
	// the same bits.
	KeyAgreed Outcome = iota
	// KeyMismatch means the sifted keys differ, i.e. the channel was
	// disturbed.
	KeyMismatch
	// EmptyKey means no position survived sifting. The QBER of such a cycle
	// is 0 but carries no information.
	EmptyKey
)

func (o Outcome) String() string {
	switch o {
	case KeyAgreed:
		return "agreed"
	case KeyMismatch:
		return "mismatch"
	case EmptyKey:
		return "empty"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// An Exchange holds every classical choice and measurement made during one
// cycle. Eve's fields are empty when no eavesdropper was present.
type Exchange struct {
	AliceBases  []qubit.Basis
	AliceBits   []qubit.Bit
	AliceQubits []string

	Eve       bool
	EveBases  []qubit.Basis
	EveBits   []qubit.Bit
	EveQubits []string

	BobBases []qubit.Basis
	BobBits  []qubit.Bit
}

// A Sifting is the result of basis reconciliation.
type Sifting struct {
	AliceKey []qubit.Bit
	BobKey   []qubit.Bit
	Mask     []Mark

	// Index markers, only set by KMB09.
	AliceIndex []party.Index
	BobIndex   []party.Index
}

// Kept returns the number of positions that survived sifting.
func (s Sifting) Kept() int {
	return len(s.AliceKey)
}

// Errors returns the number of kept positions at which the keys disagree.
func (s Sifting) Errors() int {
	return bitmap.CountOnes(bitmap.XOr(bitmap.FromBits(s.AliceKey), bitmap.FromBits(s.BobKey)))
}

// Outcome classifies s.
func (s Sifting) Outcome() Outcome {
	switch {
	case !bitmap.Equal(bitmap.FromBits(s.AliceKey), bitmap.FromBits(s.BobKey)):
		return KeyMismatch
	case s.Kept() == 0:
		return EmptyKey
	default:
		return KeyAgreed
	}
}

// qber returns the error fraction of s rounded half-even to precision
// decimals, as a percentage.
func qber(s Sifting, precision int) float64 {
	if s.Kept() == 0 {
		return 0
	}
	return scalar.RoundEven(float64(s.Errors())/float64(s.Kept()), precision) * 100
}

func mark(alice, bob qubit.Bit) Mark {
	if alice == bob {
		return Correct
	}
	return Incorrect
}

// A CycleResult is the outcome of one protocol cycle.
type CycleResult struct {
	Index    int
	AliceKey []qubit.Bit
	BobKey   []qubit.Bit
	Mask     []Mark
	QBER     float64
	Outcome  Outcome

	// Exchange and Sifting are kept for tracing.
	Exchange *Exchange
	Sifting  Sifting
}
