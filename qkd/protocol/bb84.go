package protocol

import (
	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/party"
	"github.com/alan-christopher/qkdsim/qkd/qubit"
)

// BB84Precision is the number of decimals the BB84 error fraction is rounded
// to, i.e. two decimals of percent.
const BB84Precision = 4

// BB84 keeps the positions at which Alice and Bob happened to choose the same
// basis.
type BB84 struct{}

// Name implements the Protocol interface.
func (BB84) Name() string { return "BB84" }

// Scheme implements the Protocol interface.
func (BB84) Scheme() party.Scheme { return party.BB84Scheme{} }

// Symbol implements the Protocol interface.
func (BB84) Symbol(b qubit.Bit, _ qubit.Basis) string { return b.Symbol() }

// Sift implements the Protocol interface.
func (BB84) Sift(x *Exchange) Sifting {
	alice, bob := bitmap.FromBits(x.AliceBits), bitmap.FromBits(x.BobBits)
	keep := bitmap.XNor(bitmap.FromBits(x.AliceBases), bitmap.FromBits(x.BobBases))
	wrong := bitmap.And(keep, bitmap.Not(bitmap.XNor(alice, bob)))
	s := Sifting{
		AliceKey: bitmap.ToBits[qubit.Bit](bitmap.Select(alice, keep)),
		BobKey:   bitmap.ToBits[qubit.Bit](bitmap.Select(bob, keep)),
		Mask:     make([]Mark, keep.Size()),
	}
	for i := range s.Mask {
		switch {
		case wrong.Get(i):
			s.Mask[i] = Incorrect
		case keep.Get(i):
			s.Mask[i] = Correct
		}
	}
	return s
}

// QBER implements the Protocol interface.
func (BB84) QBER(s Sifting) float64 {
	return qber(s, BB84Precision)
}
