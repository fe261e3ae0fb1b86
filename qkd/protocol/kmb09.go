package protocol

import (
	"github.com/alan-christopher/qkdsim/qkd/party"
	"github.com/alan-christopher/qkdsim/qkd/qubit"
)

// KMB09Precision is the number of decimals the KMB09 error fraction is rounded
// to.
const KMB09Precision = 5

// kmb09Table maps Alice's index marker and the polarization Bob observed to
// the bit Bob recovers. Symbols missing from Alice's row are discarded.
var kmb09Table = map[party.Index]map[string]qubit.Bit{
	party.First: {
		qubit.PolarizationSymbol(1, qubit.Rectilinear): 1,
		qubit.PolarizationSymbol(1, qubit.Diagonal):    0,
	},
	party.Second: {
		qubit.PolarizationSymbol(0, qubit.Rectilinear): 1,
		qubit.PolarizationSymbol(0, qubit.Diagonal):    0,
	},
}

// KMB09 keeps the positions at which Alice's and Bob's index markers differ,
// and recovers Bob's key bit from the polarization he observed.
type KMB09 struct{}

// Name implements the Protocol interface.
func (KMB09) Name() string { return "KMB09" }

// Scheme implements the Protocol interface.
func (KMB09) Scheme() party.Scheme { return party.KMB09Scheme{} }

// Symbol implements the Protocol interface.
func (KMB09) Symbol(b qubit.Bit, basis qubit.Basis) string {
	return qubit.PolarizationSymbol(b, basis)
}

// Sift implements the Protocol interface.
func (KMB09) Sift(x *Exchange) Sifting {
	s := Sifting{
		Mask:       make([]Mark, len(x.AliceBits)),
		AliceIndex: party.Markers(x.AliceBits),
		BobIndex:   party.Markers(x.BobBits),
	}
	for i := range s.Mask {
		if s.AliceIndex[i] == s.BobIndex[i] {
			continue
		}
		sym := qubit.PolarizationSymbol(x.BobBits[i], x.BobBases[i])
		bobBit, ok := kmb09Table[s.AliceIndex[i]][sym]
		if !ok {
			continue
		}
		s.AliceKey = append(s.AliceKey, x.AliceBits[i])
		s.BobKey = append(s.BobKey, bobBit)
		s.Mask[i] = mark(x.AliceBits[i], bobBit)
	}
	return s
}

// QBER implements the Protocol interface.
func (KMB09) QBER(s Sifting) float64 {
	return qber(s, KMB09Precision)
}
