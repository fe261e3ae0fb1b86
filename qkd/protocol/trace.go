package protocol

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alan-christopher/qkdsim/qkd/qubit"
)

const banner = "=================================="

// A TraceWriter renders cycles as human-readable text. The zero value is not
// usable; construct one with NewTraceWriter.
type TraceWriter struct {
	w       io.Writer
	proto   Protocol
	verbose bool
	err     error
}

// NewTraceWriter returns a TraceWriter for cycles of p. When verbose is set,
// every cycle additionally renders its bits, bases, symbols and qubits.
func NewTraceWriter(w io.Writer, p Protocol, verbose bool) *TraceWriter {
	return &TraceWriter{w: w, proto: p, verbose: verbose}
}

// Write renders res. Cycle numbers are printed 1-based.
func (t *TraceWriter) Write(res CycleResult) error {
	t.err = nil
	t.printf("%s\n%s\n%s\n", banner, center(fmt.Sprintf("CYCLE(S) %d", res.Index+1), len(banner)), banner)
	t.outcome(res)
	if t.verbose && res.Exchange != nil {
		t.bitRepresentation(res)
		t.symbolRepresentation(res)
		t.qubitRepresentation(res.Exchange)
		t.narrative(res.Exchange)
	}
	return t.err
}

func (t *TraceWriter) outcome(res CycleResult) {
	switch res.Outcome {
	case KeyMismatch:
		t.printf("Basis was correct but key mismatch, eve is present.\n")
		t.printf("Alice Key \t: %v\n", res.AliceKey)
		t.printf("Bob Key  \t: %v\n", res.BobKey)
		t.printf("QBER\t\t: %s %%\n", formatFloat(res.QBER))
	case EmptyKey:
		t.printf("No qubit is successfully transferred.\n")
		t.printf("QBER\t\t: 0 %%\n")
	default:
		t.printf("Successfully exchanged key!\n")
		t.printf("Key Length \t: %d\n", len(res.AliceKey))
		t.printf("Key \t\t: %v\n", res.AliceKey)
		t.printf("QBER\t\t: 0 %%\n")
	}
}

func (t *TraceWriter) bitRepresentation(res CycleResult) {
	x := res.Exchange
	t.printf("\n\n--------BIT REPRESENTATION--------\n")
	t.printf("Alice Basis        : %v\n", x.AliceBases)
	t.printf("Qubits |ei>        : %v\n", x.AliceBits)
	if x.Eve {
		t.printf("Eve Basis |gk>     : %v\n", x.EveBases)
		t.printf("Qubits |<gk|ei>|^2 : %v\n", x.EveBits)
		t.printf("Bob Basis |ej>     : %v\n", x.BobBases)
		t.printf("Qubits |<ej|gk>|^2 : %v\n", x.BobBits)
	} else {
		t.printf("Bob Basis |ej>     : %v\n", x.BobBases)
		t.printf("Qubits |<ej|ei>|^2 : %v\n", x.BobBits)
	}
	t.printf("\n")
	if res.Sifting.AliceIndex != nil {
		t.printf("Alice Indices      : %v\n", res.Sifting.AliceIndex)
		t.printf("Bob Indices        : %v\n", res.Sifting.BobIndex)
		t.printf("\nMismatch Index     : %v\n", mismatches(res))
	}
	t.printf("Sifting Mask       : %v\n\n", res.Mask)
}

func (t *TraceWriter) symbolRepresentation(res CycleResult) {
	x := res.Exchange
	t.printf("\n--------SYMBOL REPRESENTATION--------\n")
	t.printf("Alice Basis        : %s\n", basisSymbols(x.AliceBases))
	t.printf("Qubits |ei>        : %s\n", t.bitSymbols(x.AliceBits, x.AliceBases))
	if x.Eve {
		t.printf("Eve Basis |gk>     : %s\n", basisSymbols(x.EveBases))
		t.printf("Qubits |<gk|ei>|^2 : %s\n", t.bitSymbols(x.EveBits, x.EveBases))
		t.printf("Bob Basis |ej>     : %s\n", basisSymbols(x.BobBases))
		t.printf("Qubits |<ej|gk>|^2 : %s\n", t.bitSymbols(x.BobBits, x.BobBases))
	} else {
		t.printf("Bob Basis |ej>     : %s\n", basisSymbols(x.BobBases))
		t.printf("Qubits |<ej|ei>|^2 : %s\n", t.bitSymbols(x.BobBits, x.BobBases))
	}
	t.printf("\n\n")
}

func (t *TraceWriter) qubitRepresentation(x *Exchange) {
	t.printf("\n-------QUBIT REPRESENTATION-------\n")
	t.printf("Alice Qubits |ei>      : %s\n", strings.Join(x.AliceQubits, "   "))
	if x.Eve {
		t.printf("Eve Qubits |gk>        : %s\n", strings.Join(x.EveQubits, "   "))
	}
	t.printf("\n\n")
}

func (t *TraceWriter) narrative(x *Exchange) {
	n := len(x.AliceBits)
	t.printf("Alice generates %d random Basis\n", n)
	t.printf("Alice sends to Bob %d encoded Qubits\n", n)
	if x.Eve {
		t.printf("Eve generates %d random Basis\n", n)
		t.printf("Eve intercepts and decode Alice's %d encoded Qubits\n", n)
		t.printf("Eve sends to Bob as Alice's %d encoded Qubits\n", n)
	}
	t.printf("Bob generates %d random Basis\n", n)
	t.printf("Bob receives and decode Alice's %d encoded Qubits\n\n\n", n)
}

func (t *TraceWriter) printf(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *TraceWriter) bitSymbols(bits []qubit.Bit, bases []qubit.Basis) string {
	syms := make([]string, len(bits))
	for i := range bits {
		syms[i] = t.proto.Symbol(bits[i], bases[i])
	}
	return "[" + strings.Join(syms, " ") + "]"
}

func basisSymbols(bases []qubit.Basis) string {
	syms := make([]string, len(bases))
	for i, b := range bases {
		syms[i] = b.Symbol()
	}
	return "[" + strings.Join(syms, " ") + "]"
}

func mismatches(res CycleResult) []int {
	r := make([]int, len(res.Sifting.AliceIndex))
	for i := range r {
		if res.Sifting.AliceIndex[i] != res.Sifting.BobIndex[i] {
			r[i] = 1
		}
	}
	return r
}

func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad/2) + s + strings.Repeat(" ", pad-pad/2)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
