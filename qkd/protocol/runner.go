package protocol

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/alan-christopher/qkdsim/qkd/party"
	"github.com/alan-christopher/qkdsim/qkd/qubit"
)

// DefaultQubits is the number of qubits Alice sends per cycle when RunnerOpts
// leaves it unset.
var DefaultQubits = 5

// A RunnerOpts packages together the arguments necessary to construct a new
// Runner.
type RunnerOpts struct {
	// Protocol selects the variant to run. Must be non-nil.
	Protocol Protocol

	// Qubits is the number of qubits exchanged per cycle. Defaults to
	// DefaultQubits.
	Qubits int

	// Eve places an intercept-resend eavesdropper between Alice and Bob.
	Eve bool
}

// A Runner executes protocol cycles. A Runner holds no per-cycle state, so
// concurrent calls to RunCycle are safe as long as each uses its own rand.
type Runner struct {
	proto  Protocol
	qubits int
	eve    bool

	// Overridable for tests.
	basesFunc func(who string, r *rand.Rand, n int) []qubit.Basis
	bitsFunc  func(who string, r *rand.Rand, n int) []qubit.Bit
}

// NewRunner returns a new Runner, configured in accordance with opts, or an
// error if the options are nonsensical.
func NewRunner(opts RunnerOpts) (*Runner, error) {
	if opts.Protocol == nil {
		return nil, errors.New("must provide Protocol")
	}
	if opts.Qubits < 0 {
		return nil, fmt.Errorf("qubits per cycle must be positive, got %d", opts.Qubits)
	}
	qubits := opts.Qubits
	if qubits == 0 {
		qubits = DefaultQubits
	}
	return &Runner{
		proto:  opts.Protocol,
		qubits: qubits,
		eve:    opts.Eve,
	}, nil
}

// Protocol returns the variant r runs.
func (ru *Runner) Protocol() Protocol {
	return ru.proto
}

// Qubits returns the number of qubits exchanged per cycle.
func (ru *Runner) Qubits() int {
	return ru.qubits
}

// RunCycle performs one full exchange, drawing every random choice and
// measurement from r in a fixed order: Alice's bases and bits, Eve's bases
// and measurements, then Bob's bases and measurements.
func (ru *Runner) RunCycle(index int, r *rand.Rand) (CycleResult, error) {
	scheme := ru.proto.Scheme()
	x := &Exchange{Eve: ru.eve}

	alice := party.New("Alice", scheme)
	x.AliceBases = ru.bases(alice.Name, r)
	x.AliceBits = ru.bits(alice.Name, r)
	qs, err := alice.Encode(x.AliceBits, x.AliceBases)
	if err != nil {
		return CycleResult{}, fmt.Errorf("encoding at alice: %w", err)
	}
	x.AliceQubits = show(qs)

	if ru.eve {
		eve := party.New("Eve", scheme)
		x.EveBases = ru.bases(eve.Name, r)
		if x.EveBits, err = eve.Decode(qs, x.EveBases, r); err != nil {
			return CycleResult{}, fmt.Errorf("intercepting at eve: %w", err)
		}
		if qs, err = eve.Encode(x.EveBits, x.EveBases); err != nil {
			return CycleResult{}, fmt.Errorf("resending at eve: %w", err)
		}
		x.EveQubits = show(qs)
	}

	bob := party.New("Bob", scheme)
	x.BobBases = ru.bases(bob.Name, r)
	if x.BobBits, err = bob.Decode(qs, x.BobBases, r); err != nil {
		return CycleResult{}, fmt.Errorf("decoding at bob: %w", err)
	}

	s := ru.proto.Sift(x)
	return CycleResult{
		Index:    index,
		AliceKey: s.AliceKey,
		BobKey:   s.BobKey,
		Mask:     s.Mask,
		QBER:     ru.proto.QBER(s),
		Outcome:  s.Outcome(),
		Exchange: x,
		Sifting:  s,
	}, nil
}

func (ru *Runner) bases(who string, r *rand.Rand) []qubit.Basis {
	if ru.basesFunc != nil {
		return ru.basesFunc(who, r, ru.qubits)
	}
	return party.RandomBases(r, ru.qubits)
}

func (ru *Runner) bits(who string, r *rand.Rand) []qubit.Bit {
	if ru.bitsFunc != nil {
		return ru.bitsFunc(who, r, ru.qubits)
	}
	return party.RandomBits(r, ru.qubits)
}

func show(qs []*qubit.Qubit) []string {
	r := make([]string, len(qs))
	for i, q := range qs {
		r[i] = q.Show()
	}
	return r
}
