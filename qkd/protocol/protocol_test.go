package protocol

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/alan-christopher/qkdsim/qkd/party"
	"github.com/alan-christopher/qkdsim/qkd/qubit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedChoices returns bases/bits hooks that hand each party a preset choice.
func fixedChoices(bases map[string][]qubit.Basis, bits map[string][]qubit.Bit) (
	func(string, *rand.Rand, int) []qubit.Basis, func(string, *rand.Rand, int) []qubit.Bit) {
	return func(who string, _ *rand.Rand, _ int) []qubit.Basis { return bases[who] },
		func(who string, _ *rand.Rand, _ int) []qubit.Bit { return bits[who] }
}

func mustRunner(t *testing.T, opts RunnerOpts) *Runner {
	t.Helper()
	ru, err := NewRunner(opts)
	require.NoError(t, err)
	return ru
}

func TestNewRunner(t *testing.T) {
	_, err := NewRunner(RunnerOpts{})
	assert.Error(t, err, "missing protocol")
	_, err = NewRunner(RunnerOpts{Protocol: BB84{}, Qubits: -1})
	assert.Error(t, err, "negative qubits")

	ru, err := NewRunner(RunnerOpts{Protocol: BB84{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultQubits, ru.Qubits())
	assert.Equal(t, "BB84", ru.Protocol().Name())
}

func TestByName(t *testing.T) {
	tcs := []struct {
		name string
		want string
		eErr bool
	}{
		{name: "bb84", want: "BB84"},
		{name: "BB84", want: "BB84"},
		{name: "kmb09", want: "KMB09"},
		{name: "e91", eErr: true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ByName(tc.name)
			if tc.eErr {
				assert.True(t, errors.Is(err, ErrUnknownProtocol))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Name())
		})
	}
}

func TestBB84MatchingBasesNoEve(t *testing.T) {
	ru := mustRunner(t, RunnerOpts{Protocol: BB84{}, Qubits: 2})
	ru.basesFunc, ru.bitsFunc = fixedChoices(
		map[string][]qubit.Basis{"Alice": {0, 1}, "Bob": {0, 1}},
		map[string][]qubit.Bit{"Alice": {0, 1}},
	)

	res, err := ru.RunCycle(0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, []qubit.Bit{0, 1}, res.AliceKey)
	assert.Equal(t, []qubit.Bit{0, 1}, res.BobKey)
	assert.Equal(t, []Mark{Correct, Correct}, res.Mask)
	assert.Equal(t, 2, res.Sifting.Kept())
	assert.Equal(t, 0.0, res.QBER)
	assert.Equal(t, KeyAgreed, res.Outcome)
}

func TestBB84DisjointBasesYieldEmptyKey(t *testing.T) {
	ru := mustRunner(t, RunnerOpts{Protocol: BB84{}, Qubits: 3})
	ru.basesFunc, ru.bitsFunc = fixedChoices(
		map[string][]qubit.Basis{"Alice": {0, 1, 0}, "Bob": {1, 0, 1}},
		map[string][]qubit.Bit{"Alice": {1, 1, 0}},
	)

	res, err := ru.RunCycle(0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Empty(t, res.AliceKey)
	assert.Empty(t, res.BobKey)
	assert.Equal(t, []Mark{Discarded, Discarded, Discarded}, res.Mask)
	assert.Equal(t, 0.0, res.QBER)
	assert.Equal(t, EmptyKey, res.Outcome)
}

func TestBB84EveSameBasisIsInvisible(t *testing.T) {
	ru := mustRunner(t, RunnerOpts{Protocol: BB84{}, Qubits: 4, Eve: true})
	ru.basesFunc, ru.bitsFunc = fixedChoices(
		map[string][]qubit.Basis{"Alice": {0, 1, 0, 1}, "Eve": {0, 1, 0, 1}, "Bob": {0, 1, 0, 1}},
		map[string][]qubit.Bit{"Alice": {1, 0, 0, 1}},
	)

	res, err := ru.RunCycle(0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, []qubit.Bit{1, 0, 0, 1}, res.Exchange.EveBits)
	assert.Equal(t, res.AliceKey, res.BobKey)
	assert.Equal(t, 0.0, res.QBER)
	assert.Len(t, res.Exchange.EveQubits, 4)
}

func TestKMB09Deterministic(t *testing.T) {
	ru := mustRunner(t, RunnerOpts{Protocol: KMB09{}, Qubits: 2})
	ru.basesFunc, ru.bitsFunc = fixedChoices(
		map[string][]qubit.Basis{"Alice": {0, 1}, "Bob": {0, 1}},
		map[string][]qubit.Bit{"Alice": {1, 0}},
	)

	res, err := ru.RunCycle(0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	// |0> read rectilinearly is always 0, H|1> read diagonally is always 1.
	assert.Equal(t, []qubit.Bit{0, 1}, res.Exchange.BobBits)
	assert.Equal(t, []party.Index{party.Second, party.First}, res.Sifting.AliceIndex)
	assert.Equal(t, []party.Index{party.First, party.Second}, res.Sifting.BobIndex)
	assert.Equal(t, []qubit.Bit{1, 0}, res.AliceKey)
	assert.Equal(t, []qubit.Bit{1, 0}, res.BobKey)
	assert.Equal(t, 0.0, res.QBER)
	assert.Equal(t, KeyAgreed, res.Outcome)
}

func TestKMB09Sift(t *testing.T) {
	x := &Exchange{
		AliceBases: []qubit.Basis{0, 0, 1, 1, 0},
		AliceBits:  []qubit.Bit{0, 1, 0, 1, 0},
		BobBases:   []qubit.Basis{0, 1, 0, 0, 1},
		BobBits:    []qubit.Bit{1, 0, 1, 0, 0},
	}
	s := KMB09{}.Sift(x)
	// Position 4 has equal markers and is dropped.
	assert.Equal(t, []qubit.Bit{0, 1, 0, 1}, s.AliceKey)
	assert.Equal(t, []qubit.Bit{1, 0, 1, 1}, s.BobKey)
	assert.Equal(t, []Mark{Incorrect, Incorrect, Incorrect, Correct, Discarded}, s.Mask)
	assert.Equal(t, 3, s.Errors())
	assert.Equal(t, 75.0, KMB09{}.QBER(s))
	assert.Equal(t, KeyMismatch, s.Outcome())
}

func TestQBERPrecision(t *testing.T) {
	third := Sifting{AliceKey: []qubit.Bit{0, 0, 0}, BobKey: []qubit.Bit{1, 0, 0}}
	assert.InDelta(t, 33.33, BB84{}.QBER(third), 1e-9)
	assert.InDelta(t, 33.333, KMB09{}.QBER(third), 1e-9)

	// 1/32 = 0.03125 ties at four decimals and rounds to even.
	tie := Sifting{AliceKey: make([]qubit.Bit, 32), BobKey: make([]qubit.Bit, 32)}
	tie.BobKey[0] = 1
	assert.InDelta(t, 3.12, BB84{}.QBER(tie), 1e-9)
	assert.InDelta(t, 3.125, KMB09{}.QBER(tie), 1e-9)

	assert.Equal(t, 0.0, BB84{}.QBER(Sifting{}))
}

func TestRunCycleReproducible(t *testing.T) {
	for _, p := range []Protocol{BB84{}, KMB09{}} {
		ru := mustRunner(t, RunnerOpts{Protocol: p, Qubits: 16, Eve: true})
		a, err := ru.RunCycle(3, rand.New(rand.NewSource(99)))
		require.NoError(t, err)
		b, err := ru.RunCycle(3, rand.New(rand.NewSource(99)))
		require.NoError(t, err)
		assert.Equal(t, a.Exchange, b.Exchange, p.Name())
		assert.Equal(t, a.QBER, b.QBER, p.Name())
	}
}

func meanQBER(t *testing.T, p Protocol, eve bool, cycles, qubits int, seed int64) float64 {
	t.Helper()
	ru := mustRunner(t, RunnerOpts{Protocol: p, Qubits: qubits, Eve: eve})
	r := rand.New(rand.NewSource(seed))
	var sum float64
	for i := 0; i < cycles; i++ {
		res, err := ru.RunCycle(i, r)
		require.NoError(t, err)
		require.GreaterOrEqual(t, res.QBER, 0.0)
		require.LessOrEqual(t, res.QBER, 100.0)
		if res.Outcome != KeyMismatch {
			require.Equal(t, 0.0, res.QBER)
		}
		sum += res.QBER
	}
	return sum / float64(cycles)
}

func TestBB84Convergence(t *testing.T) {
	assert.Equal(t, 0.0, meanQBER(t, BB84{}, false, 1000, 10, 2018))

	mean := meanQBER(t, BB84{}, true, 1000, 10, 2018)
	assert.GreaterOrEqual(t, mean, 20.0)
	assert.LessOrEqual(t, mean, 30.0)
}

func TestKMB09Convergence(t *testing.T) {
	tcs := []struct {
		name string
		eve  bool
	}{
		{name: "no eve", eve: false},
		// Eve re-prepares from her own basis, which is distributed like
		// Alice's, so Bob's outcomes and the error rate are unchanged.
		{name: "eve", eve: true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			mean := meanQBER(t, KMB09{}, tc.eve, 1000, 10, 2018)
			// Kept with probability 1/2, wrong with probability 1/4 given kept.
			assert.InDelta(t, 25.0, mean, 5.0)
		})
	}
}

func TestBB84Sift(t *testing.T) {
	x := &Exchange{
		AliceBases: []qubit.Basis{0, 1, 0, 1, 0},
		AliceBits:  []qubit.Bit{0, 1, 1, 0, 1},
		BobBases:   []qubit.Basis{0, 1, 1, 1, 0},
		BobBits:    []qubit.Bit{0, 0, 1, 0, 0},
	}
	s := BB84{}.Sift(x)
	// Position 2 has mismatched bases and is dropped whatever the bits say.
	assert.Equal(t, []qubit.Bit{0, 1, 0, 1}, s.AliceKey)
	assert.Equal(t, []qubit.Bit{0, 0, 0, 0}, s.BobKey)
	assert.Equal(t, []Mark{Correct, Incorrect, Discarded, Correct, Incorrect}, s.Mask)
	assert.Equal(t, 2, s.Errors())
	assert.Equal(t, 50.0, BB84{}.QBER(s))
	assert.Equal(t, KeyMismatch, s.Outcome())
}

func TestTraceWriter(t *testing.T) {
	ru := mustRunner(t, RunnerOpts{Protocol: KMB09{}, Qubits: 2, Eve: true})
	ru.basesFunc, ru.bitsFunc = fixedChoices(
		map[string][]qubit.Basis{"Alice": {0, 1}, "Eve": {0, 1}, "Bob": {0, 1}},
		map[string][]qubit.Bit{"Alice": {1, 0}},
	)
	res, err := ru.RunCycle(4, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewTraceWriter(&buf, KMB09{}, true).Write(res))
	out := buf.String()
	for _, want := range []string{
		"CYCLE(S) 5",
		"BIT REPRESENTATION",
		"Alice Indices",
		"Mismatch Index",
		"SYMBOL REPRESENTATION",
		"[+ X]",
		"QUBIT REPRESENTATION",
		"Eve intercepts and decode Alice's 2 encoded Qubits",
	} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	require.NoError(t, NewTraceWriter(&buf, KMB09{}, false).Write(res))
	assert.False(t, strings.Contains(buf.String(), "BIT REPRESENTATION"))
	assert.Contains(t, buf.String(), "QBER")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestTraceWriterError(t *testing.T) {
	err := NewTraceWriter(failingWriter{}, BB84{}, true).Write(CycleResult{})
	assert.Error(t, err)
}
