package sim

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alan-christopher/qkdsim/qkd/protocol"
)

// ErrInvalidConfig is wrapped by every RunConfig validation failure.
var ErrInvalidConfig = errors.New("sim: invalid config")

// Defaults applied by the CLI when nothing else is configured.
var (
	DefaultCycles   = 10
	DefaultProtocol = "bb84"
)

// An EmptyKeyPolicy decides what a cycle whose sifted key came out empty
// contributes to the QBER series.
type EmptyKeyPolicy uint8

const (
	// EmptyKeyAsZero records a QBER of 0, so the series has one value per
	// cycle.
	EmptyKeyAsZero EmptyKeyPolicy = iota
	// EmptyKeySkip leaves the cycle out of the series.
	EmptyKeySkip
)

func (p EmptyKeyPolicy) String() string {
	switch p {
	case EmptyKeyAsZero:
		return "zero"
	case EmptyKeySkip:
		return "skip"
	}
	return fmt.Sprintf("EmptyKeyPolicy(%d)", uint8(p))
}

// ParseEmptyKeyPolicy parses "zero" or "skip".
func ParseEmptyKeyPolicy(s string) (EmptyKeyPolicy, error) {
	switch strings.ToLower(s) {
	case "", "zero":
		return EmptyKeyAsZero, nil
	case "skip":
		return EmptyKeySkip, nil
	}
	return 0, fmt.Errorf("%w: unknown empty key policy %q", ErrInvalidConfig, s)
}

// A RunConfig describes one simulation run.
type RunConfig struct {
	// Protocol is "bb84" or "kmb09".
	Protocol string
	Cycles   int
	// Qubits exchanged per cycle.
	Qubits int
	Eve    bool

	// Verbose adds bit, symbol and qubit representations to the trace.
	Verbose bool
	// Silent suppresses the trace entirely.
	Silent bool

	// Seed drives every random choice of the run. 0 picks a time-based seed,
	// which is then recorded in the RunResult.
	Seed int64

	// Workers bounds the number of cycles run concurrently. 0 and 1 both mean
	// sequential.
	Workers int

	EmptyKey EmptyKeyPolicy

	// Trace receives the human-readable cycle trace. Nil disables it.
	Trace io.Writer
}

// Validate reports whether c describes a runnable simulation.
func (c RunConfig) Validate() error {
	if _, err := protocol.ByName(c.Protocol); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Cycles <= 0 {
		return fmt.Errorf("%w: cycles must be positive, got %d", ErrInvalidConfig, c.Cycles)
	}
	if c.Qubits <= 0 {
		return fmt.Errorf("%w: qubits must be positive, got %d", ErrInvalidConfig, c.Qubits)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.EmptyKey > EmptyKeySkip {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, c.EmptyKey)
	}
	return nil
}
