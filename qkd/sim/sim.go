// Package sim runs many protocol cycles and aggregates their error rates into
// a run summary that reporters can persist or render.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"
)

const tracerName = "github.com/alan-christopher/qkdsim/qkd/sim"

// A Reporter consumes a finished run.
type Reporter interface {
	Report(ctx context.Context, res *RunResult) error
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, res *RunResult) error

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, res *RunResult) error {
	return f(ctx, res)
}

// A Trend is the least-squares line through the QBER series, indexed from 0.
type Trend struct {
	Intercept float64
	Slope     float64
}

// At evaluates the trend at series position x.
func (t Trend) At(x float64) float64 {
	return t.Intercept + t.Slope*x
}

// A RunResult summarises a finished run.
type RunResult struct {
	// Config is the configuration the run used, with the effective seed.
	Config   RunConfig
	Protocol string
	Cycles   []protocol.CycleResult

	// QBERs holds one value per cycle, less the empty cycles under
	// EmptyKeySkip.
	QBERs       []float64
	Mean        float64
	RoundedMean float64
	StdDev      float64
	Trend       Trend
	EmptyKeys   int

	Started time.Time
	Elapsed time.Duration
}

// An Option customises Run.
type Option func(*runOpts)

type runOpts struct {
	log       zerolog.Logger
	tracer    trace.Tracer
	reporters []Reporter
	now       func() time.Time
}

// WithLogger sets the logger Run reports progress to. The default discards
// everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *runOpts) { o.log = l }
}

// WithTracer sets the OpenTelemetry tracer. The default comes from the global
// provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *runOpts) { o.tracer = t }
}

// WithReporters appends reporters, called in order once every cycle is done.
func WithReporters(rs ...Reporter) Option {
	return func(o *runOpts) { o.reporters = append(o.reporters, rs...) }
}

// Run executes cfg.Cycles cycles and aggregates their QBERs.
//
// Every cycle draws from its own generator, seeded from a master generator
// before any cycle starts, so the result does not depend on cfg.Workers.
func Run(ctx context.Context, cfg RunConfig, opts ...Option) (res *RunResult, err error) {
	o := runOpts{log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	proto, err := protocol.ByName(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	runner, err := protocol.NewRunner(protocol.RunnerOpts{
		Protocol: proto,
		Qubits:   cfg.Qubits,
		Eve:      cfg.Eve,
	})
	if err != nil {
		return nil, fmt.Errorf("constructing runner: %w", err)
	}
	if cfg.Seed == 0 {
		cfg.Seed = o.now().UnixNano()
	}

	ctx, span := o.tracer.Start(ctx, "sim.Run", trace.WithAttributes(
		attribute.String("qkd.protocol", proto.Name()),
		attribute.Int("qkd.cycles", cfg.Cycles),
		attribute.Int("qkd.qubits", cfg.Qubits),
		attribute.Bool("qkd.eve", cfg.Eve),
		attribute.Int64("qkd.seed", cfg.Seed),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Float64("qkd.qber.mean", res.Mean))
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	log := o.log.With().Str("component", "sim").Str("protocol", proto.Name()).Logger()
	log.Info().
		Int("cycles", cfg.Cycles).
		Int("qubits", cfg.Qubits).
		Bool("eve", cfg.Eve).
		Int64("seed", cfg.Seed).
		Int("workers", cfg.Workers).
		Msg("starting run")

	var tw *protocol.TraceWriter
	if cfg.Trace != nil && !cfg.Silent {
		tw = protocol.NewTraceWriter(cfg.Trace, proto, cfg.Verbose)
	}

	c := &cycler{runner: runner, tracer: o.tracer, log: log, seeds: cycleSeeds(cfg.Seed, cfg.Cycles)}
	started := o.now()
	var cycles []protocol.CycleResult
	if cfg.Workers > 1 {
		cycles, err = c.parallel(ctx, cfg.Workers)
		if err == nil && tw != nil {
			for _, cr := range cycles {
				if err = tw.Write(cr); err != nil {
					err = fmt.Errorf("writing trace: %w", err)
					break
				}
			}
		}
	} else {
		cycles, err = c.sequential(ctx, tw)
	}
	if err != nil {
		return nil, err
	}

	res = summarise(cycles, cfg.EmptyKey)
	res.Config = cfg
	res.Protocol = proto.Name()
	res.Started = started
	res.Elapsed = o.now().Sub(started)
	log.Info().
		Float64("mean", res.Mean).
		Float64("rounded_mean", res.RoundedMean).
		Int("empty_keys", res.EmptyKeys).
		Dur("elapsed", res.Elapsed).
		Msg("run complete")

	for i, r := range o.reporters {
		if err := r.Report(ctx, res); err != nil {
			return nil, fmt.Errorf("reporter %d: %w", i, err)
		}
	}
	return res, nil
}

// cycleSeeds draws one seed per cycle from a generator seeded with seed.
func cycleSeeds(seed int64, n int) []int64 {
	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = master.Int63()
	}
	return seeds
}

type cycler struct {
	runner *protocol.Runner
	tracer trace.Tracer
	log    zerolog.Logger
	seeds  []int64
}

func (c *cycler) sequential(ctx context.Context, tw *protocol.TraceWriter) ([]protocol.CycleResult, error) {
	results := make([]protocol.CycleResult, len(c.seeds))
	for i := range c.seeds {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", i, err)
		}
		res, err := c.cycle(ctx, i)
		if err != nil {
			return nil, err
		}
		if tw != nil {
			if err := tw.Write(res); err != nil {
				return nil, fmt.Errorf("writing trace: %w", err)
			}
		}
		results[i] = res
	}
	return results, nil
}

func (c *cycler) parallel(ctx context.Context, workers int) ([]protocol.CycleResult, error) {
	results := make([]protocol.CycleResult, len(c.seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range c.seeds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("cycle %d: %w", i, err)
			}
			res, err := c.cycle(gctx, i)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *cycler) cycle(ctx context.Context, i int) (protocol.CycleResult, error) {
	_, span := c.tracer.Start(ctx, "sim.Cycle", trace.WithAttributes(attribute.Int("qkd.cycle", i)))
	defer span.End()

	res, err := c.runner.RunCycle(i, rand.New(rand.NewSource(c.seeds[i])))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return protocol.CycleResult{}, fmt.Errorf("cycle %d: %w", i, err)
	}
	span.SetAttributes(
		attribute.Float64("qkd.qber", res.QBER),
		attribute.String("qkd.outcome", res.Outcome.String()),
	)
	c.log.Debug().
		Int("cycle", i).
		Float64("qber", res.QBER).
		Stringer("outcome", res.Outcome).
		Int("key_length", len(res.AliceKey)).
		Msg("cycle done")
	return res, nil
}

// summarise builds the statistics of a run from its cycles.
func summarise(cycles []protocol.CycleResult, policy EmptyKeyPolicy) *RunResult {
	res := &RunResult{Cycles: cycles, QBERs: make([]float64, 0, len(cycles))}
	for _, c := range cycles {
		if c.Outcome == protocol.EmptyKey {
			res.EmptyKeys++
			if policy == EmptyKeySkip {
				continue
			}
		}
		res.QBERs = append(res.QBERs, c.QBER)
	}
	if len(res.QBERs) == 0 {
		return res
	}
	res.Mean = stat.Mean(res.QBERs, nil)
	res.RoundedMean = scalar.RoundEven(res.Mean, 2)
	if len(res.QBERs) > 1 {
		res.StdDev = stat.StdDev(res.QBERs, nil)
		xs := make([]float64, len(res.QBERs))
		for i := range xs {
			xs[i] = float64(i)
		}
		res.Trend.Intercept, res.Trend.Slope = stat.LinearRegression(xs, res.QBERs, nil, false)
	} else {
		res.Trend.Intercept = res.Mean
	}
	return res
}
