// bench.go runs a simulation for each entry in the cartesian product of a
// collection of different parameters, e.g. protocol and qubits per cycle, and
// outputs a CSV of relevant statistics for each different combination, e.g.
// mean QBER and the number of empty keys.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/alan-christopher/qkdsim/internal/logger"
	"github.com/alan-christopher/qkdsim/qkd/sim"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

var (
	protocols = flag.StringSlice("protocols", []string{"bb84", "kmb09"}, "The protocols to simulate.")
	cycles    = flag.IntSlice("cycles", []int{100}, "The number of cycles per run.")
	qubits    = flag.IntSlice("qubits", []int{5}, "The qubits exchanged per cycle.")
	eve       = flag.BoolSlice("eve", []bool{true, false}, "Whether an eavesdropper intercepts the channel.")
	seed      = flag.Int64("seed", 1234, "The seed every run starts from.")
	workers   = flag.Int("workers", 1, "Cycles to run concurrently within each run.")
	logLevel  = flag.String("log-level", "warn", "Log level: debug, info, warn or error.")
)

var (
	inputs = []string{"protocols", "cycles", "qubits", "eve"}
	// TODO: consider using reflection to pull this out of the Experiment data
	//   type.
	columns = []string{"Protocol", "Cycles", "Qubits", "Eve", "MeanQBER",
		"StdDevQBER", "TrendSlope", "EmptyKeys", "ElapsedMS", "Succeeded"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	Protocol string
	Cycles   int
	Qubits   int
	Eve      bool

	// Fields corresponding to experiment results
	MeanQBER   float64
	StdDevQBER float64
	TrendSlope float64
	EmptyKeys  int
	ElapsedMS  int64
	Succeeded  bool
}

func main() {
	flag.Parse()
	log := logger.New(logger.Config{Level: *logLevel})
	fmt.Println(header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(log, inp))
	}
	applyCartesian(func(args []interface{}) {
		exp := &Experiment{
			Protocol: args[inpIndex("protocols")].(string),
			Cycles:   args[inpIndex("cycles")].(int),
			Qubits:   args[inpIndex("qubits")].(int),
			Eve:      args[inpIndex("eve")].(bool),
		}
		if err := bench(log, exp); err != nil {
			log.Error().Err(err).Interface("experiment", exp).Msg("benching")
		}
		if err := tmpl.Execute(os.Stdout, exp); err != nil {
			log.Fatal().Err(err).Msg("BUG: could not fill in line template")
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

func bench(log zerolog.Logger, exp *Experiment) error {
	start := time.Now()
	res, err := sim.Run(context.Background(), sim.RunConfig{
		Protocol: exp.Protocol,
		Cycles:   exp.Cycles,
		Qubits:   exp.Qubits,
		Eve:      exp.Eve,
		Seed:     *seed,
		Workers:  *workers,
	}, sim.WithLogger(log))
	exp.ElapsedMS = time.Since(start).Milliseconds()
	exp.Succeeded = err == nil
	if err != nil {
		return err
	}
	exp.MeanQBER = res.RoundedMean
	exp.StdDevQBER = res.StdDev
	exp.TrendSlope = res.Trend.Slope
	exp.EmptyKeys = res.EmptyKeys
	return nil
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(log zerolog.Logger, name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetBoolSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetStringSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatal().Str("input", name).Msg("Unknown type for input")
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
