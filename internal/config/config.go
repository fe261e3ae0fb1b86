// Package config resolves qkdsim settings from flags, QKDSIM_* environment
// variables, an optional config file and built-in defaults, in that order of
// precedence.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"github.com/alan-christopher/qkdsim/qkd/report"
	"github.com/alan-christopher/qkdsim/qkd/sim"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. QKDSIM_CYCLES.
const EnvPrefix = "QKDSIM"

// Config keys.
const (
	KeyProtocol   = "protocol"
	KeyCycles     = "cycles"
	KeyQubits     = "qubits"
	KeyEve        = "eve"
	KeyVerbose    = "verbose"
	KeySilent     = "silent"
	KeySeed       = "seed"
	KeyWorkers    = "workers"
	KeyEmptyKey   = "empty_key"
	KeyResultsLog = "results_log"
	KeyCSV        = "csv"
	KeyRecords    = "records"
	KeyPlot       = "plot"
	KeyDB         = "db"
	KeyLogLevel   = "log_level"
	KeyLogPretty  = "log_pretty"
)

// ResultsLogOff disables the results log for every protocol.
const ResultsLogOff = "off"

// Config is the resolved configuration of one invocation.
type Config struct {
	Protocol string
	Cycles   int
	Qubits   int
	Eve      bool
	Verbose  bool
	Silent   bool
	Seed     int64
	Workers  int
	EmptyKey string

	// Output paths. Empty disables the output, except ResultsLog, which
	// falls back to report.DefaultResultsLog for KMB09.
	ResultsLog string
	CSV        string
	Records    string
	Plot       string
	DB         string

	LogLevel  string
	LogPretty bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyProtocol, sim.DefaultProtocol)
	v.SetDefault(KeyCycles, sim.DefaultCycles)
	v.SetDefault(KeyQubits, protocol.DefaultQubits)
	v.SetDefault(KeyEve, true)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeySilent, false)
	v.SetDefault(KeySeed, 0)
	v.SetDefault(KeyWorkers, 1)
	v.SetDefault(KeyEmptyKey, sim.EmptyKeyAsZero.String())
	v.SetDefault(KeyResultsLog, "")
	v.SetDefault(KeyCSV, "")
	v.SetDefault(KeyRecords, "")
	v.SetDefault(KeyPlot, "")
	v.SetDefault(KeyDB, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
}

// flagName maps a config key to its command-line flag.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterRunFlags adds one flag per run setting to fs.
func RegisterRunFlags(fs *pflag.FlagSet) {
	fs.StringP(flagName(KeyProtocol), "p", sim.DefaultProtocol, "protocol to simulate: bb84 or kmb09")
	fs.IntP(flagName(KeyCycles), "c", sim.DefaultCycles, "number of cycles to run")
	fs.IntP(flagName(KeyQubits), "q", protocol.DefaultQubits, "qubits exchanged per cycle")
	fs.Bool(flagName(KeyEve), true, "place an intercept-resend eavesdropper on the channel")
	fs.BoolP(flagName(KeyVerbose), "v", false, "print bit, symbol and qubit representations of every cycle")
	fs.BoolP(flagName(KeySilent), "s", false, "suppress the per-cycle trace")
	fs.Int64(flagName(KeySeed), 0, "random seed; 0 picks a time-based seed")
	fs.IntP(flagName(KeyWorkers), "w", 1, "cycles to run concurrently")
	fs.String(flagName(KeyEmptyKey), sim.EmptyKeyAsZero.String(), "what a cycle with an empty key adds to the series: zero or skip")
	fs.String(flagName(KeyResultsLog), "", "file the rounded mean is appended to (default "+report.DefaultResultsLog+" for kmb09, \"off\" to disable)")
	fs.String(flagName(KeyCSV), "", "write the per-cycle series as CSV to this file")
	fs.String(flagName(KeyRecords), "", "write framed protobuf cycle records to this file")
	fs.String(flagName(KeyPlot), "", "render the QBER plot to this file (.png, .svg, .pdf)")
}

// RegisterCommonFlags adds flags shared by every command to fs.
func RegisterCommonFlags(fs *pflag.FlagSet) {
	fs.String(flagName(KeyDB), "", "SQLite run store")
	fs.String(flagName(KeyLogLevel), "info", "log level: debug, info, warn, error or off")
	fs.Bool(flagName(KeyLogPretty), false, "human-friendly log output")
}

// Load resolves the configuration. fs may be nil; file may be empty, in which
// case no config file is read.
func Load(fs *pflag.FlagSet, file string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	return Config{
		Protocol:   v.GetString(KeyProtocol),
		Cycles:     v.GetInt(KeyCycles),
		Qubits:     v.GetInt(KeyQubits),
		Eve:        v.GetBool(KeyEve),
		Verbose:    v.GetBool(KeyVerbose),
		Silent:     v.GetBool(KeySilent),
		Seed:       v.GetInt64(KeySeed),
		Workers:    v.GetInt(KeyWorkers),
		EmptyKey:   v.GetString(KeyEmptyKey),
		ResultsLog: v.GetString(KeyResultsLog),
		CSV:        v.GetString(KeyCSV),
		Records:    v.GetString(KeyRecords),
		Plot:       v.GetString(KeyPlot),
		DB:         v.GetString(KeyDB),
		LogLevel:   v.GetString(KeyLogLevel),
		LogPretty:  v.GetBool(KeyLogPretty),
	}, nil
}

// RunConfig converts c into a simulation config writing its trace to trace.
func (c Config) RunConfig(trace io.Writer) (sim.RunConfig, error) {
	policy, err := sim.ParseEmptyKeyPolicy(c.EmptyKey)
	if err != nil {
		return sim.RunConfig{}, err
	}
	rc := sim.RunConfig{
		Protocol: c.Protocol,
		Cycles:   c.Cycles,
		Qubits:   c.Qubits,
		Eve:      c.Eve,
		Verbose:  c.Verbose,
		Silent:   c.Silent,
		Seed:     c.Seed,
		Workers:  c.Workers,
		EmptyKey: policy,
		Trace:    trace,
	}
	return rc, rc.Validate()
}

// ResultsLogPath returns the results log to append to, or "" for none.
func (c Config) ResultsLogPath() string {
	switch {
	case strings.EqualFold(c.ResultsLog, ResultsLogOff):
		return ""
	case c.ResultsLog != "":
		return c.ResultsLog
	case strings.EqualFold(c.Protocol, "kmb09"):
		return report.DefaultResultsLog
	}
	return ""
}
