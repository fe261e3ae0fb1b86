package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "qkdsim "+Version+"\n", out)
}

func TestRunTrace(t *testing.T) {
	out, err := execute(t, "run", "--cycles", "2", "--qubits", "4", "--seed", "3", "--results-log", "off")
	require.NoError(t, err)
	assert.Contains(t, out, "CYCLE(S) 1")
	assert.Contains(t, out, "CYCLE(S) 2")
	assert.Contains(t, out, "Avg. QBER = ")
}

func TestRunSilentWithOutputs(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	resultsLog := filepath.Join(dir, "results.txt")
	out, err := execute(t, "run",
		"-p", "kmb09", "-c", "5", "-s", "--seed", "9", "-w", "2",
		"--results-log", resultsLog,
		"--csv", filepath.Join(dir, "run.csv"),
		"--records", filepath.Join(dir, "run.qkd"),
		"--plot", filepath.Join(dir, "qber.png"),
		"--db", db,
	)
	require.NoError(t, err)
	assert.NotContains(t, out, "CYCLE(S)")
	assert.Contains(t, out, "Executing 5 Cycle(s) of 5 Qubit(s)... Please wait!\n")
	assert.Contains(t, out, "5 Cycle(s) successfully executed! Generating Plot...\n")
	assert.Less(t, strings.Index(out, "Please wait!"), strings.Index(out, "successfully executed!"))

	for _, name := range []string{"results.txt", "run.csv", "run.qkd", "qber.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	b, err := os.ReadFile(resultsLog)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "\n"))

	out, err = execute(t, "history", "--db", db, "--protocol", "kmb09")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "KMB09")

	id := strings.Fields(lines[1])[0]
	out, err = execute(t, "history", "--db", db, id)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 5)
}

func TestRunSilentCountsKeptCycles(t *testing.T) {
	// A single qubit per cycle leaves some KMB09 keys empty, which the skip
	// policy drops from the count.
	out, err := execute(t, "run",
		"-p", "kmb09", "-c", "40", "-q", "1", "-s", "--seed", "5",
		"--empty-key", "skip", "--results-log", "off",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Executing 40 Cycle(s) of 1 Qubit(s)... Please wait!\n")
	assert.NotContains(t, out, "Generating Plot...")
	assert.NotContains(t, out, "40 Cycle(s) successfully executed!")
	assert.Regexp(t, `\n\d+ Cycle\(s\) successfully executed!\n`, out)
}

func TestRunInvalidConfig(t *testing.T) {
	_, err := execute(t, "run", "--protocol", "e91")
	assert.Error(t, err)
	_, err = execute(t, "run", "--cycles", "0")
	assert.Error(t, err)
}

func TestHistoryNeedsDB(t *testing.T) {
	_, err := execute(t, "history")
	assert.Error(t, err)
}
