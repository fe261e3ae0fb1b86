package report

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"github.com/alan-christopher/qkdsim/qkd/qubit"
	"github.com/alan-christopher/qkdsim/qkd/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func testRun(t *testing.T) *sim.RunResult {
	t.Helper()
	res, err := sim.Run(context.Background(), sim.RunConfig{
		Protocol: "kmb09",
		Cycles:   20,
		Qubits:   6,
		Eve:      true,
		Seed:     2018,
	})
	require.NoError(t, err)
	return res
}

func TestSummary(t *testing.T) {
	tcs := []struct {
		mean float64
		want string
	}{
		{mean: 24.87, want: "Avg. QBER = 24.87 ≈ 25\n"},
		{mean: 0, want: "Avg. QBER = 0 ≈ 0\n"},
		{mean: 12.5, want: "Avg. QBER = 12.5 ≈ 12\n"},
	}
	for _, tc := range tcs {
		var buf bytes.Buffer
		s := &Summary{W: &buf}
		require.NoError(t, s.Report(context.Background(), &sim.RunResult{RoundedMean: tc.mean}))
		assert.Equal(t, tc.want, buf.String())
	}
}

func TestResultsLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultResultsLog)
	l := &ResultsLog{Path: path}
	require.NoError(t, l.Report(context.Background(), &sim.RunResult{RoundedMean: 25.31}))
	require.NoError(t, l.Report(context.Background(), &sim.RunResult{RoundedMean: 0}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "25.31\n0.0\n", string(b))
}

func TestFormatMean(t *testing.T) {
	tcs := []struct {
		mean float64
		want string
	}{
		{mean: 25, want: "25.0"},
		{mean: 0, want: "0.0"},
		{mean: 24.87, want: "24.87"},
		{mean: 12.5, want: "12.5"},
		{mean: 100, want: "100.0"},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, formatMean(tc.mean))
	}
}

func TestResultsLogBadPath(t *testing.T) {
	l := &ResultsLog{Path: filepath.Join(t.TempDir(), "missing", "results.txt")}
	assert.Error(t, l.Report(context.Background(), &sim.RunResult{}))
}

func TestCSV(t *testing.T) {
	res := testRun(t)
	path := filepath.Join(t.TempDir(), "run.csv")
	require.NoError(t, (&CSV{Path: path}).Report(context.Background(), res))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(res.Cycles)+1)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, res.Cycles[0].Outcome.String(), rows[1][2])
}

func TestRecordsRoundTrip(t *testing.T) {
	res := testRun(t)
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, res))

	h, recs, err := ReadRecords(&buf)
	require.NoError(t, err)
	assert.Equal(t, Header{
		Protocol: "KMB09",
		Cycles:   20,
		Qubits:   6,
		Eve:      true,
		Seed:     2018,
		Mean:     res.Mean,
	}, h)
	require.Len(t, recs, len(res.Cycles))
	for i, rec := range recs {
		cr := res.Cycles[i]
		assert.Equal(t, cr.Index, rec.Cycle)
		assert.Equal(t, cr.QBER, rec.QBER)
		assert.Equal(t, cr.Outcome, rec.Outcome)
		assert.Equal(t, len(cr.AliceKey), len(rec.AliceKey))
		if len(cr.AliceKey) > 0 {
			assert.Equal(t, cr.AliceKey, rec.AliceKey)
			assert.Equal(t, cr.BobKey, rec.BobKey)
		}
	}
}

func TestRecordsFile(t *testing.T) {
	res := &sim.RunResult{
		Protocol: "BB84",
		Config:   sim.RunConfig{Qubits: 3, Seed: -9},
		Cycles: []protocol.CycleResult{{
			Index:    0,
			AliceKey: []qubit.Bit{1, 0, 1},
			BobKey:   []qubit.Bit{1, 1, 1},
			QBER:     33.33,
			Outcome:  protocol.KeyMismatch,
		}},
	}
	path := filepath.Join(t.TempDir(), "run.qkd")
	require.NoError(t, (&Records{Path: path}).Report(context.Background(), res))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	h, recs, err := ReadRecords(f)
	require.NoError(t, err)
	assert.Equal(t, int64(-9), h.Seed)
	require.Len(t, recs, 1)
	assert.Equal(t, []qubit.Bit{1, 1, 1}, recs[0].BobKey)
	assert.Equal(t, protocol.KeyMismatch, recs[0].Outcome)
}

func TestReadRecordsTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, testRun(t)))
	b := buf.Bytes()

	_, _, err := ReadRecords(bytes.NewReader(b[:len(b)-3]))
	assert.Error(t, err)
	_, _, err = ReadRecords(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestPlot(t *testing.T) {
	res := testRun(t)
	path := filepath.Join(t.TempDir(), "qber.png")
	require.NoError(t, (&Plot{Path: path}).Report(context.Background(), res))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(b), 8)
	assert.Equal(t, []byte("\x89PNG"), b[:4])
}

func TestPlotSinglePoint(t *testing.T) {
	p, err := newPlot(&sim.RunResult{Protocol: "BB84", QBERs: []float64{50}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Y.Min)
	assert.Equal(t, 100.0, p.Y.Max)
	assert.Len(t, qberTicks(), 21)
}

func frame(t *testing.T, buf *bytes.Buffer, msg []byte) {
	t.Helper()
	require.NoError(t, binary.Write(buf, binary.LittleEndian, int32(len(msg))))
	buf.Write(msg)
}

func TestReadRecordsRejectsBadKeyLength(t *testing.T) {
	tcs := []struct {
		name   string
		keyLen uint64
	}{
		{name: "near max int", keyLen: math.MaxInt64 - 3},
		{name: "max uint", keyLen: math.MaxUint64},
		{name: "one past packed bits", keyLen: 9},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			frame(t, &buf, Header{Protocol: "BB84", Cycles: 1, Qubits: 8}.marshal())
			var rec []byte
			rec = protowire.AppendTag(rec, recordKeyLength, protowire.VarintType)
			rec = protowire.AppendVarint(rec, tc.keyLen)
			rec = protowire.AppendTag(rec, recordAliceKey, protowire.BytesType)
			rec = protowire.AppendBytes(rec, []byte{0xff})
			rec = protowire.AppendTag(rec, recordBobKey, protowire.BytesType)
			rec = protowire.AppendBytes(rec, []byte{0x0f})
			frame(t, &buf, rec)

			var err error
			require.NotPanics(t, func() { _, _, err = ReadRecords(&buf) })
			assert.ErrorContains(t, err, "exceeds packed keys")
		})
	}
}

func TestReadRecordsFullByteKey(t *testing.T) {
	var buf bytes.Buffer
	frame(t, &buf, Header{Protocol: "BB84", Cycles: 1, Qubits: 8}.marshal())
	rec := Record{AliceKey: []qubit.Bit{1, 1, 1, 1, 1, 1, 1, 1}, BobKey: []qubit.Bit{0, 0, 0, 0, 1, 1, 1, 1}}
	frame(t, &buf, rec.marshal())

	_, recs, err := ReadRecords(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.AliceKey, recs[0].AliceKey)
	assert.Equal(t, rec.BobKey, recs[0].BobKey)
}

func TestReadRecordsRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(math.MaxInt32)))
	_, _, err := ReadRecords(&buf)
	assert.ErrorContains(t, err, "invalid frame length")
}
