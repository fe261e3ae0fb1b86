package report

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"github.com/alan-christopher/qkdsim/qkd/qubit"
	"github.com/alan-christopher/qkdsim/qkd/sim"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the header message.
const (
	headerProtocol protowire.Number = 1
	headerCycles   protowire.Number = 2
	headerQubits   protowire.Number = 3
	headerEve      protowire.Number = 4
	headerSeed     protowire.Number = 5
	headerMean     protowire.Number = 6
)

// Field numbers of the per-cycle message.
const (
	recordCycle     protowire.Number = 1
	recordQBER      protowire.Number = 2
	recordOutcome   protowire.Number = 3
	recordKeyLength protowire.Number = 4
	recordAliceKey  protowire.Number = 5
	recordBobKey    protowire.Number = 6
)

// A Header describes the run a record file came from.
type Header struct {
	Protocol string
	Cycles   int
	Qubits   int
	Eve      bool
	Seed     int64
	Mean     float64
}

// A Record is one exported cycle.
type Record struct {
	Cycle    int
	QBER     float64
	Outcome  protocol.Outcome
	AliceKey []qubit.Bit
	BobKey   []qubit.Bit
}

// Records exports a run as a stream of framed protobuf messages: one header
// followed by one message per cycle. The structure of a frame is
// message-length | message, with the length a little-endian int32.
type Records struct {
	Path string
}

// Report implements sim.Reporter.
func (r *Records) Report(_ context.Context, res *sim.RunResult) error {
	f, err := os.Create(r.Path)
	if err != nil {
		return fmt.Errorf("creating records: %w", err)
	}
	if err := WriteRecords(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteRecords writes res to w in the format Records produces.
func WriteRecords(w io.Writer, res *sim.RunResult) error {
	fr := &framer{w: w}
	h := Header{
		Protocol: res.Protocol,
		Cycles:   len(res.Cycles),
		Qubits:   res.Config.Qubits,
		Eve:      res.Config.Eve,
		Seed:     res.Config.Seed,
		Mean:     res.Mean,
	}
	if err := fr.write(h.marshal()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, cr := range res.Cycles {
		rec := Record{
			Cycle:    cr.Index,
			QBER:     cr.QBER,
			Outcome:  cr.Outcome,
			AliceKey: cr.AliceKey,
			BobKey:   cr.BobKey,
		}
		if err := fr.write(rec.marshal()); err != nil {
			return fmt.Errorf("writing cycle %d: %w", cr.Index, err)
		}
	}
	return nil
}

// ReadRecords reads a stream written by WriteRecords.
func ReadRecords(rd io.Reader) (Header, []Record, error) {
	fr := &framer{r: rd}
	var h Header
	b, err := fr.read()
	if err != nil {
		return h, nil, fmt.Errorf("reading header: %w", err)
	}
	if err := h.unmarshal(b); err != nil {
		return h, nil, fmt.Errorf("decoding header: %w", err)
	}
	var recs []Record
	for {
		b, err := fr.read()
		if errors.Is(err, io.EOF) {
			return h, recs, nil
		}
		if err != nil {
			return h, recs, fmt.Errorf("reading record %d: %w", len(recs), err)
		}
		var rec Record
		if err := rec.unmarshal(b); err != nil {
			return h, recs, fmt.Errorf("decoding record %d: %w", len(recs), err)
		}
		recs = append(recs, rec)
	}
}

// maxFrameBytes bounds the message a framer will allocate for.
const maxFrameBytes = 1 << 24

// A framer reads and writes length-prefixed messages.
type framer struct {
	w io.Writer
	r io.Reader
}

func (f *framer) write(msg []byte) error {
	if err := binary.Write(f.w, binary.LittleEndian, int32(len(msg))); err != nil {
		return err
	}
	_, err := f.w.Write(msg)
	return err
}

// read returns io.EOF only when the stream ends cleanly between frames.
func (f *framer) read() ([]byte, error) {
	var mLen int32
	if err := binary.Read(f.r, binary.LittleEndian, &mLen); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated frame length: %w", err)
		}
		return nil, err
	}
	if mLen < 0 || mLen > maxFrameBytes {
		return nil, fmt.Errorf("invalid frame length %d", mLen)
	}
	msg := make([]byte, mLen)
	if _, err := io.ReadFull(f.r, msg); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}

func (h Header) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, headerProtocol, protowire.BytesType)
	b = protowire.AppendString(b, h.Protocol)
	b = protowire.AppendTag(b, headerCycles, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Cycles))
	b = protowire.AppendTag(b, headerQubits, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Qubits))
	b = protowire.AppendTag(b, headerEve, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(h.Eve))
	b = protowire.AppendTag(b, headerSeed, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(h.Seed))
	b = protowire.AppendTag(b, headerMean, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(h.Mean))
	return b
}

func (h *Header) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == headerProtocol && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			h.Protocol = v
			return n
		case num == headerCycles && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			h.Cycles = int(v)
			return n
		case num == headerQubits && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			h.Qubits = int(v)
			return n
		case num == headerEve && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			h.Eve = protowire.DecodeBool(v)
			return n
		case num == headerSeed && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			h.Seed = protowire.DecodeZigZag(v)
			return n
		case num == headerMean && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			h.Mean = math.Float64frombits(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
}

func (r Record) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, recordCycle, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Cycle))
	b = protowire.AppendTag(b, recordQBER, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(r.QBER))
	b = protowire.AppendTag(b, recordOutcome, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Outcome))
	b = protowire.AppendTag(b, recordKeyLength, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(r.AliceKey)))
	b = protowire.AppendTag(b, recordAliceKey, protowire.BytesType)
	b = protowire.AppendBytes(b, bitmap.FromBits(r.AliceKey).Data())
	b = protowire.AppendTag(b, recordBobKey, protowire.BytesType)
	b = protowire.AppendBytes(b, bitmap.FromBits(r.BobKey).Data())
	return b
}

func (r *Record) unmarshal(b []byte) error {
	var keyLen uint64
	var alice, bob []byte
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == recordCycle && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.Cycle = int(v)
			return n
		case num == recordQBER && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			r.QBER = math.Float64frombits(v)
			return n
		case num == recordOutcome && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.Outcome = protocol.Outcome(v)
			return n
		case num == recordKeyLength && typ == protowire.VarintType:
			var n int
			keyLen, n = protowire.ConsumeVarint(b)
			return n
		case num == recordAliceKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			alice = append([]byte(nil), v...)
			return n
		case num == recordBobKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			bob = append([]byte(nil), v...)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	if err != nil {
		return err
	}
	if keyLen > 8*uint64(len(alice)) || keyLen > 8*uint64(len(bob)) {
		return fmt.Errorf("key length %d exceeds packed keys", keyLen)
	}
	r.AliceKey = bitmap.ToBits[qubit.Bit](bitmap.NewDense(alice, int(keyLen)))
	r.BobKey = bitmap.ToBits[qubit.Bit](bitmap.NewDense(bob, int(keyLen)))
	return nil
}

// consumeFields walks the fields of a message, handing each value to field,
// which returns how many bytes it consumed or a negative protowire error code.
func consumeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n = field(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
