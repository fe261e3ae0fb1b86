// Package bitmap provides densely-packed arrays of booleans, used to build
// sifting masks and to pack keys for export.
package bitmap

import (
	"math/bits"
	"strings"
)

// TODO: this could be more efficient on many architectures if we used larger
//   blocks than 8-bit bytes.
const byteSize = 8

// A Dense is a bitmap where every bit is explicitly represented.
type Dense struct {
	bits []byte
	len  int
}

// NewDense returns a new dense bitmap whose contents are a view of data, and
// whose length is bitLen. If bitLen is longer than data, then trailing zeros
// are added. If bitLen is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	d := Dense{bits: data, len: bitLen}
	for len(d.bits) < d.SizeBytes() {
		d.bits = append(d.bits, 0)
	}
	return d
}

// FromBits packs a slice of 0/1 values, e.g. bits or bases, into a bitmap. Any
// non-zero value is treated as 1.
func FromBits[T ~uint8](xs []T) Dense {
	var d Dense
	for _, x := range xs {
		d.AppendBit(x != 0)
	}
	return d
}

// ToBits unpacks d into a slice of 0/1 values.
func ToBits[T ~uint8](d Dense) []T {
	r := make([]T, d.len)
	for i := range r {
		if d.Get(i) {
			r[i] = 1
		}
	}
	return r
}

// Get returns the i-th bit in this bitmap. Bits past the end read as false.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	return 0 < d.bits[i/byteSize]&(1<<(i%byteSize))
}

// Size returns the number of bits in this bitmap.
func (d Dense) Size() int {
	return d.len
}

// SizeBytes returns the number of bytes needed to hold this bitmap.
func (d Dense) SizeBytes() int {
	return BytesFor(d.len)
}

// Data returns a view of the bytes underlying this bitmap. Modifying the
// returned slice modifies this bitmap.
func (d Dense) Data() []byte {
	return d.bits[:d.SizeBytes()]
}

// String renders d as '0's and '1's, lowest index first.
func (d Dense) String() string {
	var sb strings.Builder
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	d.len++
	if pos == 0 && i >= len(d.bits) {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[i] |= 1 << pos
	} else {
		d.bits[i] &^= 1 << pos
	}
}

// Select selects a subset of bits from data, according to which bits are set in
// mask.
func Select(data, mask Dense) Dense {
	var d Dense
	for i := 0; i < data.Size(); i++ {
		if !mask.Get(i) {
			continue
		}
		d.AppendBit(data.Get(i))
	}
	return d
}

// And returns the bitwise AND of a and b, truncated to the shorter of the two.
func And(a, b Dense) Dense {
	return zip(a, b, func(x, y byte) byte { return x & y })
}

// XOr returns the bitwise XOR of a and b, truncated to the shorter of the two.
func XOr(a, b Dense) Dense {
	return zip(a, b, func(x, y byte) byte { return x ^ y })
}

// XNor returns the bitwise equality of a and b, truncated to the shorter of
// the two.
func XNor(a, b Dense) Dense {
	return zip(a, b, func(x, y byte) byte { return ^(x ^ y) })
}

// Not returns the bitwise negation of d.
func Not(d Dense) Dense {
	return zip(d, d, func(x, _ byte) byte { return ^x })
}

func zip(a, b Dense, op func(x, y byte) byte) Dense {
	n := a.len
	if b.len < n {
		n = b.len
	}
	r := Dense{bits: make([]byte, BytesFor(n)), len: n}
	for i := range r.bits {
		r.bits[i] = op(a.bits[i], b.bits[i])
	}
	r.clearTail()
	return r
}

// clearTail zeroes the unused high bits of the last byte so that byte-wise
// counts and comparisons stay exact.
func (d *Dense) clearTail() {
	if off := d.len % byteSize; off != 0 {
		d.bits[len(d.bits)-1] &= 0xFF >> (byteSize - off)
	}
}

// CountOnes returns the total number of bits set in d.
func CountOnes(d Dense) int {
	var sum int
	for i := 0; i < d.len; i += byteSize {
		b := d.bits[i/byteSize]
		if rem := d.len - i; rem < byteSize {
			b &= 0xFF >> (byteSize - rem)
		}
		sum += bits.OnesCount8(b)
	}
	return sum
}

// Equal returns true iff a and b have the same length and contain the same
// bits.
func Equal(a, b Dense) bool {
	return a.len == b.len && CountOnes(XOr(a, b)) == 0
}

// BytesFor returns the number of bytes necessary to hold the provided number of
// bits.
func BytesFor(bits int) int {
	return (bits + byteSize - 1) / byteSize
}
