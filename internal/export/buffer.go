package export

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
)

// HeaderSize is the byte size of the element count that opens weights.bin.
const HeaderSize = 4

// chunkElements is how many values WriteTo encodes per buffered write.
const chunkElements = 4096

// WeightBuffer is the logical content of weights.bin: a little-endian uint32
// element count followed by that many little-endian float32 values.
//
// It references the parameter tensors instead of copying them; values are
// encoded chunk by chunk while writing.
type WeightBuffer struct {
	tensors []*tensor.RawTensor
	count   uint32
}

// Count returns the number of float32 values.
func (b *WeightBuffer) Count() uint32 {
	return b.count
}

// Size returns the encoded size: HeaderSize + 4*Count.
func (b *WeightBuffer) Size() int64 {
	return HeaderSize + 4*int64(b.count)
}

// WriteTo encodes the buffer to w.
func (b *WeightBuffer) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], b.count)
	n, err := bw.Write(header[:])
	written += int64(n)
	if err != nil {
		return written, errors.Wrap(err, "failed to write element count")
	}

	chunk := make([]byte, 0, 4*chunkElements)
	for _, t := range b.tensors {
		values := t.Data()
		for start := 0; start < len(values); start += chunkElements {
			end := min(start+chunkElements, len(values))
			chunk = tensor.EncodeFloat32(chunk[:0], values[start:end])
			n, err := bw.Write(chunk)
			written += int64(n)
			if err != nil {
				return written, errors.Wrap(err, "failed to write weights")
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return written, errors.Wrap(err, "failed to flush weights")
	}
	return written, nil
}

// ReadWeightBuffer decodes a weights.bin stream. It fails if fewer values
// than the header declares are present; trailing bytes are left unread.
func ReadWeightBuffer(r io.Reader) ([]float32, error) {
	br := bufio.NewReader(r)
	var header [HeaderSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read element count")
	}
	count := binary.LittleEndian.Uint32(header[:])

	values := make([]float32, 0, min(int(count), 1<<20))
	var raw [4]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(br, raw[:]); err != nil {
			return nil, errors.Wrapf(err, "header declares %d values, read %d", count, i)
		}
		values = append(values, math.Float32frombits(binary.LittleEndian.Uint32(raw[:])))
	}
	return values, nil
}
