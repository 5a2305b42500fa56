package tensor

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestShape(t *testing.T) {
	s := Shape{16, 1, 3, 3}
	assert.Equal(t, 144, s.NumElements())
	assert.Equal(t, []int{9, 9, 3, 1}, s.ComputeStrides())
	assert.Equal(t, "16x1x3x3", s.String())
	assert.True(t, s.Equal(s.Clone()))
	assert.False(t, s.Equal(Shape{16, 1, 3}))

	assert.Equal(t, 1, Shape{}.NumElements(), "scalar")
	assert.Equal(t, 0, Shape{0, 4}.NumElements())
	assert.NoError(t, Shape{0, 4}.Validate())
	assert.Error(t, Shape{2, -1}.Validate())
}

func TestFromFloat32(t *testing.T) {
	raw, err := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, float32(6), raw.At(1, 2))
	assert.Equal(t, float32(2), raw.At(0, 1))
	assert.Equal(t, 24, raw.ByteSize())

	_, err = FromFloat32([]float32{1, 2}, Shape{3})
	assert.Error(t, err)
}

func TestRawTensorCloneIsDeep(t *testing.T) {
	raw, err := FromFloat32([]float32{1, 2, 3}, Shape{3})
	require.NoError(t, err)
	clone := raw.Clone()
	clone.Data()[0] = 42
	assert.Equal(t, float32(1), raw.Data()[0])
}

func TestRawTensorReshapeSharesData(t *testing.T) {
	raw := MustRaw(Shape{1, 2, 2})
	flat, err := raw.Reshape(Shape{4})
	require.NoError(t, err)
	flat.Data()[3] = 7
	assert.Equal(t, float32(7), raw.At(0, 1, 1))

	_, err = raw.Reshape(Shape{5})
	assert.Error(t, err)

	assert.Equal(t, Shape{2, 2}, raw.Squeeze0().Shape())
}

func TestBytesRoundTripIsBitExact(t *testing.T) {
	values := []float32{0, -0, 1.5, float32(math.Inf(-1)), math.SmallestNonzeroFloat32, math.MaxFloat32}
	raw, err := FromFloat32(values, Shape{len(values)})
	require.NoError(t, err)

	encoded := raw.Bytes()
	require.Len(t, encoded, 4*len(values))
	assert.Equal(t, math.Float32bits(1.5), binary.LittleEndian.Uint32(encoded[8:12]))

	decoded, err := DecodeFloat32(encoded, Float32)
	require.NoError(t, err)
	for i := range values {
		assert.Equal(t, math.Float32bits(values[i]), math.Float32bits(decoded[i]), "element %d", i)
	}
}

func TestDecodeFloat32Conversions(t *testing.T) {
	half := make([]byte, 4)
	binary.LittleEndian.PutUint16(half[0:], float16.Fromfloat32(0.5).Bits())
	binary.LittleEndian.PutUint16(half[2:], float16.Fromfloat32(-2).Bits())
	got, err := DecodeFloat32(half, Float16)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -2}, got)

	double := binary.LittleEndian.AppendUint64(nil, math.Float64bits(0.25))
	got, err = DecodeFloat32(double, Float64)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25}, got)

	bf := binary.LittleEndian.AppendUint16(nil, uint16(math.Float32bits(3)>>16))
	got, err = DecodeFloat32(bf, BFloat16)
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, got)

	_, err = DecodeFloat32(make([]byte, 8), Int64)
	assert.Error(t, err)
	_, err = DecodeFloat32(make([]byte, 3), Float32)
	assert.Error(t, err)
}

func TestRandnIsSeeded(t *testing.T) {
	a := Randn(Shape{1, 1, 8, 8}, rand.New(rand.NewSource(7)))
	b := Randn(Shape{1, 1, 8, 8}, rand.New(rand.NewSource(7)))
	assert.Equal(t, a.Data(), b.Data())

	var sum float64
	big := Randn(Shape{10000}, rand.New(rand.NewSource(1)))
	for _, v := range big.Data() {
		sum += float64(v)
	}
	assert.InDelta(t, 0, sum/10000, 0.05)
}

func TestParseDataType(t *testing.T) {
	for _, dt := range []DataType{Float32, Float64, Float16, BFloat16, Int32, Int64, Uint8, Bool} {
		got, ok := ParseDataType(dt.String())
		require.True(t, ok, dt.String())
		assert.Equal(t, dt, got)
	}
	_, ok := ParseDataType("complex64")
	assert.False(t, ok)
}
