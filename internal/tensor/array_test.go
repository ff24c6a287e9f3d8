package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestNewArray(t *testing.T) {
	a, err := NewArray(Float32, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 6, a.NumElements())
	assert.Equal(t, 24, a.ByteSize())
	assert.Equal(t, "float32[2 3]", a.String())

	_, err = NewArray(Float32, Shape{2, 0})
	assert.Error(t, err)
}

func TestArrayZeroCopyViews(t *testing.T) {
	a, err := NewArray(Int64, Shape{3, 2})
	require.NoError(t, err)
	data := a.AsInt64()
	require.Len(t, data, 6)
	data[0] = 42
	assert.Equal(t, int64(42), a.AsInt64()[0])

	assert.Panics(t, func() { a.AsFloat32() })
}

func TestView(t *testing.T) {
	storage := make([]byte, 16)
	a, err := View(Float32, Shape{4}, storage)
	require.NoError(t, err)
	a.AsFloat32()[1] = 2.5
	b, err := View(Float32, Shape{2, 2}, storage)
	require.NoError(t, err)
	assert.Equal(t, float32(2.5), b.AsFloat32()[1], "views share storage")

	_, err = View(Float32, Shape{5}, storage)
	assert.Error(t, err)
}

func TestFloatAccessors(t *testing.T) {
	for _, dt := range []DataType{Float32, Float64, Float16, Int32, Int64, Uint8} {
		t.Run(dt.String(), func(t *testing.T) {
			a, err := NewArray(dt, Shape{3})
			require.NoError(t, err)
			a.SetFloat(2, 7)
			assert.InDelta(t, 7.0, a.Float(2), 1e-6)
			assert.Equal(t, []float32{0, 0, 7}, a.ToFloat32())
		})
	}
}

func TestFloat16RoundTrip(t *testing.T) {
	a, err := NewArray(Float16, Shape{2})
	require.NoError(t, err)
	require.NoError(t, a.CopyFromFloat32([]float32{1.5, -0.25}))
	assert.Equal(t, float16.Fromfloat32(1.5), a.AsFloat16()[0])
	assert.Equal(t, []float32{1.5, -0.25}, a.ToFloat32())
}

func TestCopyFromFloat32LengthMismatch(t *testing.T) {
	a, err := NewArray(Float32, Shape{2})
	require.NoError(t, err)
	assert.Error(t, a.CopyFromFloat32([]float32{1, 2, 3}))
}

func TestParseDataType(t *testing.T) {
	for _, dt := range []DataType{Float32, Float64, Float16, Int32, Int64, Uint8} {
		got, err := ParseDataType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, got)
	}
	_, err := ParseDataType("complex64")
	assert.Error(t, err)
}
