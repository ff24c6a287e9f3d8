package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaLayout(t *testing.T) {
	arena, err := NewArena([]Spec{
		{Name: "x", DType: Float32, Shape: Shape{3}},
		{Name: "y", DType: Float64, Shape: Shape{2, 2}},
	}, 16)
	require.NoError(t, err)

	assert.Equal(t, 2, arena.Len())
	assert.Equal(t, []string{"x", "y"}, arena.Names())
	// 12 bytes padded to 16, then 32 bytes.
	assert.Equal(t, 48, arena.Size())

	x, ok := arena.Array("x")
	require.True(t, ok)
	y, ok := arena.Array("y")
	require.True(t, ok)
	x.AsFloat32()[2] = 1
	y.AsFloat64()[0] = 2
	assert.Equal(t, float32(1), x.AsFloat32()[2])
	assert.Equal(t, float64(2), y.AsFloat64()[0])

	_, ok = arena.Array("z")
	assert.False(t, ok)
}

func TestArenaErrors(t *testing.T) {
	_, err := NewArena([]Spec{
		{Name: "x", DType: Float32, Shape: Shape{1}},
		{Name: "x", DType: Float32, Shape: Shape{1}},
	}, 0)
	assert.Error(t, err)

	_, err = NewArena([]Spec{{Name: "x", DType: Float32, Shape: Shape{0}}}, 0)
	assert.Error(t, err)

	_, err = NewArena(nil, 3)
	assert.Error(t, err)
}
