package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeBasics(t *testing.T) {
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.Equal(t, 24, Shape{2, 3, 4}.NumElements())
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.True(t, Shape{2, 3}.Equal(Shape{2, 3}))
	assert.False(t, Shape{2, 3}.Equal(Shape{3, 2}))
	assert.Error(t, Shape{2, -1}.Validate())
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"rank", Shape{5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"incompatible", Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestBroadcastIndex(t *testing.T) {
	index, err := BroadcastIndex(Shape{2, 3}, Shape{2, 3})
	require.NoError(t, err)
	assert.Nil(t, index)

	index, err = BroadcastIndex(Shape{3}, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, index)

	index, err = BroadcastIndex(Shape{2, 1}, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, index)

	index, err = BroadcastIndex(Shape{1}, Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, index)

	_, err = BroadcastIndex(Shape{2}, Shape{2, 3})
	assert.Error(t, err)
}
