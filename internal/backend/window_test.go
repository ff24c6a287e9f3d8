package backend

import (
	"testing"

	"github.com/born-ml/composite/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		name       string
		attrs      map[string]graph.Attribute
		in, kernel int
		ceil       bool
		wantOut    int
		wantPads   [4]int
	}{
		{"defaults", nil, 5, 3, false, 3, [4]int{}},
		{"padded", map[string]graph.Attribute{"pads": graph.Ints(1, 1, 1, 1)}, 5, 3, false, 5, [4]int{1, 1, 1, 1}},
		{"strided", map[string]graph.Attribute{"strides": graph.Ints(2, 2)}, 5, 3, false, 2, [4]int{}},
		{"ceil", map[string]graph.Attribute{"strides": graph.Ints(2, 2)}, 6, 3, true, 3, [4]int{}},
		{"dilated", map[string]graph.Attribute{"dilations": graph.Ints(2, 2)}, 5, 3, false, 1, [4]int{}},
		{"same upper", map[string]graph.Attribute{"auto_pad": graph.String("SAME_UPPER")}, 4, 2, false, 4, [4]int{0, 0, 1, 1}},
		{"same lower", map[string]graph.Attribute{"auto_pad": graph.String("SAME_LOWER")}, 4, 2, false, 4, [4]int{1, 1, 0, 0}},
		{"valid", map[string]graph.Attribute{"auto_pad": graph.String("VALID"), "pads": graph.Ints(3, 3, 3, 3)}, 5, 3, false, 3, [4]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &graph.Node{OpType: "Conv", Attributes: tt.attrs}
			w, err := ParseWindow(node, tt.in, tt.in, tt.kernel, tt.kernel, tt.ceil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, w.OutH)
			assert.Equal(t, tt.wantOut, w.OutW)
			assert.Equal(t, tt.wantPads, [4]int{w.PadTop, w.PadLeft, w.PadBottom, w.PadRight})
		})
	}
}

func TestParseWindowUnsupported(t *testing.T) {
	tests := map[string]map[string]graph.Attribute{
		"too large":     nil,
		"bad pads":      {"pads": graph.Ints(1, 1)},
		"zero stride":   {"strides": graph.Ints(0, 1)},
		"bad auto_pad":  {"auto_pad": graph.String("WHATEVER")},
		"negative pads": {"pads": graph.Ints(-1, 0, 0, 0)},
	}
	for name, attrs := range tests {
		t.Run(name, func(t *testing.T) {
			node := &graph.Node{OpType: "Conv", Attributes: attrs}
			_, err := ParseWindow(node, 2, 2, 3, 3, false)
			if name != "too large" {
				_, err = ParseWindow(node, 8, 8, 3, 3, false)
			}
			assert.True(t, IsUnsupported(err), "got %v", err)
		})
	}
}
