package cpu

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/backend/generic"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/parallel"
	"github.com/born-ml/composite/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig forces splitting even on small inputs.
var testConfig = parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 2}

type nodeCase struct {
	name    string
	op      string
	attrs   map[string]graph.Attribute
	inputs  []tensor.Shape
	outputs []tensor.Shape
}

func randomArrays(t *testing.T, rng *rand.Rand, shapes []tensor.Shape) []*tensor.Array {
	t.Helper()
	arrays := make([]*tensor.Array, len(shapes))
	for i, s := range shapes {
		a, err := tensor.NewArray(tensor.Float32, s)
		require.NoError(t, err)
		for j := range a.AsFloat32() {
			a.AsFloat32()[j] = rng.Float32()*4 - 2
		}
		arrays[i] = a
	}
	return arrays
}

func zeroArrays(t *testing.T, shapes []tensor.Shape) []*tensor.Array {
	t.Helper()
	arrays := make([]*tensor.Array, len(shapes))
	for i, s := range shapes {
		a, err := tensor.NewArray(tensor.Float32, s)
		require.NoError(t, err)
		arrays[i] = a
	}
	return arrays
}

func compileWith(table *backend.Table, tc nodeCase, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	factory, ok := table.Lookup(tc.op)
	if !ok {
		return nil, backend.Unsupportedf("%s: no factory", tc.op)
	}
	return factory(&graph.Node{Name: tc.name, OpType: tc.op, Attributes: tc.attrs}, inputs, outputs)
}

func TestMatchesGeneric(t *testing.T) {
	tests := []nodeCase{
		{"relu", "Relu", nil, []tensor.Shape{{3, 50}}, []tensor.Shape{{3, 50}}},
		{"leaky", "LeakyRelu", map[string]graph.Attribute{"alpha": graph.Float(0.2)}, []tensor.Shape{{100}}, []tensor.Shape{{100}}},
		{"elu", "Elu", nil, []tensor.Shape{{100}}, []tensor.Shape{{100}}},
		{"sigmoid", "Sigmoid", nil, []tensor.Shape{{7, 9}}, []tensor.Shape{{7, 9}}},
		{"tanh", "Tanh", nil, []tensor.Shape{{64}}, []tensor.Shape{{64}}},
		{"add", "Add", nil, []tensor.Shape{{4, 33}, {4, 33}}, []tensor.Shape{{4, 33}}},
		{"mul", "Mul", nil, []tensor.Shape{{4, 33}, {4, 33}}, []tensor.Shape{{4, 33}}},
		{"matmul", "MatMul", nil, []tensor.Shape{{17, 300}, {300, 290}}, []tensor.Shape{{17, 290}}},
		{"matmul row", "MatMul", nil, []tensor.Shape{{1, 40}, {40, 30}}, []tensor.Shape{{1, 30}}},
		{"matmul relu", "MatMul", map[string]graph.Attribute{graph.AttrActivation: graph.String("Relu")},
			[]tensor.Shape{{5, 6}, {6, 7}}, []tensor.Shape{{5, 7}}},
		{"gemm bias", "Gemm", nil, []tensor.Shape{{3, 8}, {8, 5}, {5}}, []tensor.Shape{{3, 5}}},
		{"gemm full c", "Gemm", map[string]graph.Attribute{"alpha": graph.Float(0.5), "beta": graph.Float(2)},
			[]tensor.Shape{{3, 8}, {8, 5}, {3, 5}}, []tensor.Shape{{3, 5}}},
		{"gemm transB leaky", "Gemm", map[string]graph.Attribute{
			"transB":                  graph.Int(1),
			graph.AttrActivation:      graph.String("LeakyRelu"),
			graph.AttrActivationAlpha: graph.Float(0.1),
		}, []tensor.Shape{{2, 8}, {5, 8}, {5}}, []tensor.Shape{{2, 5}}},
		{"conv", "Conv", nil, []tensor.Shape{{2, 3, 6, 6}, {4, 3, 3, 3}}, []tensor.Shape{{2, 4, 4, 4}}},
		{"conv padded strided bias", "Conv", map[string]graph.Attribute{
			"pads":    graph.Ints(1, 1, 1, 1),
			"strides": graph.Ints(2, 2),
		}, []tensor.Shape{{1, 2, 7, 7}, {3, 2, 3, 3}, {3}}, []tensor.Shape{{1, 3, 4, 4}}},
		{"conv same relu", "Conv", map[string]graph.Attribute{
			"auto_pad":           graph.String("SAME_UPPER"),
			graph.AttrActivation: graph.String("Relu"),
		}, []tensor.Shape{{1, 2, 5, 5}, {2, 2, 2, 2}}, []tensor.Shape{{1, 2, 5, 5}}},
		{"maxpool", "MaxPool", map[string]graph.Attribute{
			"kernel_shape": graph.Ints(3, 3),
			"strides":      graph.Ints(2, 2),
			"pads":         graph.Ints(1, 1, 1, 1),
		}, []tensor.Shape{{2, 3, 8, 8}}, []tensor.Shape{{2, 3, 4, 4}}},
		{"global average", "GlobalAveragePool", nil, []tensor.Shape{{2, 5, 3, 3}}, []tensor.Shape{{2, 5, 1, 1}}},
		{"softmax", "Softmax", nil, []tensor.Shape{{6, 10}}, []tensor.Shape{{6, 10}}},
		{"batchnorm", "BatchNormalization", nil,
			[]tensor.Shape{{2, 3, 4, 4}, {3}, {3}, {3}, {3}}, []tensor.Shape{{2, 3, 4, 4}}},
	}

	rng := rand.New(rand.NewPCG(1, 2))
	cpu, ref := New(testConfig), generic.New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inputs := randomArrays(t, rng, tc.inputs)
			if tc.op == "BatchNormalization" {
				// Variance must be positive.
				for i, v := range inputs[4].AsFloat32() {
					inputs[4].AsFloat32()[i] = v + 2.5
				}
			}
			want := zeroArrays(t, tc.outputs)
			got := zeroArrays(t, tc.outputs)

			refProc, err := compileWith(ref, tc, inputs, want)
			require.NoError(t, err)
			cpuProc, err := compileWith(cpu, tc, inputs, got)
			require.NoError(t, err)

			refProc()
			cpuProc()
			// Twice, to catch state kept across runs.
			cpuProc()
			assertClose(t, want[0].ToFloat32(), got[0].ToFloat32())
		})
	}
}

// assertClose compares with a relative tolerance of 1e-4, absolute near zero.
func assertClose(t *testing.T, want, got []float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		tol := 1e-4 * math.Max(1, math.Abs(float64(want[i])))
		if math.Abs(float64(want[i]-got[i])) > tol {
			t.Errorf("element %d: want %v, got %v", i, want[i], got[i])
			return
		}
	}
}

func TestDeclines(t *testing.T) {
	tests := []nodeCase{
		{"broadcast add", "Add", nil, []tensor.Shape{{2, 3}, {3}}, []tensor.Shape{{2, 3}}},
		{"batched matmul", "MatMul", nil, []tensor.Shape{{2, 2, 3}, {2, 3, 2}}, []tensor.Shape{{2, 2, 2}}},
		{"gemm transA", "Gemm", map[string]graph.Attribute{"transA": graph.Int(1)},
			[]tensor.Shape{{3, 2}, {3, 4}}, []tensor.Shape{{2, 4}}},
		{"gemm scalar c", "Gemm", nil, []tensor.Shape{{2, 3}, {3, 4}, {1}}, []tensor.Shape{{2, 4}}},
		{"sigmoid fused", "MatMul", map[string]graph.Attribute{graph.AttrActivation: graph.String("Sigmoid")},
			[]tensor.Shape{{2, 3}, {3, 4}}, []tensor.Shape{{2, 4}}},
		{"grouped conv", "Conv", map[string]graph.Attribute{"group": graph.Int(2)},
			[]tensor.Shape{{1, 2, 3, 3}, {2, 1, 1, 1}}, []tensor.Shape{{1, 2, 3, 3}}},
		{"dilated conv", "Conv", map[string]graph.Attribute{"dilations": graph.Ints(2, 2)},
			[]tensor.Shape{{1, 1, 5, 5}, {1, 1, 2, 2}}, []tensor.Shape{{1, 1, 3, 3}}},
		{"softmax axis 0", "Softmax", map[string]graph.Attribute{"axis": graph.Int(0)},
			[]tensor.Shape{{3, 4}}, []tensor.Shape{{3, 4}}},
		{"maxpool indices", "MaxPool", map[string]graph.Attribute{"kernel_shape": graph.Ints(2, 2)},
			[]tensor.Shape{{1, 1, 2, 2}}, []tensor.Shape{{1, 1, 1, 1}, {1, 1, 1, 1}}},
	}
	cpu := New(testConfig)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compileWith(cpu, tc, zeroArrays(t, tc.inputs), zeroArrays(t, tc.outputs))
			assert.True(t, backend.IsUnsupported(err), "expected unsupported, got %v", err)
		})
	}
}

func TestDeclinesNonFloat32(t *testing.T) {
	x, err := tensor.NewArray(tensor.Float64, tensor.Shape{4})
	require.NoError(t, err)
	y, err := tensor.NewArray(tensor.Float64, tensor.Shape{4})
	require.NoError(t, err)

	factory, ok := New(parallel.Sequential()).Lookup("Relu")
	require.True(t, ok)
	_, err = factory(&graph.Node{OpType: "Relu"}, []*tensor.Array{x}, []*tensor.Array{y})
	assert.True(t, backend.IsUnsupported(err))
}

func TestNoFactoryForUncommonOps(t *testing.T) {
	cpu := New(parallel.DefaultConfig())
	assert.Equal(t, Name, cpu.Name())
	for _, op := range []string{"Transpose", "Concat", "AveragePool", "Clip", "Sub"} {
		_, ok := cpu.Lookup(op)
		assert.False(t, ok, op)
	}
}

func TestRelu(t *testing.T) {
	x, err := tensor.FromFloat32(tensor.Shape{4}, []float32{-1.0, 0.0, 2.5, -3.3})
	require.NoError(t, err)
	y, err := tensor.NewArray(tensor.Float32, tensor.Shape{4})
	require.NoError(t, err)

	factory, _ := New(parallel.Sequential()).Lookup("Relu")
	proc, err := factory(&graph.Node{OpType: "Relu"}, []*tensor.Array{x}, []*tensor.Array{y})
	require.NoError(t, err)
	proc()
	assert.Equal(t, []float32{0, 0, 2.5, 0}, y.AsFloat32())
}
