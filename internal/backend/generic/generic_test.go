package generic

import (
	"testing"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type arg struct {
	shape tensor.Shape
	data  []float32
}

func compile(t *testing.T, op string, attrs map[string]graph.Attribute, dt tensor.DataType, args []arg, outShapes ...tensor.Shape) (backend.Procedure, []*tensor.Array, error) {
	t.Helper()
	inputs := make([]*tensor.Array, len(args))
	for i, a := range args {
		arr, err := tensor.NewArray(dt, a.shape)
		require.NoError(t, err)
		require.NoError(t, arr.CopyFromFloat32(a.data))
		inputs[i] = arr
	}
	outputs := make([]*tensor.Array, len(outShapes))
	for i, s := range outShapes {
		arr, err := tensor.NewArray(dt, s)
		require.NoError(t, err)
		outputs[i] = arr
	}
	factory, ok := New().Lookup(op)
	require.True(t, ok, "generic backend has no %s", op)
	node := &graph.Node{Name: "n", OpType: op, Attributes: attrs}
	proc, err := factory(node, inputs, outputs)
	return proc, outputs, err
}

// run compiles a float32 node with one output, runs it and returns the output.
func run(t *testing.T, op string, attrs map[string]graph.Attribute, args []arg, outShape tensor.Shape) []float32 {
	t.Helper()
	proc, outputs, err := compile(t, op, attrs, tensor.Float32, args, outShape)
	require.NoError(t, err)
	proc()
	return outputs[0].ToFloat32()
}

func requireUnsupported(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, backend.IsUnsupported(err), "expected unsupported, got %v", err)
}

func TestNewRegistersEveryFamily(t *testing.T) {
	table := New()
	assert.Equal(t, Name, table.Name())
	for _, op := range []string{
		"Relu", "Sigmoid", "Clip", "Add", "Sum", "MatMul", "Gemm", "Conv",
		"MaxPool", "GlobalAveragePool", "BatchNormalization", "Softmax", "Transpose", "Concat",
	} {
		_, ok := table.Lookup(op)
		assert.True(t, ok, op)
	}
}

func TestRelu(t *testing.T) {
	in := []arg{{tensor.Shape{4}, []float32{-1.0, 0.0, 2.5, -3.3}}}
	assert.Equal(t, []float32{0, 0, 2.5, 0}, run(t, "Relu", nil, in, tensor.Shape{4}))

	for _, dt := range []tensor.DataType{tensor.Float64, tensor.Float16} {
		t.Run(dt.String(), func(t *testing.T) {
			proc, out, err := compile(t, "Relu", nil, dt, in, tensor.Shape{4})
			require.NoError(t, err)
			proc()
			assert.InDeltaSlice(t, []float32{0, 0, 2.5, 0}, out[0].ToFloat32(), 1e-3)
		})
	}
}

func TestReluRejects(t *testing.T) {
	_, _, err := compile(t, "Relu", nil, tensor.Int32, []arg{{tensor.Shape{2}, []float32{1, 2}}}, tensor.Shape{2})
	requireUnsupported(t, err)

	_, _, err = compile(t, "Relu", nil, tensor.Float32, []arg{{tensor.Shape{2}, []float32{1, 2}}}, tensor.Shape{3})
	requireUnsupported(t, err)

	_, _, err = compile(t, "Relu", nil, tensor.Float32, nil, tensor.Shape{3})
	requireUnsupported(t, err)
}

func TestUnaryActivations(t *testing.T) {
	in := []arg{{tensor.Shape{3}, []float32{-2, 0, 3}}}
	assert.InDeltaSlice(t, []float32{-0.2, 0, 3},
		run(t, "LeakyRelu", map[string]graph.Attribute{"alpha": graph.Float(0.1)}, in, tensor.Shape{3}), 1e-6)
	assert.InDeltaSlice(t, []float32{0.11920292, 0.5, 0.95257413}, run(t, "Sigmoid", nil, in, tensor.Shape{3}), 1e-6)
	assert.InDeltaSlice(t, []float32{-0.96402758, 0, 0.99505475}, run(t, "Tanh", nil, in, tensor.Shape{3}), 1e-6)
	assert.InDeltaSlice(t, []float32{-0.86466472, 0, 3}, run(t, "Elu", nil, in, tensor.Shape{3}), 1e-6)
	assert.Equal(t, []float32{2, 0, 3}, run(t, "Abs", nil, in, tensor.Shape{3}))
}

func TestClip(t *testing.T) {
	x := arg{tensor.Shape{3}, []float32{-1, 0.5, 2}}
	attrs := map[string]graph.Attribute{"min": graph.Float(0), "max": graph.Float(1)}
	assert.Equal(t, []float32{0, 0.5, 1}, run(t, "Clip", attrs, []arg{x}, tensor.Shape{3}))

	bounds := []arg{x, {tensor.Shape{}, []float32{-0.5}}, {tensor.Shape{}, []float32{0.25}}}
	assert.Equal(t, []float32{-0.5, 0.25, 0.25}, run(t, "Clip", nil, bounds, tensor.Shape{3}))
}

func TestAddBroadcast(t *testing.T) {
	args := []arg{
		{tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}},
		{tensor.Shape{3}, []float32{10, 20, 30}},
	}
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, run(t, "Add", nil, args, tensor.Shape{2, 3}))
	assert.Equal(t, []float32{-9, -18, -27, -6, -15, -24}, run(t, "Sub", nil, args, tensor.Shape{2, 3}))

	_, _, err := compile(t, "Add", nil, tensor.Float32, args, tensor.Shape{3, 2})
	requireUnsupported(t, err)

	_, _, err = compile(t, "Mul", nil, tensor.Float32, []arg{args[0], {tensor.Shape{2}, []float32{1, 2}}}, tensor.Shape{2, 3})
	requireUnsupported(t, err)
}

func TestSum(t *testing.T) {
	args := []arg{
		{tensor.Shape{2}, []float32{1, 2}},
		{tensor.Shape{2}, []float32{10, 20}},
		{tensor.Shape{1}, []float32{100}},
	}
	assert.Equal(t, []float32{111, 122}, run(t, "Sum", nil, args, tensor.Shape{2}))
}

func TestMatMul(t *testing.T) {
	args := []arg{
		{tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}},
		{tensor.Shape{3, 2}, []float32{7, 8, 9, 10, 11, 12}},
	}
	assert.Equal(t, []float32{58, 64, 139, 154}, run(t, "MatMul", nil, args, tensor.Shape{2, 2}))

	vec := []arg{
		{tensor.Shape{2}, []float32{1, 2}},
		{tensor.Shape{2, 2}, []float32{1, 2, 3, 4}},
	}
	assert.Equal(t, []float32{7, 10}, run(t, "MatMul", nil, vec, tensor.Shape{2}))

	batched := []arg{
		{tensor.Shape{2, 1, 2}, []float32{1, 2, 3, 4}},
		{tensor.Shape{2, 1}, []float32{1, 1}},
	}
	assert.Equal(t, []float32{3, 7}, run(t, "MatMul", nil, batched, tensor.Shape{2, 1, 1}))

	_, _, err := compile(t, "MatMul", nil, tensor.Float32, []arg{args[0], args[0]}, tensor.Shape{2, 2})
	requireUnsupported(t, err)
}

func TestGemm(t *testing.T) {
	args := []arg{
		{tensor.Shape{1, 2}, []float32{1, 2}},
		{tensor.Shape{2, 2}, []float32{1, 2, 3, 4}},
		{tensor.Shape{2}, []float32{1, 1}},
	}
	attrs := map[string]graph.Attribute{"transB": graph.Int(1)}
	assert.Equal(t, []float32{6, 12}, run(t, "Gemm", attrs, args, tensor.Shape{1, 2}))

	attrs = map[string]graph.Attribute{"alpha": graph.Float(2), "beta": graph.Float(0.5)}
	assert.Equal(t, []float32{14.5, 20.5}, run(t, "Gemm", attrs, args, tensor.Shape{1, 2}))
}

func TestGemmFusedActivation(t *testing.T) {
	args := []arg{
		{tensor.Shape{1, 2}, []float32{1, -2}},
		{tensor.Shape{2, 2}, []float32{1, 0, 0, 1}},
	}
	attrs := map[string]graph.Attribute{graph.AttrActivation: graph.String("Relu")}
	assert.Equal(t, []float32{1, 0}, run(t, "Gemm", attrs, args, tensor.Shape{1, 2}))

	attrs = map[string]graph.Attribute{graph.AttrActivation: graph.String("Gelu")}
	_, _, err := compile(t, "Gemm", attrs, tensor.Float32, args, tensor.Shape{1, 2})
	requireUnsupported(t, err)
}

func TestConv(t *testing.T) {
	x := arg{tensor.Shape{1, 1, 3, 3}, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	w := arg{tensor.Shape{1, 1, 2, 2}, []float32{1, 1, 1, 1}}
	assert.Equal(t, []float32{12, 16, 24, 28}, run(t, "Conv", nil, []arg{x, w}, tensor.Shape{1, 1, 2, 2}))

	bias := arg{tensor.Shape{1}, []float32{1}}
	assert.Equal(t, []float32{13, 17, 25, 29}, run(t, "Conv", nil, []arg{x, w, bias}, tensor.Shape{1, 1, 2, 2}))

	padded := run(t, "Conv", map[string]graph.Attribute{"pads": graph.Ints(1, 1, 1, 1)}, []arg{x, w}, tensor.Shape{1, 1, 4, 4})
	assert.Len(t, padded, 16)
	assert.Equal(t, float32(1), padded[0])
	assert.Equal(t, float32(9), padded[15])

	_, _, err := compile(t, "Conv", nil, tensor.Float32, []arg{x, w}, tensor.Shape{1, 1, 3, 3})
	requireUnsupported(t, err)
}

func TestConvGroups(t *testing.T) {
	args := []arg{
		{tensor.Shape{1, 2, 1, 1}, []float32{3, 4}},
		{tensor.Shape{2, 1, 1, 1}, []float32{2, 10}},
	}
	attrs := map[string]graph.Attribute{"group": graph.Int(2)}
	assert.Equal(t, []float32{6, 40}, run(t, "Conv", attrs, args, tensor.Shape{1, 2, 1, 1}))
}

func TestPooling(t *testing.T) {
	x := arg{tensor.Shape{1, 1, 4, 4}, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}}
	attrs := map[string]graph.Attribute{"kernel_shape": graph.Ints(2, 2), "strides": graph.Ints(2, 2)}
	assert.Equal(t, []float32{6, 8, 14, 16}, run(t, "MaxPool", attrs, []arg{x}, tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{3.5, 5.5, 11.5, 13.5}, run(t, "AveragePool", attrs, []arg{x}, tensor.Shape{1, 1, 2, 2}))

	_, _, err := compile(t, "MaxPool", attrs, tensor.Float32, []arg{x}, tensor.Shape{1, 1, 2, 2}, tensor.Shape{1, 1, 2, 2})
	requireUnsupported(t, err)

	_, _, err = compile(t, "MaxPool", nil, tensor.Float32, []arg{x}, tensor.Shape{1, 1, 2, 2})
	requireUnsupported(t, err)
}

func TestAveragePoolPadding(t *testing.T) {
	x := arg{tensor.Shape{1, 1, 2, 2}, []float32{1, 2, 3, 4}}
	attrs := map[string]graph.Attribute{
		"kernel_shape": graph.Ints(2, 2),
		"strides":      graph.Ints(2, 2),
		"pads":         graph.Ints(1, 1, 1, 1),
	}
	assert.Equal(t, []float32{1, 2, 3, 4}, run(t, "AveragePool", attrs, []arg{x}, tensor.Shape{1, 1, 2, 2}))

	attrs["count_include_pad"] = graph.Int(1)
	assert.Equal(t, []float32{0.25, 0.5, 0.75, 1}, run(t, "AveragePool", attrs, []arg{x}, tensor.Shape{1, 1, 2, 2}))
}

func TestGlobalPooling(t *testing.T) {
	x := arg{tensor.Shape{1, 2, 2, 2}, []float32{1, 2, 3, 4, 10, 20, 30, 40}}
	assert.Equal(t, []float32{2.5, 25}, run(t, "GlobalAveragePool", nil, []arg{x}, tensor.Shape{1, 2, 1, 1}))
	assert.Equal(t, []float32{4, 40}, run(t, "GlobalMaxPool", nil, []arg{x}, tensor.Shape{1, 2, 1, 1}))
}

func TestBatchNormalization(t *testing.T) {
	args := []arg{
		{tensor.Shape{1, 2, 1, 1}, []float32{1, 2}},
		{tensor.Shape{2}, []float32{1, 2}},
		{tensor.Shape{2}, []float32{0, 1}},
		{tensor.Shape{2}, []float32{0, 1}},
		{tensor.Shape{2}, []float32{1, 4}},
	}
	attrs := map[string]graph.Attribute{"epsilon": graph.Float(0)}
	assert.InDeltaSlice(t, []float32{1, 2}, run(t, "BatchNormalization", attrs, args, tensor.Shape{1, 2, 1, 1}), 1e-6)

	_, _, err := compile(t, "BatchNormalization", attrs, tensor.Float32, args[:4], tensor.Shape{1, 2, 1, 1})
	requireUnsupported(t, err)
}

func TestSoftmax(t *testing.T) {
	x := arg{tensor.Shape{1, 3}, []float32{1, 2, 3}}
	want := []float32{0.09003057, 0.24472847, 0.66524096}
	assert.InDeltaSlice(t, want, run(t, "Softmax", nil, []arg{x}, tensor.Shape{1, 3}), 1e-6)
	assert.InDeltaSlice(t, []float32{-2.40760596, -1.40760596, -0.40760596},
		run(t, "LogSoftmax", nil, []arg{x}, tensor.Shape{1, 3}), 1e-5)

	cols := arg{tensor.Shape{3, 1}, []float32{1, 2, 3}}
	axis0 := map[string]graph.Attribute{"axis": graph.Int(0)}
	assert.InDeltaSlice(t, want, run(t, "Softmax", axis0, []arg{cols}, tensor.Shape{3, 1}), 1e-6)

	_, _, err := compile(t, "Softmax", map[string]graph.Attribute{"axis": graph.Int(2)}, tensor.Float32, []arg{x}, tensor.Shape{1, 3})
	requireUnsupported(t, err)
}

func TestMovement(t *testing.T) {
	x := arg{tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6}}
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, run(t, "Reshape", nil, []arg{x}, tensor.Shape{3, 2}))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, run(t, "Transpose", nil, []arg{x}, tensor.Shape{3, 2}))

	x3 := arg{tensor.Shape{1, 2, 3}, x.data}
	perm := map[string]graph.Attribute{"perm": graph.Ints(0, 2, 1)}
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, run(t, "Transpose", perm, []arg{x3}, tensor.Shape{1, 3, 2}))
	assert.Equal(t, x.data, run(t, "Flatten", nil, []arg{x3}, tensor.Shape{1, 6}))

	_, _, err := compile(t, "Reshape", nil, tensor.Float32, []arg{x}, tensor.Shape{4})
	requireUnsupported(t, err)
	_, _, err = compile(t, "Transpose", map[string]graph.Attribute{"perm": graph.Ints(0, 0)}, tensor.Float32, []arg{x}, tensor.Shape{2, 3})
	requireUnsupported(t, err)
}

func TestTransposeIsDTypeAgnostic(t *testing.T) {
	proc, out, err := compile(t, "Transpose", nil, tensor.Int64, []arg{{tensor.Shape{2, 2}, []float32{1, 2, 3, 4}}}, tensor.Shape{2, 2})
	require.NoError(t, err)
	proc()
	assert.Equal(t, []int64{1, 3, 2, 4}, out[0].AsInt64())
}

func TestConcat(t *testing.T) {
	args := []arg{
		{tensor.Shape{2, 1}, []float32{1, 2}},
		{tensor.Shape{2, 2}, []float32{3, 4, 5, 6}},
	}
	attrs := map[string]graph.Attribute{"axis": graph.Int(1)}
	assert.Equal(t, []float32{1, 3, 4, 2, 5, 6}, run(t, "Concat", attrs, args, tensor.Shape{2, 3}))

	attrs = map[string]graph.Attribute{"axis": graph.Int(-2)}
	rows := []arg{args[0], {tensor.Shape{1, 1}, []float32{9}}}
	assert.Equal(t, []float32{1, 2, 9}, run(t, "Concat", attrs, rows, tensor.Shape{3, 1}))

	_, _, err := compile(t, "Concat", map[string]graph.Attribute{"axis": graph.Int(0)}, tensor.Float32, args, tensor.Shape{4, 1})
	requireUnsupported(t, err)
}

func TestProceduresReadInputsOnEveryRun(t *testing.T) {
	proc, out, err := compile(t, "Relu", nil, tensor.Float32, []arg{{tensor.Shape{2}, []float32{-1, 1}}}, tensor.Shape{2})
	require.NoError(t, err)
	proc()
	assert.Equal(t, []float32{0, 1}, out[0].ToFloat32())

	// Same output array, overwritten in place.
	out[0].AsFloat32()[0] = 42
	proc()
	assert.Equal(t, []float32{0, 1}, out[0].ToFloat32())
}
