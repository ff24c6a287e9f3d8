package generic

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

// registerBinary adds the broadcasting arithmetic operators.
func registerBinary(t *backend.Table) {
	t.MustRegister("Add", binary(add[float32], add[float64]))
	t.MustRegister("Sub", binary(sub[float32], sub[float64]))
	t.MustRegister("Mul", binary(mul[float32], mul[float64]))
	t.MustRegister("Div", binary(div[float32], div[float64]))
	t.MustRegister("Sum", makeSum)
}

func add[T float](a, b T) T { return a + b }
func sub[T float](a, b T) T { return a - b }
func mul[T float](a, b T) T { return a * b }
func div[T float](a, b T) T { return a / b }

// broadcastIndices checks that the output shape is the multidirectional broadcast of
// the input shapes and returns, per input, the output-to-input index map (nil when
// the input already has the output shape).
func broadcastIndices(node *graph.Node, inputs []*tensor.Array, out *tensor.Array) ([][]int, error) {
	shape := inputs[0].Shape()
	for _, in := range inputs[1:] {
		var err error
		if shape, _, err = tensor.BroadcastShapes(shape, in.Shape()); err != nil {
			return nil, backend.Unsupportedf("%s: %v", node.OpType, err)
		}
	}
	if !shape.Equal(out.Shape()) {
		return nil, backend.Unsupportedf("%s: inputs broadcast to %v, output is %v", node.OpType, shape, out.Shape())
	}
	indices := make([][]int, len(inputs))
	for i, in := range inputs {
		index, err := tensor.BroadcastIndex(in.Shape(), shape)
		if err != nil {
			return nil, backend.Unsupportedf("%s: %v", node.OpType, err)
		}
		indices[i] = index
	}
	return indices, nil
}

func binary(op32 func(a, b float32) float32, op64 func(a, b float64) float64) backend.Factory {
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		if err := backend.CheckArity(node, inputs, outputs, 2, 2, 1); err != nil {
			return nil, err
		}
		indices, err := broadcastIndices(node, inputs, outputs[0])
		if err != nil {
			return nil, err
		}
		return bindFloat(node, inputs, outputs,
			func(in, out [][]float32) backend.Procedure {
				return broadcastBinary(in[0], in[1], out[0], indices[0], indices[1], op32)
			},
			func(in, out [][]float64) backend.Procedure {
				return broadcastBinary(in[0], in[1], out[0], indices[0], indices[1], op64)
			})
	}
}

func broadcastBinary[T float](a, b, out []T, idxA, idxB []int, op func(a, b T) T) backend.Procedure {
	switch {
	case idxA == nil && idxB == nil:
		return func() {
			for i := range out {
				out[i] = op(a[i], b[i])
			}
		}
	case idxA == nil:
		return func() {
			for i := range out {
				out[i] = op(a[i], b[idxB[i]])
			}
		}
	case idxB == nil:
		return func() {
			for i := range out {
				out[i] = op(a[idxA[i]], b[i])
			}
		}
	default:
		return func() {
			for i := range out {
				out[i] = op(a[idxA[i]], b[idxB[i]])
			}
		}
	}
}

// makeSum adds any number of broadcastable inputs.
func makeSum(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 1, -1, 1); err != nil {
		return nil, err
	}
	indices, err := broadcastIndices(node, inputs, outputs[0])
	if err != nil {
		return nil, err
	}
	return bindFloat(node, inputs, outputs,
		func(in, out [][]float32) backend.Procedure { return sum(in, out[0], indices) },
		func(in, out [][]float64) backend.Procedure { return sum(in, out[0], indices) })
}

func sum[T float](in [][]T, out []T, indices [][]int) backend.Procedure {
	return func() {
		for i := range out {
			var acc T
			for j, src := range in {
				if indices[j] == nil {
					acc += src[i]
				} else {
					acc += src[indices[j][i]]
				}
			}
			out[i] = acc
		}
	}
}
