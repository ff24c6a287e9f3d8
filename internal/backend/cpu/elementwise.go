package cpu

import (
	"math"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/parallel"
	"github.com/born-ml/composite/internal/tensor"
)

func relu(x float32) float32 { return max(x, 0) }

func sigmoid(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) }

func tanh(x float32) float32 { return float32(math.Tanh(float64(x))) }

// unary builds a factory applying fn element-wise, split into chunks.
func (k *kernels) unary(fn func(float32) float32) backend.Factory {
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		return k.mapUnary(node, inputs, outputs, fn)
	}
}

func (k *kernels) mapUnary(node *graph.Node, inputs, outputs []*tensor.Array, fn func(float32) float32) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
		return nil, err
	}
	if err := backend.CheckShape(node, "output", outputs[0], inputs[0].Shape()); err != nil {
		return nil, err
	}
	in, out, err := views(node, inputs, outputs)
	if err != nil {
		return nil, err
	}
	src, dst := in[0], out[0]
	return func() {
		k.forRange(len(dst), func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = fn(src[i])
			}
		})
	}, nil
}

func (k *kernels) leakyRelu(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	alpha := node.AttrFloat("alpha", 0.01)
	return k.mapUnary(node, inputs, outputs, func(x float32) float32 {
		if x < 0 {
			return alpha * x
		}
		return x
	})
}

func (k *kernels) elu(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	alpha := float64(node.AttrFloat("alpha", 1))
	return k.mapUnary(node, inputs, outputs, func(x float32) float32 {
		if x < 0 {
			return float32(alpha * (math.Exp(float64(x)) - 1))
		}
		return x
	})
}

// binary builds a factory for same-shape element-wise arithmetic. Broadcasting is
// left to the generic backend.
func (k *kernels) binary(op func(a, b float32) float32) backend.Factory {
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		if err := backend.CheckArity(node, inputs, outputs, 2, 2, 1); err != nil {
			return nil, err
		}
		shape := outputs[0].Shape()
		for _, in := range inputs {
			if !in.Shape().Equal(shape) {
				return nil, backend.Unsupportedf("%s: broadcasting %v to %v", node.OpType, in.Shape(), shape)
			}
		}
		in, out, err := views(node, inputs, outputs)
		if err != nil {
			return nil, err
		}
		a, b, dst := in[0], in[1], out[0]
		return func() {
			k.forRange(len(dst), func(start, end int) {
				for i := start; i < end; i++ {
					dst[i] = op(a[i], b[i])
				}
			})
		}, nil
	}
}

func (k *kernels) forRange(n int, f func(start, end int)) {
	parallel.ForRange(n, f, k.par)
}
