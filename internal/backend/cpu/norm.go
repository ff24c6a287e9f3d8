package cpu

import (
	"math"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/parallel"
	"github.com/born-ml/composite/internal/tensor"
)

// softmax handles the last axis only; rows are split across workers.
func (k *kernels) softmax(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0].Shape()
	if len(x) == 0 {
		return nil, backend.Unsupportedf("Softmax: scalar input")
	}
	if axis := int(node.AttrInt("axis", -1)); axis != -1 && axis != len(x)-1 {
		return nil, backend.Unsupportedf("Softmax: axis %d is not the last of %v", axis, x)
	}
	if err := backend.CheckShape(node, "output", outputs[0], x); err != nil {
		return nil, err
	}
	in, out, err := views(node, inputs, outputs)
	if err != nil {
		return nil, err
	}
	src, dst := in[0], out[0]
	size := x[len(x)-1]

	return func() {
		k.forRange(len(src)/size, func(r0, r1 int) {
			for r := r0; r < r1; r++ {
				row := src[r*size : (r+1)*size]
				res := dst[r*size : (r+1)*size]
				maxV := row[0]
				for _, v := range row[1:] {
					maxV = max(maxV, v)
				}
				var total float64
				for i, v := range row {
					e := math.Exp(float64(v - maxV))
					res[i] = float32(e)
					total += e
				}
				inv := float32(1 / total)
				for i := range res {
					res[i] *= inv
				}
			}
		})
	}, nil
}

// batchNorm folds scale, bias, mean and variance into a per-channel affine map at run
// time and applies it plane by plane.
func (k *kernels) batchNorm(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 5, 5, 1); err != nil {
		return nil, err
	}
	x := inputs[0].Shape()
	if len(x) < 2 {
		return nil, backend.Unsupportedf("BatchNormalization: input must be at least 2-D, got %v", x)
	}
	channels := x[1]
	for i := 1; i < 5; i++ {
		if err := backend.CheckShape(node, "parameter", inputs[i], tensor.Shape{channels}); err != nil {
			return nil, err
		}
	}
	if err := backend.CheckShape(node, "output", outputs[0], x); err != nil {
		return nil, err
	}
	in, out, err := views(node, inputs, outputs)
	if err != nil {
		return nil, err
	}
	epsilon := float64(node.AttrFloat("epsilon", 1e-5))
	src, scale, bias, mean, variance := in[0], in[1], in[2], in[3], in[4]
	dst := out[0]
	spatial := x[2:].NumElements()
	a := make([]float32, channels)
	b := make([]float32, channels)

	return func() {
		for c := range a {
			s := float64(scale[c]) / math.Sqrt(float64(variance[c])+epsilon)
			a[c] = float32(s)
			b[c] = float32(float64(bias[c]) - s*float64(mean[c]))
		}
		parallel.ForBatch(x[0], channels, func(n, c int) {
			off := (n*channels + c) * spatial
			for i := off; i < off+spatial; i++ {
				dst[i] = a[c]*src[i] + b[c]
			}
		}, k.par)
	}, nil
}
