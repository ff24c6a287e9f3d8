package generic

import (
	"math"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

func registerNormalization(t *backend.Table) {
	t.MustRegister("BatchNormalization", makeBatchNorm)
	t.MustRegister("Softmax", makeSoftmax(false))
	t.MustRegister("LogSoftmax", makeSoftmax(true))
}

// makeBatchNorm implements inference-mode batch normalization over axis 1:
//
//	y = scale * (x - mean) / sqrt(var + epsilon) + bias
//
// Training-mode outputs (running mean and variance) are declined.
func makeBatchNorm(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 5, 5, 1); err != nil {
		return nil, err
	}
	x := inputs[0].Shape()
	if len(x) < 2 {
		return nil, backend.Unsupportedf("BatchNormalization: input must be at least 2-D, got %v", x)
	}
	channels := x[1]
	for i, what := range []string{"scale", "bias", "mean", "var"} {
		if err := backend.CheckShape(node, what, inputs[i+1], tensor.Shape{channels}); err != nil {
			return nil, err
		}
	}
	if err := backend.CheckShape(node, "output", outputs[0], x); err != nil {
		return nil, err
	}
	epsilon := float64(node.AttrFloat("epsilon", 1e-5))
	batch := x[0]
	spatial := x[2:].NumElements()

	return bindFloat(node, inputs, outputs,
		func(in, out [][]float32) backend.Procedure {
			return batchNorm(in, out[0], batch, channels, spatial, epsilon)
		},
		func(in, out [][]float64) backend.Procedure {
			return batchNorm(in, out[0], batch, channels, spatial, epsilon)
		})
}

func batchNorm[T float](in [][]T, out []T, batch, channels, spatial int, epsilon float64) backend.Procedure {
	x, scale, bias, mean, variance := in[0], in[1], in[2], in[3], in[4]
	return func() {
		for c := 0; c < channels; c++ {
			// y = a*x + b per channel.
			a := float64(scale[c]) / math.Sqrt(float64(variance[c])+epsilon)
			b := float64(bias[c]) - a*float64(mean[c])
			for n := 0; n < batch; n++ {
				off := (n*channels + c) * spatial
				for i := off; i < off+spatial; i++ {
					out[i] = T(a*float64(x[i]) + b)
				}
			}
		}
	}
}

// makeSoftmax normalizes along one axis (default -1). The max is subtracted before
// exponentiation for numerical stability.
func makeSoftmax(logarithm bool) backend.Factory {
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
			return nil, err
		}
		x := inputs[0].Shape()
		if err := backend.CheckShape(node, "output", outputs[0], x); err != nil {
			return nil, err
		}
		if len(x) == 0 {
			return nil, backend.Unsupportedf("%s: scalar input", node.OpType)
		}
		axis := int(node.AttrInt("axis", -1))
		if axis < 0 {
			axis += len(x)
		}
		if axis < 0 || axis >= len(x) {
			return nil, backend.Unsupportedf("%s: axis %d out of range for %v", node.OpType, node.AttrInt("axis", -1), x)
		}
		outer := x[:axis].NumElements()
		size := x[axis]
		inner := x[axis+1:].NumElements()

		return bindFloat(node, inputs, outputs,
			func(in, out [][]float32) backend.Procedure { return softmax(in[0], out[0], outer, size, inner, logarithm) },
			func(in, out [][]float64) backend.Procedure { return softmax(in[0], out[0], outer, size, inner, logarithm) })
	}
}

func softmax[T float](in, out []T, outer, size, inner int, logarithm bool) backend.Procedure {
	return func() {
		for o := 0; o < outer; o++ {
			for i := 0; i < inner; i++ {
				base := o*size*inner + i
				maxV := math.Inf(-1)
				for j := 0; j < size; j++ {
					maxV = max(maxV, float64(in[base+j*inner]))
				}
				var total float64
				for j := 0; j < size; j++ {
					total += math.Exp(float64(in[base+j*inner]) - maxV)
				}
				logTotal := math.Log(total)
				for j := 0; j < size; j++ {
					shifted := float64(in[base+j*inner]) - maxV
					if logarithm {
						out[base+j*inner] = T(shifted - logTotal)
					} else {
						out[base+j*inner] = T(math.Exp(shifted) / total)
					}
				}
			}
		}
	}
}
