package generic

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
	"github.com/x448/float16"
)

// float is the set of element types kernels are written for. Float16 data is staged
// through float32 buffers.
type float interface {
	~float32 | ~float64
}

type (
	builder32 func(in, out [][]float32) backend.Procedure
	builder64 func(in, out [][]float64) backend.Procedure
)

// bindFloat binds a kernel to the node's arrays. All arrays must share one float dtype;
// float32 and float64 get zero-copy views, float16 gets float32 staging buffers that
// are allocated here, once, and converted around every invocation.
func bindFloat(node *graph.Node, inputs, outputs []*tensor.Array, b32 builder32, b64 builder64) (backend.Procedure, error) {
	dt := outputs[0].DType()
	if err := backend.CheckSameDType(node, dt, inputs...); err != nil {
		return nil, err
	}
	if err := backend.CheckSameDType(node, dt, outputs...); err != nil {
		return nil, err
	}

	switch dt {
	case tensor.Float32:
		return b32(views32(inputs), views32(outputs)), nil
	case tensor.Float64:
		return b64(views64(inputs), views64(outputs)), nil
	case tensor.Float16:
		return staged16(inputs, outputs, b32), nil
	default:
		return nil, backend.Unsupportedf("%s: dtype %s", node.OpType, dt)
	}
}

func views32(arrays []*tensor.Array) [][]float32 {
	v := make([][]float32, len(arrays))
	for i, a := range arrays {
		v[i] = a.AsFloat32()
	}
	return v
}

func views64(arrays []*tensor.Array) [][]float64 {
	v := make([][]float64, len(arrays))
	for i, a := range arrays {
		v[i] = a.AsFloat64()
	}
	return v
}

func staged16(inputs, outputs []*tensor.Array, b32 builder32) backend.Procedure {
	src := make([][]float16.Float16, len(inputs))
	in := make([][]float32, len(inputs))
	for i, a := range inputs {
		src[i] = a.AsFloat16()
		in[i] = make([]float32, a.NumElements())
	}
	dst := make([][]float16.Float16, len(outputs))
	out := make([][]float32, len(outputs))
	for i, a := range outputs {
		dst[i] = a.AsFloat16()
		out[i] = make([]float32, a.NumElements())
	}
	kernel := b32(in, out)

	return func() {
		for i, s := range src {
			for j, v := range s {
				in[i][j] = v.Float32()
			}
		}
		kernel()
		for i, d := range dst {
			for j, v := range out[i] {
				d[j] = float16.Fromfloat32(v)
			}
		}
	}
}
