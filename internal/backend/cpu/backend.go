// Package cpu implements the specialized CPU backend: float32 kernels split over
// goroutines with internal/parallel, a cache-blocked GEMM, and im2col convolution.
// It covers the common inference path only and declines everything else, leaving
// it to a backend later in the list.
package cpu

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/parallel"
	"github.com/born-ml/composite/internal/tensor"
)

// Name is the backend name.
const Name = "cpu"

// kernels carries the parallelism settings every factory of one table shares.
type kernels struct {
	par parallel.Config
}

// New creates the CPU backend table. cfg controls how procedures split their work.
func New(cfg parallel.Config) *backend.Table {
	k := &kernels{par: cfg}
	t := backend.NewTable(Name)

	t.MustRegister("Relu", k.unary(relu))
	t.MustRegister("LeakyRelu", k.leakyRelu)
	t.MustRegister("Elu", k.elu)
	t.MustRegister("Sigmoid", k.unary(sigmoid))
	t.MustRegister("Tanh", k.unary(tanh))
	t.MustRegister("Add", k.binary(func(a, b float32) float32 { return a + b }))
	t.MustRegister("Mul", k.binary(func(a, b float32) float32 { return a * b }))

	t.MustRegister("MatMul", k.matMul)
	t.MustRegister("Gemm", k.gemm)
	t.MustRegister("Conv", k.conv)

	t.MustRegister("MaxPool", k.maxPool)
	t.MustRegister("GlobalAveragePool", k.globalAveragePool)
	t.MustRegister("Softmax", k.softmax)
	t.MustRegister("BatchNormalization", k.batchNorm)
	return t
}

// views checks that every array is float32 and returns their data.
func views(node *graph.Node, inputs, outputs []*tensor.Array) (in, out [][]float32, err error) {
	if err := backend.CheckSameDType(node, tensor.Float32, inputs...); err != nil {
		return nil, nil, err
	}
	if err := backend.CheckSameDType(node, tensor.Float32, outputs...); err != nil {
		return nil, nil, err
	}
	in = make([][]float32, len(inputs))
	for i, a := range inputs {
		in[i] = a.AsFloat32()
	}
	out = make([][]float32, len(outputs))
	for i, a := range outputs {
		out[i] = a.AsFloat32()
	}
	return in, out, nil
}

// activation returns the in-place fused activation for a producer node. Only Relu
// and LeakyRelu are fused on this backend.
func activation(node *graph.Node) (func([]float32), error) {
	act := backend.FusedActivation(node)
	if err := backend.CheckActivation(node, act, "Relu", "LeakyRelu"); err != nil {
		return nil, err
	}
	switch act.Kind {
	case "Relu":
		return func(data []float32) {
			for i, v := range data {
				data[i] = max(v, 0)
			}
		}, nil
	case "LeakyRelu":
		alpha := act.Alpha
		return func(data []float32) {
			for i, v := range data {
				if v < 0 {
					data[i] = alpha * v
				}
			}
		}, nil
	default:
		return nil, nil
	}
}
