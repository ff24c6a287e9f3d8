package generic

import (
	"math"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

// registerElementwise adds the unary element-wise operators.
func registerElementwise(t *backend.Table) {
	t.MustRegister("Relu", makeRelu)
	t.MustRegister("LeakyRelu", unary(func(node *graph.Node) func(float64) float64 {
		alpha := float64(node.AttrFloat("alpha", 0.01))
		return func(x float64) float64 { return leakyRelu(x, alpha) }
	}))
	t.MustRegister("Elu", unary(func(node *graph.Node) func(float64) float64 {
		alpha := float64(node.AttrFloat("alpha", 1))
		return func(x float64) float64 { return elu(x, alpha) }
	}))
	t.MustRegister("Sigmoid", unary(constant(sigmoid)))
	t.MustRegister("Tanh", unary(constant(math.Tanh)))
	t.MustRegister("Abs", unary(constant(math.Abs)))
	t.MustRegister("Neg", unary(constant(func(x float64) float64 { return -x })))
	t.MustRegister("Exp", unary(constant(math.Exp)))
	t.MustRegister("Log", unary(constant(math.Log)))
	t.MustRegister("Sqrt", unary(constant(math.Sqrt)))
	t.MustRegister("Clip", makeClip)
}

func leakyRelu(x, alpha float64) float64 {
	if x < 0 {
		return alpha * x
	}
	return x
}

func elu(x, alpha float64) float64 {
	if x < 0 {
		return alpha * (math.Exp(x) - 1)
	}
	return x
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func constant(fn func(float64) float64) func(*graph.Node) func(float64) float64 {
	return func(*graph.Node) func(float64) float64 { return fn }
}

// checkUnary verifies one input and one output of equal element count.
func checkUnary(node *graph.Node, inputs, outputs []*tensor.Array) error {
	if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
		return err
	}
	if inputs[0].NumElements() != outputs[0].NumElements() {
		return backend.Unsupportedf("%s: input has %d elements, output %d",
			node.OpType, inputs[0].NumElements(), outputs[0].NumElements())
	}
	return nil
}

// makeRelu computes output[i] = max(input[i], 0) for every linear index.
func makeRelu(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := checkUnary(node, inputs, outputs); err != nil {
		return nil, err
	}
	return bindFloat(node, inputs, outputs,
		func(in, out [][]float32) backend.Procedure { return relu(in[0], out[0]) },
		func(in, out [][]float64) backend.Procedure { return relu(in[0], out[0]) })
}

func relu[T float](in, out []T) backend.Procedure {
	return func() {
		for i, v := range in {
			out[i] = max(v, 0)
		}
	}
}

// unary builds a factory for an element-wise operator whose function may depend on
// the node's attributes. Element math runs in float64.
func unary(fnOf func(node *graph.Node) func(float64) float64) backend.Factory {
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		if err := checkUnary(node, inputs, outputs); err != nil {
			return nil, err
		}
		fn := fnOf(node)
		return bindFloat(node, inputs, outputs,
			func(in, out [][]float32) backend.Procedure { return mapUnary(in[0], out[0], fn) },
			func(in, out [][]float64) backend.Procedure { return mapUnary(in[0], out[0], fn) })
	}
}

func mapUnary[T float](in, out []T, fn func(float64) float64) backend.Procedure {
	return func() {
		for i, v := range in {
			out[i] = T(fn(float64(v)))
		}
	}
}

// makeClip supports both forms: min/max attributes, and optional min/max scalar inputs
// which are read on every invocation.
func makeClip(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 1, 3, 1); err != nil {
		return nil, err
	}
	if inputs[0].NumElements() != outputs[0].NumElements() {
		return nil, backend.Unsupportedf("Clip: input and output sizes differ")
	}
	for _, bound := range inputs[1:] {
		if bound.NumElements() != 1 {
			return nil, backend.Unsupportedf("Clip: bounds must be scalars, got %v", bound.Shape())
		}
	}
	lo := float64(node.AttrFloat("min", -math.MaxFloat32))
	hi := float64(node.AttrFloat("max", math.MaxFloat32))
	bounds := inputs[1:]
	data := inputs[:1]

	return bindFloat(node, data, outputs,
		func(in, out [][]float32) backend.Procedure { return clip(in[0], out[0], lo, hi, bounds) },
		func(in, out [][]float64) backend.Procedure { return clip(in[0], out[0], lo, hi, bounds) })
}

func clip[T float](in, out []T, lo, hi float64, bounds []*tensor.Array) backend.Procedure {
	return func() {
		minV, maxV := lo, hi
		if len(bounds) > 0 {
			minV = bounds[0].Float(0)
		}
		if len(bounds) > 1 {
			maxV = bounds[1].Float(0)
		}
		low, high := T(minV), T(maxV)
		for i, v := range in {
			out[i] = min(max(v, low), high)
		}
	}
}

// activationFunc returns the fused activation applied in place after a producer
// kernel, or nil when there is none.
func activationFunc[T float](act backend.Activation) func([]T) {
	var fn func(float64) float64
	switch act.Kind {
	case "":
		return nil
	case "Relu":
		return func(data []T) {
			for i, v := range data {
				data[i] = max(v, 0)
			}
		}
	case "LeakyRelu":
		alpha := float64(act.Alpha)
		fn = func(x float64) float64 { return leakyRelu(x, alpha) }
	case "Sigmoid":
		fn = sigmoid
	case "Tanh":
		fn = math.Tanh
	default:
		return nil
	}
	return func(data []T) {
		for i, v := range data {
			data[i] = T(fn(float64(v)))
		}
	}
}

// checkFusedActivation accepts every activation graph.FuseActivations produces.
func checkFusedActivation(node *graph.Node) (backend.Activation, error) {
	act := backend.FusedActivation(node)
	if err := backend.CheckActivation(node, act, "Relu", "LeakyRelu", "Sigmoid", "Tanh"); err != nil {
		return act, err
	}
	return act, nil
}
