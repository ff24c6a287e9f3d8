// Package webgpu implements a GPU backend on WebGPU via go-webgpu (zero-CGO
// bindings). It serves float32 element-wise operators and 2-D MatMul. The native
// runtime is only wired up on Windows; elsewhere New reports ErrUnavailable and the
// engine leaves the backend out of the list.
package webgpu

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
	"github.com/pkg/errors"
)

// Name is the backend name.
const Name = "webgpu"

// ErrUnavailable is returned by New when no WebGPU adapter or native library can be
// found.
var ErrUnavailable = errors.New("webgpu: not available")

// IsAvailable reports whether a device can be opened on this machine.
func IsAvailable() bool {
	b, err := New()
	if err != nil {
		return false
	}
	b.Release()
	return true
}

// unaryExprs maps supported unary operators to their WGSL expression over x.
var unaryExprs = map[string]string{
	"Relu":    "max(0.0, x)",
	"Sigmoid": "1.0 / (1.0 + exp(-x))",
	"Tanh":    "tanh(x)",
}

// binaryExprs maps supported binary operators to their WGSL expression over x, y.
var binaryExprs = map[string]string{
	"Add": "x + y",
	"Sub": "x - y",
	"Mul": "x * y",
	"Div": "x / y",
}

// checkElementwise verifies float32 operands that all share the output's shape.
func checkElementwise(node *graph.Node, inputs, outputs []*tensor.Array, arity int) error {
	if err := backend.CheckArity(node, inputs, outputs, arity, arity, 1); err != nil {
		return err
	}
	if err := backend.CheckSameDType(node, tensor.Float32, inputs...); err != nil {
		return err
	}
	if err := backend.CheckSameDType(node, tensor.Float32, outputs...); err != nil {
		return err
	}
	for _, in := range inputs {
		if err := backend.CheckShape(node, "input", in, outputs[0].Shape()); err != nil {
			return err
		}
	}
	return nil
}

// checkMatMul verifies a float32 [m,k] @ [k,n] product and returns its dimensions.
func checkMatMul(node *graph.Node, inputs, outputs []*tensor.Array) (m, k, n int, err error) {
	if err = backend.CheckArity(node, inputs, outputs, 2, 2, 1); err != nil {
		return 0, 0, 0, err
	}
	if err = backend.CheckSameDType(node, tensor.Float32, inputs...); err != nil {
		return 0, 0, 0, err
	}
	if err = backend.CheckSameDType(node, tensor.Float32, outputs...); err != nil {
		return 0, 0, 0, err
	}
	if act := backend.FusedActivation(node); act.Kind != "" {
		return 0, 0, 0, backend.Unsupportedf("MatMul: fused activation %q", act.Kind)
	}
	a, b := inputs[0].Shape(), inputs[1].Shape()
	if len(a) != 2 || len(b) != 2 || a[1] != b[0] {
		return 0, 0, 0, backend.Unsupportedf("MatMul: only [m,k] @ [k,n], got %v @ %v", a, b)
	}
	m, k, n = a[0], a[1], b[1]
	if err = backend.CheckShape(node, "output", outputs[0], tensor.Shape{m, n}); err != nil {
		return 0, 0, 0, err
	}
	return m, k, n, nil
}
