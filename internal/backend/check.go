package backend

import (
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

// CheckArity verifies the number of bound arrays. maxIn < 0 means no upper bound on
// inputs. Mismatches are unsupported rather than fatal so another backend may try.
func CheckArity(node *graph.Node, inputs, outputs []*tensor.Array, minIn, maxIn, numOut int) error {
	if len(inputs) < minIn || (maxIn >= 0 && len(inputs) > maxIn) {
		if minIn == maxIn {
			return Unsupportedf("%s: expects %d inputs, got %d", node.OpType, minIn, len(inputs))
		}
		return Unsupportedf("%s: expects %d..%d inputs, got %d", node.OpType, minIn, maxIn, len(inputs))
	}
	if len(outputs) != numOut {
		return Unsupportedf("%s: expects %d outputs, got %d", node.OpType, numOut, len(outputs))
	}
	return nil
}

// CheckSameDType verifies that every array has dtype dt.
func CheckSameDType(node *graph.Node, dt tensor.DataType, arrays ...*tensor.Array) error {
	for _, a := range arrays {
		if a.DType() != dt {
			return Unsupportedf("%s: mixed dtypes %s and %s", node.OpType, dt, a.DType())
		}
	}
	return nil
}

// CheckShape verifies that a has the expected shape.
func CheckShape(node *graph.Node, what string, a *tensor.Array, want tensor.Shape) error {
	if !a.Shape().Equal(want) {
		return Unsupportedf("%s: %s has shape %v, expected %v", node.OpType, what, a.Shape(), want)
	}
	return nil
}

// Activation is the activation a producer node applies to its own output, as set by
// graph.FuseActivations. An empty Kind means none.
type Activation struct {
	Kind  string
	Alpha float32
}

// FusedActivation reads the fused activation attributes of node.
func FusedActivation(node *graph.Node) Activation {
	return Activation{
		Kind:  node.AttrString(graph.AttrActivation, ""),
		Alpha: node.AttrFloat(graph.AttrActivationAlpha, 0.01),
	}
}

// CheckActivation verifies that act is empty or one of the supported kinds.
func CheckActivation(node *graph.Node, act Activation, supported ...string) error {
	if act.Kind == "" {
		return nil
	}
	for _, s := range supported {
		if act.Kind == s {
			return nil
		}
	}
	return Unsupportedf("%s: fused activation %q", node.OpType, act.Kind)
}
