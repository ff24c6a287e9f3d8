// Package backend defines how a graph node becomes executable code: the Procedure a
// compiled node turns into, the Factory that builds it for one backend, and the Table
// mapping operator types to factories for that backend.
//
// A factory that cannot service a node's exact configuration returns an error
// wrapping ErrUnsupported; the composite dispatcher then moves on to the next backend.
// Any other error is fatal to compilation.
package backend

import (
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

// Procedure is one compiled node. It takes no arguments and returns nothing: it reads
// and writes only the arrays it was bound to when its factory built it, and performs
// no validation of its own.
type Procedure func()

// Factory compiles node for one backend. inputs and outputs are the arrays bound to
// node.Inputs and node.Outputs, in the same order.
type Factory func(node *graph.Node, inputs, outputs []*tensor.Array) (Procedure, error)
