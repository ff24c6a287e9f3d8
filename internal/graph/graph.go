// Package graph describes computation graphs: tensor declarations, nodes in compiled
// order, and the graph's inputs and outputs. It also loads graphs from YAML and
// provides the activation fusion rewrite.
package graph

import (
	"errors"
	"fmt"

	"github.com/born-ml/composite/internal/tensor"
)

// ErrInvalidGraph is wrapped by every validation failure.
var ErrInvalidGraph = errors.New("invalid graph")

// TensorDecl declares a tensor handle with its type and shape. Data, when set, holds
// the initializer values (weights, constants) in row-major order.
type TensorDecl struct {
	Name  string
	DType tensor.DataType
	Shape tensor.Shape
	Data  []float64
}

// IsInitializer reports whether the tensor carries constant data.
func (d *TensorDecl) IsInitializer() bool {
	return d.Data != nil
}

// Graph is an ordered sequence of nodes plus every tensor handle they reference.
// Nodes are listed in a topologically valid order, which is also the execution order.
type Graph struct {
	Tensors []TensorDecl
	Nodes   []Node
	Inputs  []string
	Outputs []string
}

// Decl returns the declaration of the named tensor.
func (g *Graph) Decl(name string) (*TensorDecl, bool) {
	for i := range g.Tensors {
		if g.Tensors[i].Name == name {
			return &g.Tensors[i], true
		}
	}
	return nil, false
}

// Specs returns the arena specs for every declared tensor, in declaration order.
func (g *Graph) Specs() []tensor.Spec {
	specs := make([]tensor.Spec, len(g.Tensors))
	for i, d := range g.Tensors {
		specs[i] = tensor.Spec{Name: d.Name, DType: d.DType, Shape: d.Shape}
	}
	return specs
}

// Validate checks the contract the compiler relies on: every handle is declared,
// nodes are in topological order, every tensor has at most one writer, graph inputs
// and initializers are never written, and initializer data matches its shape.
func (g *Graph) Validate() error {
	decls := make(map[string]*TensorDecl, len(g.Tensors))
	for i := range g.Tensors {
		d := &g.Tensors[i]
		if d.Name == "" {
			return fmt.Errorf("%w: tensor %d has no name", ErrInvalidGraph, i)
		}
		if _, dup := decls[d.Name]; dup {
			return fmt.Errorf("%w: tensor %q declared twice", ErrInvalidGraph, d.Name)
		}
		if err := d.Shape.Validate(); err != nil {
			return fmt.Errorf("%w: tensor %q: %v", ErrInvalidGraph, d.Name, err)
		}
		if d.Data != nil && len(d.Data) != d.Shape.NumElements() {
			return fmt.Errorf("%w: initializer %q has %d values, shape %v needs %d",
				ErrInvalidGraph, d.Name, len(d.Data), d.Shape, d.Shape.NumElements())
		}
		decls[d.Name] = d
	}

	available := make(map[string]bool, len(g.Tensors))
	for _, name := range g.Inputs {
		if _, ok := decls[name]; !ok {
			return fmt.Errorf("%w: graph input %q is not declared", ErrInvalidGraph, name)
		}
		available[name] = true
	}
	for name, d := range decls {
		if d.IsInitializer() {
			available[name] = true
		}
	}
	constant := make(map[string]bool, len(available))
	for name := range available {
		constant[name] = true
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.OpType == "" {
			return fmt.Errorf("%w: node %d has no operator type", ErrInvalidGraph, i)
		}
		for _, in := range n.Inputs {
			if _, ok := decls[in]; !ok {
				return fmt.Errorf("%w: node %d %s reads undeclared tensor %q", ErrInvalidGraph, i, n, in)
			}
			if !available[in] {
				return fmt.Errorf("%w: node %d %s reads %q before it is produced", ErrInvalidGraph, i, n, in)
			}
		}
		for _, out := range n.Outputs {
			if _, ok := decls[out]; !ok {
				return fmt.Errorf("%w: node %d %s writes undeclared tensor %q", ErrInvalidGraph, i, n, out)
			}
			if constant[out] {
				return fmt.Errorf("%w: node %d %s writes graph input or initializer %q", ErrInvalidGraph, i, n, out)
			}
			if available[out] {
				return fmt.Errorf("%w: tensor %q has more than one writer (node %d %s)", ErrInvalidGraph, out, i, n)
			}
			available[out] = true
		}
	}

	for _, name := range g.Outputs {
		if !available[name] {
			return fmt.Errorf("%w: graph output %q is never produced", ErrInvalidGraph, name)
		}
	}
	return nil
}

// Consumers returns, for every tensor, the indices of the nodes reading it.
func (g *Graph) Consumers() map[string][]int {
	consumers := make(map[string][]int)
	for i := range g.Nodes {
		for _, in := range g.Nodes[i].Inputs {
			consumers[in] = append(consumers[in], i)
		}
	}
	return consumers
}
