// Package composite compiles a graph into an execution plan by trying an ordered list
// of backends for every node, most specialized first, and keeping the first
// procedure a backend agrees to build.
package composite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"k8s.io/klog/v2"
)

// Buffers resolves tensor handles to the arrays procedures bind to.
// *tensor.Arena implements it.
type Buffers interface {
	Array(name string) (*tensor.Array, bool)
}

// Dispatcher holds the ordered backend list. The order given at construction is the
// only policy: no backend is ever re-ranked.
type Dispatcher struct {
	tables []*backend.Table
}

// NewDispatcher creates a dispatcher trying tables in the given order. An empty list,
// a nil table, or two tables with the same name is a *backend.ConfigurationError.
func NewDispatcher(tables ...*backend.Table) (*Dispatcher, error) {
	if len(tables) == 0 {
		return nil, backend.Configurationf("empty backend list")
	}
	seen := make(map[string]bool, len(tables))
	for i, t := range tables {
		if t == nil {
			return nil, backend.Configurationf("backend %d is nil", i)
		}
		if seen[t.Name()] {
			return nil, backend.Configurationf("backend %q listed twice", t.Name())
		}
		seen[t.Name()] = true
	}
	return &Dispatcher{tables: append([]*backend.Table(nil), tables...)}, nil
}

// Backends returns the backend names in trial order.
func (d *Dispatcher) Backends() []string {
	names := make([]string, len(d.tables))
	for i, t := range d.tables {
		names[i] = t.Name()
	}
	return names
}

// Compile builds the execution plan for g, binding procedures to the arrays in buffers.
//
// Nodes are compiled in graph order. For each node the backends are tried in order; a
// backend without a factory for the operator and a factory answering ErrUnsupported
// are treated alike and the next backend is tried. If the list is exhausted Compile
// returns a *CompilationFailedError; any other factory error is returned as is. In
// both cases no plan is returned.
func (d *Dispatcher) Compile(g *graph.Graph, buffers Buffers) (*Plan, error) {
	plan := &Plan{
		steps:      make([]Step, 0, len(g.Nodes)),
		procedures: make([]backend.Procedure, 0, len(g.Nodes)),
	}
	for i := range g.Nodes {
		node := &g.Nodes[i]
		inputs, err := resolve(buffers, node, node.Inputs)
		if err != nil {
			return nil, errors.Wrapf(err, "node %d", i)
		}
		outputs, err := resolve(buffers, node, node.Outputs)
		if err != nil {
			return nil, errors.Wrapf(err, "node %d", i)
		}

		proc, chosen, err := d.compileNode(i, node, inputs, outputs)
		if err != nil {
			return nil, err
		}
		klog.V(1).Infof("node %d %s: compiled by %s", i, node, chosen)
		plan.steps = append(plan.steps, Step{
			NodeIndex: i,
			NodeName:  node.Name,
			OpType:    node.OpType,
			Backend:   chosen,
		})
		plan.procedures = append(plan.procedures, proc)
	}

	if klog.V(1).Enabled() {
		klog.Infof("compiled %d nodes: %s", plan.Len(), summarize(plan))
	}
	return plan, nil
}

// compileNode runs the ordered backend trial for one node: Pending until some backend
// succeeds (Compiled) or the list is exhausted (Failed).
func (d *Dispatcher) compileNode(index int, node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, string, error) {
	var attempts []Attempt
	for _, table := range d.tables {
		factory, ok := table.Lookup(node.OpType)
		if !ok {
			attempts = append(attempts, Attempt{Backend: table.Name(), Reason: "no factory"})
			continue
		}
		proc, err := factory(node, inputs, outputs)
		if err != nil {
			if backend.IsUnsupported(err) {
				klog.V(2).Infof("node %d %s: %s declined: %v", index, node, table.Name(), err)
				attempts = append(attempts, Attempt{Backend: table.Name(), Reason: err.Error()})
				continue
			}
			return nil, "", errors.Wrapf(err, "node %d %s: backend %s", index, node, table.Name())
		}
		if proc == nil {
			return nil, "", errors.Errorf("node %d %s: backend %s returned a nil procedure", index, node, table.Name())
		}
		return proc, table.Name(), nil
	}
	return nil, "", &CompilationFailedError{
		NodeIndex: index,
		NodeName:  node.Name,
		OpType:    node.OpType,
		Attempts:  attempts,
	}
}

func resolve(buffers Buffers, node *graph.Node, names []string) ([]*tensor.Array, error) {
	arrays := make([]*tensor.Array, len(names))
	for i, name := range names {
		a, ok := buffers.Array(name)
		if !ok {
			return nil, errors.Errorf("%s: no buffer for tensor %q", node, name)
		}
		arrays[i] = a
	}
	return arrays, nil
}

// summarize renders per-backend node counts, e.g. "cpu=12 generic=3".
func summarize(p *Plan) string {
	counts := lo.CountValues(p.Backends())
	names := lo.Keys(counts)
	sort.Strings(names)
	parts := lo.Map(names, func(name string, _ int) string {
		return fmt.Sprintf("%s=%d", name, counts[name])
	})
	return strings.Join(parts, " ")
}
