package composite

import (
	"time"

	"github.com/born-ml/composite/internal/backend"
)

// Step describes one compiled node of a Plan.
type Step struct {
	NodeIndex int
	NodeName  string
	OpType    string
	Backend   string
}

// Plan is the compiled execution plan: one procedure per graph node, in graph order.
// The order is fixed at compile time; later procedures read arrays earlier ones wrote.
type Plan struct {
	steps      []Step
	procedures []backend.Procedure
}

// Run invokes every procedure in order. Inputs must be written to their arrays before
// the call and outputs read after it.
func (p *Plan) Run() {
	for _, proc := range p.procedures {
		proc()
	}
}

// RunTimed is Run that also measures each procedure.
func (p *Plan) RunTimed() []time.Duration {
	durations := make([]time.Duration, len(p.procedures))
	for i, proc := range p.procedures {
		start := time.Now()
		proc()
		durations[i] = time.Since(start)
	}
	return durations
}

// Len returns the number of procedures, equal to the number of graph nodes.
func (p *Plan) Len() int {
	return len(p.procedures)
}

// Steps returns a copy of the per-node compilation record.
func (p *Plan) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// Backends returns the backend chosen for each node, in graph order.
func (p *Plan) Backends() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Backend
	}
	return names
}
