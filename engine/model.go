// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"time"

	"github.com/born-ml/composite/internal/tensor"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Model is a compiled graph bound to its arena. A Model is not safe for concurrent
// use: Run writes every intermediate array in place.
type Model struct {
	graph *Graph
	arena *tensor.Arena
	plan  *Plan
}

// SetInput copies values into the named graph input, converting to its dtype.
func (m *Model) SetInput(name string, values []float32) error {
	if !lo.Contains(m.graph.Inputs, name) {
		return errors.Errorf("%q is not a graph input (inputs: %v)", name, m.graph.Inputs)
	}
	arr, _ := m.arena.Array(name)
	return arr.CopyFromFloat32(values)
}

// Run executes the plan once.
func (m *Model) Run() {
	m.plan.Run()
}

// RunTimed executes the plan once and returns the duration of every step.
func (m *Model) RunTimed() []time.Duration {
	return m.plan.RunTimed()
}

// Output returns a copy of the named tensor converted to float32. Any tensor of the
// graph can be read, not only graph outputs.
func (m *Model) Output(name string) ([]float32, error) {
	arr, ok := m.arena.Array(name)
	if !ok {
		return nil, errors.Errorf("unknown tensor %q", name)
	}
	return arr.ToFloat32(), nil
}

// Array returns the arena array backing the named tensor.
func (m *Model) Array(name string) (*Array, bool) {
	return m.arena.Array(name)
}

// Graph returns the graph the plan was compiled from, after rewrites.
func (m *Model) Graph() *Graph {
	return m.graph
}

// Plan returns the compiled plan.
func (m *Model) Plan() *Plan {
	return m.plan
}

// ArenaSize returns the bytes held by the model's arena.
func (m *Model) ArenaSize() int {
	return m.arena.Size()
}
