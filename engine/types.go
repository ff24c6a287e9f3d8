// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"io"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/composite"
	"github.com/born-ml/composite/internal/config"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

// Graph is an ordered list of nodes with their tensor declarations.
type Graph = graph.Graph

// Node is one operation of a Graph.
type Node = graph.Node

// TensorDecl declares a tensor of a Graph, optionally with constant data.
type TensorDecl = graph.TensorDecl

// Attribute is a node attribute value.
type Attribute = graph.Attribute

// Array is a typed, shaped view over arena memory.
type Array = tensor.Array

// Shape is the dimensions of an array.
type Shape = tensor.Shape

// DataType is an element type.
type DataType = tensor.DataType

// Element types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Float16 = tensor.Float16
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
)

// Config is the engine configuration.
type Config = config.Config

// Plan is a compiled execution plan.
type Plan = composite.Plan

// Step records which backend compiled one node of a Plan.
type Step = composite.Step

// CompilationFailedError reports a node that no configured backend could compile.
type CompilationFailedError = composite.CompilationFailedError

// ConfigurationError reports an invalid engine or backend configuration.
type ConfigurationError = backend.ConfigurationError

// ErrCompilationFailed matches every CompilationFailedError with errors.Is.
var ErrCompilationFailed = composite.ErrCompilationFailed

// DefaultConfig returns the default configuration: cpu then generic.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// LoadGraph parses a YAML graph description.
func LoadGraph(r io.Reader) (*Graph, error) {
	return graph.Load(r)
}

// LoadGraphFile reads and parses a YAML graph description.
func LoadGraphFile(path string) (*Graph, error) {
	return graph.LoadFile(path)
}
