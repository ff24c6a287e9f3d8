// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/backend/cpu"
	"github.com/born-ml/composite/internal/backend/generic"
	"github.com/born-ml/composite/internal/backend/webgpu"
	"github.com/born-ml/composite/internal/composite"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Engine compiles graphs against a fixed, ordered list of backends.
type Engine struct {
	cfg        Config
	dispatcher *composite.Dispatcher
	gpu        *webgpu.Backend
}

// Backends lists the backend names New understands, in the usual priority order.
func Backends() []string {
	return []string{webgpu.Name, cpu.Name, generic.Name}
}

// New builds the backends named in cfg.Backends, in that order. A webgpu backend
// that cannot open a device is skipped with a warning; an unknown name, or a list
// that ends up empty, is a *ConfigurationError.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	tables := make([]*backend.Table, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		switch name {
		case cpu.Name:
			tables = append(tables, cpu.New(cfg.Parallel()))
		case generic.Name:
			tables = append(tables, generic.New())
		case webgpu.Name:
			gpu, err := webgpu.New()
			if err != nil {
				klog.Warningf("skipping backend %s: %v", name, err)
				continue
			}
			e.gpu = gpu
			tables = append(tables, gpu.Table())
		default:
			return nil, backend.Configurationf("unknown backend %q (known: %v)", name, Backends())
		}
	}
	if len(tables) == 0 {
		return nil, backend.Configurationf("none of the backends %v is available", cfg.Backends)
	}

	d, err := composite.NewDispatcher(tables...)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.dispatcher = d
	klog.V(1).Infof("engine backends: %v", d.Backends())
	return e, nil
}

// Backends returns the names of the backends in use, in trial order.
func (e *Engine) Backends() []string {
	return e.dispatcher.Backends()
}

// Close releases device resources. Models loaded by the engine must not run
// afterwards.
func (e *Engine) Close() {
	if e.gpu != nil {
		e.gpu.Release()
		e.gpu = nil
	}
}

// Load validates g, applies the configured rewrites, allocates its arena, writes
// the initializers and compiles the plan. g is not modified.
func (e *Engine) Load(g *Graph) (*Model, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if e.cfg.FuseActivations {
		fused, n := graph.FuseActivations(g)
		if n > 0 {
			klog.V(1).Infof("fused %d activations", n)
		}
		g = fused
	}

	arena, err := tensor.NewArena(g.Specs(), e.cfg.ArenaAlignment)
	if err != nil {
		return nil, errors.Wrap(err, "allocate arena")
	}
	klog.V(1).Infof("arena: %d tensors, %s", arena.Len(), humanize.IBytes(uint64(arena.Size())))

	for i := range g.Tensors {
		decl := &g.Tensors[i]
		if !decl.IsInitializer() {
			continue
		}
		arr, _ := arena.Array(decl.Name)
		for j, v := range decl.Data {
			arr.SetFloat(j, v)
		}
	}

	plan, err := e.dispatcher.Compile(g, arena)
	if err != nil {
		return nil, errors.Wrap(err, "compile")
	}
	return &Model{graph: g, arena: arena, plan: plan}, nil
}
