// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine compiles computation graphs into execution plans over a
// prioritized list of backends and runs them.
//
// Every node of a graph is offered to the configured backends in order. The first
// backend able to build a procedure for the node's operator, data types and shapes
// wins; the others are never consulted for that node. The generic backend
// implements every operator and is normally last, so a specialized backend only
// has to cover the cases it is good at.
//
// # Example Usage
//
//	g, err := engine.LoadGraphFile("mlp.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng, err := engine.New(engine.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	model, err := eng.Load(g)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = model.SetInput("x", []float32{1, 2, 3})
//	model.Run()
//	y, _ := model.Output("y")
//
// # Backends
//
//   - cpu: float32 kernels, parallel, cache-blocked GEMM and im2col convolution
//   - webgpu: float32 element-wise and MatMul on the GPU (Windows)
//   - generic: reference implementation of every operator, float32/float64/float16
package engine
