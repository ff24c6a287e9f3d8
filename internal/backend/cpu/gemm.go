package cpu

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/parallel"
	"github.com/born-ml/composite/internal/tensor"
)

// Block sizes for sgemm. A blockK x blockN panel of B stays in L2 while every row of
// the current chunk of A streams over it.
const (
	blockK = 128
	blockN = 256
)

// sgemm overwrites c[m,n] with a[m,k] @ b[k,n]. Rows of c are split across workers;
// a single-row product is split by columns instead.
func (k *kernels) sgemm(a, b, c []float32, m, kk, n int) {
	if m == 1 {
		parallel.ForRange(n, func(j0, j1 int) {
			sgemmBlock(a, b, c, kk, n, 0, 1, j0, j1)
		}, k.par)
		return
	}
	parallel.ForRange(m, func(r0, r1 int) {
		sgemmBlock(a, b, c, kk, n, r0, r1, 0, n)
	}, k.par)
}

// sgemmBlock computes rows [r0, r1) and columns [j0, j1) of c. For every element the
// products are accumulated in increasing k order.
func sgemmBlock(a, b, c []float32, kk, n, r0, r1, j0, j1 int) {
	for i := r0; i < r1; i++ {
		row := c[i*n+j0 : i*n+j1]
		for j := range row {
			row[j] = 0
		}
	}
	for p0 := 0; p0 < kk; p0 += blockK {
		p1 := min(p0+blockK, kk)
		for jb := j0; jb < j1; jb += blockN {
			je := min(jb+blockN, j1)
			for i := r0; i < r1; i++ {
				crow := c[i*n+jb : i*n+je]
				arow := a[i*kk : (i+1)*kk]
				for p := p0; p < p1; p++ {
					av := arow[p]
					brow := b[p*n+jb : p*n+je]
					for j, bv := range brow {
						crow[j] += av * bv
					}
				}
			}
		}
	}
}

// matMul handles the plain 2-D product. Batched and vector forms fall back.
func (k *kernels) matMul(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 2, 2, 1); err != nil {
		return nil, err
	}
	aShape, bShape := inputs[0].Shape(), inputs[1].Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		return nil, backend.Unsupportedf("MatMul: only 2-D operands, got %v and %v", aShape, bShape)
	}
	m, kk, n := aShape[0], aShape[1], bShape[1]
	if bShape[0] != kk {
		return nil, backend.Unsupportedf("MatMul: inner dimensions differ: %v @ %v", aShape, bShape)
	}
	if err := backend.CheckShape(node, "output", outputs[0], tensor.Shape{m, n}); err != nil {
		return nil, err
	}
	activate, err := activation(node)
	if err != nil {
		return nil, err
	}
	in, out, err := views(node, inputs, outputs)
	if err != nil {
		return nil, err
	}
	a, b, c := in[0], in[1], out[0]
	return func() {
		k.sgemm(a, b, c, m, kk, n)
		if activate != nil {
			activate(c)
		}
	}, nil
}

// gemm computes Y = alpha * A @ B' + beta * C for transA = 0. A transposed B is
// repacked on every run into a buffer allocated here.
func (k *kernels) gemm(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 2, 3, 1); err != nil {
		return nil, err
	}
	if node.AttrInt("transA", 0) != 0 {
		return nil, backend.Unsupportedf("Gemm: transA")
	}
	transB := node.AttrInt("transB", 0) != 0
	alpha := node.AttrFloat("alpha", 1)
	beta := node.AttrFloat("beta", 1)

	aShape, bShape := inputs[0].Shape(), inputs[1].Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		return nil, backend.Unsupportedf("Gemm: operands must be 2-D, got %v and %v", aShape, bShape)
	}
	m, kk := aShape[0], aShape[1]
	kB, n := bShape[0], bShape[1]
	if transB {
		kB, n = n, kB
	}
	if kB != kk {
		return nil, backend.Unsupportedf("Gemm: inner dimensions differ: %v, %v (transB=%v)", aShape, bShape, transB)
	}
	if err := backend.CheckShape(node, "output", outputs[0], tensor.Shape{m, n}); err != nil {
		return nil, err
	}

	rowBias := false
	if len(inputs) == 3 {
		switch c := inputs[2].Shape(); {
		case c.Equal(tensor.Shape{n}):
			rowBias = true
		case c.Equal(tensor.Shape{m, n}):
		default:
			return nil, backend.Unsupportedf("Gemm: C shape %v", c)
		}
	}
	activate, err := activation(node)
	if err != nil {
		return nil, err
	}
	in, out, err := views(node, inputs, outputs)
	if err != nil {
		return nil, err
	}

	a, b, y := in[0], in[1], out[0]
	var c []float32
	if len(in) == 3 {
		c = in[2]
	}
	var packed []float32
	if transB {
		packed = make([]float32, kk*n)
	}

	return func() {
		rhs := b
		if transB {
			// b is [n, kk]; packed is [kk, n].
			for j := 0; j < n; j++ {
				for p := 0; p < kk; p++ {
					packed[p*n+j] = b[j*kk+p]
				}
			}
			rhs = packed
		}
		k.sgemm(a, rhs, y, m, kk, n)
		for i := 0; i < m; i++ {
			row := y[i*n : (i+1)*n]
			for j := range row {
				v := alpha * row[j]
				switch {
				case c == nil || beta == 0:
				case rowBias:
					v += beta * c[j]
				default:
					v += beta * c[i*n+j]
				}
				row[j] = v
			}
		}
		if activate != nil {
			activate(y)
		}
	}, nil
}
