package generic

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

func registerLinear(t *backend.Table) {
	t.MustRegister("MatMul", makeMatMul)
	t.MustRegister("Gemm", makeGemm)
}

// matmulDims describes a (possibly batched, broadcast) matrix product.
type matmulDims struct {
	m, k, n int
	batches int
	batchA  []int // output batch -> A batch, nil for identity
	batchB  []int // output batch -> B batch, nil for identity
}

// makeMatMul implements NumPy matmul semantics: 1-D operands are promoted to
// matrices and the promoted axis removed from the result, leading dimensions are
// broadcast as batch dimensions.
func makeMatMul(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 2, 2, 1); err != nil {
		return nil, err
	}
	act, err := checkFusedActivation(node)
	if err != nil {
		return nil, err
	}
	dims, err := matmulShape(node, inputs[0].Shape(), inputs[1].Shape(), outputs[0].Shape())
	if err != nil {
		return nil, err
	}
	return bindFloat(node, inputs, outputs,
		func(in, out [][]float32) backend.Procedure { return matmul(in[0], in[1], out[0], dims, act) },
		func(in, out [][]float64) backend.Procedure { return matmul(in[0], in[1], out[0], dims, act) })
}

func matmulShape(node *graph.Node, a, b, out tensor.Shape) (matmulDims, error) {
	if len(a) == 0 || len(b) == 0 {
		return matmulDims{}, backend.Unsupportedf("MatMul: scalar operands %v, %v", a, b)
	}
	aMat, bMat := a, b
	if len(a) == 1 {
		aMat = tensor.Shape{1, a[0]}
	}
	if len(b) == 1 {
		bMat = tensor.Shape{b[0], 1}
	}
	m, k := aMat[len(aMat)-2], aMat[len(aMat)-1]
	kB, n := bMat[len(bMat)-2], bMat[len(bMat)-1]
	if k != kB {
		return matmulDims{}, backend.Unsupportedf("MatMul: inner dimensions differ: %v @ %v", a, b)
	}

	batchShapeA := aMat[:len(aMat)-2]
	batchShapeB := bMat[:len(bMat)-2]
	batchShape, _, err := tensor.BroadcastShapes(batchShapeA, batchShapeB)
	if err != nil {
		return matmulDims{}, backend.Unsupportedf("MatMul: batch dimensions: %v", err)
	}

	want := batchShape.Clone()
	if len(a) > 1 {
		want = append(want, m)
	}
	if len(b) > 1 {
		want = append(want, n)
	}
	if !want.Equal(out) {
		return matmulDims{}, backend.Unsupportedf("MatMul: %v @ %v gives %v, output is %v", a, b, want, out)
	}

	batchA, err := tensor.BroadcastIndex(batchShapeA, batchShape)
	if err != nil {
		return matmulDims{}, backend.Unsupportedf("MatMul: %v", err)
	}
	batchB, err := tensor.BroadcastIndex(batchShapeB, batchShape)
	if err != nil {
		return matmulDims{}, backend.Unsupportedf("MatMul: %v", err)
	}
	return matmulDims{
		m: m, k: k, n: n,
		batches: batchShape.NumElements(),
		batchA:  batchA,
		batchB:  batchB,
	}, nil
}

func matmul[T float](a, b, out []T, d matmulDims, act backend.Activation) backend.Procedure {
	activate := activationFunc[T](act)
	return func() {
		for batch := 0; batch < d.batches; batch++ {
			ba, bb := batch, batch
			if d.batchA != nil {
				ba = d.batchA[batch]
			}
			if d.batchB != nil {
				bb = d.batchB[batch]
			}
			gemmKernel(a[ba*d.m*d.k:], b[bb*d.k*d.n:], out[batch*d.m*d.n:], d.m, d.k, d.n, false, false, 1)
		}
		if activate != nil {
			activate(out)
		}
	}
}

// gemmKernel overwrites c[m,n] with alpha * op(a) @ op(b), where op transposes when
// the matching flag is set. a is [m,k] ([k,m] transposed), b is [k,n] ([n,k] transposed).
func gemmKernel[T float](a, b, c []T, m, k, n int, transA, transB bool, alpha T) {
	for i := 0; i < m; i++ {
		row := c[i*n : (i+1)*n]
		for j := range row {
			row[j] = 0
		}
		for p := 0; p < k; p++ {
			var av T
			if transA {
				av = a[p*m+i]
			} else {
				av = a[i*k+p]
			}
			av *= alpha
			if transB {
				for j := range row {
					row[j] += av * b[j*k+p]
				}
			} else {
				brow := b[p*n : (p+1)*n]
				for j := range row {
					row[j] += av * brow[j]
				}
			}
		}
	}
}

// makeGemm computes Y = alpha * A' @ B' + beta * C, with C unidirectionally
// broadcast to [M, N].
func makeGemm(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 2, 3, 1); err != nil {
		return nil, err
	}
	act, err := checkFusedActivation(node)
	if err != nil {
		return nil, err
	}
	transA := node.AttrInt("transA", 0) != 0
	transB := node.AttrInt("transB", 0) != 0
	alpha := float64(node.AttrFloat("alpha", 1))
	beta := float64(node.AttrFloat("beta", 1))

	aShape, bShape := inputs[0].Shape(), inputs[1].Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		return nil, backend.Unsupportedf("Gemm: operands must be 2-D, got %v and %v", aShape, bShape)
	}
	m, k := aShape[0], aShape[1]
	if transA {
		m, k = k, m
	}
	kB, n := bShape[0], bShape[1]
	if transB {
		kB, n = n, kB
	}
	if k != kB {
		return nil, backend.Unsupportedf("Gemm: inner dimensions differ: %v, %v (transA=%v transB=%v)", aShape, bShape, transA, transB)
	}
	if err := backend.CheckShape(node, "output", outputs[0], tensor.Shape{m, n}); err != nil {
		return nil, err
	}

	var cIndex []int
	hasC := len(inputs) == 3
	if hasC {
		if cIndex, err = tensor.BroadcastIndex(inputs[2].Shape(), tensor.Shape{m, n}); err != nil {
			return nil, backend.Unsupportedf("Gemm: C: %v", err)
		}
	}

	return bindFloat(node, inputs, outputs,
		func(in, out [][]float32) backend.Procedure {
			return gemm(in, out[0], m, k, n, transA, transB, float32(alpha), float32(beta), hasC, cIndex, act)
		},
		func(in, out [][]float64) backend.Procedure {
			return gemm(in, out[0], m, k, n, transA, transB, alpha, beta, hasC, cIndex, act)
		})
}

func gemm[T float](in [][]T, out []T, m, k, n int, transA, transB bool, alpha, beta T, hasC bool, cIndex []int, act backend.Activation) backend.Procedure {
	activate := activationFunc[T](act)
	return func() {
		gemmKernel(in[0], in[1], out, m, k, n, transA, transB, alpha)
		if hasC && beta != 0 {
			c := in[2]
			for i := range out {
				if cIndex == nil {
					out[i] += beta * c[i]
				} else {
					out[i] += beta * c[cIndex[i]]
				}
			}
		}
		if activate != nil {
			activate(out)
		}
	}
}
