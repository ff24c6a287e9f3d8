package generic

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

// registerMovement adds the data movement operators. They copy raw bytes and so
// work for every dtype.
func registerMovement(t *backend.Table) {
	t.MustRegister("Identity", makeCopy(1, 1))
	t.MustRegister("Reshape", makeCopy(1, 2))
	t.MustRegister("Flatten", makeFlatten)
	t.MustRegister("Squeeze", makeCopy(1, 2))
	t.MustRegister("Unsqueeze", makeCopy(1, 2))
	t.MustRegister("Transpose", makeTranspose)
	t.MustRegister("Concat", makeConcat)
}

// makeCopy handles operators whose output is the input's data under a new shape.
// The output shape is taken from the output array; shape inputs are not read.
func makeCopy(minIn, maxIn int) backend.Factory {
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		if err := backend.CheckArity(node, inputs, outputs, minIn, maxIn, 1); err != nil {
			return nil, err
		}
		return copyProc(node, inputs[0], outputs[0])
	}
}

func copyProc(node *graph.Node, in, out *tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckSameDType(node, out.DType(), in); err != nil {
		return nil, err
	}
	if in.NumElements() != out.NumElements() {
		return nil, backend.Unsupportedf("%s: cannot view %v as %v", node.OpType, in.Shape(), out.Shape())
	}
	src, dst := in.Data(), out.Data()
	return func() { copy(dst, src) }, nil
}

// makeFlatten reshapes to [prod(d[:axis]), prod(d[axis:])].
func makeFlatten(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0].Shape()
	axis := int(node.AttrInt("axis", 1))
	if axis < 0 {
		axis += len(x)
	}
	if axis < 0 || axis > len(x) {
		return nil, backend.Unsupportedf("Flatten: axis %d out of range for %v", axis, x)
	}
	if err := backend.CheckShape(node, "output", outputs[0], tensor.Shape{x[:axis].NumElements(), x[axis:].NumElements()}); err != nil {
		return nil, err
	}
	return copyProc(node, inputs[0], outputs[0])
}

// makeTranspose permutes axes by perm, which defaults to reversing them. The
// gather index is computed once at compile time.
func makeTranspose(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
		return nil, err
	}
	in, out := inputs[0], outputs[0]
	if err := backend.CheckSameDType(node, out.DType(), in); err != nil {
		return nil, err
	}
	x := in.Shape()
	rank := len(x)
	perm := make([]int, rank)
	if p := node.AttrInts("perm", nil); p != nil {
		if len(p) != rank {
			return nil, backend.Unsupportedf("Transpose: perm %v does not match rank %d", p, rank)
		}
		seen := make([]bool, rank)
		for i, v := range p {
			if v < 0 || int(v) >= rank || seen[v] {
				return nil, backend.Unsupportedf("Transpose: invalid perm %v", p)
			}
			seen[v] = true
			perm[i] = int(v)
		}
	} else {
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}

	want := make(tensor.Shape, rank)
	for i, p := range perm {
		want[i] = x[p]
	}
	if err := backend.CheckShape(node, "output", out, want); err != nil {
		return nil, err
	}

	inStrides := x.ComputeStrides()
	// Stride in the input for a step along each output axis.
	strides := make([]int, rank)
	for i, p := range perm {
		strides[i] = inStrides[p]
	}
	gather := make([]int, want.NumElements())
	coords := make([]int, rank)
	src := 0
	for i := range gather {
		gather[i] = src
		for d := rank - 1; d >= 0; d-- {
			coords[d]++
			src += strides[d]
			if coords[d] < want[d] {
				break
			}
			src -= strides[d] * coords[d]
			coords[d] = 0
		}
	}

	size := in.DType().Size()
	srcData, dstData := in.Data(), out.Data()
	return func() {
		for i, j := range gather {
			copy(dstData[i*size:(i+1)*size], srcData[j*size:(j+1)*size])
		}
	}, nil
}

// makeConcat joins inputs along axis. Each input contributes a contiguous run of
// bytes per outer index.
func makeConcat(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 1, -1, 1); err != nil {
		return nil, err
	}
	out := outputs[0]
	if err := backend.CheckSameDType(node, out.DType(), inputs...); err != nil {
		return nil, err
	}
	first := inputs[0].Shape()
	rank := len(first)
	if rank == 0 {
		return nil, backend.Unsupportedf("Concat: scalar inputs")
	}
	axis := int(node.AttrInt("axis", 0))
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, backend.Unsupportedf("Concat: axis %d out of range for rank %d", axis, rank)
	}

	want := first.Clone()
	want[axis] = 0
	for _, in := range inputs {
		s := in.Shape()
		if len(s) != rank {
			return nil, backend.Unsupportedf("Concat: rank mismatch %v vs %v", first, s)
		}
		for d := range s {
			if d != axis && s[d] != first[d] {
				return nil, backend.Unsupportedf("Concat: shape mismatch %v vs %v on axis %d", first, s, d)
			}
		}
		want[axis] += s[axis]
	}
	if err := backend.CheckShape(node, "output", out, want); err != nil {
		return nil, err
	}

	size := out.DType().Size()
	outer := first[:axis].NumElements()
	inner := first[axis+1:].NumElements() * size
	chunks := make([]int, len(inputs))
	for i, in := range inputs {
		chunks[i] = in.Shape()[axis] * inner
	}
	total := want[axis] * inner
	dst := out.Data()

	return func() {
		for o := 0; o < outer; o++ {
			off := o * total
			for i, in := range inputs {
				n := chunks[i]
				copy(dst[off:off+n], in.Data()[o*n:(o+1)*n])
				off += n
			}
		}
	}, nil
}
