package cpu

import (
	"math"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

// maxPool handles 2-D MaxPool with a single output, one plane per work item.
func (k *kernels) maxPool(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0].Shape()
	if len(x) != 4 {
		return nil, backend.Unsupportedf("MaxPool: only 2-D NCHW, got %v", x)
	}
	ks := node.AttrInts("kernel_shape", nil)
	if len(ks) != 2 {
		return nil, backend.Unsupportedf("MaxPool: kernel_shape %v", ks)
	}
	win, err := backend.ParseWindow(node, x[2], x[3], int(ks[0]), int(ks[1]), node.AttrInt("ceil_mode", 0) != 0)
	if err != nil {
		return nil, err
	}
	if err := backend.CheckShape(node, "output", outputs[0], tensor.Shape{x[0], x[1], win.OutH, win.OutW}); err != nil {
		return nil, err
	}
	in, out, err := views(node, inputs, outputs)
	if err != nil {
		return nil, err
	}
	src, dst := in[0], out[0]
	inPlane, outPlane := win.InH*win.InW, win.OutH*win.OutW
	negInf := float32(math.Inf(-1))

	return func() {
		k.forRange(x[0]*x[1], func(p0, p1 int) {
			for p := p0; p < p1; p++ {
				plane := src[p*inPlane : (p+1)*inPlane]
				res := dst[p*outPlane : (p+1)*outPlane]
				for oh := 0; oh < win.OutH; oh++ {
					for ow := 0; ow < win.OutW; ow++ {
						best := negInf
						for kh := 0; kh < win.KernelH; kh++ {
							ih := oh*win.StrideH - win.PadTop + kh*win.DilationH
							if ih < 0 || ih >= win.InH {
								continue
							}
							for kw := 0; kw < win.KernelW; kw++ {
								iw := ow*win.StrideW - win.PadLeft + kw*win.DilationW
								if iw >= 0 && iw < win.InW {
									best = max(best, plane[ih*win.InW+iw])
								}
							}
						}
						res[oh*win.OutW+ow] = best
					}
				}
			}
		})
	}, nil
}

func (k *kernels) globalAveragePool(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
		return nil, err
	}
	x := inputs[0].Shape()
	if len(x) != 4 {
		return nil, backend.Unsupportedf("GlobalAveragePool: only 4-D input, got %v", x)
	}
	if err := backend.CheckShape(node, "output", outputs[0], tensor.Shape{x[0], x[1], 1, 1}); err != nil {
		return nil, err
	}
	in, out, err := views(node, inputs, outputs)
	if err != nil {
		return nil, err
	}
	src, dst := in[0], out[0]
	size := x[2] * x[3]
	return func() {
		k.forRange(x[0]*x[1], func(p0, p1 int) {
			for p := p0; p < p1; p++ {
				var acc float32
				for _, v := range src[p*size : (p+1)*size] {
					acc += v
				}
				dst[p] = acc / float32(size)
			}
		})
	}, nil
}
