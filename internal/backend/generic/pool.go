package generic

import (
	"math"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

func registerPooling(t *backend.Table) {
	t.MustRegister("MaxPool", makePool(false))
	t.MustRegister("AveragePool", makePool(true))
	t.MustRegister("GlobalAveragePool", makeGlobalPool(true))
	t.MustRegister("GlobalMaxPool", makeGlobalPool(false))
}

// poolDims holds the geometry of a 2-D pooling over NCHW input.
type poolDims struct {
	planes     int // N * C
	win        backend.Window
	includePad bool
}

// makePool builds MaxPool or AveragePool. The optional Indices output of MaxPool is
// not produced, so nodes asking for it are declined.
func makePool(average bool) backend.Factory {
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
			return nil, err
		}
		x := inputs[0].Shape()
		if len(x) != 4 {
			return nil, backend.Unsupportedf("%s: only 2-D NCHW is supported, got %v", node.OpType, x)
		}
		ks := node.AttrInts("kernel_shape", nil)
		if len(ks) != 2 {
			return nil, backend.Unsupportedf("%s: kernel_shape must have 2 values, got %v", node.OpType, ks)
		}
		win, err := backend.ParseWindow(node, x[2], x[3], int(ks[0]), int(ks[1]), node.AttrInt("ceil_mode", 0) != 0)
		if err != nil {
			return nil, err
		}
		if err := backend.CheckShape(node, "output", outputs[0], tensor.Shape{x[0], x[1], win.OutH, win.OutW}); err != nil {
			return nil, err
		}
		d := poolDims{
			planes:     x[0] * x[1],
			win:        win,
			includePad: node.AttrInt("count_include_pad", 0) != 0,
		}
		if average {
			return bindFloat(node, inputs, outputs,
				func(in, out [][]float32) backend.Procedure { return avgPool(in[0], out[0], d) },
				func(in, out [][]float64) backend.Procedure { return avgPool(in[0], out[0], d) })
		}
		return bindFloat(node, inputs, outputs,
			func(in, out [][]float32) backend.Procedure { return maxPool(in[0], out[0], d) },
			func(in, out [][]float64) backend.Procedure { return maxPool(in[0], out[0], d) })
	}
}

func maxPool[T float](in, out []T, d poolDims) backend.Procedure {
	win := d.win
	inPlane, outPlane := win.InH*win.InW, win.OutH*win.OutW
	return func() {
		for p := 0; p < d.planes; p++ {
			src := in[p*inPlane : (p+1)*inPlane]
			dst := out[p*outPlane : (p+1)*outPlane]
			for oh := 0; oh < win.OutH; oh++ {
				for ow := 0; ow < win.OutW; ow++ {
					best := T(math.Inf(-1))
					for kh := 0; kh < win.KernelH; kh++ {
						ih := oh*win.StrideH - win.PadTop + kh*win.DilationH
						if ih < 0 || ih >= win.InH {
							continue
						}
						for kw := 0; kw < win.KernelW; kw++ {
							iw := ow*win.StrideW - win.PadLeft + kw*win.DilationW
							if iw < 0 || iw >= win.InW {
								continue
							}
							best = max(best, src[ih*win.InW+iw])
						}
					}
					dst[oh*win.OutW+ow] = best
				}
			}
		}
	}
}

func avgPool[T float](in, out []T, d poolDims) backend.Procedure {
	win := d.win
	inPlane, outPlane := win.InH*win.InW, win.OutH*win.OutW
	padH, padW := win.InH+win.PadBottom, win.InW+win.PadRight
	return func() {
		for p := 0; p < d.planes; p++ {
			src := in[p*inPlane : (p+1)*inPlane]
			dst := out[p*outPlane : (p+1)*outPlane]
			for oh := 0; oh < win.OutH; oh++ {
				for ow := 0; ow < win.OutW; ow++ {
					var acc T
					count := 0
					for kh := 0; kh < win.KernelH; kh++ {
						ih := oh*win.StrideH - win.PadTop + kh*win.DilationH
						for kw := 0; kw < win.KernelW; kw++ {
							iw := ow*win.StrideW - win.PadLeft + kw*win.DilationW
							inside := ih >= 0 && ih < win.InH && iw >= 0 && iw < win.InW
							if inside {
								acc += src[ih*win.InW+iw]
								count++
							} else if d.includePad && ih >= -win.PadTop && ih < padH && iw >= -win.PadLeft && iw < padW {
								count++
							}
						}
					}
					if count > 0 {
						acc /= T(count)
					}
					dst[oh*win.OutW+ow] = acc
				}
			}
		}
	}
}

// makeGlobalPool reduces every spatial dimension of an [N, C, ...] input to 1.
func makeGlobalPool(average bool) backend.Factory {
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		if err := backend.CheckArity(node, inputs, outputs, 1, 1, 1); err != nil {
			return nil, err
		}
		x := inputs[0].Shape()
		if len(x) < 3 {
			return nil, backend.Unsupportedf("%s: input must be at least 3-D, got %v", node.OpType, x)
		}
		want := make(tensor.Shape, len(x))
		want[0], want[1] = x[0], x[1]
		for i := 2; i < len(want); i++ {
			want[i] = 1
		}
		if err := backend.CheckShape(node, "output", outputs[0], want); err != nil {
			return nil, err
		}
		planes := x[0] * x[1]
		size := x[2:].NumElements()
		return bindFloat(node, inputs, outputs,
			func(in, out [][]float32) backend.Procedure { return globalPool(in[0], out[0], planes, size, average) },
			func(in, out [][]float64) backend.Procedure { return globalPool(in[0], out[0], planes, size, average) })
	}
}

func globalPool[T float](in, out []T, planes, size int, average bool) backend.Procedure {
	return func() {
		for p := 0; p < planes; p++ {
			src := in[p*size : (p+1)*size]
			if average {
				var acc T
				for _, v := range src {
					acc += v
				}
				out[p] = acc / T(size)
				continue
			}
			best := src[0]
			for _, v := range src[1:] {
				best = max(best, v)
			}
			out[p] = best
		}
	}
}
