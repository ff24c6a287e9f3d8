package cpu

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/parallel"
	"github.com/born-ml/composite/internal/tensor"
)

// conv lowers a group-1, undilated 2-D convolution to one GEMM per image:
//
//	out[n] [M, OH*OW] = W [M, C*KH*KW] @ col [C*KH*KW, OH*OW]
//
// where col is the im2col expansion of image n. The col buffer is allocated once,
// here, and reused by every run.
func (k *kernels) conv(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 2, 3, 1); err != nil {
		return nil, err
	}
	x, w := inputs[0].Shape(), inputs[1].Shape()
	if len(x) != 4 || len(w) != 4 {
		return nil, backend.Unsupportedf("Conv: only 2-D NCHW, got input %v weights %v", x, w)
	}
	if group := node.AttrInt("group", 1); group != 1 {
		return nil, backend.Unsupportedf("Conv: group %d", group)
	}
	if w[1] != x[1] {
		return nil, backend.Unsupportedf("Conv: weights %v do not match %d input channels", w, x[1])
	}
	win, err := backend.ParseWindow(node, x[2], x[3], w[2], w[3], false)
	if err != nil {
		return nil, err
	}
	if win.DilationH != 1 || win.DilationW != 1 {
		return nil, backend.Unsupportedf("Conv: dilations %dx%d", win.DilationH, win.DilationW)
	}
	if len(inputs) == 3 {
		if err := backend.CheckShape(node, "bias", inputs[2], tensor.Shape{w[0]}); err != nil {
			return nil, err
		}
	}
	if err := backend.CheckShape(node, "output", outputs[0], tensor.Shape{x[0], w[0], win.OutH, win.OutW}); err != nil {
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

	batch, channels, outC := x[0], x[1], w[0]
	rows := channels * win.KernelH * win.KernelW
	cols := win.OutH * win.OutW
	inPlane := win.InH * win.InW
	col := make([]float32, rows*cols)
	src, weights, dst := in[0], in[1], out[0]
	var bias []float32
	if len(in) == 3 {
		bias = in[2]
	}

	return func() {
		for n := 0; n < batch; n++ {
			image := src[n*channels*inPlane : (n+1)*channels*inPlane]
			parallel.ForRange(rows, func(r0, r1 int) {
				im2col(col, image, win, r0, r1)
			}, k.par)

			result := dst[n*outC*cols : (n+1)*outC*cols]
			k.sgemm(weights, col, result, outC, rows, cols)
			if bias != nil {
				for m, b := range bias {
					plane := result[m*cols : (m+1)*cols]
					for i := range plane {
						plane[i] += b
					}
				}
			}
		}
		if activate != nil {
			activate(dst)
		}
	}, nil
}

// im2col fills rows [r0, r1) of col. Row r is the kernel tap (c, kh, kw); column j is
// the output position (oh, ow). Taps falling in the padding read as zero.
func im2col(col, image []float32, win backend.Window, r0, r1 int) {
	kernel := win.KernelH * win.KernelW
	cols := win.OutH * win.OutW
	for r := r0; r < r1; r++ {
		c, tap := r/kernel, r%kernel
		kh, kw := tap/win.KernelW, tap%win.KernelW
		plane := image[c*win.InH*win.InW : (c+1)*win.InH*win.InW]
		dst := col[r*cols : (r+1)*cols]
		for oh := 0; oh < win.OutH; oh++ {
			ih := oh*win.StrideH - win.PadTop + kh
			line := dst[oh*win.OutW : (oh+1)*win.OutW]
			if ih < 0 || ih >= win.InH {
				for i := range line {
					line[i] = 0
				}
				continue
			}
			for ow := range line {
				iw := ow*win.StrideW - win.PadLeft + kw
				if iw < 0 || iw >= win.InW {
					line[ow] = 0
				} else {
					line[ow] = plane[ih*win.InW+iw]
				}
			}
		}
	}
}
