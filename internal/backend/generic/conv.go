package generic

import (
	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
)

func registerConv(t *backend.Table) {
	t.MustRegister("Conv", makeConv)
}

// convDims holds the resolved geometry of a grouped 2-D convolution.
type convDims struct {
	batch, inC, outC, group int
	win                      backend.Window
}

// makeConv implements a direct grouped 2-D convolution over NCHW input with
// weights [M, C/group, kH, kW] and an optional bias [M].
func makeConv(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	if err := backend.CheckArity(node, inputs, outputs, 2, 3, 1); err != nil {
		return nil, err
	}
	act, err := checkFusedActivation(node)
	if err != nil {
		return nil, err
	}
	d, err := convShape(node, inputs, outputs[0])
	if err != nil {
		return nil, err
	}
	hasBias := len(inputs) == 3
	return bindFloat(node, inputs, outputs,
		func(in, out [][]float32) backend.Procedure { return conv(in, out[0], d, hasBias, act) },
		func(in, out [][]float64) backend.Procedure { return conv(in, out[0], d, hasBias, act) })
}

func convShape(node *graph.Node, inputs []*tensor.Array, out *tensor.Array) (convDims, error) {
	x, w := inputs[0].Shape(), inputs[1].Shape()
	if len(x) != 4 || len(w) != 4 {
		return convDims{}, backend.Unsupportedf("Conv: only 2-D NCHW is supported, got input %v weights %v", x, w)
	}
	group := int(node.AttrInt("group", 1))
	if group < 1 || x[1]%group != 0 || w[0]%group != 0 {
		return convDims{}, backend.Unsupportedf("Conv: group %d does not divide channels %d/%d", group, x[1], w[0])
	}
	if w[1] != x[1]/group {
		return convDims{}, backend.Unsupportedf("Conv: weights %v do not match %d input channels in %d groups", w, x[1], group)
	}
	if ks := node.AttrInts("kernel_shape", nil); ks != nil {
		if len(ks) != 2 || int(ks[0]) != w[2] || int(ks[1]) != w[3] {
			return convDims{}, backend.Unsupportedf("Conv: kernel_shape %v does not match weights %v", ks, w)
		}
	}
	if len(inputs) == 3 {
		if err := backend.CheckShape(node, "bias", inputs[2], tensor.Shape{w[0]}); err != nil {
			return convDims{}, err
		}
	}
	win, err := backend.ParseWindow(node, x[2], x[3], w[2], w[3], false)
	if err != nil {
		return convDims{}, err
	}
	if err := backend.CheckShape(node, "output", out, tensor.Shape{x[0], w[0], win.OutH, win.OutW}); err != nil {
		return convDims{}, err
	}
	return convDims{batch: x[0], inC: x[1], outC: w[0], group: group, win: win}, nil
}

func conv[T float](in [][]T, out []T, d convDims, hasBias bool, act backend.Activation) backend.Procedure {
	x, w := in[0], in[1]
	var bias []T
	if hasBias {
		bias = in[2]
	}
	activate := activationFunc[T](act)
	win := d.win
	inPerGroup := d.inC / d.group
	outPerGroup := d.outC / d.group
	inPlane := win.InH * win.InW
	outPlane := win.OutH * win.OutW
	kernel := win.KernelH * win.KernelW

	return func() {
		for n := 0; n < d.batch; n++ {
			for m := 0; m < d.outC; m++ {
				g := m / outPerGroup
				dst := out[(n*d.outC+m)*outPlane : (n*d.outC+m+1)*outPlane]
				var b T
				if bias != nil {
					b = bias[m]
				}
				for oh := 0; oh < win.OutH; oh++ {
					for ow := 0; ow < win.OutW; ow++ {
						acc := b
						for c := 0; c < inPerGroup; c++ {
							src := x[(n*d.inC+g*inPerGroup+c)*inPlane:]
							wk := w[(m*inPerGroup+c)*kernel:]
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
									acc += src[ih*win.InW+iw] * wk[kh*win.KernelW+kw]
								}
							}
						}
						dst[oh*win.OutW+ow] = acc
					}
				}
			}
		}
		if activate != nil {
			activate(out)
		}
	}
}
