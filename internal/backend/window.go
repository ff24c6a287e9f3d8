package backend

import "github.com/born-ml/composite/internal/graph"

// Window is the resolved geometry of a 2-D convolution or pooling window over an
// NCHW input.
type Window struct {
	KernelH, KernelW     int
	StrideH, StrideW     int
	DilationH, DilationW int
	PadTop, PadLeft      int
	PadBottom, PadRight  int
	InH, InW             int
	OutH, OutW           int
}

// ParseWindow resolves strides, dilations, pads and auto_pad for a kernelH x kernelW
// window over an inH x inW input. ceilMode rounds the output size up, as pooling's
// ceil_mode does.
func ParseWindow(node *graph.Node, inH, inW, kernelH, kernelW int, ceilMode bool) (Window, error) {
	w := Window{KernelH: kernelH, KernelW: kernelW, InH: inH, InW: inW}

	pair := func(name string, def int) (int, int, error) {
		v := node.AttrInts(name, nil)
		switch len(v) {
		case 0:
			return def, def, nil
		case 2:
			return int(v[0]), int(v[1]), nil
		default:
			return 0, 0, Unsupportedf("%s: %s must have 2 values, got %v", node.OpType, name, v)
		}
	}
	var err error
	if w.StrideH, w.StrideW, err = pair("strides", 1); err != nil {
		return w, err
	}
	if w.DilationH, w.DilationW, err = pair("dilations", 1); err != nil {
		return w, err
	}
	if w.StrideH < 1 || w.StrideW < 1 || w.DilationH < 1 || w.DilationW < 1 {
		return w, Unsupportedf("%s: strides and dilations must be positive", node.OpType)
	}

	effH := (kernelH-1)*w.DilationH + 1
	effW := (kernelW-1)*w.DilationW + 1

	switch autoPad := node.AttrString("auto_pad", "NOTSET"); autoPad {
	case "NOTSET", "":
		pads := node.AttrInts("pads", nil)
		switch len(pads) {
		case 0:
		case 4:
			w.PadTop, w.PadLeft, w.PadBottom, w.PadRight = int(pads[0]), int(pads[1]), int(pads[2]), int(pads[3])
		default:
			return w, Unsupportedf("%s: pads must have 4 values, got %v", node.OpType, pads)
		}
		if w.PadTop < 0 || w.PadLeft < 0 || w.PadBottom < 0 || w.PadRight < 0 {
			return w, Unsupportedf("%s: negative pads %v", node.OpType, pads)
		}
		w.OutH = outputSize(inH+w.PadTop+w.PadBottom-effH, w.StrideH, ceilMode)
		w.OutW = outputSize(inW+w.PadLeft+w.PadRight-effW, w.StrideW, ceilMode)
	case "VALID":
		w.OutH = outputSize(inH-effH, w.StrideH, ceilMode)
		w.OutW = outputSize(inW-effW, w.StrideW, ceilMode)
	case "SAME_UPPER", "SAME_LOWER":
		w.OutH = (inH + w.StrideH - 1) / w.StrideH
		w.OutW = (inW + w.StrideW - 1) / w.StrideW
		totalH := max(0, (w.OutH-1)*w.StrideH+effH-inH)
		totalW := max(0, (w.OutW-1)*w.StrideW+effW-inW)
		if autoPad == "SAME_UPPER" {
			w.PadTop, w.PadLeft = totalH/2, totalW/2
		} else {
			w.PadTop, w.PadLeft = totalH-totalH/2, totalW-totalW/2
		}
		w.PadBottom, w.PadRight = totalH-w.PadTop, totalW-w.PadLeft
	default:
		return w, Unsupportedf("%s: auto_pad %q", node.OpType, autoPad)
	}

	if w.OutH < 1 || w.OutW < 1 {
		return w, Unsupportedf("%s: window %dx%d does not fit input %dx%d", node.OpType, kernelH, kernelW, inH, inW)
	}
	return w, nil
}

func outputSize(span, stride int, ceilMode bool) int {
	if span < 0 {
		return 0
	}
	if ceilMode {
		return (span+stride-1)/stride + 1
	}
	return span/stride + 1
}

// HasPadding reports whether any pad is non-zero.
func (w Window) HasPadding() bool {
	return w.PadTop != 0 || w.PadLeft != 0 || w.PadBottom != 0 || w.PadRight != 0
}
