//go:build windows

package webgpu

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/born-ml/composite/internal/backend"
	"github.com/born-ml/composite/internal/graph"
	"github.com/born-ml/composite/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Backend owns one WebGPU device and the pipelines and buffers compiled against it.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	mu        sync.Mutex
	pipelines map[string]*wgpu.ComputePipeline
	buffers   []*wgpu.Buffer // per-procedure buffers, released with the backend
}

// New opens the high-performance adapter and its default queue.
func New() (b *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = errors.Wrapf(ErrUnavailable, "native library: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrapf(ErrUnavailable, "request adapter: %v", err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrapf(ErrUnavailable, "request device: %v", err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(ErrUnavailable, "no queue")
	}

	klog.V(1).Infof("webgpu: device opened")
	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Table returns the operator table bound to this device.
func (b *Backend) Table() *backend.Table {
	t := backend.NewTable(Name)
	for op, expr := range unaryExprs {
		t.MustRegister(op, b.unary(op, expr))
	}
	for op, expr := range binaryExprs {
		t.MustRegister(op, b.binary(op, expr))
	}
	t.MustRegister("MatMul", b.matMul)
	return t
}

// Release frees every buffer, pipeline and the device. Procedures compiled against
// the backend must not run afterwards.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, buf := range b.buffers {
		buf.Release()
	}
	b.buffers = nil
	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = map[string]*wgpu.ComputePipeline{}
	if b.device != nil {
		b.queue.Release()
		b.device.Release()
		b.adapter.Release()
		b.instance.Release()
		b.device = nil
	}
}

// pipeline compiles the shader once per name and caches the pipeline.
func (b *Backend) pipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[name]; ok {
		return p
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	defer shader.Release()
	// Auto layout (nil layout).
	p := b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.pipelines[name] = p
	return p
}

// storage allocates a device-local buffer owned by the backend.
func (b *Backend) storage(size uint64) *wgpu.Buffer {
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	b.track(buf)
	return buf
}

// uniform allocates a 16-byte aligned uniform buffer holding params.
func (b *Backend) uniform(params ...uint32) *wgpu.Buffer {
	size := uint64(len(params)*4+15) &^ 15
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // unsafe.Slice over the mapped range
	mapped := unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size)
	for i, p := range params {
		binary.LittleEndian.PutUint32(mapped[i*4:], p)
	}
	buf.Unmap()
	b.track(buf)
	return buf
}

func (b *Backend) track(buf *wgpu.Buffer) {
	b.mu.Lock()
	b.buffers = append(b.buffers, buf)
	b.mu.Unlock()
}

// upload creates a transient storage buffer holding data.
func (b *Backend) upload(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size), data)
	buf.Unmap()
	return buf
}

// download copies src into dst through a staging buffer, since storage buffers
// cannot be mapped directly.
func (b *Backend) download(src *wgpu.Buffer, dst []byte) error {
	size := uint64(len(dst))
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return errors.Wrap(err, "map staging buffer")
	}
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(dst, unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	staging.Unmap()
	return nil
}

// kernel is a compiled dispatch: a pipeline, its persistent output and parameter
// buffers, and the workgroup grid. Inputs are uploaded on every run.
type kernel struct {
	b          *Backend
	pipeline   *wgpu.ComputePipeline
	inputs     []*tensor.Array
	output     *tensor.Array
	result     *wgpu.Buffer
	params     *wgpu.Buffer
	paramsSize uint64
	groups     [3]uint32
}

func (b *Backend) newKernel(name, code string, inputs []*tensor.Array, output *tensor.Array, groups [3]uint32, params ...uint32) *kernel {
	return &kernel{
		b:          b,
		pipeline:   b.pipeline(name, code),
		inputs:     inputs,
		output:     output,
		result:     b.storage(uint64(output.ByteSize())),
		params:     b.uniform(params...),
		paramsSize: uint64(len(params)*4+15) &^ 15,
		groups:     groups,
	}
}

// run uploads inputs, dispatches and reads the result back into the output array.
// Procedures cannot return errors, so a failed read-back panics.
func (k *kernel) run() {
	b := k.b
	entries := make([]wgpu.BindGroupEntry, 0, len(k.inputs)+2)
	uploads := make([]*wgpu.Buffer, len(k.inputs))
	for i, in := range k.inputs {
		uploads[i] = b.upload(in.Data())
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), uploads[i], 0, uint64(in.ByteSize())))
	}
	defer func() {
		for _, buf := range uploads {
			buf.Release()
		}
	}()
	n := uint32(len(k.inputs))
	entries = append(entries,
		wgpu.BufferBindingEntry(n, k.result, 0, uint64(k.output.ByteSize())),
		wgpu.BufferBindingEntry(n+1, k.params, 0, k.paramsSize))

	bindGroup := b.device.CreateBindGroupSimple(k.pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(k.groups[0], k.groups[1], k.groups[2])
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	if err := b.download(k.result, k.output.Data()); err != nil {
		panic(errors.Wrap(err, "webgpu: read back"))
	}
}

func linearGroups(n int) [3]uint32 {
	//nolint:gosec // G115: element counts are non-negative
	return [3]uint32{uint32((n + workgroupSize - 1) / workgroupSize), 1, 1}
}

func (b *Backend) unary(op, expr string) backend.Factory {
	code := unaryShader(expr)
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		if err := checkElementwise(node, inputs, outputs, 1); err != nil {
			return nil, err
		}
		n := outputs[0].NumElements()
		//nolint:gosec // G115: element counts are non-negative
		k := b.newKernel(op, code, inputs, outputs[0], linearGroups(n), uint32(n))
		return k.run, nil
	}
}

func (b *Backend) binary(op, expr string) backend.Factory {
	code := binaryShader(expr)
	return func(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
		if err := checkElementwise(node, inputs, outputs, 2); err != nil {
			return nil, err
		}
		n := outputs[0].NumElements()
		//nolint:gosec // G115: element counts are non-negative
		k := b.newKernel(op, code, inputs, outputs[0], linearGroups(n), uint32(n))
		return k.run, nil
	}
}

func (b *Backend) matMul(node *graph.Node, inputs, outputs []*tensor.Array) (backend.Procedure, error) {
	m, kk, n, err := checkMatMul(node, inputs, outputs)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G115: dimensions are positive
	groups := [3]uint32{uint32((n + 15) / 16), uint32((m + 15) / 16), 1}
	//nolint:gosec // G115: dimensions are positive
	k := b.newKernel("MatMul", matmulShader, inputs, outputs[0], groups, uint32(m), uint32(kk), uint32(n))
	return k.run, nil
}
