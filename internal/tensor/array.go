package tensor

import (
	"fmt"
	"unsafe"

	"github.com/x448/float16"
)

// Array is a typed, shaped view over a contiguous block of memory.
//
// Arrays handed to backends are borrowed: their storage belongs to an Arena (or
// whoever created them) and stays valid for the lifetime of the compiled graph.
// An Array is never reallocated once a procedure has been bound to it.
type Array struct {
	dtype DataType
	shape Shape
	data  []byte
}

// NewArray allocates a zeroed array with the given type and shape.
func NewArray(dtype DataType, shape Shape) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Array{
		dtype: dtype,
		shape: shape.Clone(),
		data:  make([]byte, shape.NumElements()*dtype.Size()),
	}, nil
}

// View wraps existing storage without copying. The length of data must be exactly
// the byte size implied by dtype and shape.
func View(dtype DataType, shape Shape, data []byte) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return nil, fmt.Errorf("view %s%v needs %d bytes, got %d", dtype, shape, want, len(data))
	}
	return &Array{dtype: dtype, shape: shape.Clone(), data: data}, nil
}

// FromFloat32 allocates a float32 array holding a copy of values.
func FromFloat32(shape Shape, values []float32) (*Array, error) {
	a, err := NewArray(Float32, shape)
	if err != nil {
		return nil, err
	}
	if err := a.CopyFromFloat32(values); err != nil {
		return nil, err
	}
	return a, nil
}

// DType returns the element type.
func (a *Array) DType() DataType {
	return a.dtype
}

// Shape returns the array's shape. Callers must not modify it.
func (a *Array) Shape() Shape {
	return a.shape
}

// NumElements returns the total number of elements.
func (a *Array) NumElements() int {
	return a.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (a *Array) ByteSize() int {
	return len(a.data)
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory.
func (a *Array) Data() []byte {
	return a.data
}

// String describes the array as "float32[2 3]".
func (a *Array) String() string {
	return a.dtype.String() + a.shape.String()
}

func (a *Array) mustBe(dt DataType) {
	if a.dtype != dt {
		panic(fmt.Sprintf("array dtype is %s, not %s", a.dtype, dt))
	}
}

// AsFloat32 interprets the data as []float32.
// Panics if the array's dtype is not Float32.
func (a *Array) AsFloat32() []float32 {
	a.mustBe(Float32)
	//nolint:gosec // unsafe.Slice for zero-copy access, length fixed by the shape
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(a.data))), a.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the array's dtype is not Float64.
func (a *Array) AsFloat64() []float64 {
	a.mustBe(Float64)
	//nolint:gosec // unsafe.Slice for zero-copy access, length fixed by the shape
	return unsafe.Slice((*float64)(unsafe.Pointer(unsafe.SliceData(a.data))), a.NumElements())
}

// AsFloat16 interprets the data as []float16.Float16.
// Panics if the array's dtype is not Float16.
func (a *Array) AsFloat16() []float16.Float16 {
	a.mustBe(Float16)
	//nolint:gosec // unsafe.Slice for zero-copy access, length fixed by the shape
	return unsafe.Slice((*float16.Float16)(unsafe.Pointer(unsafe.SliceData(a.data))), a.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the array's dtype is not Int32.
func (a *Array) AsInt32() []int32 {
	a.mustBe(Int32)
	//nolint:gosec // unsafe.Slice for zero-copy access, length fixed by the shape
	return unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(a.data))), a.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the array's dtype is not Int64.
func (a *Array) AsInt64() []int64 {
	a.mustBe(Int64)
	//nolint:gosec // unsafe.Slice for zero-copy access, length fixed by the shape
	return unsafe.Slice((*int64)(unsafe.Pointer(unsafe.SliceData(a.data))), a.NumElements())
}

// AsUint8 interprets the data as []uint8.
// Panics if the array's dtype is not Uint8.
func (a *Array) AsUint8() []uint8 {
	a.mustBe(Uint8)
	return a.data
}

// Float returns element i converted to float64. This is the slow, dtype-agnostic
// accessor; kernels use the typed views.
func (a *Array) Float(i int) float64 {
	switch a.dtype {
	case Float32:
		return float64(a.AsFloat32()[i])
	case Float64:
		return a.AsFloat64()[i]
	case Float16:
		return float64(a.AsFloat16()[i].Float32())
	case Int32:
		return float64(a.AsInt32()[i])
	case Int64:
		return float64(a.AsInt64()[i])
	case Uint8:
		return float64(a.data[i])
	default:
		panic("unknown data type")
	}
}

// SetFloat stores v at element i, converting to the array's dtype.
func (a *Array) SetFloat(i int, v float64) {
	switch a.dtype {
	case Float32:
		a.AsFloat32()[i] = float32(v)
	case Float64:
		a.AsFloat64()[i] = v
	case Float16:
		a.AsFloat16()[i] = float16.Fromfloat32(float32(v))
	case Int32:
		a.AsInt32()[i] = int32(v)
	case Int64:
		a.AsInt64()[i] = int64(v)
	case Uint8:
		a.data[i] = uint8(v)
	default:
		panic("unknown data type")
	}
}

// CopyFromFloat32 fills the array from values, converting to its dtype.
func (a *Array) CopyFromFloat32(values []float32) error {
	if len(values) != a.NumElements() {
		return fmt.Errorf("array %s holds %d elements, got %d values", a, a.NumElements(), len(values))
	}
	if a.dtype == Float32 {
		copy(a.AsFloat32(), values)
		return nil
	}
	for i, v := range values {
		a.SetFloat(i, float64(v))
	}
	return nil
}

// ToFloat32 returns a copy of the array's elements converted to float32.
func (a *Array) ToFloat32() []float32 {
	out := make([]float32, a.NumElements())
	if a.dtype == Float32 {
		copy(out, a.AsFloat32())
		return out
	}
	for i := range out {
		out[i] = float32(a.Float(i))
	}
	return out
}
