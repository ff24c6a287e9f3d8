package tensor

import "fmt"

// DefaultAlignment aligns every region of an Arena to a cache line.
const DefaultAlignment = 64

// Spec declares one array an Arena must hold.
type Spec struct {
	Name  string
	DType DataType
	Shape Shape
}

// Arena owns a single pre-allocated byte slice backing every array of a graph.
// Regions are laid out in declaration order with a bump allocator; the arena never
// grows or moves once built, so arrays viewing it stay valid for its lifetime.
type Arena struct {
	buffer []byte
	arrays map[string]*Array
	order  []string
}

// NewArena lays out one aligned region per spec and wraps each in an Array view.
// alignment <= 0 selects DefaultAlignment; otherwise it must be a power of two.
func NewArena(specs []Spec, alignment int) (*Arena, error) {
	if alignment <= 0 {
		alignment = DefaultAlignment
	}
	if alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("arena alignment %d is not a power of two", alignment)
	}

	offsets := make([]int, len(specs))
	seen := make(map[string]bool, len(specs))
	total := 0
	for i, spec := range specs {
		if seen[spec.Name] {
			return nil, fmt.Errorf("arena: tensor %q declared twice", spec.Name)
		}
		seen[spec.Name] = true
		if err := spec.Shape.Validate(); err != nil {
			return nil, fmt.Errorf("arena: tensor %q: %w", spec.Name, err)
		}
		offsets[i] = total
		total += alignUp(spec.Shape.NumElements()*spec.DType.Size(), alignment)
	}

	a := &Arena{
		buffer: make([]byte, total),
		arrays: make(map[string]*Array, len(specs)),
		order:  make([]string, 0, len(specs)),
	}
	for i, spec := range specs {
		size := spec.Shape.NumElements() * spec.DType.Size()
		view, err := View(spec.DType, spec.Shape, a.buffer[offsets[i]:offsets[i]+size:offsets[i]+size])
		if err != nil {
			return nil, fmt.Errorf("arena: tensor %q: %w", spec.Name, err)
		}
		a.arrays[spec.Name] = view
		a.order = append(a.order, spec.Name)
	}
	return a, nil
}

func alignUp(n, alignment int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// Array returns the array bound to name.
func (a *Arena) Array(name string) (*Array, bool) {
	arr, ok := a.arrays[name]
	return arr, ok
}

// Names returns the tensor names in layout order.
func (a *Arena) Names() []string {
	return append([]string(nil), a.order...)
}

// Size returns the total number of bytes held by the arena, padding included.
func (a *Arena) Size() int {
	return len(a.buffer)
}

// Len returns the number of arrays in the arena.
func (a *Arena) Len() int {
	return len(a.order)
}
