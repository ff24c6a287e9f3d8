//go:build !windows

package webgpu

import "github.com/born-ml/composite/internal/backend"

// Backend is a placeholder on platforms without a WebGPU runtime.
type Backend struct{}

// New always fails with ErrUnavailable on this platform.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// Table returns an empty table.
func (b *Backend) Table() *backend.Table {
	return backend.NewTable(Name)
}

// Release is a no-op.
func (b *Backend) Release() {}
