// Package generic implements the reference backend: straightforward loops for every
// operator the runtime knows, over float32, float64 and float16 data. It is the
// universal fallback placed last in a backend list, so its factories accept every
// valid configuration and only decline nodes that violate the operator contract.
package generic

import "github.com/born-ml/composite/internal/backend"

// Name is the backend name.
const Name = "generic"

// New creates the reference backend table.
func New() *backend.Table {
	t := backend.NewTable(Name)
	registerElementwise(t)
	registerBinary(t)
	registerLinear(t)
	registerConv(t)
	registerPooling(t)
	registerNormalization(t)
	registerMovement(t)
	return t
}
