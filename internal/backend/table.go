package backend

import "sort"

// Table maps operator types to the factories of one backend. It is filled once when
// the backend is constructed and only read afterwards.
type Table struct {
	name      string
	factories map[string]Factory
}

// NewTable creates an empty table for the named backend.
func NewTable(name string) *Table {
	return &Table{
		name:      name,
		factories: make(map[string]Factory),
	}
}

// Name returns the backend name.
func (t *Table) Name() string {
	return t.name
}

// Register adds the factory for opType. Registering the same operator type twice, or a
// nil factory, is a *ConfigurationError.
func (t *Table) Register(opType string, factory Factory) error {
	if opType == "" {
		return Configurationf("backend %q: empty operator type", t.name)
	}
	if factory == nil {
		return Configurationf("backend %q: nil factory for %q", t.name, opType)
	}
	if _, dup := t.factories[opType]; dup {
		return Configurationf("backend %q: operator %q registered twice", t.name, opType)
	}
	t.factories[opType] = factory
	return nil
}

// MustRegister is Register for built-in tables, where a registration error is a bug.
func (t *Table) MustRegister(opType string, factory Factory) {
	if err := t.Register(opType, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for opType. A miss is normal: the backend simply does
// not implement that operator.
func (t *Table) Lookup(opType string) (Factory, bool) {
	f, ok := t.factories[opType]
	return f, ok
}

// OpTypes returns the registered operator types, sorted.
func (t *Table) OpTypes() []string {
	ops := make([]string, 0, len(t.factories))
	for op := range t.factories {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Len returns the number of registered operators.
func (t *Table) Len() int {
	return len(t.factories)
}
