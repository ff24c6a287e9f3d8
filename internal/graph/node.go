package graph

import (
	"fmt"
	"strings"
)

// Node is one operation of the graph: operator type, ordered input and output tensor
// handles, and attributes. Nodes are immutable once the graph is built; compilation
// only reads them.
type Node struct {
	Name       string               // Node name (optional)
	OpType     string               // Operation type (e.g., "Conv", "Gemm", "Relu")
	Inputs     []string             // Input tensor names
	Outputs    []string             // Output tensor names
	Attributes map[string]Attribute // Operation attributes
}

// String identifies the node in diagnostics.
func (n *Node) String() string {
	if n.Name != "" {
		return fmt.Sprintf("%s(%s)", n.OpType, n.Name)
	}
	return fmt.Sprintf("%s(%s -> %s)", n.OpType, strings.Join(n.Inputs, ","), strings.Join(n.Outputs, ","))
}

// Attr returns the attribute with the given name.
func (n *Node) Attr(name string) (Attribute, bool) {
	a, ok := n.Attributes[name]
	return a, ok
}

// HasAttr reports whether the attribute is present.
func (n *Node) HasAttr(name string) bool {
	_, ok := n.Attributes[name]
	return ok
}

// AttrInt returns an integer attribute or the default value.
func (n *Node) AttrInt(name string, defaultVal int64) int64 {
	if a, ok := n.Attributes[name]; ok && a.Type == AttrInt {
		return a.I
	}
	return defaultVal
}

// AttrFloat returns a float attribute or the default value.
// Integer attributes are accepted and converted.
func (n *Node) AttrFloat(name string, defaultVal float32) float32 {
	if a, ok := n.Attributes[name]; ok {
		switch a.Type {
		case AttrFloat:
			return a.F
		case AttrInt:
			return float32(a.I)
		}
	}
	return defaultVal
}

// AttrInts returns an integer list attribute or the default value.
func (n *Node) AttrInts(name string, defaultVal []int64) []int64 {
	if a, ok := n.Attributes[name]; ok && a.Type == AttrInts {
		return a.Ints
	}
	return defaultVal
}

// AttrFloats returns a float list attribute or the default value.
func (n *Node) AttrFloats(name string, defaultVal []float32) []float32 {
	if a, ok := n.Attributes[name]; ok && a.Type == AttrFloats {
		return a.Floats
	}
	return defaultVal
}

// AttrString returns a string attribute or the default value.
func (n *Node) AttrString(name, defaultVal string) string {
	if a, ok := n.Attributes[name]; ok && a.Type == AttrString {
		return a.S
	}
	return defaultVal
}

// clone returns a deep copy of the node.
func (n *Node) clone() Node {
	c := Node{
		Name:    n.Name,
		OpType:  n.OpType,
		Inputs:  append([]string(nil), n.Inputs...),
		Outputs: append([]string(nil), n.Outputs...),
	}
	if n.Attributes != nil {
		c.Attributes = make(map[string]Attribute, len(n.Attributes))
		for k, v := range n.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}
