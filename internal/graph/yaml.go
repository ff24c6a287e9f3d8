package graph

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/composite/internal/tensor"
	"gopkg.in/yaml.v3"
)

type yamlGraph struct {
	Inputs  []string     `yaml:"inputs"`
	Outputs []string     `yaml:"outputs"`
	Tensors []yamlTensor `yaml:"tensors"`
	Nodes   []yamlNode   `yaml:"nodes"`
}

type yamlTensor struct {
	Name  string    `yaml:"name"`
	DType string    `yaml:"dtype"`
	Shape []int     `yaml:"shape"`
	Data  []float64 `yaml:"data"`
}

type yamlNode struct {
	Name       string               `yaml:"name"`
	Op         string               `yaml:"op"`
	Inputs     []string             `yaml:"inputs"`
	Outputs    []string             `yaml:"outputs"`
	Attributes map[string]yaml.Node `yaml:"attributes"`
}

// LoadFile reads a YAML graph description from path.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML graph description:
//
//	inputs: [x]
//	outputs: [y]
//	tensors:
//	  - {name: x, dtype: float32, shape: [4]}
//	  - {name: y, dtype: float32, shape: [4]}
//	nodes:
//	  - {name: relu0, op: Relu, inputs: [x], outputs: [y]}
//
// Attribute types follow the YAML tags: integers become int attributes, numbers with
// a fractional part float attributes, sequences int or float lists, anything else a
// string. The decoded graph is validated before it is returned.
func Load(r io.Reader) (*Graph, error) {
	var doc yamlGraph
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}

	g := &Graph{
		Inputs:  doc.Inputs,
		Outputs: doc.Outputs,
		Tensors: make([]TensorDecl, 0, len(doc.Tensors)),
		Nodes:   make([]Node, 0, len(doc.Nodes)),
	}
	for _, t := range doc.Tensors {
		dtype := tensor.Float32
		if t.DType != "" {
			var err error
			if dtype, err = tensor.ParseDataType(t.DType); err != nil {
				return nil, fmt.Errorf("tensor %q: %w", t.Name, err)
			}
		}
		g.Tensors = append(g.Tensors, TensorDecl{
			Name:  t.Name,
			DType: dtype,
			Shape: tensor.Shape(t.Shape),
			Data:  t.Data,
		})
	}
	for i, n := range doc.Nodes {
		node := Node{
			Name:    n.Name,
			OpType:  n.Op,
			Inputs:  n.Inputs,
			Outputs: n.Outputs,
		}
		if len(n.Attributes) > 0 {
			node.Attributes = make(map[string]Attribute, len(n.Attributes))
			// Sorted for deterministic error reporting.
			names := make([]string, 0, len(n.Attributes))
			for name := range n.Attributes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				value := n.Attributes[name]
				attr, err := decodeAttribute(&value)
				if err != nil {
					return nil, fmt.Errorf("node %d (%s): attribute %q: %w", i, n.Op, name, err)
				}
				node.Attributes[name] = attr
			}
		}
		g.Nodes = append(g.Nodes, node)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func decodeAttribute(value *yaml.Node) (Attribute, error) {
	switch value.Kind {
	case yaml.ScalarNode:
		switch value.ShortTag() {
		case "!!int":
			var v int64
			if err := value.Decode(&v); err != nil {
				return Attribute{}, err
			}
			return Int(v), nil
		case "!!float":
			var v float32
			if err := value.Decode(&v); err != nil {
				return Attribute{}, err
			}
			return Float(v), nil
		default:
			return String(value.Value), nil
		}

	case yaml.SequenceNode:
		allInts := true
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return Attribute{}, fmt.Errorf("nested sequences are not supported")
			}
			switch item.ShortTag() {
			case "!!int":
			case "!!float":
				allInts = false
			default:
				return Attribute{}, fmt.Errorf("list element %q is not a number", item.Value)
			}
		}
		if allInts {
			var v []int64
			if err := value.Decode(&v); err != nil {
				return Attribute{}, err
			}
			return Ints(v...), nil
		}
		var v []float32
		if err := value.Decode(&v); err != nil {
			return Attribute{}, err
		}
		return Floats(v...), nil

	default:
		return Attribute{}, fmt.Errorf("unsupported attribute value at line %d", value.Line)
	}
}
