package graph

// Activation attribute names carried by fused nodes.
const (
	AttrActivation      = "activation"
	AttrActivationAlpha = "activation_alpha"
)

// fusableProducers are the operators that accept a fused activation attribute.
var fusableProducers = map[string]bool{
	"Conv":   true,
	"Gemm":   true,
	"MatMul": true,
}

// FusableActivations are the activations FuseActivations folds into a producer.
var FusableActivations = map[string]bool{
	"Relu":      true,
	"LeakyRelu": true,
	"Sigmoid":   true,
	"Tanh":      true,
}

// FuseActivations returns a copy of g where a Conv, Gemm or MatMul node immediately
// consumed by an activation is merged with it. The producer's output must have the
// activation as its only reader and must not be a graph output; the fused node writes
// the activation's output and the intermediate tensor declaration is dropped.
// g itself is left untouched. The second result is the number of fusions made.
func FuseActivations(g *Graph) (*Graph, int) {
	consumers := g.Consumers()
	graphOutputs := make(map[string]bool, len(g.Outputs))
	for _, name := range g.Outputs {
		graphOutputs[name] = true
	}

	fusedInto := make(map[int]int) // activation node index -> producer node index
	dropped := make(map[string]bool)
	for i := range g.Nodes {
		producer := &g.Nodes[i]
		if !fusableProducers[producer.OpType] || len(producer.Outputs) != 1 || producer.HasAttr(AttrActivation) {
			continue
		}
		out := producer.Outputs[0]
		readers := consumers[out]
		if len(readers) != 1 || graphOutputs[out] {
			continue
		}
		act := &g.Nodes[readers[0]]
		if !FusableActivations[act.OpType] || len(act.Inputs) != 1 || len(act.Outputs) != 1 {
			continue
		}
		fusedInto[readers[0]] = i
		dropped[out] = true
	}

	result := &Graph{
		Inputs:  append([]string(nil), g.Inputs...),
		Outputs: append([]string(nil), g.Outputs...),
		Tensors: make([]TensorDecl, 0, len(g.Tensors)),
		Nodes:   make([]Node, 0, len(g.Nodes)-len(fusedInto)),
	}
	for _, d := range g.Tensors {
		if !dropped[d.Name] {
			result.Tensors = append(result.Tensors, d)
		}
	}

	activationOf := make(map[int]*Node, len(fusedInto))
	for actIdx, prodIdx := range fusedInto {
		activationOf[prodIdx] = &g.Nodes[actIdx]
	}
	for i := range g.Nodes {
		if _, isFusedActivation := fusedInto[i]; isFusedActivation {
			continue
		}
		node := g.Nodes[i].clone()
		if act, ok := activationOf[i]; ok {
			if node.Attributes == nil {
				node.Attributes = make(map[string]Attribute, 2)
			}
			node.Attributes[AttrActivation] = String(act.OpType)
			if act.OpType == "LeakyRelu" {
				node.Attributes[AttrActivationAlpha] = Float(act.AttrFloat("alpha", 0.01))
			}
			node.Outputs = []string{act.Outputs[0]}
			if node.Name != "" && act.Name != "" {
				node.Name = node.Name + "+" + act.Name
			}
		}
		result.Nodes = append(result.Nodes, node)
	}
	return result, len(fusedInto)
}
