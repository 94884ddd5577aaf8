package models

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GorgoniaConfig configures a model backed by a gorgonia expression graph.
// The graph, its input node and its output nodes are built by the caller
// (network construction is model-specific); this wrapper owns execution.
type GorgoniaConfig struct {
	// Graph holding the network.
	Graph *G.ExprGraph
	// Input is the 4-D NCHW input node. Its shape fixes the batch size.
	Input *G.Node
	// Outputs are the nodes whose values form the raw prediction.
	Outputs []*G.Node
}

// Gorgonia executes a fixed expression graph with a tape machine. The input
// node's shape is static, so every batch must match the shape the graph was
// built with.
type Gorgonia struct {
	graph   *G.ExprGraph
	input   *G.Node
	outputs []*G.Node
	vm      G.VM
	device  string
	mode    Mode
}

// NewGorgonia wraps a constructed expression graph as a Model.
//
// Arguments:
//   - config: Graph, input node and output nodes.
//
// Returns:
//   - *Gorgonia: The ready model.
//   - error: If the configuration is incomplete.
func NewGorgonia(config GorgoniaConfig) (*Gorgonia, error) {
	if config.Graph == nil || config.Input == nil {
		return nil, errors.New("gorgonia model requires a graph and an input node")
	}
	if len(config.Outputs) == 0 {
		return nil, errors.New("gorgonia model requires at least one output node")
	}
	if len(config.Input.Shape()) != 4 {
		return nil, errors.Errorf("input node has shape %v, expected NCHW", config.Input.Shape())
	}
	return &Gorgonia{
		graph:   config.Graph,
		input:   config.Input,
		outputs: config.Outputs,
		vm:      G.NewTapeMachine(config.Graph),
		device:  DeviceCPU,
		mode:    ModeEval,
	}, nil
}

// Forward binds the batch to the input node, runs the tape machine and
// clones the output values so they are detached from graph storage.
func (m *Gorgonia) Forward(batch *tensor.Dense) ([]*tensor.Dense, error) {
	if m.vm == nil {
		return nil, errors.New("gorgonia machine is closed")
	}
	want := m.input.Shape()
	got := batch.Shape()
	if !want.Eq(got) {
		return nil, errors.Errorf("batch tensor has shape %v, graph expects %v", got, want)
	}

	if err := G.Let(m.input, batch); err != nil {
		return nil, errors.Wrap(err, "binding input tensor")
	}
	defer m.vm.Reset()
	if err := m.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "running graph")
	}

	detached := make([]*tensor.Dense, len(m.outputs))
	for i, node := range m.outputs {
		value, ok := node.Value().(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("output node %d holds %T, expected *tensor.Dense", i, node.Value())
		}
		detached[i] = value.Clone().(*tensor.Dense)
	}
	return detached, nil
}

// Mode reports the tracked execution mode.
func (m *Gorgonia) Mode() Mode {
	return m.mode
}

// SetMode switches the tracked execution mode.
func (m *Gorgonia) SetMode(mode Mode) {
	m.mode = mode
}

// To accepts only the CPU device; tape machines run on host memory.
func (m *Gorgonia) To(device string) error {
	if device == DeviceCPU {
		return nil
	}
	return errors.Errorf("gorgonia models run on %q only, cannot relocate to %q", DeviceCPU, device)
}

// Close releases the tape machine.
func (m *Gorgonia) Close() error {
	if m.vm == nil {
		return nil
	}
	err := m.vm.Close()
	m.vm = nil
	if err != nil {
		return errors.Wrap(err, "closing tape machine")
	}
	return nil
}
