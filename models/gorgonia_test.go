package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// doublingModel builds a graph whose single output is the input added to
// itself, fixed to a [2, 3, 2, 2] batch.
func doublingModel(t *testing.T) *Gorgonia {
	t.Helper()
	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, 4, G.WithShape(2, 3, 2, 2), G.WithName("input"))
	output := G.Must(G.Add(input, input))

	m, err := NewGorgonia(GorgoniaConfig{Graph: g, Input: input, Outputs: []*G.Node{output}})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func batchOfOnes(shape ...int) *tensor.Dense {
	size := 1
	for _, d := range shape {
		size *= d
	}
	backing := make([]float32, size)
	for i := range backing {
		backing[i] = 1
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}

func TestGorgoniaForward(t *testing.T) {
	m := doublingModel(t)

	outputs, err := m.Forward(batchOfOnes(2, 3, 2, 2))
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	out := outputs[0]
	assert.Equal(t, []int{2, 3, 2, 2}, []int(out.Shape()))
	for _, v := range out.Data().([]float32) {
		assert.Equal(t, float32(2), v)
	}
}

func TestGorgoniaForwardRepeated(t *testing.T) {
	m := doublingModel(t)

	first, err := m.Forward(batchOfOnes(2, 3, 2, 2))
	require.NoError(t, err)

	batch := batchOfOnes(2, 3, 2, 2)
	for i := range batch.Data().([]float32) {
		batch.Data().([]float32)[i] = 3
	}
	second, err := m.Forward(batch)
	require.NoError(t, err)

	assert.Equal(t, float32(2), first[0].Data().([]float32)[0], "earlier outputs are detached from graph storage")
	assert.Equal(t, float32(6), second[0].Data().([]float32)[0])
}

func TestGorgoniaForwardShapeMismatch(t *testing.T) {
	m := doublingModel(t)

	_, err := m.Forward(batchOfOnes(1, 3, 2, 2))
	assert.ErrorContains(t, err, "shape")
}

func TestGorgoniaToCPUOnly(t *testing.T) {
	m := doublingModel(t)

	assert.NoError(t, m.To(DeviceCPU))
	assert.Error(t, m.To(DeviceCUDA))
}

func TestGorgoniaModeTracking(t *testing.T) {
	m := doublingModel(t)

	assert.Equal(t, ModeEval, m.Mode())
	m.SetMode(ModeTrain)
	assert.Equal(t, ModeTrain, m.Mode())
}

func TestGorgoniaClose(t *testing.T) {
	m := doublingModel(t)

	require.NoError(t, m.Close())
	_, err := m.Forward(batchOfOnes(2, 3, 2, 2))
	assert.ErrorContains(t, err, "closed")
	assert.NoError(t, m.Close(), "double close is a no-op")
}

func TestNewGorgoniaValidation(t *testing.T) {
	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, 4, G.WithShape(1, 3, 2, 2), G.WithName("input"))
	flat := G.NewTensor(g, tensor.Float32, 2, G.WithShape(2, 2), G.WithName("flat"))
	output := G.Must(G.Add(input, input))

	_, err := NewGorgonia(GorgoniaConfig{Input: input, Outputs: []*G.Node{output}})
	assert.Error(t, err, "graph is required")

	_, err = NewGorgonia(GorgoniaConfig{Graph: g, Outputs: []*G.Node{output}})
	assert.Error(t, err, "input node is required")

	_, err = NewGorgonia(GorgoniaConfig{Graph: g, Input: input})
	assert.Error(t, err, "output nodes are required")

	_, err = NewGorgonia(GorgoniaConfig{Graph: g, Input: flat, Outputs: []*G.Node{output}})
	assert.Error(t, err, "input must be 4-D")
}
