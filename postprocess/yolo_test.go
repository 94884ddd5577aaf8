package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// yoloOutput builds a [batch, rows, 5+classes] tensor from row data given in
// cx, cy, w, h, objectness, class-scores... order.
func yoloOutput(t *testing.T, batch, classes int, rows ...[]float32) *tensor.Dense {
	t.Helper()
	cols := 5 + classes
	require.Equal(t, 0, len(rows)%batch, "rows must split evenly across the batch")
	perImage := len(rows) / batch

	backing := make([]float32, 0, len(rows)*cols)
	for _, row := range rows {
		require.Len(t, row, cols)
		backing = append(backing, row...)
	}
	return tensor.New(
		tensor.WithShape(batch, perImage, cols),
		tensor.WithBacking(backing),
	)
}

func TestYOLODecoderDecode(t *testing.T) {
	d := &YOLODecoder{
		ConfidenceThreshold: 0.5,
		NMS:                 NMSConfig{IoUThreshold: 0.45},
		NumClasses:          2,
	}

	out := yoloOutput(t, 1, 2,
		// A 20x20 box centered at (50,40), class 1.
		[]float32{50, 40, 20, 20, 0.9, 0.1, 0.8},
		// Below the objectness threshold.
		[]float32{10, 10, 4, 4, 0.3, 0.9, 0.1},
	)

	decoded, err := d.Decode([]*tensor.Dense{out})
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Len(t, decoded[0], 1)

	c := decoded[0][0]
	assert.InDelta(t, 40, c.X1, 1e-5)
	assert.InDelta(t, 30, c.Y1, 1e-5)
	assert.InDelta(t, 60, c.X2, 1e-5)
	assert.InDelta(t, 50, c.Y2, 1e-5)
	assert.InDelta(t, 0.9*0.8, c.Score, 1e-5)
	assert.Equal(t, 1, c.Class)
}

func TestYOLODecoderEmptyImageIsNil(t *testing.T) {
	d := &YOLODecoder{ConfidenceThreshold: 0.5, NumClasses: 1}

	out := yoloOutput(t, 2, 1,
		[]float32{50, 50, 10, 10, 0.9, 0.9}, // image 0: one detection
		[]float32{50, 50, 10, 10, 0.1, 0.9}, // image 1: below threshold
	)

	decoded, err := d.Decode([]*tensor.Dense{out})
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Len(t, decoded[0], 1)
	assert.Nil(t, decoded[1], "an image with no surviving rows is a nil entry")
}

func TestYOLODecoderCombinedScoreThreshold(t *testing.T) {
	// Objectness passes alone but objectness * best class does not.
	d := &YOLODecoder{ConfidenceThreshold: 0.5, NumClasses: 1}

	out := yoloOutput(t, 1, 1, []float32{50, 50, 10, 10, 0.6, 0.5})
	decoded, err := d.Decode([]*tensor.Dense{out})
	require.NoError(t, err)
	assert.Nil(t, decoded[0])
}

func TestYOLODecoderAppliesNMS(t *testing.T) {
	d := &YOLODecoder{
		ConfidenceThreshold: 0.25,
		NMS:                 NMSConfig{IoUThreshold: 0.45},
		NumClasses:          1,
	}

	out := yoloOutput(t, 1, 1,
		[]float32{50, 50, 20, 20, 0.9, 0.9},
		[]float32{51, 51, 20, 20, 0.8, 0.8},
		[]float32{200, 200, 20, 20, 0.7, 0.7},
	)

	decoded, err := d.Decode([]*tensor.Dense{out})
	require.NoError(t, err)
	require.Len(t, decoded[0], 2, "near-duplicate suppressed, distant box kept")
	assert.InDelta(t, 0.81, decoded[0][0].Score, 1e-5)
}

func TestYOLODecoderScoreCappedAtOne(t *testing.T) {
	d := &YOLODecoder{ConfidenceThreshold: 0.5, NumClasses: 1}

	out := yoloOutput(t, 1, 1, []float32{50, 50, 10, 10, 1.2, 1.1})
	decoded, err := d.Decode([]*tensor.Dense{out})
	require.NoError(t, err)
	require.Len(t, decoded[0], 1)
	assert.Equal(t, float32(1), decoded[0][0].Score)
}

func TestYOLODecoderValidation(t *testing.T) {
	d := &YOLODecoder{ConfidenceThreshold: 0.5, NumClasses: 2}

	_, err := d.Decode(nil)
	assert.Error(t, err, "no output tensors")

	bad := tensor.New(tensor.WithShape(2, 7), tensor.WithBacking(make([]float32, 14)))
	_, err = d.Decode([]*tensor.Dense{bad})
	assert.Error(t, err, "rank mismatch")

	wrongCols := tensor.New(tensor.WithShape(1, 1, 6), tensor.WithBacking(make([]float32, 6)))
	_, err = d.Decode([]*tensor.Dense{wrongCols})
	assert.Error(t, err, "column count must match class count")

	zeroClasses := &YOLODecoder{ConfidenceThreshold: 0.5}
	_, err = zeroClasses.Decode([]*tensor.Dense{wrongCols})
	assert.Error(t, err, "class count must be configured")
}
