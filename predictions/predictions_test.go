package predictions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDetection(t *testing.T) {
	det, err := NewDetection(
		[][4]float32{{1, 2, 3, 4}, {5, 6, 7, 8}},
		[]float32{0.9, 0.8},
		[]int{0, 2},
		[2]int{480, 640},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, det.Len())
	assert.Equal(t, FormatXYXY, det.Format)
	assert.Equal(t, [2]int{480, 640}, det.ImageShape)
	assert.Equal(t, [4]float32{5, 6, 7, 8}, det.Boxes[1])
}

func TestNewDetectionParallelSliceMismatch(t *testing.T) {
	tests := []struct {
		name   string
		boxes  [][4]float32
		scores []float32
		labels []int
	}{
		{"more scores than boxes", [][4]float32{{0, 0, 1, 1}}, []float32{0.9, 0.8}, []int{0}},
		{"more labels than boxes", [][4]float32{{0, 0, 1, 1}}, []float32{0.9}, []int{0, 1}},
		{"boxes without scores", [][4]float32{{0, 0, 1, 1}}, nil, []int{0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDetection(tc.boxes, tc.scores, tc.labels, [2]int{10, 10})
			assert.Error(t, err)
		})
	}
}

func TestNewDetectionNormalizesNilSlices(t *testing.T) {
	det, err := NewDetection(nil, nil, nil, [2]int{10, 20})
	require.NoError(t, err)

	assert.Equal(t, 0, det.Len())
	assert.NotNil(t, det.Boxes)
	assert.NotNil(t, det.Scores)
	assert.NotNil(t, det.Labels)
}

func TestEmptyDetection(t *testing.T) {
	empty := EmptyDetection([2]int{100, 200})

	assert.Equal(t, 0, empty.Len())
	assert.NotNil(t, empty.Boxes)
	assert.NotNil(t, empty.Scores)
	assert.NotNil(t, empty.Labels)
	assert.Equal(t, FormatXYXY, empty.Format)
	assert.Equal(t, [2]int{100, 200}, empty.ImageShape)

	populated, err := NewDetection([][4]float32{{0, 0, 1, 1}}, []float32{0.5}, []int{0}, [2]int{100, 200})
	require.NoError(t, err)
	assert.Equal(t, populated.Format, empty.Format, "empty and populated detections share the same shape")
	assert.IsType(t, populated.Boxes, empty.Boxes)
	assert.IsType(t, populated.Scores, empty.Scores)
	assert.IsType(t, populated.Labels, empty.Labels)
}
