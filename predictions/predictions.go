// Package predictions - typed per-image model predictions.
package predictions

import "github.com/pkg/errors"

// Prediction is a task-specific set of predictions for a single image, in
// either model-input or original-image coordinates depending on pipeline
// stage. Concrete tasks (detection, classification, ...) provide their own
// implementation.
type Prediction interface {
	prediction()
}

// FormatXYXY declares corner-corner box coordinates [x1, y1, x2, y2].
const FormatXYXY = "xyxy"

// Detection holds the detected objects of one image as parallel slices.
// A detection with zero objects has zero-length, non-nil slices; a nil
// Detection never represents "no detections".
type Detection struct {
	// Boxes are per-object [x1, y1, x2, y2] coordinates.
	Boxes [][4]float32
	// Scores are per-object confidences in [0, 1].
	Scores []float32
	// Labels are per-object class indices.
	Labels []int
	// Format of Boxes. Always FormatXYXY.
	Format string
	// ImageShape is the (height, width) of the image the coordinates refer to.
	ImageShape [2]int
}

func (*Detection) prediction() {}

// NewDetection builds a Detection after validating that boxes, scores and
// labels are parallel. Nil slices are normalized to empty so a zero-object
// detection is always well-formed.
//
// Arguments:
//   - boxes: Per-object corner-corner coordinates.
//   - scores: Per-object confidences.
//   - labels: Per-object class indices.
//   - imageShape: Height and width of the reference image.
//
// Returns:
//   - *Detection: The validated detection.
//   - error: If the slices are not parallel.
func NewDetection(boxes [][4]float32, scores []float32, labels []int, imageShape [2]int) (*Detection, error) {
	if len(boxes) != len(scores) || len(boxes) != len(labels) {
		return nil, errors.Errorf(
			"detection slices are not parallel: %d boxes, %d scores, %d labels",
			len(boxes), len(scores), len(labels))
	}
	if boxes == nil {
		boxes = [][4]float32{}
	}
	if scores == nil {
		scores = []float32{}
	}
	if labels == nil {
		labels = []int{}
	}
	return &Detection{
		Boxes:      boxes,
		Scores:     scores,
		Labels:     labels,
		Format:     FormatXYXY,
		ImageShape: imageShape,
	}, nil
}

// EmptyDetection returns the explicit zero-object detection for an image.
// Every field matches the shape and type of a populated detection.
func EmptyDetection(imageShape [2]int) *Detection {
	return &Detection{
		Boxes:      [][4]float32{},
		Scores:     []float32{},
		Labels:     []int{},
		Format:     FormatXYXY,
		ImageShape: imageShape,
	}
}

// Len reports the number of detected objects.
func (d *Detection) Len() int {
	return len(d.Boxes)
}
