// Package results - containers pairing original images with their
// postprocessed predictions for inspection and rendering.
package results

import (
	"github.com/pkg/errors"

	"github.com/vision-ml/go-predict/images"
	"github.com/vision-ml/go-predict/predictions"
)

// Result is one image with its prediction. Draw renders the prediction onto
// a copy of the image, producing a frame suitable for display or video
// encoding.
type Result interface {
	Draw() (*images.Raster, error)
}

// Results is an ordered collection of per-image results, ordered identically
// to the input batch that produced it.
type Results interface {
	// All returns the per-image results in batch order.
	All() []Result
	// Len reports the number of results.
	Len() int
}

// DetectionResult pairs an image with its detected objects and the class-name
// table used to render labels.
type DetectionResult struct {
	// Image is the original (unpreprocessed) raster.
	Image *images.Raster
	// Prediction holds boxes in original-image coordinates.
	Prediction *predictions.Detection
	// ClassNames maps label ids to display names. May be nil.
	ClassNames []string
}

// Draw renders the detection boxes and class labels onto a copy of the image.
func (r *DetectionResult) Draw() (*images.Raster, error) {
	annotations := make([]images.Annotation, r.Prediction.Len())
	for i, box := range r.Prediction.Boxes {
		label := ""
		if id := r.Prediction.Labels[i]; id >= 0 && id < len(r.ClassNames) {
			label = r.ClassNames[id]
		}
		annotations[i] = images.Annotation{
			Box:   images.Box{X1: box[0], Y1: box[1], X2: box[2], Y2: box[3]},
			Label: label,
			Score: r.Prediction.Scores[i],
		}
	}
	return images.DrawAnnotations(r.Image, annotations)
}

// DetectionResults is the detection task's Results container.
type DetectionResults struct {
	Results []*DetectionResult
}

// NewDetectionResults pairs images with their detections in batch order.
//
// Arguments:
//   - imgs: Original images.
//   - preds: Postprocessed detections, parallel to imgs.
//   - classNames: Label id to display name table.
//
// Returns:
//   - *DetectionResults: The ordered container.
//   - error: If the slices are not parallel.
func NewDetectionResults(imgs []*images.Raster, preds []*predictions.Detection, classNames []string) (*DetectionResults, error) {
	if len(imgs) != len(preds) {
		return nil, errors.Errorf("%d images for %d predictions", len(imgs), len(preds))
	}
	items := make([]*DetectionResult, len(imgs))
	for i := range imgs {
		if preds[i] == nil {
			return nil, errors.Errorf("prediction %d is nil", i)
		}
		items[i] = &DetectionResult{
			Image:      imgs[i],
			Prediction: preds[i],
			ClassNames: classNames,
		}
	}
	return &DetectionResults{Results: items}, nil
}

// All returns the per-image results in batch order.
func (r *DetectionResults) All() []Result {
	out := make([]Result, len(r.Results))
	for i, item := range r.Results {
		out[i] = item
	}
	return out
}

// Len reports the number of results.
func (r *DetectionResults) Len() int {
	return len(r.Results)
}
