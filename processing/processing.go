// Package processing - reversible image transforms pairing a preprocess
// operation with the postprocess operation that maps predictions back into
// original-image coordinates.
package processing

import (
	"github.com/pkg/errors"

	"github.com/vision-ml/go-predict/images"
	"github.com/vision-ml/go-predict/predictions"
)

// Metadata is the opaque per-image value a step produces during preprocessing
// and requires, unmodified, to invert the transform during postprocessing.
type Metadata any

// Processing is a single reversible transform. Preprocess must produce
// model-ready data; Postprocess must remap a prediction of the same image
// using the metadata recorded by the matching Preprocess call.
type Processing interface {
	Preprocess(img *images.Raster) (*images.Raster, Metadata, error)
	Postprocess(pred predictions.Prediction, meta Metadata) (predictions.Prediction, error)
}

// Compose chains an ordered list of steps: preprocessing applies them first
// to last, postprocessing inverts them last to first. Metadata is threaded
// as a list, one entry per step.
type Compose struct {
	steps []Processing
}

// NewCompose builds a composed step from an ordered list.
//
// Arguments:
//   - steps: The steps in preprocessing order.
//
// Returns:
//   - *Compose: The composed step.
//   - error: If the list is empty or contains a nil step.
func NewCompose(steps ...Processing) (*Compose, error) {
	if len(steps) == 0 {
		return nil, errors.New("compose requires at least one processing step")
	}
	for i, s := range steps {
		if s == nil {
			return nil, errors.Errorf("processing step %d is nil", i)
		}
	}
	return &Compose{steps: steps}, nil
}

// Preprocess applies every step in order, collecting each step's metadata.
func (c *Compose) Preprocess(img *images.Raster) (*images.Raster, Metadata, error) {
	metas := make([]Metadata, 0, len(c.steps))
	out := img
	for i, step := range c.steps {
		var (
			meta Metadata
			err  error
		)
		out, meta, err = step.Preprocess(out)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "preprocess step %d", i)
		}
		metas = append(metas, meta)
	}
	return out, metas, nil
}

// Postprocess inverts every step in reverse order, consuming the metadata
// list produced by Preprocess.
func (c *Compose) Postprocess(pred predictions.Prediction, meta Metadata) (predictions.Prediction, error) {
	metas, ok := meta.([]Metadata)
	if !ok {
		return nil, errors.Errorf("compose metadata has type %T, expected []Metadata", meta)
	}
	if len(metas) != len(c.steps) {
		return nil, errors.Errorf("compose metadata has %d entries for %d steps", len(metas), len(c.steps))
	}
	out := pred
	for i := len(c.steps) - 1; i >= 0; i-- {
		var err error
		out, err = c.steps[i].Postprocess(out, metas[i])
		if err != nil {
			return nil, errors.Wrapf(err, "postprocess step %d", i)
		}
	}
	return out, nil
}
