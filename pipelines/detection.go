package pipelines

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/vision-ml/go-predict/images"
	"github.com/vision-ml/go-predict/postprocess"
	"github.com/vision-ml/go-predict/predictions"
	"github.com/vision-ml/go-predict/results"
)

// DetectionPipeline runs object-detection models. Raw model output is decoded
// through a postprocess.Decoder (which owns confidence thresholding and NMS)
// into corner-corner box predictions; an image for which the decoder reports
// nothing always yields an explicit zero-object detection, never a nil entry.
type DetectionPipeline struct {
	*Pipeline
	classNames []string
	decoder    postprocess.Decoder
}

// NewDetection builds a detection pipeline.
//
// Arguments:
//   - classNames: Display names indexed by label id. Required.
//   - decoder: Converts raw output to per-image candidates. Required.
//   - config: Shared pipeline collaborators.
//
// Returns:
//   - *DetectionPipeline: The ready pipeline.
//   - error: If class names, the decoder or the base configuration are invalid.
func NewDetection(classNames []string, decoder postprocess.Decoder, config Config) (*DetectionPipeline, error) {
	if len(classNames) == 0 {
		return nil, errors.New("detection pipeline requires class names")
	}
	if decoder == nil {
		return nil, errors.New("detection pipeline requires a decoder")
	}

	d := &DetectionPipeline{
		classNames: classNames,
		decoder:    decoder,
	}
	base, err := newPipeline(d, config)
	if err != nil {
		return nil, err
	}
	d.Pipeline = base
	return d, nil
}

// DecodeOutput implements Task. Candidate coordinates refer to the model
// input tensor; remapping onto the original images happens later through the
// processing chain's postprocess.
func (d *DetectionPipeline) DecodeOutput(outputs []*tensor.Dense, input *tensor.Dense) ([]predictions.Prediction, error) {
	candidates, err := d.decoder.Decode(outputs)
	if err != nil {
		return nil, err
	}

	inputShape := input.Shape()
	if len(inputShape) != 4 {
		return nil, errors.Errorf("model input has shape %v, expected NCHW", inputShape)
	}
	imageShape := [2]int{inputShape[2], inputShape[3]}

	preds := make([]predictions.Prediction, len(candidates))
	for i, cands := range candidates {
		if cands == nil {
			// "No detections" must still be a well-formed zero-object value.
			preds[i] = predictions.EmptyDetection(imageShape)
			continue
		}

		boxes := make([][4]float32, len(cands))
		scores := make([]float32, len(cands))
		labels := make([]int, len(cands))
		for j, c := range cands {
			boxes[j] = [4]float32{c.X1, c.Y1, c.X2, c.Y2}
			scores[j] = c.Score
			labels[j] = c.Class
		}
		det, detErr := predictions.NewDetection(boxes, scores, labels, imageShape)
		if detErr != nil {
			return nil, errors.Wrapf(detErr, "image %d", i)
		}
		preds[i] = det
	}
	return preds, nil
}

// NewResults implements Task.
func (d *DetectionPipeline) NewResults(imgs []*images.Raster, preds []predictions.Prediction) (results.Results, error) {
	dets := make([]*predictions.Detection, len(preds))
	for i, pred := range preds {
		det, ok := pred.(*predictions.Detection)
		if !ok {
			return nil, errors.Errorf("prediction %d has type %T, expected *predictions.Detection", i, pred)
		}
		dets[i] = det
	}
	return results.NewDetectionResults(imgs, dets, d.classNames)
}
