package processing

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/vision-ml/go-predict/images"
	"github.com/vision-ml/go-predict/predictions"
)

// DetectionLetterbox resizes an image to fit the target size while keeping
// its aspect ratio, centering it on a padded canvas. Its postprocess
// operation shifts and rescales detection boxes back onto the original image.
type DetectionLetterbox struct {
	// TargetHeight of the model input in pixels.
	TargetHeight int
	// TargetWidth of the model input in pixels.
	TargetWidth int
	// PadColor fills the letterbox margins. Defaults to black.
	PadColor color.Color
}

type letterboxMeta struct {
	scale          float32
	padLeft        int
	padTop         int
	originalHeight int
	originalWidth  int
}

// Preprocess letterboxes the raster to TargetHeight x TargetWidth, recording
// the scale factor, padding offsets and original size needed to invert the
// transform.
func (l *DetectionLetterbox) Preprocess(img *images.Raster) (*images.Raster, Metadata, error) {
	if l.TargetHeight <= 0 || l.TargetWidth <= 0 {
		return nil, nil, errors.Errorf("invalid letterbox target: %dx%d", l.TargetHeight, l.TargetWidth)
	}
	src, err := img.ToImage()
	if err != nil {
		return nil, nil, errors.Wrap(err, "letterbox input")
	}

	scale := math.Min(
		float64(l.TargetWidth)/float64(img.Width),
		float64(l.TargetHeight)/float64(img.Height),
	)
	newWidth := int(float64(img.Width) * scale)
	newHeight := int(float64(img.Height) * scale)

	resized := resize.Resize(uint(newWidth), uint(newHeight), src, resize.Lanczos3)

	padLeft := (l.TargetWidth - newWidth) / 2
	padTop := (l.TargetHeight - newHeight) / 2

	padColor := l.PadColor
	if padColor == nil {
		padColor = color.Black
	}
	canvas := image.NewRGBA(image.Rect(0, 0, l.TargetWidth, l.TargetHeight))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{padColor}, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(padLeft, padTop, padLeft+newWidth, padTop+newHeight),
		resized, image.Point{}, draw.Over)

	meta := letterboxMeta{
		scale:          float32(scale),
		padLeft:        padLeft,
		padTop:         padTop,
		originalHeight: img.Height,
		originalWidth:  img.Width,
	}
	return images.FromImage(canvas), meta, nil
}

// Postprocess maps detection boxes from letterboxed coordinates back onto the
// original image: remove the padding offset, divide by the scale factor and
// clamp to the original bounds.
func (l *DetectionLetterbox) Postprocess(pred predictions.Prediction, meta Metadata) (predictions.Prediction, error) {
	det, ok := pred.(*predictions.Detection)
	if !ok {
		return nil, errors.Errorf("letterbox postprocess got %T, expected *predictions.Detection", pred)
	}
	m, ok := meta.(letterboxMeta)
	if !ok {
		return nil, errors.Errorf("letterbox metadata has type %T", meta)
	}

	boxes := make([][4]float32, len(det.Boxes))
	for i, b := range det.Boxes {
		x1 := (b[0] - float32(m.padLeft)) / m.scale
		y1 := (b[1] - float32(m.padTop)) / m.scale
		x2 := (b[2] - float32(m.padLeft)) / m.scale
		y2 := (b[3] - float32(m.padTop)) / m.scale
		boxes[i] = [4]float32{
			clamp(x1, 0, float32(m.originalWidth)),
			clamp(y1, 0, float32(m.originalHeight)),
			clamp(x2, 0, float32(m.originalWidth)),
			clamp(y2, 0, float32(m.originalHeight)),
		}
	}

	scores := make([]float32, len(det.Scores))
	copy(scores, det.Scores)
	labels := make([]int, len(det.Labels))
	copy(labels, det.Labels)

	return predictions.NewDetection(boxes, scores, labels, [2]int{m.originalHeight, m.originalWidth})
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
