package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// YOLODecoder decodes YOLO-family raw output of shape
// [batch, rows, 5+classes], where each row is cx, cy, w, h, objectness
// followed by per-class scores, with coordinates in model-input pixels.
// Rows are filtered by objectness * best-class score, converted to
// corner-corner form and deduplicated with NMS.
type YOLODecoder struct {
	// ConfidenceThreshold drops rows whose combined score falls below it.
	ConfidenceThreshold float32
	// NMS parameters applied per image after thresholding.
	NMS NMSConfig
	// NumClasses is the number of per-class scores in each row.
	NumClasses int
}

// Decode implements Decoder. Images with no surviving candidates are
// reported as nil entries.
func (d *YOLODecoder) Decode(outputs []*tensor.Dense) ([][]Candidate, error) {
	if len(outputs) == 0 {
		return nil, errors.New("decoder received no output tensors")
	}
	if d.NumClasses <= 0 {
		return nil, errors.Errorf("decoder configured with %d classes", d.NumClasses)
	}

	out := outputs[0]
	shape := out.Shape()
	if len(shape) != 3 {
		return nil, errors.Errorf("yolo output has shape %v, expected [batch, rows, cols]", shape)
	}
	batch, rows, cols := shape[0], shape[1], shape[2]
	if cols != 5+d.NumClasses {
		return nil, errors.Errorf("yolo output has %d columns for %d classes", cols, d.NumClasses)
	}
	data, ok := out.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("yolo output backed by %T, expected []float32", out.Data())
	}

	decoded := make([][]Candidate, batch)
	for b := 0; b < batch; b++ {
		var candidates []Candidate
		base := b * rows * cols
		for r := 0; r < rows; r++ {
			row := data[base+r*cols : base+(r+1)*cols]

			objectness := row[4]
			if objectness < d.ConfidenceThreshold {
				continue
			}

			classID := 0
			best := float32(0)
			for c := 0; c < d.NumClasses; c++ {
				if row[5+c] > best {
					best = row[5+c]
					classID = c
				}
			}
			score := objectness * best
			if score < d.ConfidenceThreshold {
				continue
			}

			cx, cy := row[0], row[1]
			w, h := row[2], row[3]
			candidates = append(candidates, Candidate{
				X1:    cx - w/2,
				Y1:    cy - h/2,
				X2:    cx + w/2,
				Y2:    cy + h/2,
				Score: math32.Min(score, 1),
				Class: classID,
			})
		}
		decoded[b] = NMS(candidates, d.NMS)
	}
	return decoded, nil
}
