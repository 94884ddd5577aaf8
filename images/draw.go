package images

import (
	"fmt"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

// Box is an axis-aligned corner-corner rectangle in pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Annotation pairs a box with the text drawn above it.
type Annotation struct {
	Box   Box
	Label string
	Score float32
}

// DrawAnnotations renders boxes and labels onto a copy of the raster.
// The input raster is not modified.
//
// Arguments:
//   - r: The HWC raster to draw on.
//   - annotations: Boxes with their display labels.
//
// Returns:
//   - *Raster: A new raster with the annotations burned in.
//   - error: If the raster cannot be rendered.
func DrawAnnotations(r *Raster, annotations []Annotation) (*Raster, error) {
	img, err := r.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "rendering raster for drawing")
	}

	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(2)
	for _, a := range annotations {
		x := float64(a.Box.X1)
		y := float64(a.Box.Y1)
		w := float64(a.Box.X2 - a.Box.X1)
		h := float64(a.Box.Y2 - a.Box.Y1)

		dc.SetRGB(1, 0, 0)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()

		if a.Label != "" {
			text := fmt.Sprintf("%s %.2f", a.Label, a.Score)
			dc.SetRGB(1, 1, 1)
			dc.DrawString(text, x+2, y-4)
		}
	}

	return FromImage(dc.Image()), nil
}
