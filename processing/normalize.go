package processing

import (
	"github.com/pkg/errors"

	"github.com/vision-ml/go-predict/images"
	"github.com/vision-ml/go-predict/predictions"
)

// Standardize rescales pixel intensities and optionally applies per-channel
// mean/std normalization. It changes no geometry, so its postprocess is the
// identity.
type Standardize struct {
	// Scale divides every intensity first (255 maps [0,255] to [0,1]).
	// Zero means no rescaling.
	Scale float32
	// Mean is subtracted per channel after rescaling. May be nil.
	Mean []float32
	// Std divides per channel after mean subtraction. May be nil.
	Std []float32
}

// Preprocess applies the normalization to a copy of the raster.
func (s *Standardize) Preprocess(img *images.Raster) (*images.Raster, Metadata, error) {
	if s.Mean != nil && len(s.Mean) != img.Channels {
		return nil, nil, errors.Errorf("standardize mean has %d entries for %d channels", len(s.Mean), img.Channels)
	}
	if s.Std != nil && len(s.Std) != img.Channels {
		return nil, nil, errors.Errorf("standardize std has %d entries for %d channels", len(s.Std), img.Channels)
	}

	out := img.Clone()
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			for c := 0; c < out.Channels; c++ {
				v := out.At(y, x, c)
				if s.Scale != 0 {
					v /= s.Scale
				}
				if s.Mean != nil {
					v -= s.Mean[c]
				}
				if s.Std != nil {
					v /= s.Std[c]
				}
				out.Set(y, x, c, v)
			}
		}
	}
	return out, nil, nil
}

// Postprocess is the identity: normalization does not move coordinates.
func (s *Standardize) Postprocess(pred predictions.Prediction, _ Metadata) (predictions.Prediction, error) {
	return pred, nil
}

// HWC2CHW permutes a raster from interleaved HWC layout into the planar CHW
// layout models consume. Identity postprocess.
type HWC2CHW struct{}

// Preprocess permutes the raster layout.
func (HWC2CHW) Preprocess(img *images.Raster) (*images.Raster, Metadata, error) {
	if img.Layout != images.LayoutHWC {
		return nil, nil, errors.Errorf("permute input has layout %s, expected %s", img.Layout, images.LayoutHWC)
	}
	out := images.NewRaster(img.Height, img.Width, img.Channels, images.LayoutCHW)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			for c := 0; c < img.Channels; c++ {
				out.Set(y, x, c, img.At(y, x, c))
			}
		}
	}
	return out, nil, nil
}

// Postprocess is the identity: the permute does not move coordinates.
func (HWC2CHW) Postprocess(pred predictions.Prediction, _ Metadata) (predictions.Prediction, error) {
	return pred, nil
}
