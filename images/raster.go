// Package images - raster representation and loading of raw images for inference.
package images

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Layout identifies the memory ordering of a raster's channels.
type Layout string

const (
	// LayoutHWC is Height-Width-Channel ordering (decoded images).
	LayoutHWC Layout = "hwc"
	// LayoutCHW is Channel-Height-Width ordering (model inputs).
	LayoutCHW Layout = "chw"
)

// Raster is a dense pixel-intensity array. Loaders produce HWC rasters with
// values in [0, 255]; preprocessing steps may rescale values and permute the
// layout to CHW before batching.
type Raster struct {
	// Data holds Height*Width*Channels intensities in Layout order.
	Data []float32
	// Height of the raster in pixels.
	Height int
	// Width of the raster in pixels.
	Width int
	// Channels per pixel (3 for RGB, 1 for grayscale).
	Channels int
	// Layout of Data.
	Layout Layout
}

// NewRaster allocates a zeroed raster with the given geometry.
//
// Arguments:
//   - height: Raster height in pixels.
//   - width: Raster width in pixels.
//   - channels: Channels per pixel.
//   - layout: Memory ordering of the backing data.
//
// Returns:
//   - *Raster: The allocated raster.
func NewRaster(height, width, channels int, layout Layout) *Raster {
	return &Raster{
		Data:     make([]float32, height*width*channels),
		Height:   height,
		Width:    width,
		Channels: channels,
		Layout:   layout,
	}
}

// Clone returns a deep copy of the raster. The pipeline clones every input
// before preprocessing so caller-owned memory is never mutated.
func (r *Raster) Clone() *Raster {
	data := make([]float32, len(r.Data))
	copy(data, r.Data)
	return &Raster{
		Data:     data,
		Height:   r.Height,
		Width:    r.Width,
		Channels: r.Channels,
		Layout:   r.Layout,
	}
}

// At returns the intensity at (y, x, c) regardless of layout.
func (r *Raster) At(y, x, c int) float32 {
	return r.Data[r.index(y, x, c)]
}

// Set writes the intensity at (y, x, c) regardless of layout.
func (r *Raster) Set(y, x, c int, v float32) {
	r.Data[r.index(y, x, c)] = v
}

func (r *Raster) index(y, x, c int) int {
	if r.Layout == LayoutCHW {
		return c*r.Height*r.Width + y*r.Width + x
	}
	return (y*r.Width+x)*r.Channels + c
}

// Validate checks the raster geometry against its backing data.
//
// Returns:
//   - error: Describes the first inconsistency found, nil if none.
func (r *Raster) Validate() error {
	if r == nil {
		return errors.New("raster is nil")
	}
	if r.Height <= 0 || r.Width <= 0 || r.Channels <= 0 {
		return errors.Errorf("invalid raster dimensions: %dx%dx%d", r.Height, r.Width, r.Channels)
	}
	if want := r.Height * r.Width * r.Channels; len(r.Data) != want {
		return errors.Errorf("raster data length %d does not match %dx%dx%d", len(r.Data), r.Height, r.Width, r.Channels)
	}
	if r.Layout != LayoutHWC && r.Layout != LayoutCHW {
		return errors.Errorf("unknown raster layout: %q", r.Layout)
	}
	return nil
}

// FromImage converts a decoded image into an RGB HWC raster with intensities
// in [0, 255].
//
// Arguments:
//   - img: The decoded image.
//
// Returns:
//   - *Raster: The RGB raster.
func FromImage(img image.Image) *Raster {
	bounds := img.Bounds()
	r := NewRaster(bounds.Dy(), bounds.Dx(), 3, LayoutHWC)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			red, green, blue, _ := img.At(x, y).RGBA()
			r.Data[i] = float32(red >> 8)
			r.Data[i+1] = float32(green >> 8)
			r.Data[i+2] = float32(blue >> 8)
			i += 3
		}
	}
	return r
}

// ToImage converts an HWC raster back into an image.Image, clamping
// intensities to the displayable [0, 255] range. Single-channel rasters are
// expanded to gray RGB.
//
// Returns:
//   - image.Image: The rendered image.
//   - error: If the raster is not in HWC layout or has an unsupported channel count.
func (r *Raster) ToImage() (image.Image, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Layout != LayoutHWC {
		return nil, errors.Errorf("cannot render %s raster, expected %s", r.Layout, LayoutHWC)
	}
	if r.Channels != 1 && r.Channels != 3 {
		return nil, errors.Errorf("cannot render raster with %d channels", r.Channels)
	}

	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			var red, green, blue uint8
			if r.Channels == 1 {
				v := clampByte(r.At(y, x, 0))
				red, green, blue = v, v, v
			} else {
				red = clampByte(r.At(y, x, 0))
				green = clampByte(r.At(y, x, 1))
				blue = clampByte(r.At(y, x, 2))
			}
			img.SetRGBA(x, y, color.RGBA{R: red, G: green, B: blue, A: 255})
		}
	}
	return img, nil
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
