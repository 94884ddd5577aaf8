// Package video - video frame loading and writing backed by OpenCV.
package video

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/vision-ml/go-predict/images"
)

// Codec is the FourCC used when writing video files.
const Codec = "avc1"

// GoCV reads and writes video files through gocv. It implements the
// pipeline's VideoIO collaborator.
//
// Note: gocv writes uncompressed-ish frames through OpenCV's encoder; output
// files can be large. The writer is meant for inspection output, not
// production transcoding.
type GoCV struct{}

// LoadVideo decodes every frame of a video file into RGB rasters.
//
// Arguments:
//   - path: Path to the video file.
//
// Returns:
//   - []*images.Raster: The frames in display order.
//   - float64: The source frame rate.
//   - error: Open or decode failure.
func (GoCV) LoadVideo(path string) ([]*images.Raster, float64, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "opening video %s", path)
	}
	defer capture.Close()

	fps := capture.Get(gocv.VideoCaptureFPS)

	var frames []*images.Raster
	mat := gocv.NewMat()
	defer mat.Close()
	for capture.Read(&mat) {
		if mat.Empty() {
			continue
		}
		img, convErr := mat.ToImage()
		if convErr != nil {
			return nil, 0, errors.Wrapf(convErr, "decoding frame %d", len(frames))
		}
		frames = append(frames, images.FromImage(img))
	}
	if len(frames) == 0 {
		return nil, 0, errors.Errorf("video %s contains no frames", path)
	}
	return frames, fps, nil
}

// SaveVideo encodes rasters into a video file at the given frame rate.
//
// Arguments:
//   - path: Destination file path.
//   - frames: Frames in display order. All frames must share one size.
//   - fps: Frame rate to encode with.
//
// Returns:
//   - error: Encode or write failure.
func (GoCV) SaveVideo(path string, frames []*images.Raster, fps float64) error {
	if len(frames) == 0 {
		return errors.New("no frames to save")
	}

	first := frames[0]
	writer, err := gocv.VideoWriterFile(path, Codec, fps, first.Width, first.Height, true)
	if err != nil {
		return errors.Wrapf(err, "opening video writer %s", path)
	}
	defer writer.Close()

	for i, frame := range frames {
		img, convErr := frame.ToImage()
		if convErr != nil {
			return errors.Wrapf(convErr, "rendering frame %d", i)
		}
		mat, matErr := gocv.ImageToMatRGB(img)
		if matErr != nil {
			return errors.Wrapf(matErr, "converting frame %d", i)
		}
		writeErr := writer.Write(mat)
		mat.Close()
		if writeErr != nil {
			return errors.Wrapf(writeErr, "writing frame %d", i)
		}
	}
	return nil
}
