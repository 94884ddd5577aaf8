package pipelines

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/vision-ml/go-predict/images"
)

// PredictVideo runs the pipeline over every frame of a video file and writes
// a new video with the predictions drawn in, preserving the input frame rate.
// Frames are processed in chunks of batchSize but the rendered output is
// materialized in memory before writing, so very long videos are bounded by
// available memory rather than by the batch size.
//
// Arguments:
//   - videoPath: Path to the input video.
//   - outputPath: Destination path. Empty derives a path beside the input.
//   - batchSize: Number of frames per inference batch.
//
// Returns:
//   - error: Load, inference, rendering or write failure.
func (p *Pipeline) PredictVideo(videoPath, outputPath string, batchSize int) error {
	frames, fps, err := p.video.LoadVideo(videoPath)
	if err != nil {
		return errors.Wrapf(err, "loading video %s", videoPath)
	}

	rendered := make([]*images.Raster, 0, len(frames))
	for result, predictErr := range p.BatchPredict(slices.Values(frames), batchSize) {
		if predictErr != nil {
			return predictErr
		}
		frame, drawErr := result.Draw()
		if drawErr != nil {
			return errors.Wrapf(drawErr, "rendering frame %d", len(rendered))
		}
		rendered = append(rendered, frame)
	}

	if outputPath == "" {
		outputPath = derivedOutputPath(videoPath)
	}
	if err := p.video.SaveVideo(outputPath, rendered, fps); err != nil {
		return errors.Wrapf(err, "saving video %s", outputPath)
	}

	p.logger.Info("saved video with predictions",
		slog.String("path", outputPath),
		slog.Int("frames", len(rendered)),
		slog.Float64("fps", fps),
	)
	return nil
}

func derivedOutputPath(videoPath string) string {
	dir, filename := filepath.Split(videoPath)
	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_predictions%s", name, ext))
}
