package pipelines

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vision-ml/go-predict/images"
	"github.com/vision-ml/go-predict/postprocess"
	"github.com/vision-ml/go-predict/processing"
)

type fakeVideoIO struct {
	frames  []*images.Raster
	fps     float64
	loadErr error
	saveErr error

	savedPath   string
	savedFrames []*images.Raster
	savedFPS    float64
}

func (v *fakeVideoIO) LoadVideo(path string) ([]*images.Raster, float64, error) {
	if v.loadErr != nil {
		return nil, 0, v.loadErr
	}
	return v.frames, v.fps, nil
}

func (v *fakeVideoIO) SaveVideo(path string, frames []*images.Raster, fps float64) error {
	if v.saveErr != nil {
		return v.saveErr
	}
	v.savedPath = path
	v.savedFrames = frames
	v.savedFPS = fps
	return nil
}

func videoFrames(n, height, width int) []*images.Raster {
	frames := make([]*images.Raster, n)
	for i := range frames {
		frames[i] = images.NewRaster(height, width, 3, images.LayoutHWC)
	}
	return frames
}

func newVideoPipeline(t *testing.T, io *fakeVideoIO) *DetectionPipeline {
	t.Helper()
	decoder := &fakeDecoder{perImage: func(i int) []postprocess.Candidate {
		return []postprocess.Candidate{{X1: 1, Y1: 1, X2: 4, Y2: 4, Score: 0.9, Class: 0}}
	}}
	pipe, err := NewDetection([]string{"person"}, decoder, Config{
		Model: newFakeModel(),
		Steps: []processing.Processing{&fakeStep{size: 8}},
		Video: io,
	})
	require.NoError(t, err)
	return pipe
}

func TestPredictVideo(t *testing.T) {
	io := &fakeVideoIO{frames: videoFrames(5, 16, 16), fps: 24}
	pipe := newVideoPipeline(t, io)

	require.NoError(t, pipe.PredictVideo("clips/walk.mp4", "out/annotated.mp4", 2))

	assert.Equal(t, "out/annotated.mp4", io.savedPath)
	assert.Equal(t, 24.0, io.savedFPS, "output preserves the source frame rate")
	require.Len(t, io.savedFrames, 5, "one rendered frame per source frame")
	for i, frame := range io.savedFrames {
		assert.Equal(t, 16, frame.Height, "frame %d keeps the source height", i)
		assert.Equal(t, 16, frame.Width, "frame %d keeps the source width", i)
	}
}

func TestPredictVideoDerivedOutputPath(t *testing.T) {
	io := &fakeVideoIO{frames: videoFrames(1, 8, 8), fps: 30}
	pipe := newVideoPipeline(t, io)

	require.NoError(t, pipe.PredictVideo("clips/walk.mp4", "", 1))
	assert.Equal(t, "clips/walk_predictions.mp4", io.savedPath)
}

func TestPredictVideoLoadFailure(t *testing.T) {
	io := &fakeVideoIO{loadErr: errors.New("no such file")}
	pipe := newVideoPipeline(t, io)

	err := pipe.PredictVideo("missing.mp4", "", 2)
	assert.ErrorContains(t, err, "no such file")
	assert.Empty(t, io.savedPath, "nothing written on load failure")
}

func TestPredictVideoSaveFailure(t *testing.T) {
	io := &fakeVideoIO{frames: videoFrames(2, 8, 8), fps: 30, saveErr: errors.New("codec unavailable")}
	pipe := newVideoPipeline(t, io)

	assert.ErrorContains(t, pipe.PredictVideo("clips/walk.mp4", "", 2), "codec unavailable")
}

func TestDerivedOutputPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"clips/walk.mp4", "clips/walk_predictions.mp4"},
		{"walk.avi", "walk_predictions.avi"},
		{"/data/videos/cam0.mkv", "/data/videos/cam0_predictions.mkv"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, derivedOutputPath(tc.in))
	}
}
