// Package pipelines - the four-stage inference pipeline: load, preprocess,
// predict, postprocess. A Pipeline composes a model, a processing chain and a
// task's decode/result hooks into single-call, lazy-batch and video entry
// points.
//
// A Pipeline instance mutates its model's execution mode and device while a
// prediction is in flight, so it supports one in-flight prediction at a time;
// concurrent calls require external synchronization.
package pipelines

import (
	"iter"
	"log/slog"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/vision-ml/go-predict/images"
	"github.com/vision-ml/go-predict/models"
	"github.com/vision-ml/go-predict/predictions"
	"github.com/vision-ml/go-predict/processing"
	"github.com/vision-ml/go-predict/results"
	"github.com/vision-ml/go-predict/video"
)

// Task supplies the two task-specific operations a Pipeline cannot provide
// itself: decoding raw model output into typed per-image predictions, and
// building the task's result container.
type Task interface {
	// DecodeOutput converts raw model output into one prediction per batch
	// image, in batch order and in model-input coordinates.
	DecodeOutput(outputs []*tensor.Dense, input *tensor.Dense) ([]predictions.Prediction, error)
	// NewResults pairs the original images with their postprocessed
	// predictions.
	NewResults(imgs []*images.Raster, preds []predictions.Prediction) (results.Results, error)
}

// VideoIO loads video frames and writes rendered frame sequences. The
// default implementation is video.GoCV.
type VideoIO interface {
	LoadVideo(path string) ([]*images.Raster, float64, error)
	SaveVideo(path string, frames []*images.Raster, fps float64) error
}

// Config carries the collaborators shared by every pipeline variant.
type Config struct {
	// Model used for making predictions.
	Model models.Model
	// Steps is the ordered preprocessing chain. A single step is used as-is,
	// multiple steps are composed.
	Steps []processing.Processing
	// Device the model runs on. Defaults to models.DeviceCPU.
	Device string
	// Logger for pipeline progress. Defaults to slog.Default().
	Logger *slog.Logger
	// Video supplies frame loading and writing. Defaults to video.GoCV.
	Video VideoIO
}

// Pipeline orchestrates preprocess, predict and postprocess for image
// batches. Concrete variants embed it and provide the Task hooks.
type Pipeline struct {
	model     models.Model
	processor processing.Processing
	device    string
	task      Task
	logger    *slog.Logger
	video     VideoIO
}

func newPipeline(task Task, config Config) (*Pipeline, error) {
	if task == nil {
		return nil, errors.New("pipeline requires a task")
	}
	if config.Model == nil {
		return nil, errors.New("pipeline requires a model")
	}
	if len(config.Steps) == 0 {
		return nil, errors.New("pipeline requires at least one processing step")
	}

	processor := config.Steps[0]
	if len(config.Steps) > 1 {
		composed, err := processing.NewCompose(config.Steps...)
		if err != nil {
			return nil, errors.Wrap(err, "composing processing steps")
		}
		processor = composed
	} else if processor == nil {
		return nil, errors.New("processing step is nil")
	}

	device := config.Device
	if device == "" {
		device = models.DeviceCPU
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	videoIO := config.Video
	if videoIO == nil {
		videoIO = video.GoCV{}
	}

	return &Pipeline{
		model:     config.Model,
		processor: processor,
		device:    device,
		task:      task,
		logger:    logger,
		video:     videoIO,
	}, nil
}

// evalGuard forces the model into evaluation mode and returns the restore
// function for the previously active mode. The caller defers the restore so
// it runs on every exit path, including panics.
func evalGuard(m models.Model) (restore func()) {
	prior := m.Mode()
	m.SetMode(models.ModeEval)
	return func() { m.SetMode(prior) }
}

// Predict runs the pipeline on a batch of raw images and returns one result
// per image, ordered like the input. Any per-image failure aborts the whole
// batch; no partial results are returned.
//
// Arguments:
//   - imgs: Raw images in HWC layout. Cloned before any mutation.
//
// Returns:
//   - results.Results: One result per input image, in input order.
//   - error: The first stage failure, annotated with the failing image index.
func (p *Pipeline) Predict(imgs []*images.Raster) (results.Results, error) {
	if len(imgs) == 0 {
		return nil, errors.New("empty image batch")
	}

	// The model may have been relocated since construction.
	if err := p.model.To(p.device); err != nil {
		return nil, errors.Wrapf(err, "moving model to %s", p.device)
	}

	preprocessed := make([]*images.Raster, 0, len(imgs))
	metadatas := make([]processing.Metadata, 0, len(imgs))
	for i, img := range imgs {
		prep, meta, err := p.processor.Preprocess(img.Clone())
		if err != nil {
			return nil, errors.Wrapf(err, "preprocessing image %d", i)
		}
		preprocessed = append(preprocessed, prep)
		metadatas = append(metadatas, meta)
	}

	batch, err := stack(preprocessed)
	if err != nil {
		return nil, errors.Wrap(err, "stacking batch tensor")
	}

	var decoded []predictions.Prediction
	err = func() error {
		defer evalGuard(p.model)()

		outputs, forwardErr := p.model.Forward(batch)
		if forwardErr != nil {
			return errors.Wrap(forwardErr, "model forward")
		}
		var decodeErr error
		decoded, decodeErr = p.task.DecodeOutput(outputs, batch)
		if decodeErr != nil {
			return errors.Wrap(decodeErr, "decoding model output")
		}
		if len(decoded) != len(imgs) {
			return errors.Errorf("decoded %d predictions for %d images", len(decoded), len(imgs))
		}
		return nil
	}()
	if err != nil {
		return nil, err
	}

	postprocessed := make([]predictions.Prediction, len(decoded))
	for i := range decoded {
		pred, postErr := p.processor.Postprocess(decoded[i], metadatas[i])
		if postErr != nil {
			return nil, errors.Wrapf(postErr, "postprocessing image %d", i)
		}
		postprocessed[i] = pred
	}

	return p.task.NewResults(imgs, postprocessed)
}

// Run loads heterogeneous image sources (paths, URLs, bytes, decoded images,
// rasters) and delegates to Predict.
func (p *Pipeline) Run(sources ...images.Source) (results.Results, error) {
	imgs, err := images.Load(sources...)
	if err != nil {
		return nil, errors.Wrap(err, "loading images")
	}
	return p.Predict(imgs)
}

// BatchPredict consumes a possibly unbounded image sequence lazily in chunks
// of batchSize (the final chunk may be smaller), running Predict once per
// chunk and yielding individual results in global input order. The caller's
// pull rate controls when the next chunk is preprocessed, bounding memory to
// one chunk of images plus one chunk of results.
//
// A chunk failure is yielded as a non-nil error at the point that chunk is
// pulled and terminates the sequence; results already yielded stand.
func (p *Pipeline) BatchPredict(imgs iter.Seq[*images.Raster], batchSize int) iter.Seq2[results.Result, error] {
	return func(yield func(results.Result, error) bool) {
		if batchSize <= 0 {
			yield(nil, errors.Errorf("batch size must be positive, got %d", batchSize))
			return
		}

		chunk := make([]*images.Raster, 0, batchSize)
		flush := func() bool {
			if len(chunk) == 0 {
				return true
			}
			res, err := p.Predict(chunk)
			chunk = chunk[:0]
			if err != nil {
				yield(nil, err)
				return false
			}
			for _, r := range res.All() {
				if !yield(r, nil) {
					return false
				}
			}
			return true
		}

		for img := range imgs {
			chunk = append(chunk, img)
			if len(chunk) == batchSize && !flush() {
				return
			}
		}
		flush()
	}
}

// stack concatenates model-ready CHW images into one NCHW batch tensor.
// Uniform spatial dimensions are the processing chain's contract; stacking
// only verifies what it needs to lay out the tensor.
func stack(imgs []*images.Raster) (*tensor.Dense, error) {
	first := imgs[0]
	if first.Layout != images.LayoutCHW {
		return nil, errors.Errorf("model-ready images must be CHW, got %s", first.Layout)
	}

	backing := make([]float32, 0, len(first.Data)*len(imgs))
	for i, img := range imgs {
		if img.Layout != first.Layout || img.Height != first.Height ||
			img.Width != first.Width || img.Channels != first.Channels {
			return nil, errors.Errorf(
				"preprocessed image %d is %dx%dx%d (%s), batch requires %dx%dx%d (%s)",
				i, img.Height, img.Width, img.Channels, img.Layout,
				first.Height, first.Width, first.Channels, first.Layout)
		}
		backing = append(backing, img.Data...)
	}

	return tensor.New(
		tensor.WithShape(len(imgs), first.Channels, first.Height, first.Width),
		tensor.WithBacking(backing),
	), nil
}
