package models

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

var ortInit sync.Once

// ONNXConfig configures an ONNX Runtime backed model.
type ONNXConfig struct {
	// Path to the .onnx model file.
	Path string
	// Inputs are the model's input tensor names.
	Inputs []string
	// Outputs are the model's output tensor names.
	Outputs []string
	// OutputDims holds, per output, the dimensions of one image's output
	// (without the leading batch dimension). Forward prepends the batch size.
	OutputDims [][]int64
	// Device selects the execution provider. Defaults to DeviceCPU.
	Device string
}

// ONNX runs inference through an onnxruntime dynamic session. The session is
// created once; To only validates that the requested device matches the
// provider the session was built with, since onnxruntime binds providers at
// session creation.
type ONNX struct {
	config  ONNXConfig
	session *ort.DynamicAdvancedSession
	device  string
	mode    Mode
}

// NewONNX loads an ONNX model and creates its inference session.
//
// Arguments:
//   - config: Model path, tensor names, per-image output dimensions and device.
//
// Returns:
//   - *ONNX: The ready model.
//   - error: If the file is missing, the device is unknown or session creation fails.
func NewONNX(config ONNXConfig) (*ONNX, error) {
	if _, err := os.Stat(config.Path); err != nil {
		return nil, errors.Wrapf(err, "model file %s", config.Path)
	}
	if len(config.Inputs) == 0 || len(config.Outputs) == 0 {
		return nil, errors.New("onnx model requires input and output tensor names")
	}
	if len(config.OutputDims) != len(config.Outputs) {
		return nil, errors.Errorf("%d output dims for %d outputs", len(config.OutputDims), len(config.Outputs))
	}
	if config.Device == "" {
		config.Device = DeviceCPU
	}

	var initErr error
	ortInit.Do(func() {
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, errors.Wrap(initErr, "initializing onnxruntime environment")
	}

	options, err := sessionOptions(config.Device)
	if err != nil {
		return nil, err
	}
	if options != nil {
		defer options.Destroy()
	}

	session, err := ort.NewDynamicAdvancedSession(config.Path, config.Inputs, config.Outputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "creating session for %s", config.Path)
	}

	return &ONNX{
		config:  config,
		session: session,
		device:  config.Device,
		mode:    ModeEval,
	}, nil
}

func sessionOptions(device string) (*ort.SessionOptions, error) {
	switch device {
	case DeviceCPU:
		return nil, nil
	case DeviceCUDA:
		options, err := ort.NewSessionOptions()
		if err != nil {
			return nil, errors.Wrap(err, "creating session options")
		}
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "creating CUDA provider options")
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "enabling CUDA execution provider")
		}
		return options, nil
	case DeviceCoreML:
		options, err := ort.NewSessionOptions()
		if err != nil {
			return nil, errors.Wrap(err, "creating session options")
		}
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "enabling CoreML execution provider")
		}
		return options, nil
	default:
		return nil, errors.Errorf("unsupported device: %q", device)
	}
}

// Forward runs the session on one NCHW batch. Output tensors are copied into
// plain Go backing slices and the runtime-owned values destroyed before
// returning.
func (m *ONNX) Forward(batch *tensor.Dense) ([]*tensor.Dense, error) {
	if m.session == nil {
		return nil, errors.New("onnx session is closed")
	}
	data, ok := batch.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("batch tensor backed by %T, expected []float32", batch.Data())
	}
	shape := batch.Shape()
	if len(shape) != 4 {
		return nil, errors.Errorf("batch tensor has shape %v, expected NCHW", shape)
	}

	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	input, err := ort.NewTensor(ort.NewShape(dims...), data)
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	defer input.Destroy()

	batchSize := dims[0]
	outputs := make([]ort.ArbitraryTensor, len(m.config.Outputs))
	for i, perImage := range m.config.OutputDims {
		outDims := append([]int64{batchSize}, perImage...)
		outShape := ort.NewShape(outDims...)
		out, tensorErr := ort.NewEmptyTensor[float32](outShape)
		if tensorErr != nil {
			destroyAll(outputs[:i])
			return nil, errors.Wrapf(tensorErr, "creating output tensor %d", i)
		}
		outputs[i] = out
	}
	defer destroyAll(outputs)

	if err := m.session.Run([]ort.ArbitraryTensor{input}, outputs); err != nil {
		return nil, errors.Wrap(err, "running inference")
	}

	detached := make([]*tensor.Dense, len(outputs))
	for i, out := range outputs {
		t := out.(*ort.Tensor[float32])
		src := t.GetData()
		backing := make([]float32, len(src))
		copy(backing, src)

		outShape := make([]int, 0, len(m.config.OutputDims[i])+1)
		outShape = append(outShape, int(batchSize))
		for _, d := range m.config.OutputDims[i] {
			outShape = append(outShape, int(d))
		}
		detached[i] = tensor.New(tensor.WithShape(outShape...), tensor.WithBacking(backing))
	}
	return detached, nil
}

func destroyAll(tensors []ort.ArbitraryTensor) {
	for _, t := range tensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// Mode reports the tracked execution mode. ONNX graphs always execute
// inference behavior; the mode is honored as state so scoped eval switching
// restores correctly.
func (m *ONNX) Mode() Mode {
	return m.mode
}

// SetMode switches the tracked execution mode.
func (m *ONNX) SetMode(mode Mode) {
	m.mode = mode
}

// To validates a device relocation request. The execution provider is bound
// when the session is created, so only the configured device is accepted.
func (m *ONNX) To(device string) error {
	if device == m.device {
		return nil
	}
	return errors.Errorf("onnx session is bound to %q, cannot relocate to %q", m.device, device)
}

// Close releases the session. The model cannot run afterward.
func (m *ONNX) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	if err != nil {
		return errors.Wrap(err, "destroying session")
	}
	return nil
}
