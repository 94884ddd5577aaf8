// Package models - the model execution contract consumed by pipelines, with
// ONNX Runtime and Gorgonia backed implementations.
package models

import "gorgonia.org/tensor"

// Mode is the execution mode of a model. Pipelines force ModeEval for the
// duration of a prediction and restore the prior mode afterward.
type Mode string

const (
	// ModeTrain enables training-time layer behavior.
	ModeTrain Mode = "train"
	// ModeEval enables inference-time layer behavior.
	ModeEval Mode = "eval"
)

// Device labels for To. Backends decide which labels they honor.
const (
	DeviceCPU    = "cpu"
	DeviceCUDA   = "cuda"
	DeviceCoreML = "coreml"
)

// Model is a callable inference unit. Forward consumes one NCHW float32 batch
// tensor and returns the raw output tensors, detached from the backing
// runtime so postprocessing never touches runtime-owned memory.
//
// Implementations are not safe for concurrent Forward calls.
type Model interface {
	// Forward runs the model on a batch tensor.
	Forward(batch *tensor.Dense) ([]*tensor.Dense, error)
	// Mode reports the current execution mode.
	Mode() Mode
	// SetMode switches the execution mode.
	SetMode(Mode)
	// To relocates the model to the device with the given label. Idempotent.
	To(device string) error
}
