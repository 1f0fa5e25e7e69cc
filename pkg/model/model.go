package model

import (
	"HandwritingRecognizer/pkg/ctc"
	"HandwritingRecognizer/pkg/preprocess"
	"context"
	"errors"
	"fmt"
)

var ErrUnavailable = errors.New("recognition model unavailable")

// IModel is the inference collaborator. It receives one normalized image, sends it to
// the network with a batch of one, and returns the per-timestep scores of that item.
// Implementations must be safe for concurrent use.
type IModel interface {
	Infer(ctx context.Context, tensor *preprocess.Tensor) (ctc.Matrix, error)
	Close() error
}

type Backend string

const (
	BackendONNX      Backend = "onnx"
	BackendTFServing Backend = "tfserving"
	BackendWebsocket Backend = "websocket"
)

// Func adapts a plain function to IModel.
type Func func(ctx context.Context, tensor *preprocess.Tensor) (ctc.Matrix, error)

func (f Func) Infer(ctx context.Context, tensor *preprocess.Tensor) (ctc.Matrix, error) {
	return f(ctx, tensor)
}

func (f Func) Close() error {
	return nil
}

// Unbatch strips the leading batch axis of a (1, T, C) output.
func Unbatch(data []float32, shape []int64) (ctc.Matrix, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("%w: model output shape %v, want (1, T, C)", ctc.ErrInvalidInput, shape)
	}
	return ctc.NewMatrix(data, int(shape[1]), int(shape[2]))
}
