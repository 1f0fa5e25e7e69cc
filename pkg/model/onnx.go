package model

import (
	"HandwritingRecognizer/pkg/ctc"
	"HandwritingRecognizer/pkg/preprocess"
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	Width       int
	Height      int
	PoolSize    int
}

type onnxSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

type onnxModel struct {
	pool        chan *onnxSession
	sessions    []*onnxSession
	outputShape []int64
	log         *logrus.Logger
	closeOnce   sync.Once
}

var envOnce sync.Once
var envErr error

func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// NewONNX loads the model once per pool slot. Every slot owns its input and output
// tensors, so a slot serves one request at a time.
func NewONNX(cfg ONNXConfig, log *logrus.Logger) (IModel, error) {
	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", cfg.ModelPath, err)
	}

	inputInfo, err := pickInfo(inputs, cfg.InputName)
	if err != nil {
		return nil, fmt.Errorf("model input: %w", err)
	}
	outputInfo, err := pickInfo(outputs, cfg.OutputName)
	if err != nil {
		return nil, fmt.Errorf("model output: %w", err)
	}

	inputShape := []int64{1, int64(cfg.Width), int64(cfg.Height), 1}
	if err := checkInputShape(inputInfo.Dimensions, inputShape); err != nil {
		return nil, err
	}

	outputShape, err := resolveOutputShape(outputInfo.Dimensions)
	if err != nil {
		return nil, err
	}

	poolSize := cfg.PoolSize
	if poolSize < 1 {
		poolSize = 1
	}

	m := &onnxModel{
		pool:        make(chan *onnxSession, poolSize),
		outputShape: outputShape,
		log:         log,
	}

	for i := 0; i < poolSize; i++ {
		s, err := newONNXSession(cfg.ModelPath, inputInfo.Name, outputInfo.Name, inputShape, outputShape)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("create session %d: %w", i, err)
		}
		m.sessions = append(m.sessions, s)
		m.pool <- s
	}

	log.WithFields(logrus.Fields{
		"model":        cfg.ModelPath,
		"input":        inputInfo.Name,
		"output":       outputInfo.Name,
		"output_shape": outputShape,
		"pool_size":    poolSize,
	}).Info("ONNX model loaded")

	return m, nil
}

func newONNXSession(modelPath, inputName, outputName string, inputShape, outputShape []int64) (*onnxSession, error) {
	input, err := ort.NewTensor(ort.NewShape(inputShape...), make([]float32, shapeSize(inputShape)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	return &onnxSession{session: session, input: input, output: output}, nil
}

func (m *onnxModel) Infer(ctx context.Context, tensor *preprocess.Tensor) (ctc.Matrix, error) {
	var s *onnxSession
	select {
	case s = <-m.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { m.pool <- s }()

	in := s.input.GetData()
	if len(in) != len(tensor.Data) {
		return nil, fmt.Errorf("%w: tensor has %d values, model expects %d", ctc.ErrInvalidInput, len(tensor.Data), len(in))
	}
	copy(in, tensor.Data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("run onnx session: %w", err)
	}

	out := s.output.GetData()
	data := make([]float32, len(out))
	copy(data, out)

	return Unbatch(data, m.outputShape)
}

func (m *onnxModel) Close() error {
	m.closeOnce.Do(func() {
		for _, s := range m.sessions {
			if s.session != nil {
				s.session.Destroy()
			}
			s.input.Destroy()
			s.output.Destroy()
		}
		m.sessions = nil
	})
	return nil
}

func pickInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("model declares none")
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("no tensor named %q", name)
}

// checkInputShape accepts a dynamic (-1) batch axis and rejects any other disagreement.
func checkInputShape(declared ort.Shape, want []int64) error {
	if len(declared) != len(want) {
		return fmt.Errorf("model input has rank %d, want %d", len(declared), len(want))
	}
	for i, d := range declared {
		if d < 0 {
			continue
		}
		if d != want[i] {
			return fmt.Errorf("model input shape %v does not accept %v", declared, want)
		}
	}
	return nil
}

func resolveOutputShape(declared ort.Shape) ([]int64, error) {
	if len(declared) != 3 {
		return nil, fmt.Errorf("model output has rank %d, want 3", len(declared))
	}
	shape := []int64{1, declared[1], declared[2]}
	if shape[1] <= 0 || shape[2] <= 0 {
		return nil, fmt.Errorf("model output shape %v must have fixed timesteps and classes", declared)
	}
	return shape, nil
}

func shapeSize(shape []int64) int {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return int(n)
}
