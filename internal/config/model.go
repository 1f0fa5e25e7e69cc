package config

import (
	"HandwritingRecognizer/pkg/model"
	"HandwritingRecognizer/pkg/s3"
	websocketPkg "HandwritingRecognizer/pkg/websocket"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// newModel builds the inference backend named by the settings. For the onnx backend a
// missing model file is fetched from the bucket first when MODEL_S3_KEY is set.
func newModel(settings *Settings, logger *logrus.Logger, store s3.ItfS3) (model.IModel, error) {
	switch settings.ModelBackend {
	case model.BackendONNX:
		if err := ensureModelFile(settings, logger, store); err != nil {
			return nil, err
		}
		return model.NewONNX(model.ONNXConfig{
			ModelPath:   settings.ModelPath,
			LibraryPath: settings.OnnxRuntimeLibPath,
			InputName:   settings.OnnxInputName,
			OutputName:  settings.OnnxOutputName,
			Width:       settings.ImageWidth,
			Height:      settings.ImageHeight,
			PoolSize:    settings.OnnxPoolSize,
		}, logger)

	case model.BackendTFServing:
		return model.NewTFServing(model.TFServingConfig{
			URL:       settings.TFServingURL,
			ModelName: settings.TFServingModelName,
			Signature: settings.TFServingSignature,
		}, &http.Client{Timeout: settings.RequestTimeout})

	case model.BackendWebsocket:
		return websocketPkg.NewModelClient(settings.ModelWSURL, logger), nil
	}

	return nil, fmt.Errorf("unknown model backend %q", settings.ModelBackend)
}

func ensureModelFile(settings *Settings, logger *logrus.Logger, store s3.ItfS3) error {
	_, err := os.Stat(settings.ModelPath)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat model file: %w", err)
	}
	if settings.ModelS3Key == "" || store == nil {
		return fmt.Errorf("model file %s not found and no MODEL_S3_KEY configured", settings.ModelPath)
	}

	start := time.Now()
	n, err := store.DownloadFile(settings.ModelS3Key, settings.ModelPath)
	if err != nil {
		return fmt.Errorf("download model %s: %w", settings.ModelS3Key, err)
	}

	logger.WithFields(logrus.Fields{
		"key":         settings.ModelS3Key,
		"path":        settings.ModelPath,
		"bytes":       n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Model downloaded from S3")

	return nil
}
