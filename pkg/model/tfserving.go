package model

import (
	"HandwritingRecognizer/pkg/ctc"
	"HandwritingRecognizer/pkg/preprocess"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type TFServingConfig struct {
	URL       string
	ModelName string
	Signature string
}

type tfServingClient struct {
	url       *url.URL
	modelName string
	signature string
	client    *http.Client
}

type predictRequest struct {
	SignatureName string          `json:"signature_name,omitempty"`
	Instances     [][][][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][][]float32 `json:"predictions"`
	Error       string        `json:"error,omitempty"`
}

// NewTFServing talks to the REST predict API of a TensorFlow Serving deployment.
func NewTFServing(cfg TFServingConfig, client *http.Client) (IModel, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &tfServingClient{
		url:       u,
		modelName: cfg.ModelName,
		signature: cfg.Signature,
		client:    client,
	}, nil
}

func (c *tfServingClient) Infer(ctx context.Context, tensor *preprocess.Tensor) (ctc.Matrix, error) {
	body, err := json.Marshal(predictRequest{
		SignatureName: c.signature,
		Instances:     [][][][]float32{nest(tensor)},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	_url := c.url.JoinPath("/v1/models/" + c.modelName + ":predict").String()
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, _url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		resp, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("%w: server response status code: %d, body: %s", ErrUnavailable, response.StatusCode, resp)
	}

	var resp predictResponse
	if err = json.NewDecoder(response.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Error)
	}
	if len(resp.Predictions) != 1 {
		return nil, fmt.Errorf("%w: got %d predictions for one instance", ctc.ErrInvalidInput, len(resp.Predictions))
	}

	return ctc.Matrix(resp.Predictions[0]), nil
}

func (c *tfServingClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// nest expands the flat tensor into the (W, H, 1) nesting of the JSON instance.
func nest(t *preprocess.Tensor) [][][]float32 {
	out := make([][][]float32, t.Width)
	for i := range out {
		row := make([][]float32, t.Height)
		for j := range row {
			row[j] = []float32{t.At(i, j)}
		}
		out[i] = row
	}
	return out
}
