package model

import (
	"HandwritingRecognizer/pkg/preprocess"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testTensor() *preprocess.Tensor {
	t := &preprocess.Tensor{Width: 3, Height: 2, Data: make([]float32, 6)}
	for i := range t.Data {
		t.Data[i] = float32(i) / 10
	}
	return t
}

func TestTFServingInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models/htr:predict" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SignatureName != "serving_default" {
			t.Errorf("signature = %q", req.SignatureName)
		}
		if len(req.Instances) != 1 || len(req.Instances[0]) != 3 || len(req.Instances[0][0]) != 2 {
			t.Fatalf("unexpected instance nesting")
		}
		// Element (i, j) of the instance is At(i, j) of the tensor.
		if got := req.Instances[0][2][1][0]; got != 0.5 {
			t.Errorf("instance[2][1] = %v, want 0.5", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predictions": [[[0.1, 0.9], [0.8, 0.2], [0.3, 0.7]]]}`))
	}))
	defer srv.Close()

	m, err := NewTFServing(TFServingConfig{URL: srv.URL, ModelName: "htr", Signature: "serving_default"}, srv.Client())
	if err != nil {
		t.Fatalf("NewTFServing() error = %v", err)
	}
	defer m.Close()

	got, err := m.Infer(context.Background(), testTensor())
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if got.Timesteps() != 3 || got.Classes() != 2 || got[1][0] != 0.8 {
		t.Errorf("Infer() = %v", got)
	}
}

func TestTFServingErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
		is      error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error": "boom"}`, is: ErrUnavailable},
		{name: "error field", status: http.StatusOK, body: `{"error": "model not loaded"}`, is: ErrUnavailable},
		{name: "malformed body", status: http.StatusOK, body: `{"predictions": `},
		{name: "two predictions", status: http.StatusOK, body: `{"predictions": [[[1]], [[1]]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			m, err := NewTFServing(TFServingConfig{URL: srv.URL, ModelName: "htr"}, nil)
			if err != nil {
				t.Fatalf("NewTFServing() error = %v", err)
			}

			_, err = m.Infer(context.Background(), testTensor())
			if err == nil {
				t.Fatalf("Infer() expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Infer() error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestNewTFServingRequiresModelName(t *testing.T) {
	if _, err := NewTFServing(TFServingConfig{URL: "http://localhost:8501"}, nil); err == nil {
		t.Fatalf("NewTFServing() expected error without model name")
	}
}

func TestUnbatch(t *testing.T) {
	m, err := Unbatch([]float32{1, 2, 3, 4}, []int64{1, 2, 2})
	if err != nil {
		t.Fatalf("Unbatch() error = %v", err)
	}
	if m.Timesteps() != 2 || m[1][1] != 4 {
		t.Errorf("Unbatch() = %v", m)
	}

	if _, err := Unbatch([]float32{1, 2, 3, 4}, []int64{2, 1, 2}); err == nil {
		t.Errorf("Unbatch() expected error for batch of two")
	}
}
