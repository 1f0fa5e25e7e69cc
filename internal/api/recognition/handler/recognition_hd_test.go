package recognitionHandler

import (
	"HandwritingRecognizer/internal/api/recognition"
	"HandwritingRecognizer/internal/middleware"
	"HandwritingRecognizer/pkg/model"
	"HandwritingRecognizer/pkg/utils"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

type stubService struct {
	mu      sync.Mutex
	text    string
	err     error
	sources []recognition.Source
	images  [][]byte
}

func (s *stubService) Predict(ctx context.Context, image []byte, source recognition.Source) (*recognition.PredictResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, source)
	s.images = append(s.images, image)
	if s.err != nil {
		return nil, s.err
	}
	return &recognition.PredictResult{Text: s.text, Timesteps: 32, Latency: time.Millisecond}, nil
}

func (s *stubService) GetHistory(ctx context.Context, page, limit int) (*recognition.HistoryListResponse, error) {
	return nil, recognition.ErrHistoryUnavailable
}

func newApp(svc *stubService) *fiber.App {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := New(logger, validator.New(), middleware.New(logger, 1000, 1000), svc, utils.New(0), time.Second)

	app := fiber.New()
	app.Use(middleware.NewRequestIDMiddleware())
	h.StartLegacy(app)
	h.Start(app.Group("/api/v1"))
	return app
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="word.png"`, field))
	header.Set("Content-Type", "image/png")
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return body, w.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	if err := jsoniter.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestPredictUpload(t *testing.T) {
	svc := &stubService{text: "hello"}
	app := newApp(svc)

	for _, path := range []string{"/predict", "/api/v1/recognition/predict"} {
		body, contentType := multipartBody(t, "image", []byte("image bytes"))
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", contentType)

		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, resp.StatusCode)
		}
		if got := decodeBody(t, resp)["predicted_text"]; got != "hello" {
			t.Errorf("%s: predicted_text = %v, want hello", path, got)
		}
		if resp.Header.Get(middleware.RequestIDKey) == "" {
			t.Errorf("%s: missing request id header", path)
		}
	}

	if len(svc.sources) != 2 || svc.sources[0] != recognition.SourceUpload {
		t.Fatalf("sources = %v", svc.sources)
	}
	if string(svc.images[0]) != "image bytes" {
		t.Errorf("image = %q", svc.images[0])
	}
}

func TestPredictBase64(t *testing.T) {
	svc := &stubService{text: "word"}
	app := newApp(svc)

	payload := `{"image_base64":"data:image/png;base64,` + base64.StdEncoding.EncodeToString([]byte("png")) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognition/predict", strings.NewReader(payload))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := decodeBody(t, resp)["predicted_text"]; got != "word" {
		t.Errorf("predicted_text = %v", got)
	}
	if svc.sources[0] != recognition.SourceBase64 || string(svc.images[0]) != "png" {
		t.Errorf("source = %v image = %q", svc.sources[0], svc.images[0])
	}
}

func TestPredictWithoutImage(t *testing.T) {
	svc := &stubService{}
	app := newApp(svc)

	body, contentType := multipartBody(t, "other", []byte("x"))
	requests := map[string]*http.Request{
		"empty body":    httptest.NewRequest(http.MethodPost, "/predict", nil),
		"wrong field":   httptest.NewRequest(http.MethodPost, "/predict", body),
		"plain text":    httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("hello")),
		"versioned api": httptest.NewRequest(http.MethodPost, "/api/v1/recognition/predict", nil),
	}
	requests["wrong field"].Header.Set("Content-Type", contentType)
	requests["plain text"].Header.Set("Content-Type", fiber.MIMETextPlain)

	for name, req := range requests {
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
			continue
		}
		if got := decodeBody(t, resp)["error"]; got != "No image uploaded" {
			t.Errorf("%s: error = %v", name, got)
		}
	}

	if len(svc.sources) != 0 {
		t.Errorf("service called %d times", len(svc.sources))
	}
}

func TestPredictInvalidBase64(t *testing.T) {
	app := newApp(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"image_base64":"***"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := decodeBody(t, resp)["code"]; got != "INVALID_BASE64" {
		t.Errorf("code = %v", got)
	}
}

func TestPredictModelUnavailable(t *testing.T) {
	app := newApp(&stubService{err: fmt.Errorf("run model: %w", model.ErrUnavailable)})

	body, contentType := multipartBody(t, "image", []byte("image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	out := decodeBody(t, resp)
	if out["code"] != "MODEL_UNAVAILABLE" {
		t.Errorf("code = %v", out["code"])
	}
	if out["trace_id"] == nil || out["trace_id"] == "" {
		t.Error("missing trace_id on 5xx response")
	}
}

func TestHistoryUnavailable(t *testing.T) {
	app := newApp(&stubService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/recognition/history?page=2&limit=5", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	app := newApp(&stubService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/recognition/ws", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("status = %d, want 426", resp.StatusCode)
	}
}
