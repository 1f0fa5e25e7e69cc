package recognition

import "time"

type Source string

const (
	SourceUpload    Source = "upload"
	SourceBase64    Source = "base64"
	SourceWebsocket Source = "websocket"
)

type PredictRequest struct {
	ImageBase64 string `json:"image_base64" validate:"required"`
}

type PredictResponse struct {
	PredictedText string `json:"predicted_text"`
}

type PredictResult struct {
	Text      string
	Timesteps int
	Cached    bool
	Latency   time.Duration
}

type RecognitionResponse struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Timesteps int       `json:"timesteps"`
	Cached    bool      `json:"cached"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryListResponse struct {
	Recognitions []RecognitionResponse `json:"recognitions"`
	Total        int                   `json:"total"`
	Page         int                   `json:"page"`
	Limit        int                   `json:"limit"`
}
