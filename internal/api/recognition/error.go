package recognition

import (
	"HandwritingRecognizer/pkg/response"
	"net/http"
)

var (
	ErrNoImageUploaded    = response.NewError(http.StatusBadRequest, "No image uploaded")
	ErrHistoryUnavailable = response.NewError(http.StatusServiceUnavailable, "recognition history is not configured")
)
