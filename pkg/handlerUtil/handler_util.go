package handlerUtil

import (
	"HandwritingRecognizer/pkg/ctc"
	"HandwritingRecognizer/pkg/log"
	"HandwritingRecognizer/pkg/model"
	"HandwritingRecognizer/pkg/preprocess"
	"HandwritingRecognizer/pkg/response"
	"HandwritingRecognizer/pkg/utils"
	"context"
	"errors"
	"github.com/gofiber/fiber/v2"
	fiberUtils "github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Describe maps an error to the status and body it is reported with. It logs nothing.
func Describe(err error) (int, ErrorResponse) {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		return respErr.Code, ErrorResponse{Error: respErr.Error()}
	}

	switch {
	case errors.Is(err, utils.ErrNoFile):
		return fiber.StatusBadRequest, ErrorResponse{Error: "No image uploaded", Code: "NO_IMAGE"}
	case errors.Is(err, utils.ErrFileTooLarge):
		return fiber.StatusBadRequest, ErrorResponse{Error: "File too large", Code: "FILE_TOO_LARGE"}
	case errors.Is(err, utils.ErrNotAnImage):
		return fiber.StatusBadRequest, ErrorResponse{Error: "Invalid file type. Only images are allowed.", Code: "INVALID_FILE_TYPE"}
	case errors.Is(err, utils.ErrInvalidBase64):
		return fiber.StatusBadRequest, ErrorResponse{Error: "Invalid base64 image data", Code: "INVALID_BASE64"}
	case errors.Is(err, preprocess.ErrDecode):
		return fiber.StatusBadRequest, ErrorResponse{Error: "Image could not be decoded", Code: "INVALID_IMAGE"}
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusRequestTimeout, ErrorResponse{Error: fiberUtils.StatusMessage(fiber.StatusRequestTimeout), Code: "TIMEOUT"}
	case errors.Is(err, model.ErrUnavailable):
		return fiber.StatusServiceUnavailable, ErrorResponse{Error: "Recognition model unavailable", Code: "MODEL_UNAVAILABLE"}
	case errors.Is(err, ctc.ErrVocabularyMismatch):
		return fiber.StatusInternalServerError, ErrorResponse{Error: "Recognition failed", Code: "VOCABULARY_MISMATCH"}
	case errors.Is(err, ctc.ErrInvalidInput):
		return fiber.StatusInternalServerError, ErrorResponse{Error: "Recognition failed", Code: "INVALID_MODEL_OUTPUT"}
	}

	return fiber.StatusInternalServerError, ErrorResponse{Error: "An unexpected error occurred"}
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	status, body := Describe(err)

	fields := log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"code":       status,
		"path":       path,
		"operation":  operation,
	}

	switch {
	case status >= fiber.StatusInternalServerError:
		h.logger.WithFields(fields).Error("Operation failed")
	case status == fiber.StatusRequestTimeout:
		h.logger.WithFields(fields).Warn("Operation timed out")
	default:
		h.logger.WithFields(fields).Warn("Operation failed with client error")
	}

	if status >= fiber.StatusInternalServerError && requestID != "unknown" {
		body.TraceID = requestID
	}

	return c.Status(status).JSON(body)
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Validation failed: " + err.Error(),
		"code":  "VALIDATION_ERROR",
	})
}

func (h *ErrorHandler) HandleRequestTimeout(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestTimeout).JSON(fiberUtils.StatusMessage(fiber.StatusRequestTimeout))
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}
