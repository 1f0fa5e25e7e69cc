package recognitionHandler

import (
	"HandwritingRecognizer/internal/api/recognition"
	"HandwritingRecognizer/internal/middleware"
	contextPkg "HandwritingRecognizer/pkg/context"
	"HandwritingRecognizer/pkg/handlerUtil"
	"HandwritingRecognizer/pkg/log"
	"HandwritingRecognizer/pkg/utils"
	"errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
	"strconv"
	"time"
)

func (h *RecognitionHandler) Predict(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.timeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing recognition request")

	image, source, err := h.readImage(ctx, requestID)
	if err != nil {
		var verr validationError
		if errors.As(err, &verr) {
			return errHandler.HandleValidationError(ctx, requestID, verr.err, ctx.Path())
		}
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_image")
	}

	result, err := h.recognitionService.Predict(c, image, source)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "predict")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"source":     source,
			"cached":     result.Cached,
			"latency_ms": result.Latency.Milliseconds(),
		}).Info("Recognition successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, recognition.PredictResponse{
			PredictedText: result.Text,
		})
	}
}

type validationError struct {
	err error
}

func (v validationError) Error() string { return v.err.Error() }

// readImage takes the image from the multipart field "image" or, failing that, from a
// JSON body carrying image_base64.
func (h *RecognitionHandler) readImage(ctx *fiber.Ctx, requestID string) ([]byte, recognition.Source, error) {
	file, err := ctx.FormFile("image")
	if err == nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"file_name":  file.Filename,
			"file_size":  file.Size,
		}).Debug("Processing file upload")

		if err := h.utils.ValidateImageFile(file); err != nil {
			return nil, "", err
		}

		fileContent, err := file.Open()
		if err != nil {
			return nil, "", err
		}
		defer fileContent.Close()

		data, err := h.utils.ReadFile(fileContent)
		if err != nil {
			return nil, "", err
		}
		return data, recognition.SourceUpload, nil
	}

	if len(ctx.Body()) == 0 || !ctx.Is("json") {
		return nil, "", recognition.ErrNoImageUploaded
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing JSON request")

	var req recognition.PredictRequest
	if err := ctx.BodyParser(&req); err != nil {
		return nil, "", recognition.ErrNoImageUploaded
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, "", validationError{err: err}
	}

	data, err := h.utils.DecodeBase64Image(req.ImageBase64)
	if err != nil {
		return nil, "", err
	}
	return data, recognition.SourceBase64, nil
}

func (h *RecognitionHandler) GetHistory(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.timeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	page, err := strconv.Atoi(ctx.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(ctx.Query("limit", "10"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 10
	}

	result, err := h.recognitionService.GetHistory(c, page, limit)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_history")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

// handleWebSocket recognizes one image per message. Binary frames carry raw image
// bytes and text frames carry base64 (optionally a data URL).
func (h *RecognitionHandler) handleWebSocket(c *websocket.Conn) {
	h.log.Info("Recognition WebSocket client connected")
	defer h.log.Info("Recognition WebSocket client disconnected")

	c.SetPingHandler(func(data string) error {
		h.log.Debug("Received ping, sending pong")
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	if requestID == "" {
		requestID = "unknown"
	}

	maxReadTimeout := 60 * time.Second

	for {
		if err := c.SetReadDeadline(time.Now().Add(maxReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Errorf("Recognition WebSocket error: %v", err)
			} else {
				h.log.Info("Recognition WebSocket connection closed")
			}
			break
		}

		var image []byte
		switch messageType {
		case websocket.BinaryMessage:
			image = message
		case websocket.TextMessage:
			image, err = h.utils.DecodeBase64Image(string(message))
		default:
			h.log.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		var reply interface{}
		if err == nil {
			reply, err = h.predictFrame(requestID, image)
		}
		if err != nil {
			h.log.Errorf("Error processing recognition frame: %v", err)
			_, body := handlerUtil.Describe(err)
			reply = body
		}

		if err := c.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			h.log.Errorf("Error setting write deadline: %v", err)
			break
		}

		if err := c.WriteJSON(reply); err != nil {
			h.log.Errorf("Error writing JSON response: %v", err)
			break
		}

		if err := c.SetWriteDeadline(time.Time{}); err != nil {
			h.log.Errorf("Error resetting write deadline: %v", err)
			break
		}
	}
}

func (h *RecognitionHandler) predictFrame(requestID string, image []byte) (recognition.PredictResponse, error) {
	if len(image) == 0 {
		return recognition.PredictResponse{}, utils.ErrNoFile
	}

	ctx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), h.timeout)
	defer cancel()

	result, err := h.recognitionService.Predict(ctx, image, recognition.SourceWebsocket)
	if err != nil {
		return recognition.PredictResponse{}, err
	}
	return recognition.PredictResponse{PredictedText: result.Text}, nil
}
