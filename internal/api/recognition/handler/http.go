package recognitionHandler

import (
	recognitionService "HandwritingRecognizer/internal/api/recognition/service"
	"HandwritingRecognizer/internal/middleware"
	"HandwritingRecognizer/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"time"
)

type RecognitionHandler struct {
	log                *logrus.Logger
	validator          *validator.Validate
	middleware         middleware.Middleware
	recognitionService recognitionService.IRecognitionService
	utils              utils.IUtils
	timeout            time.Duration
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	rs recognitionService.IRecognitionService,
	utils utils.IUtils,
	timeout time.Duration,
) *RecognitionHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &RecognitionHandler{
		recognitionService: rs,
		log:                log,
		validator:          validator,
		middleware:         middleware,
		utils:              utils,
		timeout:            timeout,
	}
}

func (h *RecognitionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	recognition := srv.Group("/recognition")
	recognition.Post("/predict", h.middleware.NewRateLimiter, h.Predict)
	recognition.Get("/history", h.GetHistory)
	recognition.Use("/ws", wsMiddleware)
	recognition.Get("/ws", websocket.New(h.handleWebSocket))
}

// StartLegacy mounts the unversioned POST /predict route kept for existing clients.
func (h *RecognitionHandler) StartLegacy(srv fiber.Router) {
	srv.Post("/predict", h.middleware.NewRateLimiter, h.Predict)
}
