package config

import (
	"HandwritingRecognizer/database/postgres"
	recognitionHandler "HandwritingRecognizer/internal/api/recognition/handler"
	recognitionRepository "HandwritingRecognizer/internal/api/recognition/repository"
	recognitionService "HandwritingRecognizer/internal/api/recognition/service"
	"HandwritingRecognizer/internal/middleware"
	"HandwritingRecognizer/pkg/ctc"
	"HandwritingRecognizer/pkg/model"
	"HandwritingRecognizer/pkg/redis"
	"HandwritingRecognizer/pkg/s3"
	"HandwritingRecognizer/pkg/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	db          *sqlx.DB
	log         *logrus.Logger
	settings    *Settings
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	legacy      []legacyHandler
	redisServer redis.IRedis
	s3Client    s3.ItfS3
	model       model.IModel
	vocabulary  *ctc.Vocabulary
}

type handler interface {
	Start(srv fiber.Router)
}

type legacyHandler interface {
	StartLegacy(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if server.model == nil {
		return nil, fmt.Errorf("recognition model is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithSettings(settings *Settings) ServerOption {
	return func(s *Server) error {
		s.settings = settings
		return nil
	}
}

// WithDatabase connects the recognition history store. Without DB_HOST the service
// runs without history.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		if s.settings == nil {
			return fmt.Errorf("settings must be initialized before database")
		}
		if s.settings.DBHost == "" {
			s.log.Info("DB_HOST not set, recognition history disabled")
			return nil
		}

		db, err := postgres.New(postgres.Options{
			Host:     s.settings.DBHost,
			Port:     s.settings.DBPort,
			User:     s.settings.DBUser,
			Password: s.settings.DBPassword,
			Name:     s.settings.DBName,
			SSLMode:  s.settings.DBSSLMode,
		})
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

// WithRedisServer enables the prediction cache when REDIS_ADDRESS is set.
func WithRedisServer() ServerOption {
	return func(s *Server) error {
		if s.settings == nil {
			return fmt.Errorf("settings must be initialized before redis")
		}
		if s.settings.RedisAddress == "" {
			s.log.Info("REDIS_ADDRESS not set, prediction cache disabled")
			return nil
		}

		s.redisServer = redis.New(redis.Options{
			Address:  s.settings.RedisAddress,
			Password: s.settings.RedisPassword,
			DB:       s.settings.RedisDB,
		})
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		if s.settings == nil {
			return fmt.Errorf("settings must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log, s.settings.RateLimitRPS, s.settings.RateLimitBurst)
		return nil
	}
}

// WithS3Client is only needed to fetch the model artifact, so it is skipped when
// MODEL_S3_KEY is empty.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		if s.settings == nil {
			return fmt.Errorf("settings must be initialized before S3 client")
		}
		if s.settings.ModelS3Key == "" {
			return nil
		}

		client, err := s3.New(s3.Options{
			Region:          s.settings.AWSRegion,
			AccessKeyID:     s.settings.AWSAccessKeyID,
			SecretAccessKey: s.settings.AWSSecretAccessKey,
			BucketName:      s.settings.AWSBucketName,
		})
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithVocabulary() ServerOption {
	return func(s *Server) error {
		if s.settings == nil {
			return fmt.Errorf("settings must be initialized before vocabulary")
		}
		if s.settings.VocabularyFile == "" {
			s.vocabulary = ctc.DefaultVocabulary()
			return nil
		}

		vocabulary, err := ctc.LoadVocabulary(s.settings.VocabularyFile)
		if err != nil {
			return fmt.Errorf("failed to load vocabulary: %w", err)
		}
		s.vocabulary = vocabulary
		return nil
	}
}

// WithModel builds the configured inference backend. Pass an existing model to skip
// construction.
func WithModel(existing ...model.IModel) ServerOption {
	return func(s *Server) error {
		if len(existing) > 0 && existing[0] != nil {
			s.model = existing[0]
			return nil
		}
		if s.settings == nil || s.log == nil {
			return fmt.Errorf("settings and logger must be initialized before model")
		}

		m, err := newModel(s.settings, s.log, s.s3Client)
		if err != nil {
			s.log.Errorf("Failed to initialize %s model: %v", s.settings.ModelBackend, err)
			return fmt.Errorf("failed to create model: %w", err)
		}

		s.log.WithFields(logrus.Fields{
			"backend": s.settings.ModelBackend,
			"width":   s.settings.ImageWidth,
			"height":  s.settings.ImageHeight,
		}).Info("Recognition model ready")

		s.model = m
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		var maxSize int64
		if s.settings != nil {
			maxSize = s.settings.MaxUploadSize
		}
		s.utils = utils.New(maxSize)
		return nil
	}
}

func (s *Server) RegisterHandler() error {
	if s.vocabulary == nil {
		s.vocabulary = ctc.DefaultVocabulary()
	}

	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	// Recognition Domain
	var recognitionRepo recognitionRepository.Repository
	if s.db != nil {
		recognitionRepo = recognitionRepository.New(s.db, s.log)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recognitionRepo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare recognition schema: %w", err)
		}
	}

	recognitionServices := recognitionService.NewRecognitionService(
		s.log,
		recognitionService.Config{
			Width:     s.settings.ImageWidth,
			Height:    s.settings.ImageHeight,
			MaxLen:    s.settings.MaxLabelLength,
			MaxPixels: s.settings.MaxImagePixels,
			CacheTTL:  s.settings.PredictionCacheTTL,
		},
		s.model,
		s.vocabulary,
		s.redisServer,
		recognitionRepo,
		s.utils,
	)
	recognitionHandlers := recognitionHandler.New(s.log, s.validator, s.middleware, recognitionServices, s.utils, s.settings.RequestTimeout)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, recognitionHandlers)
	s.legacy = append(s.legacy, recognitionHandlers)

	return nil
}

func (s *Server) Run() error {
	s.mountRoutes()

	return s.engine.Listen(fmt.Sprintf(":%s", s.settings.AppPort))
}

func (s *Server) mountRoutes() {
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}
	for _, h := range s.legacy {
		h.StartLegacy(s.engine)
	}
}

// Shutdown stops accepting requests and releases the model and storage clients.
func (s *Server) Shutdown(timeout time.Duration) error {
	var errs []error

	if err := s.engine.ShutdownWithTimeout(timeout); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if s.model != nil {
		if err := s.model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model: %w", err))
		}
	}
	if s.redisServer != nil {
		if err := s.redisServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Server is Healthy!",
			"backend": s.settings.ModelBackend,
		})
	})
}
