package config

import (
	"HandwritingRecognizer/pkg/model"
	"HandwritingRecognizer/pkg/preprocess"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Settings struct {
	AppPort string `validate:"required,numeric"`
	AppEnv  string

	ImageWidth     int `validate:"min=1"`
	ImageHeight    int `validate:"min=1"`
	MaxLabelLength int `validate:"min=0"`
	VocabularyFile string

	ModelBackend       model.Backend `validate:"oneof=onnx tfserving websocket"`
	ModelPath          string        `validate:"required_if=ModelBackend onnx"`
	ModelS3Key         string
	OnnxRuntimeLibPath string
	OnnxInputName      string
	OnnxOutputName     string
	OnnxPoolSize       int    `validate:"min=1"`
	TFServingURL       string `validate:"required_if=ModelBackend tfserving"`
	TFServingModelName string `validate:"required_if=ModelBackend tfserving"`
	TFServingSignature string
	ModelWSURL         string `validate:"required_if=ModelBackend websocket"`

	AWSRegion          string `validate:"required_with=ModelS3Key"`
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSBucketName      string `validate:"required_with=ModelS3Key"`

	RedisAddress       string
	RedisPassword      string
	RedisDB            int `validate:"min=0"`
	PredictionCacheTTL time.Duration

	DBHost     string
	DBPort     string
	DBUser     string `validate:"required_with=DBHost"`
	DBPassword string
	DBName     string `validate:"required_with=DBHost"`
	DBSSLMode  string

	CORSAllowOrigins string
	RateLimitRPS     float64       `validate:"gt=0"`
	RateLimitBurst   int           `validate:"min=1"`
	RequestTimeout   time.Duration `validate:"gt=0"`
	MaxUploadSize    int64         `validate:"min=1"`
	MaxImagePixels   int64         `validate:"min=1"`
}

// LoadSettings reads the environment, applying defaults for unset keys, and validates
// the result.
func LoadSettings(v *validator.Validate) (*Settings, error) {
	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	s := &Settings{
		AppPort:            getEnv("APP_PORT", "3000"),
		AppEnv:             getEnv("APP_ENV", "development"),
		VocabularyFile:     os.Getenv("VOCABULARY_FILE"),
		ModelBackend:       model.Backend(strings.ToLower(getEnv("MODEL_BACKEND", string(model.BackendONNX)))),
		ModelPath:          os.Getenv("MODEL_PATH"),
		ModelS3Key:         os.Getenv("MODEL_S3_KEY"),
		OnnxRuntimeLibPath: os.Getenv("ONNXRUNTIME_LIB_PATH"),
		OnnxInputName:      os.Getenv("ONNX_INPUT_NAME"),
		OnnxOutputName:     os.Getenv("ONNX_OUTPUT_NAME"),
		TFServingURL:       os.Getenv("TFSERVING_URL"),
		TFServingModelName: os.Getenv("TFSERVING_MODEL_NAME"),
		TFServingSignature: os.Getenv("TFSERVING_SIGNATURE"),
		ModelWSURL:         os.Getenv("MODEL_WS_URL"),
		AWSRegion:          os.Getenv("AWS_REGION"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSBucketName:      os.Getenv("AWS_BUCKET_NAME"),
		RedisAddress:       os.Getenv("REDIS_ADDRESS"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		DBHost:             os.Getenv("DB_HOST"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             os.Getenv("DB_USER"),
		DBPassword:         os.Getenv("DB_PASSWORD"),
		DBName:             os.Getenv("DB_NAME"),
		DBSSLMode:          getEnv("DB_SSLMODE", "disable"),
		CORSAllowOrigins:   getEnv("CORS_ALLOW_ORIGINS", "*"),
	}

	var err error
	s.ImageWidth, err = getEnvInt("IMAGE_WIDTH", 128)
	collect(err)
	s.ImageHeight, err = getEnvInt("IMAGE_HEIGHT", 32)
	collect(err)
	s.MaxLabelLength, err = getEnvInt("MAX_LABEL_LENGTH", 25)
	collect(err)
	s.OnnxPoolSize, err = getEnvInt("ONNX_POOL_SIZE", 2)
	collect(err)
	s.RedisDB, err = getEnvInt("REDIS_DB", 0)
	collect(err)
	s.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 100)
	collect(err)
	s.PredictionCacheTTL, err = getEnvDuration("PREDICTION_CACHE_TTL", 24*time.Hour)
	collect(err)
	s.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 10*time.Second)
	collect(err)

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 50)
	collect(err)
	s.RateLimitRPS = rps

	maxUpload, err := getEnvInt("MAX_UPLOAD_SIZE", 5*1024*1024)
	collect(err)
	s.MaxUploadSize = int64(maxUpload)

	maxPixels, err := getEnvInt("MAX_IMAGE_PIXELS", preprocess.DefaultMaxPixels)
	collect(err)
	s.MaxImagePixels = int64(maxPixels)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}

	if err := v.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return s, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
