package recognitionService

import (
	"HandwritingRecognizer/internal/api/recognition"
	recognitionRepository "HandwritingRecognizer/internal/api/recognition/repository"
	"HandwritingRecognizer/pkg/ctc"
	"HandwritingRecognizer/pkg/model"
	"HandwritingRecognizer/pkg/preprocess"
	"HandwritingRecognizer/pkg/redis"
	"HandwritingRecognizer/pkg/utils"
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type IRecognitionService interface {
	Predict(ctx context.Context, image []byte, source recognition.Source) (*recognition.PredictResult, error)
	GetHistory(ctx context.Context, page, limit int) (*recognition.HistoryListResponse, error)
}

type Config struct {
	Width     int
	Height    int
	MaxLen    int
	MaxPixels int64
	CacheTTL  time.Duration
}

type recognitionService struct {
	log        *logrus.Logger
	normalizer *preprocess.Normalizer
	model      model.IModel
	vocabulary *ctc.Vocabulary
	maxLen     int
	cache      redis.IRedis
	cacheTTL   time.Duration
	repo       recognitionRepository.Repository
	utils      utils.IUtils
}

// NewRecognitionService wires the recognition pipeline. cache and repo are optional
// and may be nil.
func NewRecognitionService(
	log *logrus.Logger,
	cfg Config,
	m model.IModel,
	vocabulary *ctc.Vocabulary,
	cache redis.IRedis,
	repo recognitionRepository.Repository,
	utils utils.IUtils,
) IRecognitionService {
	normalizer := preprocess.New(cfg.Width, cfg.Height)
	if cfg.MaxPixels > 0 {
		normalizer.MaxPixels = cfg.MaxPixels
	}

	return &recognitionService{
		log:        log,
		normalizer: normalizer,
		model:      m,
		vocabulary: vocabulary,
		maxLen:     cfg.MaxLen,
		cache:      cache,
		cacheTTL:   cfg.CacheTTL,
		repo:       repo,
		utils:      utils,
	}
}
