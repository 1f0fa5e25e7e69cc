package recognitionService

import (
	"HandwritingRecognizer/internal/api/recognition"
	"HandwritingRecognizer/internal/entity"
	contextPkg "HandwritingRecognizer/pkg/context"
	"HandwritingRecognizer/pkg/ctc"
	"HandwritingRecognizer/pkg/log"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

func (s *recognitionService) Predict(ctx context.Context, image []byte, source recognition.Source) (*recognition.PredictResult, error) {
	requestID := contextPkg.GetRequestID(ctx)
	start := time.Now()

	imageHash := s.utils.HashImage(image)
	cacheKey := fmt.Sprintf("%s:%dx%d:%d", imageHash, s.normalizer.Width, s.normalizer.Height, s.maxLen)

	if s.cache != nil {
		if text, err := s.cache.GetPrediction(ctx, cacheKey); err == nil {
			result := &recognition.PredictResult{Text: text, Cached: true, Latency: time.Since(start)}
			s.record(ctx, imageHash, source, result)
			return result, nil
		}
	}

	tensor, err := s.normalizer.Normalize(image)
	if err != nil {
		return nil, fmt.Errorf("normalize image: %w", err)
	}

	matrix, err := s.model.Infer(ctx, tensor)
	if err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}

	text, err := ctc.Decode(matrix, s.vocabulary, s.maxLen)
	if err != nil {
		if errors.Is(err, ctc.ErrVocabularyMismatch) {
			log.ErrorWithTraceID(log.Fields{
				"request_id":       requestID,
				"error":            err.Error(),
				"timesteps":        matrix.Timesteps(),
				"model_classes":    matrix.Classes(),
				"vocabulary_size":  s.vocabulary.Size(),
				"vocabulary_blank": s.vocabulary.Blank(),
			}, "Model output does not match the configured vocabulary")
		}
		return nil, fmt.Errorf("decode prediction: %w", err)
	}

	result := &recognition.PredictResult{
		Text:      text,
		Timesteps: matrix.Timesteps(),
		Latency:   time.Since(start),
	}

	if s.cache != nil {
		if err := s.cache.SetPrediction(ctx, cacheKey, text, s.cacheTTL); err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Warn("Failed to cache prediction")
		}
	}

	s.record(ctx, imageHash, source, result)

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"source":     source,
		"timesteps":  result.Timesteps,
		"length":     len([]rune(text)),
		"latency_ms": result.Latency.Milliseconds(),
	}).Debug("Prediction decoded")

	return result, nil
}

// record stores the outcome in the history table when one is configured. Failures are
// logged and never fail the request.
func (s *recognitionService) record(ctx context.Context, imageHash string, source recognition.Source, result *recognition.PredictResult) {
	if s.repo == nil {
		return
	}

	requestID := contextPkg.GetRequestID(ctx)
	now := time.Now()

	id, err := s.utils.NewULIDFromTimestamp(now)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to generate recognition id")
		return
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to open repository client")
		return
	}

	err = client.Recognitions.CreateRecognition(ctx, entity.Recognition{
		ID:        id,
		RequestID: requestID,
		ImageHash: imageHash,
		Text:      result.Text,
		Source:    string(source),
		Timesteps: result.Timesteps,
		Cached:    result.Cached,
		LatencyMs: result.Latency.Milliseconds(),
		CreatedAt: now,
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to record recognition")
	}
}

func (s *recognitionService) GetHistory(ctx context.Context, page, limit int) (*recognition.HistoryListResponse, error) {
	if s.repo == nil {
		return nil, recognition.ErrHistoryUnavailable
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * limit
	rows, total, err := client.Recognitions.GetRecentRecognitions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	resp := &recognition.HistoryListResponse{
		Recognitions: make([]recognition.RecognitionResponse, 0, len(rows)),
		Total:        total,
		Page:         page,
		Limit:        limit,
	}
	for _, r := range rows {
		resp.Recognitions = append(resp.Recognitions, recognition.RecognitionResponse{
			ID:        r.ID,
			RequestID: r.RequestID,
			Text:      r.Text,
			Source:    r.Source,
			Timesteps: r.Timesteps,
			Cached:    r.Cached,
			LatencyMs: r.LatencyMs,
			CreatedAt: r.CreatedAt,
		})
	}

	return resp, nil
}
