package recognitionRepository

import (
	"HandwritingRecognizer/internal/entity"
	contextPkg "HandwritingRecognizer/pkg/context"
	"context"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

func (r *recognitionsRepository) CreateRecognition(ctx context.Context, recognition entity.Recognition) error {
	requestID := contextPkg.GetRequestID(ctx)

	query, args, err := sqlx.Named(queryCreateRecognition, recognition)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateRecognition")
		return err
	}
	query = r.q.Rebind(query)

	if _, err = r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating recognition")
		return err
	}

	return nil
}

func (r *recognitionsRepository) GetRecentRecognitions(ctx context.Context, limit, offset int) ([]entity.Recognition, int, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var total int

	if err := r.q.QueryRowxContext(ctx, queryCountRecognitions).Scan(&total); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountRecognitions execution err")
		return nil, 0, err
	}

	argsKV := map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	}

	query, args, err := sqlx.Named(queryGetRecentRecognitions, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetRecentRecognitions named query preparation err")
		return nil, 0, err
	}

	query = r.q.Rebind(query)

	recognitions := []entity.Recognition{}
	if err := r.q.SelectContext(ctx, &recognitions, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetRecentRecognitions execution err")
		return nil, 0, err
	}

	return recognitions, total, nil
}
