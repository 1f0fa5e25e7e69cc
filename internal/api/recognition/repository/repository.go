package recognitionRepository

import (
	"HandwritingRecognizer/internal/entity"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type SQLExecutor interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
	Rebind(query string) string
}

func New(db *sqlx.DB, log *logrus.Logger) Repository {
	return &repository{
		DB:  db,
		log: log,
	}
}

type repository struct {
	DB  *sqlx.DB
	log *logrus.Logger
}

type Repository interface {
	NewClient(tx bool) (Client, error)
	EnsureSchema(ctx context.Context) error
}

func (r *repository) NewClient(tx bool) (Client, error) {
	var sqlExecutor SQLExecutor
	var commitFunc, rollbackFunc func() error

	sqlExecutor = r.DB

	if tx {
		var err error
		txx, err := r.DB.Beginx()
		if err != nil {
			return Client{}, err
		}

		sqlExecutor = txx
		commitFunc = txx.Commit
		rollbackFunc = txx.Rollback
	} else {
		commitFunc = func() error { return nil }
		rollbackFunc = func() error { return nil }
	}

	return Client{
		Recognitions: &recognitionsRepository{q: sqlExecutor, log: r.log},
		Commit:       commitFunc,
		Rollback:     rollbackFunc,
	}, nil
}

func (r *repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, queryCreateRecognitionsTable); err != nil {
		r.log.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("Failed to create recognitions table")
		return err
	}
	return nil
}

type Client struct {
	Recognitions interface {
		CreateRecognition(ctx context.Context, recognition entity.Recognition) error
		GetRecentRecognitions(ctx context.Context, limit, offset int) ([]entity.Recognition, int, error)
	}

	Commit   func() error
	Rollback func() error
}

type recognitionsRepository struct {
	q   SQLExecutor
	log *logrus.Logger
}
