package s3

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"
)

// ItfS3 fetches model artifacts from a bucket.
type ItfS3 interface {
	DownloadFile(key string, dest string) (int64, error)
}

type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

type s3Client struct {
	client     *s3.S3
	session    *session.Session
	bucketName string
}

func New(opts Options) (ItfS3, error) {
	sess, err := newSession(opts)
	if err != nil {
		return nil, err
	}

	return &s3Client{
		client:     s3.New(sess),
		session:    sess,
		bucketName: opts.BucketName,
	}, nil
}

// DownloadFile writes the object to dest through a temporary file in the same
// directory, so a failed download never leaves a partial artifact behind.
func (s *s3Client) DownloadFile(key string, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	downloader := s3manager.NewDownloader(s.session)
	n, err := downloader.Download(tmp, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("download s3://%s/%s: %w", s.bucketName, key, err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("move artifact into place: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": s.bucketName,
		"key":    key,
		"dest":   dest,
		"bytes":  n,
	}).Info("Downloaded model artifact")

	return n, nil
}

func newSession(opts Options) (*session.Session, error) {
	cfg := &aws.Config{
		Region: aws.String(opts.Region),
	}
	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}

	return sess, nil
}
