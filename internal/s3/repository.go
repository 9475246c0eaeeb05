package s3

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"go.uber.org/zap"
)

type Option func(*Repository)

func WithRegion(region string) Option {
	return func(r *Repository) {
		r.Region = region
	}
}

func WithBucket(bucket string) Option {
	return func(r *Repository) {
		r.Bucket = bucket
	}
}

// WithPrefix nests every object key under prefix.
func WithPrefix(prefix string) Option {
	return func(r *Repository) {
		r.Prefix = prefix
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

func WithForcePathStyle(forcePathStyle bool) Option {
	return func(r *Repository) {
		r.ForcePathStyle = forcePathStyle
	}
}

// WithEndpoint points the client at an S3 compatible store such as minio.
func WithEndpoint(endpoint string) Option {
	return func(r *Repository) {
		r.Endpoint = endpoint
	}
}

func WithUploader(u s3manageriface.UploaderAPI) Option {
	return func(r *Repository) {
		r.uploader = u
	}
}

// Repository uploads export files to an S3 bucket.
type Repository struct {
	logger   *zap.Logger
	uploader s3manageriface.UploaderAPI

	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	ForcePathStyle bool
}

func New(opts ...Option) (*Repository, error) {
	r := &Repository{
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	if r.uploader == nil {
		awsConfig := &aws.Config{
			Region:           aws.String(r.Region),
			S3ForcePathStyle: aws.Bool(r.ForcePathStyle),
		}
		if r.Endpoint != "" {
			awsConfig.Endpoint = aws.String(r.Endpoint)
		}
		sess, err := session.NewSession(awsConfig)
		if err != nil {
			return nil, fmt.Errorf("s3: session: %w", err)
		}
		r.uploader = s3manager.NewUploader(sess)
	}
	return r, nil
}

// Location is the s3:// URL files are written below.
func (r *Repository) Location() string {
	return "s3://" + path.Join(r.Bucket, r.Prefix)
}

func (r *Repository) Write(ctx context.Context, key string, reader io.Reader) error {
	clean := path.Clean(key)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("s3: key %q escapes the prefix", key)
	}
	objPath := path.Join(r.Prefix, clean)

	r.logger.Debug("uploading",
		zap.String("bucket", r.Bucket),
		zap.String("object_path", objPath),
	)

	_, err := r.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(objPath),
		Body:   reader,
	})
	if err != nil {
		return fmt.Errorf("s3: upload %s: %w", objPath, err)
	}
	return nil
}
