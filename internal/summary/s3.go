package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/erp/seeder/internal/config"
)

// XLSXContentType is the MIME type of the workbook.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// S3Exporter stores summaries in S3-compatible object storage (AWS S3,
// MinIO, RustFS, ...).
type S3Exporter struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3Option configures an S3Exporter.
type S3Option func(*S3Exporter)

// WithS3Logger sets the logger.
func WithS3Logger(logger *zap.Logger) S3Option {
	return func(e *S3Exporter) { e.logger = logger }
}

// NewS3Exporter builds an exporter from configuration. Static credentials
// are used when both keys are set, otherwise the default AWS chain applies.
func NewS3Exporter(ctx context.Context, cfg config.S3Config, opts ...S3Option) (*S3Exporter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("summary: s3 bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("summary: aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	e := &S3Exporter{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Key returns the object key of a run's workbook.
func (e *S3Exporter) Key(runID string) string {
	name := "seeder-" + runID + ".xlsx"
	if e.prefix == "" {
		return name
	}
	return path.Join(e.prefix, name)
}

// Export uploads the workbook of s and returns its object key.
func (e *S3Exporter) Export(ctx context.Context, s *Summary) (string, error) {
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, s); err != nil {
		return "", err
	}

	key := e.Key(s.RunID)
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String(XLSXContentType),
	})
	if err != nil {
		return "", fmt.Errorf("summary: uploading %s: %w", key, err)
	}

	e.logger.Info("summary uploaded",
		zap.String("bucket", e.bucket),
		zap.String("key", key),
		zap.Int("bytes", buf.Len()))
	return key, nil
}
