// Package archive copies finished jobs to S3 or an S3-compatible store.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"whisper-desk/internal/domain"
)

// Error kinds returned by uploads. Match with errors.Is.
var (
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrThrottled          = errors.New("request throttled")
	ErrUnavailable        = errors.New("storage unavailable")
)

// Config selects the bucket and credentials.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	Profile         string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return &domain.ValidationError{Field: "bucket", Message: "is required"}
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return &domain.ValidationError{Field: "access_key_id", Message: "access key id and secret must be set together"}
	}
	return nil
}

// objectPutter is the slice of the S3 client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UploadError ties a storage failure to the object key.
type UploadError struct {
	Bucket string
	Key    string
	Kind   error
	Err    error
}

func (e *UploadError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("upload s3://%s/%s: %v: %v", e.Bucket, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("upload s3://%s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *UploadError) Unwrap() []error {
	if e.Kind != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Err}
}

// Uploaded lists the object keys written for one job.
type Uploaded struct {
	JobID  string   `json:"job_id"`
	Bucket string   `json:"bucket"`
	Keys   []string `json:"keys"`
}

// S3Uploader writes job artifacts under <prefix>/<job-id>/.
type S3Uploader struct {
	client objectPutter
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Uploader builds an uploader using the default AWS credential chain
// unless static keys are configured.
func NewS3Uploader(ctx context.Context, cfg Config, logger *zap.Logger) (*S3Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newUploader(client, cfg, logger), nil
}

func newUploader(client objectPutter, cfg Config, logger *zap.Logger) *S3Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger.Named("archive"),
	}
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if awsCfg.Region == "" && cfg.Endpoint != "" {
		// S3-compatible stores accept any region for signing.
		awsCfg.Region = "us-east-1"
	}
	return awsCfg, nil
}

// Key returns the object key for a file name of jobID.
func (u *S3Uploader) Key(jobID, name string) string {
	if u.prefix == "" {
		return path.Join(jobID, name)
	}
	return path.Join(u.prefix, jobID, name)
}

// UploadJob uploads the job's metadata file and every registered result.
// It stops at the first failed object.
func (u *S3Uploader) UploadJob(ctx context.Context, rec *domain.JobRecord, metadataPath string) (*Uploaded, error) {
	out := &Uploaded{JobID: rec.ID, Bucket: u.bucket, Keys: make([]string, 0, len(rec.Results)+1)}

	files := make([]string, 0, len(rec.Results)+1)
	files = append(files, metadataPath)
	for _, res := range rec.Results {
		files = append(files, res.FilePath)
	}

	for _, file := range files {
		key := u.Key(rec.ID, filepath.Base(file))
		if err := u.putFile(ctx, key, file); err != nil {
			return out, err
		}
		out.Keys = append(out.Keys, key)
		u.logger.Debug("uploaded object", zap.String("job_id", rec.ID), zap.String("key", key))
	}
	u.logger.Info("job archived", zap.String("job_id", rec.ID), zap.Int("objects", len(out.Keys)))
	return out, nil
}

func (u *S3Uploader) putFile(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrIO, file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", domain.ErrIO, file, err)
	}

	size := info.Size()
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: &size,
		ContentType:   aws.String(contentType(file)),
	})
	if err != nil {
		return u.wrapError(key, err)
	}
	return nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".json":
		return "application/json"
	case ".vtt":
		return "text/vtt"
	case ".csv":
		return "text/csv"
	case ".fcpxml":
		return "application/xml"
	default:
		return "text/plain; charset=utf-8"
	}
}

func (u *S3Uploader) wrapError(key string, err error) error {
	wrapped := &UploadError{Bucket: u.bucket, Key: key, Err: err}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		wrapped.Kind = ErrBucketNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			wrapped.Kind = ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Kind = ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Kind = ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Kind = ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Kind = ErrUnavailable
		}
	}
	return wrapped
}
