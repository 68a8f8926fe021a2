package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/TheMichaelB/vaultfs/internal/config"
	"github.com/TheMichaelB/vaultfs/internal/events"
)

const s3Timeout = 30 * time.Second

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store implements BlobStore on an S3 bucket. Blob paths become object
// keys under the configured prefix.
type S3Store struct {
	client      S3API
	bucket      string
	prefix      string
	maxFileSize int64
	logger      *events.Logger
}

// NewS3Store creates a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.S3Config, logger *events.Logger) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3StoreWithClient creates a store over an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string, logger *events.Logger) *S3Store {
	return &S3Store{
		client:      client,
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		maxFileSize: defaultMaxFileSize,
		logger:      logger.WithField("component", "s3_store"),
	}
}

// SetMaxFileSize sets the maximum blob size.
func (s *S3Store) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// Write uploads data as one object. PutObject replaces atomically.
func (s *S3Store) Write(ctx context.Context, blobPath string, data []byte, mode os.FileMode) error {
	key, err := s.buildKey(blobPath)
	if err != nil {
		return err
	}

	if int64(len(data)) > s.maxFileSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), s.maxFileSize)
	}

	ctx, cancel := context.WithTimeout(ctx, s3Timeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"mode": fmt.Sprintf("%o", mode),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Wrote blob to S3")

	return nil
}

// Read downloads an object.
func (s *S3Store) Read(ctx context.Context, blobPath string) ([]byte, error) {
	key, err := s.buildKey(blobPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s3Timeout)
	defer cancel()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, &fs.PathError{Op: "read", Path: blobPath, Err: fs.ErrNotExist}
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}

	return data, nil
}

// Delete removes an object. S3 deletes are idempotent, so existence is
// checked first to report a missing blob.
func (s *S3Store) Delete(ctx context.Context, blobPath string) error {
	exists, err := s.Exists(ctx, blobPath)
	if err != nil {
		return err
	}
	if !exists {
		return &fs.PathError{Op: "remove", Path: blobPath, Err: fs.ErrNotExist}
	}

	key, err := s.buildKey(blobPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s3Timeout)
	defer cancel()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}

	s.logger.WithField("key", key).Debug("Deleted blob from S3")

	return nil
}

// Exists checks for an object with HeadObject.
func (s *S3Store) Exists(ctx context.Context, blobPath string) (bool, error) {
	key, err := s.buildKey(blobPath)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s3Timeout)
	defer cancel()

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head object: %w", err)
	}

	return true, nil
}

// buildKey maps a blob path to an object key under the prefix.
func (s *S3Store) buildKey(blobPath string) (string, error) {
	if strings.ContainsRune(blobPath, 0) {
		return "", fmt.Errorf("%w: path contains null bytes", ErrInvalidPath)
	}

	normalized := strings.ReplaceAll(blobPath, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: path contains '..'", ErrInvalidPath)
		}
	}

	cleaned := strings.TrimLeft(path.Clean("/"+normalized), "/")
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	if s.prefix == "" {
		return cleaned, nil
	}
	return s.prefix + "/" + cleaned, nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
