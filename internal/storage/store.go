// Package storage uploads resume files to S3-compatible object storage and
// hands out stable object keys for them.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/document"
	"github.com/spigell/aspiro/internal/logger"
	"github.com/spigell/aspiro/internal/secrets"
	"github.com/spigell/aspiro/internal/utils"
)

const (
	defaultRegion   = "auto"
	defaultPrefix   = "resumes"
	defaultAttempts = 3
	defaultPause    = 500 * time.Millisecond
)

// Config describes the bucket resumes are stored in.
type Config struct {
	Bucket string
	// Endpoint overrides the service URL. When empty and AccountID is set,
	// the Cloudflare R2 endpoint of that account is used.
	Endpoint  string
	AccountID string
	Region    string
	Prefix    string

	AccessKey secrets.Source
	SecretKey secrets.Source
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type upload struct {
	hash string
	key  string
}

// Store uploads local files once per content and remembers their keys.
type Store struct {
	api      objectAPI
	bucket   string
	prefix   string
	logger   *zap.Logger
	newID    func() string
	attempts int
	pause    time.Duration

	mu      sync.Mutex
	uploads map[string]upload
}

// New creates a Store from cfg. Without static keys the default AWS
// credential chain is used.
func New(ctx context.Context, cfg Config, l *zap.Logger) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	accessKey, err := secrets.Optional(cfg.AccessKey)
	if err != nil {
		return nil, err
	}
	secretKey, err := secrets.Optional(cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey != "" || secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" && strings.TrimSpace(cfg.AccountID) != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", strings.TrimSpace(cfg.AccountID))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newStore(client, bucket, cfg.Prefix, l), nil
}

func newStore(api objectAPI, bucket, prefix string, l *zap.Logger) *Store {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Store{
		api:      api,
		bucket:   bucket,
		prefix:   prefix,
		logger:   logger.OrNop(l),
		newID:    uuid.NewString,
		attempts: defaultAttempts,
		pause:    defaultPause,
		uploads:  make(map[string]upload),
	}
}

// Ensure uploads the file at localPath unless its current content was
// uploaded before, and returns the object key.
func (s *Store) Ensure(ctx context.Context, localPath string) (string, error) {
	if err := document.Check(localPath); err != nil {
		return "", err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}

	sum := sha256.Sum256(data)
	hash := fmt.Sprintf("%x", sum[:])

	abs, err := filepath.Abs(localPath)
	if err != nil {
		abs = localPath
	}

	s.mu.Lock()
	if existing, ok := s.uploads[abs]; ok && existing.hash == hash {
		s.mu.Unlock()
		s.logger.Debug("reusing uploaded resume", zap.String("key", existing.key))
		return existing.key, nil
	}
	s.mu.Unlock()

	contentType, err := document.ContentType(localPath)
	if err != nil {
		return "", err
	}

	key := path.Join(s.prefix, s.newID()+strings.ToLower(filepath.Ext(localPath)))

	_, err = utils.Retry(ctx, s.attempts, s.pause, func() (*s3.PutObjectOutput, error) {
		return s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
			Metadata:    map[string]string{"sha256": hash},
		})
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filepath.Base(localPath), err)
	}

	s.mu.Lock()
	s.uploads[abs] = upload{hash: hash, key: key}
	s.mu.Unlock()

	s.logger.Info("resume uploaded", zap.String("key", key), zap.Int("bytes", len(data)))

	return key, nil
}

// Download fetches the object stored under key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("object key is required")
	}

	data, err := utils.Retry(ctx, s.attempts, s.pause, func() ([]byte, error) {
		out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get object: %w", err)
		}
		defer out.Body.Close()

		data, err := io.ReadAll(io.LimitReader(out.Body, document.MaxSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read object body: %w", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}

	return data, nil
}
