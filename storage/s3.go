package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/certificate-registry/interfaces"
)

// S3Store keeps documents in an S3 (or S3-compatible) bucket.
// Objects are keyed by their CID under an optional prefix.
type S3Store struct {
	client         *s3.S3
	writeClient    *s3.S3
	bucketName     string
	prefix         string
	log            *slog.Logger
	locationURI    string
	hasWriteAccess bool
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PathStyle addresses the bucket in the path, as MinIO and most emulators expect.
	PathStyle bool
}

// NewS3Store creates an S3 store.
// Without credentials the store can only read publicly accessible objects.
func NewS3Store(opts S3Options, log *slog.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket name required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	uri := fmt.Sprintf("s3://%s/%s?region=%s", opts.Bucket, opts.Prefix, opts.Region)
	if opts.AccessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", opts.AccessKey, opts.Bucket, opts.Prefix, opts.Region)
	}
	if opts.Endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", opts.Endpoint)
	}

	baseCfg := aws.Config{
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(opts.PathStyle),
	}
	if opts.Endpoint != "" {
		baseCfg.Endpoint = aws.String(opts.Endpoint)
	}

	baseSess, err := session.NewSession(&baseCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	readClient := s3.New(baseSess)

	hasWriteAccess := opts.AccessKey != "" && opts.SecretKey != ""
	writeClient := readClient
	if hasWriteAccess {
		writeCfg := baseCfg.Copy()
		writeCfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")

		writeSess, err := session.NewSession(writeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS write session: %w", err)
		}
		writeClient = s3.New(writeSess)
	} else {
		log.Warn("No S3 credentials provided - uploads will fail unless the bucket is publicly writable",
			slog.String("bucket", opts.Bucket))
	}

	return &S3Store{
		client:         readClient,
		writeClient:    writeClient,
		bucketName:     opts.Bucket,
		prefix:         strings.Trim(opts.Prefix, "/"),
		log:            log,
		locationURI:    uri,
		hasWriteAccess: hasWriteAccess,
	}, nil
}

// Fetch retrieves the object stored under contentHash.
func (s *S3Store) Fetch(ctx context.Context, contentHash string) ([]byte, error) {
	start := time.Now()
	key := s.objectKey(contentHash)

	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			s.log.Debug("Content not found in S3",
				slog.String("bucket", s.bucketName),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, contentHash)
		}

		s.log.Error("Failed to get object from S3",
			slog.String("bucket", s.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: failed to get object from S3: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	s.log.Debug("Fetched content from S3",
		slog.String("bucket", s.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Store uploads data under its CID. Objects are publicly readable so that
// certificate links can be shared.
func (s *S3Store) Store(ctx context.Context, data []byte, filename string) (string, error) {
	hash, err := ComputeCID(data)
	if err != nil {
		return "", err
	}
	key := s.objectKey(hash)

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.writeClient.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ACL:         aws.String("public-read"),
		ContentType: aws.String(contentType),
		Metadata:    map[string]*string{"filename": aws.String(filename)},
	})
	if err != nil {
		if !s.hasWriteAccess {
			return "", fmt.Errorf("failed to upload object to S3 (no write credentials provided): %w", err)
		}
		return "", fmt.Errorf("%w: failed to upload object to S3: %v", interfaces.ErrBackendUnavailable, err)
	}

	s.log.Debug("Stored content in S3",
		slog.String("bucket", s.bucketName),
		slog.String("key", key),
		slog.String("contentHash", hash))
	return hash, nil
}

// Available heads the bucket.
func (s *S3Store) Available(ctx context.Context) bool {
	start := time.Now()
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})
	if err != nil {
		s.log.Warn("S3 store unavailable",
			slog.String("bucket", s.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}
	return true
}

func (s *S3Store) Name() string {
	return fmt.Sprintf("s3-%s", s.bucketName)
}

func (s *S3Store) LocationURI() string {
	return s.locationURI
}

func (s *S3Store) objectKey(contentHash string) string {
	if s.prefix == "" {
		return contentHash
	}
	return path.Join(s.prefix, contentHash)
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
