package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"frame-dedup/internal/retry"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3Storage struct {
	client *s3.Client
	config S3Config
}

type S3Config struct {
	Bucket string
	// Backoff and Conditions configure retries of S3 HTTP requests. The
	// defaults retry throttling, conflicts and connection failures three times.
	Backoff    retry.Backoff
	Conditions *retry.Conditions
}

func NewS3Storage(ctx context.Context, s S3Config) (Storage, error) {
	if s.Backoff == nil {
		s.Backoff = retry.NewFullJitter(100*time.Millisecond, 5*time.Second, 3)
	}
	if s.Conditions == nil {
		s.Conditions = retry.DefaultConditions()
	}

	optsFunc := []func(*config.LoadOptions) error{
		config.WithHTTPClient(retry.NewClient(http.DefaultTransport, s.Backoff, s.Conditions)),
		// retries happen in the HTTP client above
		config.WithRetryer(func() aws.Retryer {
			return aws.NopRetryer{}
		}),
	}

	s3EndpointUrl, ok := os.LookupEnv("S3_ENDPOINT_URL")
	if ok {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               s3EndpointUrl,
				HostnameImmutable: true,
			}, nil
		})
		optsFunc = append(optsFunc, config.WithEndpointResolverWithOptions(resolver))
	}

	c, err := config.LoadDefaultConfig(ctx, optsFunc...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	s3Client := s3.NewFromConfig(c, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &s3Storage{
		client: s3Client,
		config: s,
	}, nil
}

func (s *s3Storage) url(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.config.Bucket, key)
}

func (s *s3Storage) key(url string) string {
	return strings.TrimPrefix(url, fmt.Sprintf("s3://%s/", s.config.Bucket))
}

func (s *s3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	contentType := http.DetectContentType(data)

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return s.url(key), nil
}

func (s *s3Storage) Get(ctx context.Context, url string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.key(url)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	var buffer bytes.Buffer
	_, err = buffer.ReadFrom(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	return buffer.Bytes(), nil
}

// List returns the objects directly under prefix, the way a directory listing
// would. Keys below a further "/" are not included.
func (s *s3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = s.key(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var urls []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.config.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, object := range page.Contents {
			urls = append(urls, s.url(aws.ToString(object.Key)))
		}
	}

	return urls, nil
}

func (s *s3Storage) Delete(ctx context.Context, url string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.key(url)),
	}); err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}
