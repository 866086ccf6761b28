// Package storage reads and writes document objects in S3-compatible storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectTooLarge = errors.New("object too large")
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // default bucket for unqualified keys
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
}

// Client wraps the MinIO/S3 client.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// Object is a fetched object with its metadata.
type Object struct {
	Bucket      string
	Key         string
	ContentType string
	Size        int64
	Data        []byte
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

func (c *Client) bucketOr(bucket string) (string, error) {
	if bucket == "" {
		bucket = c.bucket
	}
	if bucket == "" {
		return "", fmt.Errorf("bucket is required")
	}
	return bucket, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	bucket, err := c.bucketOr(bucket)
	if err != nil {
		return err
	}
	exists, err := c.minioClient.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// GetObject reads an object fully. Objects larger than maxBytes (when
// positive) are rejected before download.
func (c *Client) GetObject(ctx context.Context, bucket, key string, maxBytes int64) (*Object, error) {
	bucket, err := c.bucketOr(bucket)
	if err != nil {
		return nil, err
	}

	info, err := c.minioClient.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, translate(bucket, key, err)
	}
	if maxBytes > 0 && info.Size > maxBytes {
		return nil, fmt.Errorf("s3://%s/%s is %d bytes: %w", bucket, key, info.Size, ErrObjectTooLarge)
	}

	object, err := c.minioClient.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(bucket, key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, translate(bucket, key, err)
	}

	return &Object{
		Bucket:      bucket,
		Key:         key,
		ContentType: info.ContentType,
		Size:        info.Size,
		Data:        data,
	}, nil
}

// ListObjects returns the keys under prefix, skipping directory markers.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	bucket, err := c.bucketOr(bucket)
	if err != nil {
		return nil, err
	}

	var keys []string
	objectCh := c.minioClient.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

// PutObject writes data under key.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	bucket, err := c.bucketOr(bucket)
	if err != nil {
		return err
	}
	_, err = c.minioClient.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func translate(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
}
