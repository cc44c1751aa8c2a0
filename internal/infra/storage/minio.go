package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
)

var _ analysis.Archive = (*Store)(nil)

// Store archives analysis documents in an S3-compatible bucket.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string
}

// New connects to MinIO and makes sure the bucket exists
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region, prefix: "analyses"}, nil
}

// Upload writes data under key and returns the object URL
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}

	// public URL if the bucket is public, private buckets need a presigned URL
	url := fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucketName, key)
	return url, nil
}

// Store implements analysis.Archive
func (s *Store) Store(ctx context.Context, r *analysis.Result) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode analysis: %w", err)
	}
	return s.Upload(ctx, ObjectKey(s.prefix, r), b, "application/json")
}

// Check verifies the bucket is reachable; used by the readiness endpoint.
func (s *Store) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucketName)
	}
	return nil
}

// ObjectKey places an analysis under prefix/<user>/<analysis id>.json
func ObjectKey(prefix string, r *analysis.Result) string {
	user := r.UserID
	if user == "" {
		user = "anonymous"
	}
	return path.Join(prefix, user, r.ID+".json")
}
