package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// MinioStore keeps blobs as objects named by content id.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

func (s *MinioStore) Store(ctx context.Context, data []byte) (string, error) {
	id := ContentID(data)

	_, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err == nil {
		return id, nil
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return "", fmt.Errorf("failed to check object %s: %w", id, err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, id, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", id, err)
	}
	return id, nil
}

func (s *MinioStore) Load(ctx context.Context, id string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read object %s: %w", id, err)
	}
	return data, nil
}

func (s *MinioStore) Count(ctx context.Context) (int64, error) {
	var n int64
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{}) {
		if object.Err != nil {
			return 0, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		n++
	}
	return n, nil
}
