package service

import (
	"context"
	"errors"

	"github.com/samancikme/fizika/internal/apperror"
	"github.com/samancikme/fizika/internal/imaging"
	"github.com/samancikme/fizika/internal/storage"
)

// ImageService compresses question images and keeps them in a
// content-addressed blob store.
type ImageService struct {
	store storage.BlobStore
	opts  imaging.Options
}

func NewImageService(store storage.BlobStore, maxDimension, maxSize int) *ImageService {
	return &ImageService{
		store: store,
		opts:  imaging.Options{MaxDimension: maxDimension, MaxSize: maxSize},
	}
}

func (s *ImageService) Save(ctx context.Context, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", apperror.InvalidInput("image is empty")
	}
	id, err := s.store.Store(ctx, imaging.Compress(raw, s.opts))
	if err != nil {
		return "", apperror.Unavailable(err, "failed to store image")
	}
	return id, nil
}

func (s *ImageService) Load(ctx context.Context, id string) ([]byte, error) {
	if !storage.IsValidID(id) {
		return nil, apperror.InvalidInput("invalid image id")
	}
	data, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, apperror.NotFound("image %s not found", id)
		}
		return nil, apperror.Unavailable(err, "failed to load image")
	}
	return data, nil
}

func (s *ImageService) Count(ctx context.Context) (int64, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, apperror.Unavailable(err, "failed to count images")
	}
	return n, nil
}
