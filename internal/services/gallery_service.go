// internal/services/gallery_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/senushidinara/DreamStruct/internal/errors"
	"github.com/senushidinara/DreamStruct/internal/models"
	"github.com/senushidinara/DreamStruct/internal/storage"
)

// GalleryService reads the design archive.
type GalleryService struct {
	Store *storage.GalleryStore
}

func NewGalleryService(store *storage.GalleryStore) *GalleryService {
	return &GalleryService{Store: store}
}

// List returns the newest entries; limit is clamped to [1, storage.MaxListLimit].
func (s *GalleryService) List(ctx context.Context, limit int) ([]models.GalleryEntry, error) {
	if s.Store == nil {
		return nil, apperrors.NewUnavailableError("gallery is not available", nil)
	}
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	limit = min(limit, storage.MaxListLimit)

	entries, err := s.Store.List(ctx, limit)
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to list gallery", err)
	}
	return entries, nil
}

// Get returns one archived design.
func (s *GalleryService) Get(ctx context.Context, id string) (models.GalleryEntry, error) {
	if s.Store == nil {
		return models.GalleryEntry{}, apperrors.NewUnavailableError("gallery is not available", nil)
	}

	entry, err := s.Store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.GalleryEntry{}, apperrors.NewNotFoundError(fmt.Sprintf("gallery entry %s not found", id), err)
	}
	if err != nil {
		return models.GalleryEntry{}, apperrors.NewProcessingError("failed to load gallery entry", err)
	}
	return entry, nil
}
