package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/lib/logger/sl"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/storage"

	"github.com/google/uuid"
)

const (
	defaultGridColumns = 3
	maxNameLen         = 255
)

// Purger убирает потомков удалённой галереи
type Purger interface {
	PurgeGallery(ctx context.Context, galleryID uuid.UUID) (models.ReconcileSummary, error)
	ScheduleSweep()
}

type GalleryService struct {
	log    *slog.Logger
	repo   repository.GalleryRepository
	purger Purger
}

func NewGalleryService(log *slog.Logger, repo repository.GalleryRepository, purger Purger) *GalleryService {
	return &GalleryService{
		log:    log,
		repo:   repo,
		purger: purger,
	}
}

type CreateGalleryInput struct {
	OwnerID      uuid.UUID
	Name         string
	Description  string
	GridColumns  int
	ShowCaptions bool
}

// CreateGallery создает новую галерею
func (s *GalleryService) CreateGallery(ctx context.Context, in CreateGalleryInput) (models.Gallery, error) {
	const op = "service.GalleryService.CreateGallery"
	log := s.log.With(
		slog.String("op", op),
		slog.String("owner_id", in.OwnerID.String()),
	)

	log.Info("creating gallery")

	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return models.Gallery{}, fmt.Errorf("%s: %w: name is required", op, models.ErrValidation)
	case len(name) > maxNameLen:
		return models.Gallery{}, fmt.Errorf("%s: %w: name must be %d characters or less", op, models.ErrValidation, maxNameLen)
	case in.OwnerID == uuid.Nil:
		return models.Gallery{}, fmt.Errorf("%s: %w: owner is required", op, models.ErrValidation)
	}

	columns := in.GridColumns
	if columns == 0 {
		columns = defaultGridColumns
	}
	if columns < models.MinGridColumns || columns > models.MaxGridColumns {
		return models.Gallery{}, fmt.Errorf("%s: %w: grid_columns must be between %d and %d",
			op, models.ErrValidation, models.MinGridColumns, models.MaxGridColumns)
	}

	now := time.Now().UTC()
	gallery := models.Gallery{
		ID:           uuid.New(),
		Name:         name,
		OwnerID:      in.OwnerID,
		Description:  in.Description,
		GridColumns:  columns,
		ShowCaptions: in.ShowCaptions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateGallery(ctx, gallery); err != nil {
		log.Error("failed to create gallery", sl.Err(err))
		return models.Gallery{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("gallery created successfully", slog.String("id", gallery.ID.String()))
	return gallery, nil
}

// GetGallery возвращает галерею по ID
func (s *GalleryService) GetGallery(ctx context.Context, id uuid.UUID) (models.Gallery, error) {
	const op = "service.GalleryService.GetGallery"

	gallery, err := s.repo.GetGalleryByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Gallery{}, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		s.log.Error("failed to get gallery", slog.String("op", op), sl.Err(err))
		return models.Gallery{}, fmt.Errorf("%s: %w", op, err)
	}

	return gallery, nil
}

// Owned возвращает галерею, только если она принадлежит ownerID.
// Чужая и несуществующая галереи неразличимы.
func (s *GalleryService) Owned(ctx context.Context, galleryID, ownerID uuid.UUID) (models.Gallery, error) {
	const op = "service.GalleryService.Owned"

	gallery, err := s.GetGallery(ctx, galleryID)
	if err != nil {
		return models.Gallery{}, fmt.Errorf("%s: %w", op, err)
	}
	if gallery.OwnerID != ownerID {
		return models.Gallery{}, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
	}

	return gallery, nil
}

// ListGalleries возвращает галереи владельца
func (s *GalleryService) ListGalleries(ctx context.Context, ownerID uuid.UUID) ([]models.Gallery, error) {
	const op = "service.GalleryService.ListGalleries"

	galleries, err := s.repo.ListGalleriesByOwner(ctx, ownerID)
	if err != nil {
		s.log.Error("failed to list galleries", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return galleries, nil
}

// UpdateGallery применяет частичное обновление из белого списка полей
func (s *GalleryService) UpdateGallery(ctx context.Context, id uuid.UUID, patch models.GalleryPatch) (models.Gallery, error) {
	const op = "service.GalleryService.UpdateGallery"
	log := s.log.With(
		slog.String("op", op),
		slog.String("gallery_id", id.String()),
	)

	if len(patch) == 0 {
		return models.Gallery{}, fmt.Errorf("%s: %w: nothing to update", op, models.ErrValidation)
	}

	log.Info("updating gallery", slog.Int("fields", len(patch)))

	if err := s.repo.UpdateGalleryFields(ctx, id, patch); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Gallery{}, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		log.Error("failed to update gallery", sl.Err(err))
		return models.Gallery{}, fmt.Errorf("%s: %w", op, err)
	}

	gallery, err := s.GetGallery(ctx, id)
	if err != nil {
		return models.Gallery{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("gallery updated successfully")
	return gallery, nil
}

// DeleteGallery удаляет галерею и её прямых потомков, затем запускает
// фоновую проверку на случай записей, осиротевших раньше.
func (s *GalleryService) DeleteGallery(ctx context.Context, id uuid.UUID) (models.ReconcileSummary, error) {
	const op = "service.GalleryService.DeleteGallery"
	log := s.log.With(
		slog.String("op", op),
		slog.String("gallery_id", id.String()),
	)

	log.Info("deleting gallery")

	if err := s.repo.DeleteGallery(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ReconcileSummary{}, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		log.Error("failed to delete gallery", sl.Err(err))
		return models.ReconcileSummary{}, fmt.Errorf("%s: %w", op, err)
	}

	// фоновая проверка запускается и при ошибке каскада
	defer s.purger.ScheduleSweep()

	summary, err := s.purger.PurgeGallery(ctx, id)
	if err != nil {
		log.Error("failed to purge gallery children", sl.Err(err))
		return summary, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("gallery deleted successfully")
	return summary, nil
}
