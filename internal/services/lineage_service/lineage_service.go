package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/lib/logger/sl"
	"gallery_planner/internal/repository"
	media_service "gallery_planner/internal/services/media_service"
	"gallery_planner/internal/storage"
	filestorage "gallery_planner/internal/storage/filestorage"

	"github.com/google/uuid"
)

const maxDescriptorLen = 64

// VariantIngestor прогоняет байты варианта через конвейер производных
type VariantIngestor interface {
	IngestVariant(ctx context.Context, in media_service.VariantInput) (*models.Media, error)
}

type LineageService struct {
	log         *slog.Logger
	media       repository.MediaRepository
	slots       repository.SlotRepository
	fileStorage filestorage.FileStorage
	ingestor    VariantIngestor
}

func NewLineageService(
	log *slog.Logger,
	media repository.MediaRepository,
	slots repository.SlotRepository,
	fileStorage filestorage.FileStorage,
	ingestor VariantIngestor,
) *LineageService {
	return &LineageService{
		log:         log,
		media:       media,
		slots:       slots,
		fileStorage: fileStorage,
		ingestor:    ingestor,
	}
}

// CreateVariant сохраняет преобразованную копию медиа. Вариант варианта
// привязывается к корневому оригиналу, так что глубина линии всегда один.
func (s *LineageService) CreateVariant(ctx context.Context, parentID uuid.UUID, data []byte, descriptor string) (*models.Media, error) {
	const op = "service.LineageService.CreateVariant"

	log := s.log.With(
		slog.String("op", op),
		slog.String("parent_id", parentID.String()),
	)

	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" || len(descriptor) > maxDescriptorLen {
		return nil, fmt.Errorf("%s: %w: descriptor must be 1-%d characters", op, models.ErrValidation, maxDescriptorLen)
	}

	parent, err := s.root(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	variant, err := s.ingestor.IngestVariant(ctx, media_service.VariantInput{
		Parent:     parent,
		Descriptor: descriptor,
		Data:       data,
	})
	if err != nil {
		log.Warn("failed to create variant", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("variant created",
		slog.String("variant_id", variant.ID.String()),
		slog.String("root_id", parent.ID.String()),
	)

	return variant, nil
}

// root возвращает корневой оригинал для mediaID
func (s *LineageService) root(ctx context.Context, mediaID uuid.UUID) (*models.Media, error) {
	m, err := s.getMedia(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if !m.IsVariant {
		return m, nil
	}
	if m.ParentMediaID == nil {
		return nil, fmt.Errorf("%w: variant %s has no parent", models.ErrValidation, m.ID)
	}
	return s.getMedia(ctx, *m.ParentMediaID)
}

func (s *LineageService) getMedia(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	m, err := s.media.GetMediaByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, models.ErrNotFoundOrAccessDenied
		}
		return nil, err
	}
	return m, nil
}

// DeleteMedia удаляет медиа, а для оригинала и все его варианты.
// Ошибки удаления файлов логируются и не мешают удалению записей.
func (s *LineageService) DeleteMedia(ctx context.Context, mediaID uuid.UUID) error {
	const op = "service.LineageService.DeleteMedia"

	log := s.log.With(
		slog.String("op", op),
		slog.String("media_id", mediaID.String()),
	)

	target, err := s.getMedia(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	doomed := []models.Media{*target}
	if !target.IsVariant {
		variants, err := s.media.ListVariants(ctx, target.ID)
		if err != nil {
			log.Error("failed to list variants", sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
		// варианты уходят раньше родителя
		doomed = append(variants, doomed...)
	}

	ids := make([]uuid.UUID, 0, len(doomed))
	for _, m := range doomed {
		s.deleteArtifacts(ctx, log, m)
		ids = append(ids, m.ID)
	}

	removed, err := s.media.DeleteMedia(ctx, ids...)
	if err != nil {
		log.Error("failed to delete media records", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.detach(ctx, target.GalleryID, ids); err != nil {
		log.Error("failed to detach media from slots", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("media deleted", slog.Int("records", removed))

	return nil
}

func (s *LineageService) deleteArtifacts(ctx context.Context, log *slog.Logger, m models.Media) {
	for _, rel := range m.ArtifactPaths() {
		if err := s.fileStorage.Delete(ctx, rel); err != nil {
			if errors.Is(err, storage.ErrArtifactNotFound) {
				log.Debug("artifact already absent", slog.String("path", rel))
				continue
			}
			log.Warn("failed to delete artifact",
				slog.String("media_id", m.ID.String()),
				slog.String("path", rel),
				sl.Err(err),
			)
		}
	}
}

// detach убирает ids из списков изображений всех слотов галереи.
// Каждый слот перечитывается прямо перед записью.
func (s *LineageService) detach(ctx context.Context, galleryID uuid.UUID, ids []uuid.UUID) error {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	slots, err := s.slots.ListSlots(ctx, galleryID)
	if err != nil {
		return err
	}

	for _, listed := range slots {
		if _, changed := listed.Images.Without(set); !changed {
			continue
		}

		current, err := s.slots.GetSlotByID(ctx, listed.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return err
		}

		images, changed := current.Images.Without(set)
		if !changed {
			continue
		}
		if err := s.slots.UpdateSlotImages(ctx, current.ID, images); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	return nil
}

func (s *LineageService) ListVariants(ctx context.Context, mediaID uuid.UUID) ([]models.Media, error) {
	const op = "service.LineageService.ListVariants"

	root, err := s.root(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	variants, err := s.media.ListVariants(ctx, root.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return variants, nil
}
