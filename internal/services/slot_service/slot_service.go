package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/lib/logger/sl"
	"gallery_planner/internal/metrics"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/storage"

	"github.com/google/uuid"
)

type SlotService struct {
	log       *slog.Logger
	galleries repository.GalleryRepository
	slots     repository.SlotRepository
	media     repository.MediaRepository
	calendar  repository.CalendarRepository
}

func NewSlotService(
	log *slog.Logger,
	galleries repository.GalleryRepository,
	slots repository.SlotRepository,
	media repository.MediaRepository,
	calendar repository.CalendarRepository,
) *SlotService {
	return &SlotService{
		log:       log,
		galleries: galleries,
		slots:     slots,
		media:     media,
		calendar:  calendar,
	}
}

// Allocate выдаёт слот с первым свободным индексом галереи.
// Кэш NextSlotIndex не используется: занятые индексы всегда перечитываются.
func (s *SlotService) Allocate(ctx context.Context, galleryID uuid.UUID) (models.Slot, error) {
	const op = "service.SlotService.Allocate"

	log := s.log.With(
		slog.String("op", op),
		slog.String("gallery_id", galleryID.String()),
	)

	if _, err := s.galleries.GetGalleryByID(ctx, galleryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Slot{}, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		log.Error("failed to load gallery", sl.Err(err))
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := s.slots.ListSlots(ctx, galleryID)
	if err != nil {
		log.Error("failed to list slots", sl.Err(err))
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	idx := firstFreeIndex(existing)
	if idx < 0 {
		metrics.SlotAllocations.WithLabelValues("capacity_exceeded").Inc()
		log.Info("gallery is full")
		return models.Slot{}, fmt.Errorf("%s: %w", op, models.ErrCapacityExceeded)
	}

	now := time.Now().UTC()
	slot := models.Slot{
		ID:        uuid.New(),
		GalleryID: galleryID,
		Letter:    models.SlotLetter(idx),
		Index:     idx,
		Images:    models.SlotImages{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.slots.CreateSlot(ctx, slot)
	switch {
	case err == nil:
		metrics.SlotAllocations.WithLabelValues("created").Inc()
		log.Info("slot allocated", slog.String("letter", slot.Letter))
	case errors.Is(err, storage.ErrAlreadyExists):
		// параллельный Allocate занял тот же индекс: отдаём его слот
		slot, err = s.slots.GetSlotByIndex(ctx, galleryID, idx)
		if err != nil {
			log.Error("failed to re-read concurrently allocated slot", sl.Err(err))
			return models.Slot{}, fmt.Errorf("%s: %w", op, err)
		}
		metrics.SlotAllocations.WithLabelValues("raced").Inc()
		log.Info("slot allocated concurrently, returning existing", slog.String("letter", slot.Letter))
	default:
		log.Error("failed to create slot", sl.Err(err))
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	s.refreshHintBestEffort(ctx, log, galleryID)

	return slot, nil
}

// DeleteSlot удаляет слот и его записи в календаре, затем пересчитывает подсказку
func (s *SlotService) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	const op = "service.SlotService.DeleteSlot"

	log := s.log.With(
		slog.String("op", op),
		slog.String("slot_id", slotID.String()),
	)

	slot, err := s.GetSlot(ctx, slotID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.slots.DeleteSlot(ctx, slotID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		log.Error("failed to delete slot", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if n, err := s.calendar.DeleteBySlot(ctx, slot.GalleryID, slot.Letter); err != nil {
		// остатки подберёт reconciler
		log.Warn("failed to delete calendar entries of slot", sl.Err(err))
	} else if n > 0 {
		log.Debug("calendar entries removed", slog.Int("count", n))
	}

	s.refreshHintBestEffort(ctx, log, slot.GalleryID)

	log.Info("slot deleted", slog.String("letter", slot.Letter))
	return nil
}

func (s *SlotService) GetSlot(ctx context.Context, slotID uuid.UUID) (models.Slot, error) {
	const op = "service.SlotService.GetSlot"

	slot, err := s.slots.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Slot{}, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	return slot, nil
}

// ListSlots возвращает слоты галереи по возрастанию индекса
func (s *SlotService) ListSlots(ctx context.Context, galleryID uuid.UUID) ([]models.Slot, error) {
	const op = "service.SlotService.ListSlots"

	slots, err := s.slots.ListSlots(ctx, galleryID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return slots, nil
}

// AttachMedia добавляет медиа в конец списка слота; повторный вызов ничего не меняет
func (s *SlotService) AttachMedia(ctx context.Context, slotID, mediaID uuid.UUID) (models.Slot, error) {
	const op = "service.SlotService.AttachMedia"

	log := s.log.With(
		slog.String("op", op),
		slog.String("slot_id", slotID.String()),
		slog.String("media_id", mediaID.String()),
	)

	slot, err := s.GetSlot(ctx, slotID)
	if err != nil {
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	media, err := s.media.GetMediaByID(ctx, mediaID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Slot{}, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}
	if media.GalleryID != slot.GalleryID {
		return models.Slot{}, fmt.Errorf("%s: %w: media belongs to another gallery", op, models.ErrValidation)
	}

	if slot.Images.Contains(mediaID) {
		return slot, nil
	}

	slot.Images = append(slot.Images, models.SlotImage{MediaID: mediaID, Order: slot.Images.NextOrder()})
	if err := s.slots.UpdateSlotImages(ctx, slotID, slot.Images); err != nil {
		log.Error("failed to update slot images", sl.Err(err))
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("media attached to slot")
	return slot, nil
}

// ReorderImages переписывает порядок; mediaIDs должен совпадать с текущим набором
func (s *SlotService) ReorderImages(ctx context.Context, slotID uuid.UUID, mediaIDs []uuid.UUID) (models.Slot, error) {
	const op = "service.SlotService.ReorderImages"

	log := s.log.With(
		slog.String("op", op),
		slog.String("slot_id", slotID.String()),
	)

	// текущий документ читается непосредственно перед записью
	slot, err := s.GetSlot(ctx, slotID)
	if err != nil {
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	if len(mediaIDs) != len(slot.Images) {
		return models.Slot{}, fmt.Errorf("%s: %w: expected %d media ids, got %d", op, models.ErrValidation, len(slot.Images), len(mediaIDs))
	}

	seen := make(map[uuid.UUID]struct{}, len(mediaIDs))
	reordered := make(models.SlotImages, 0, len(mediaIDs))
	for i, id := range mediaIDs {
		if _, dup := seen[id]; dup {
			return models.Slot{}, fmt.Errorf("%s: %w: duplicate media id %s", op, models.ErrValidation, id)
		}
		if !slot.Images.Contains(id) {
			return models.Slot{}, fmt.Errorf("%s: %w: media %s is not in the slot", op, models.ErrValidation, id)
		}
		seen[id] = struct{}{}
		reordered = append(reordered, models.SlotImage{MediaID: id, Order: i})
	}

	if err := s.slots.UpdateSlotImages(ctx, slotID, reordered); err != nil {
		log.Error("failed to update slot images", sl.Err(err))
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	slot.Images = reordered
	return slot, nil
}

// UpdateSlot меняет только текстовые поля из белого списка
func (s *SlotService) UpdateSlot(ctx context.Context, slotID uuid.UUID, patch models.SlotPatch) (models.Slot, error) {
	const op = "service.SlotService.UpdateSlot"

	log := s.log.With(
		slog.String("op", op),
		slog.String("slot_id", slotID.String()),
	)

	if err := s.slots.UpdateSlotFields(ctx, slotID, patch); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Slot{}, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		log.Error("failed to update slot", sl.Err(err))
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetSlot(ctx, slotID)
}

// RefreshHint пересчитывает NextSlotIndex по живым слотам.
// Значение SlotCapacity означает, что галерея заполнена.
func (s *SlotService) RefreshHint(ctx context.Context, galleryID uuid.UUID) (int, error) {
	const op = "service.SlotService.RefreshHint"

	existing, err := s.slots.ListSlots(ctx, galleryID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	next := firstFreeIndex(existing)
	if next < 0 {
		next = models.SlotCapacity
	}

	if err := s.galleries.SetNextSlotIndex(ctx, galleryID, next); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return next, nil
}

func (s *SlotService) refreshHintBestEffort(ctx context.Context, log *slog.Logger, galleryID uuid.UUID) {
	if _, err := s.RefreshHint(ctx, galleryID); err != nil {
		log.Warn("failed to refresh next slot hint", sl.Err(err))
	}
}

// firstFreeIndex возвращает наименьший незанятый индекс или -1
func firstFreeIndex(slots []models.Slot) int {
	var occupied [models.SlotCapacity]bool
	for _, slot := range slots {
		if slot.Index >= 0 && slot.Index < models.SlotCapacity {
			occupied[slot.Index] = true
		}
	}
	for i, taken := range occupied {
		if !taken {
			return i
		}
	}
	return -1
}
