package repository

import (
	"context"
	"time"

	"gallery_planner/internal/domain/models"

	"github.com/google/uuid"
)

// Ни одна таблица не связана внешними ключами: удаление галереи оставляет
// детей, которые подчищает reconcile_service. Методы *Orphan* проверяют
// существование галереи подзапросом и трогают только строки старше отсечки.

type GalleryRepository interface {
	CreateGallery(ctx context.Context, gallery models.Gallery) error
	GetGalleryByID(ctx context.Context, id uuid.UUID) (models.Gallery, error)
	ListGalleriesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Gallery, error)
	UpdateGalleryFields(ctx context.Context, id uuid.UUID, patch models.GalleryPatch) error
	SetNextSlotIndex(ctx context.Context, id uuid.UUID, next int) error
	DeleteGallery(ctx context.Context, id uuid.UUID) error
}

type SlotRepository interface {
	CreateSlot(ctx context.Context, slot models.Slot) error
	GetSlotByID(ctx context.Context, id uuid.UUID) (models.Slot, error)
	GetSlotByIndex(ctx context.Context, galleryID uuid.UUID, idx int) (models.Slot, error)
	ListSlots(ctx context.Context, galleryID uuid.UUID) ([]models.Slot, error)
	UpdateSlotImages(ctx context.Context, id uuid.UUID, images models.SlotImages) error
	UpdateSlotFields(ctx context.Context, id uuid.UUID, patch models.SlotPatch) error
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	DeleteSlotsByGallery(ctx context.Context, galleryID uuid.UUID) (int, error)
	DeleteOrphanSlots(ctx context.Context, createdBefore time.Time) (int, error)
}

type MediaRepository interface {
	CreateMedia(ctx context.Context, media *models.Media) error
	GetMediaByID(ctx context.Context, id uuid.UUID) (*models.Media, error)
	FindOriginalByFilename(ctx context.Context, galleryID uuid.UUID, filename string) (*models.Media, error)
	ListMediaByGallery(ctx context.Context, galleryID uuid.UUID) ([]models.Media, error)
	ListVariants(ctx context.Context, parentID uuid.UUID) ([]models.Media, error)
	ListOrphanMedia(ctx context.Context, uploadedBefore time.Time) ([]models.Media, error)
	DeleteMedia(ctx context.Context, ids ...uuid.UUID) (int, error)
	DeleteMediaByGallery(ctx context.Context, galleryID uuid.UUID) (int, error)
}

type CalendarRepository interface {
	AddEntry(ctx context.Context, entry models.CalendarEntry) error
	DeleteEntry(ctx context.Context, galleryID uuid.UUID, date, letter string) error
	ListRange(ctx context.Context, from, to string) ([]models.CalendarEntry, error)
	ListByGallery(ctx context.Context, galleryID uuid.UUID) ([]models.CalendarEntry, error)
	DeleteByGallery(ctx context.Context, galleryID uuid.UUID) (int, error)
	DeleteBySlot(ctx context.Context, galleryID uuid.UUID, letter string) (int, error)
	DeleteOrphanEntries(ctx context.Context, createdBefore time.Time) (int, error)
}
