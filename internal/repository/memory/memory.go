// Package memory is an in-memory implementation of the repository interfaces.
// It enforces the same unique constraints as the PostgreSQL schema and is
// safe for concurrent use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/storage"

	"github.com/google/uuid"
)

type calendarKey struct {
	galleryID uuid.UUID
	date      string
	letter    string
}

// Store keeps every table in maps guarded by a single lock.
type Store struct {
	mu        sync.RWMutex
	galleries map[uuid.UUID]models.Gallery
	slots     map[uuid.UUID]models.Slot
	media     map[uuid.UUID]models.Media
	calendar  map[calendarKey]models.CalendarEntry
}

var (
	_ repository.GalleryRepository  = (*Store)(nil)
	_ repository.SlotRepository     = (*Store)(nil)
	_ repository.MediaRepository    = (*Store)(nil)
	_ repository.CalendarRepository = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		galleries: make(map[uuid.UUID]models.Gallery),
		slots:     make(map[uuid.UUID]models.Slot),
		media:     make(map[uuid.UUID]models.Media),
		calendar:  make(map[calendarKey]models.CalendarEntry),
	}
}

// NewRepository wires one Store behind every repository interface.
func NewRepository() (*repository.Repository, *Store) {
	s := NewStore()
	return &repository.Repository{
		Gallery:  s,
		Slot:     s,
		Media:    s,
		Calendar: s,
	}, s
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

func alreadyExists(op, what string) error {
	return fmt.Errorf("%s: %w: %s", op, storage.ErrAlreadyExists, what)
}

// --- galleries ---

func (s *Store) CreateGallery(ctx context.Context, gallery models.Gallery) error {
	const op = "repository.memory.CreateGallery"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.galleries[gallery.ID]; ok {
		return alreadyExists(op, "galleries_pkey")
	}
	s.galleries[gallery.ID] = gallery
	return nil
}

func (s *Store) GetGalleryByID(ctx context.Context, id uuid.UUID) (models.Gallery, error) {
	const op = "repository.memory.GetGalleryByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.galleries[id]
	if !ok {
		return models.Gallery{}, notFound(op)
	}
	return g, nil
}

func (s *Store) ListGalleriesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Gallery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Gallery
	for _, g := range s.galleries {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateGalleryFields(ctx context.Context, id uuid.UUID, patch models.GalleryPatch) error {
	const op = "repository.memory.UpdateGalleryFields"

	if len(patch) == 0 {
		return fmt.Errorf("%s: %w: no fields to update", op, models.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.galleries[id]
	if !ok {
		return notFound(op)
	}

	for field, value := range patch {
		var typeOK bool
		switch field {
		case models.GalleryFieldName:
			g.Name, typeOK = value.(string)
		case models.GalleryFieldDescription:
			g.Description, typeOK = value.(string)
		case models.GalleryFieldActiveSlot:
			g.ActiveSlot, typeOK = value.(*string)
		case models.GalleryFieldGridColumns:
			g.GridColumns, typeOK = value.(int)
		case models.GalleryFieldShowCaptions:
			g.ShowCaptions, typeOK = value.(bool)
		}
		if !typeOK {
			return fmt.Errorf("%s: %w: field '%s'", op, models.ErrValidation, field)
		}
	}
	g.UpdatedAt = time.Now().UTC()
	s.galleries[id] = g
	return nil
}

func (s *Store) SetNextSlotIndex(ctx context.Context, id uuid.UUID, next int) error {
	const op = "repository.memory.SetNextSlotIndex"

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.galleries[id]
	if !ok {
		return notFound(op)
	}
	g.NextSlotIndex = next
	s.galleries[id] = g
	return nil
}

func (s *Store) DeleteGallery(ctx context.Context, id uuid.UUID) error {
	const op = "repository.memory.DeleteGallery"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.galleries[id]; !ok {
		return notFound(op)
	}
	delete(s.galleries, id)
	return nil
}

// --- slots ---

func (s *Store) CreateSlot(ctx context.Context, slot models.Slot) error {
	const op = "repository.memory.CreateSlot"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[slot.ID]; ok {
		return alreadyExists(op, "slots_pkey")
	}
	for _, existing := range s.slots {
		if existing.GalleryID != slot.GalleryID {
			continue
		}
		if existing.Index == slot.Index {
			return alreadyExists(op, "uq_slots_gallery_idx")
		}
		if existing.Letter == slot.Letter {
			return alreadyExists(op, "uq_slots_gallery_letter")
		}
	}
	if slot.Images == nil {
		slot.Images = models.SlotImages{}
	}
	s.slots[slot.ID] = slot
	return nil
}

func (s *Store) GetSlotByID(ctx context.Context, id uuid.UUID) (models.Slot, error) {
	const op = "repository.memory.GetSlotByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[id]
	if !ok {
		return models.Slot{}, notFound(op)
	}
	return cloneSlot(slot), nil
}

func (s *Store) GetSlotByIndex(ctx context.Context, galleryID uuid.UUID, idx int) (models.Slot, error) {
	const op = "repository.memory.GetSlotByIndex"

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, slot := range s.slots {
		if slot.GalleryID == galleryID && slot.Index == idx {
			return cloneSlot(slot), nil
		}
	}
	return models.Slot{}, notFound(op)
}

func (s *Store) ListSlots(ctx context.Context, galleryID uuid.UUID) ([]models.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Slot
	for _, slot := range s.slots {
		if slot.GalleryID == galleryID {
			out = append(out, cloneSlot(slot))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) UpdateSlotImages(ctx context.Context, id uuid.UUID, images models.SlotImages) error {
	const op = "repository.memory.UpdateSlotImages"

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return notFound(op)
	}
	slot.Images = append(models.SlotImages{}, images...)
	slot.UpdatedAt = time.Now().UTC()
	s.slots[id] = slot
	return nil
}

func (s *Store) UpdateSlotFields(ctx context.Context, id uuid.UUID, patch models.SlotPatch) error {
	const op = "repository.memory.UpdateSlotFields"

	if len(patch) == 0 {
		return fmt.Errorf("%s: %w: no fields to update", op, models.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return notFound(op)
	}
	for field, value := range patch {
		switch field {
		case models.SlotFieldDescription:
			slot.Description = value
		case models.SlotFieldCaption:
			slot.Caption = value
		case models.SlotFieldHashtags:
			slot.Hashtags = value
		default:
			return fmt.Errorf("%s: %w: field '%s'", op, models.ErrValidation, field)
		}
	}
	slot.UpdatedAt = time.Now().UTC()
	s.slots[id] = slot
	return nil
}

func (s *Store) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	const op = "repository.memory.DeleteSlot"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[id]; !ok {
		return notFound(op)
	}
	delete(s.slots, id)
	return nil
}

func (s *Store) DeleteSlotsByGallery(ctx context.Context, galleryID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, slot := range s.slots {
		if slot.GalleryID == galleryID {
			delete(s.slots, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteOrphanSlots(ctx context.Context, createdBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, slot := range s.slots {
		if _, ok := s.galleries[slot.GalleryID]; ok || !slot.CreatedAt.Before(createdBefore) {
			continue
		}
		delete(s.slots, id)
		n++
	}
	return n, nil
}

func cloneSlot(slot models.Slot) models.Slot {
	slot.Images = append(models.SlotImages{}, slot.Images...)
	return slot
}

// --- media ---

func (s *Store) CreateMedia(ctx context.Context, media *models.Media) error {
	const op = "repository.memory.CreateMedia"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.media[media.ID]; ok {
		return alreadyExists(op, "media_pkey")
	}
	for _, existing := range s.media {
		if existing.StoredFilename == media.StoredFilename {
			return alreadyExists(op, "uq_media_stored_filename")
		}
	}
	s.media[media.ID] = *media
	return nil
}

func (s *Store) GetMediaByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	const op = "repository.memory.GetMediaByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.media[id]
	if !ok {
		return nil, notFound(op)
	}
	return &m, nil
}

func (s *Store) FindOriginalByFilename(ctx context.Context, galleryID uuid.UUID, filename string) (*models.Media, error) {
	const op = "repository.memory.FindOriginalByFilename"

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.media {
		if m.GalleryID == galleryID && m.OriginalFilename == filename && !m.IsVariant {
			return &m, nil
		}
	}
	return nil, notFound(op)
}

func (s *Store) ListMediaByGallery(ctx context.Context, galleryID uuid.UUID) ([]models.Media, error) {
	return s.listMedia(func(m models.Media) bool { return m.GalleryID == galleryID }), nil
}

func (s *Store) ListVariants(ctx context.Context, parentID uuid.UUID) ([]models.Media, error) {
	return s.listMedia(func(m models.Media) bool {
		return m.ParentMediaID != nil && *m.ParentMediaID == parentID
	}), nil
}

// ListOrphanMedia: match вызывается под s.mu, галереи читаются напрямую
func (s *Store) ListOrphanMedia(ctx context.Context, uploadedBefore time.Time) ([]models.Media, error) {
	return s.listMedia(func(m models.Media) bool {
		_, ok := s.galleries[m.GalleryID]
		return !ok && m.UploadedAt.Before(uploadedBefore)
	}), nil
}

func (s *Store) listMedia(match func(models.Media) bool) []models.Media {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Media
	for _, m := range s.media {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out
}

func (s *Store) DeleteMedia(ctx context.Context, ids ...uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := s.media[id]; ok {
			delete(s.media, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteMediaByGallery(ctx context.Context, galleryID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, m := range s.media {
		if m.GalleryID == galleryID {
			delete(s.media, id)
			n++
		}
	}
	return n, nil
}

// --- calendar ---

func (s *Store) AddEntry(ctx context.Context, entry models.CalendarEntry) error {
	key := calendarKey{galleryID: entry.GalleryID, date: entry.Date, letter: entry.SlotLetter}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calendar[key]; !ok {
		s.calendar[key] = entry
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, galleryID uuid.UUID, date, letter string) error {
	const op = "repository.memory.DeleteEntry"

	key := calendarKey{galleryID: galleryID, date: date, letter: letter}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calendar[key]; !ok {
		return notFound(op)
	}
	delete(s.calendar, key)
	return nil
}

func (s *Store) ListRange(ctx context.Context, from, to string) ([]models.CalendarEntry, error) {
	// ISO даты сравниваются лексикографически
	return s.listEntries(func(e models.CalendarEntry) bool { return e.Date >= from && e.Date <= to }), nil
}

func (s *Store) ListByGallery(ctx context.Context, galleryID uuid.UUID) ([]models.CalendarEntry, error) {
	return s.listEntries(func(e models.CalendarEntry) bool { return e.GalleryID == galleryID }), nil
}

func (s *Store) listEntries(match func(models.CalendarEntry) bool) []models.CalendarEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.CalendarEntry
	for _, e := range s.calendar {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].SlotLetter < out[j].SlotLetter
	})
	return out
}

func (s *Store) DeleteByGallery(ctx context.Context, galleryID uuid.UUID) (int, error) {
	return s.deleteEntries(func(e models.CalendarEntry) bool { return e.GalleryID == galleryID }), nil
}

func (s *Store) DeleteBySlot(ctx context.Context, galleryID uuid.UUID, letter string) (int, error) {
	return s.deleteEntries(func(e models.CalendarEntry) bool {
		return e.GalleryID == galleryID && e.SlotLetter == letter
	}), nil
}

func (s *Store) DeleteOrphanEntries(ctx context.Context, createdBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	letters := make(map[calendarKey]struct{}, len(s.slots))
	for _, slot := range s.slots {
		letters[calendarKey{galleryID: slot.GalleryID, letter: slot.Letter}] = struct{}{}
	}

	n := 0
	for key, e := range s.calendar {
		if !e.CreatedAt.Before(createdBefore) {
			continue
		}
		_, galleryLive := s.galleries[e.GalleryID]
		_, slotLive := letters[calendarKey{galleryID: e.GalleryID, letter: e.SlotLetter}]
		if galleryLive && slotLive {
			continue
		}
		delete(s.calendar, key)
		n++
	}
	return n, nil
}

func (s *Store) deleteEntries(match func(models.CalendarEntry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, e := range s.calendar {
		if match(e) {
			delete(s.calendar, key)
			n++
		}
	}
	return n
}

// Counts reports how many rows each table holds.
func (s *Store) Counts() (galleries, slots, media, entries int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.galleries), len(s.slots), len(s.media), len(s.calendar)
}
