package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*SlotService, *repository.Repository, uuid.UUID) {
	t.Helper()

	repo, _ := memory.NewRepository()
	galleryID := uuid.New()
	require.NoError(t, repo.Gallery.CreateGallery(context.Background(), models.Gallery{
		ID:        galleryID,
		Name:      "test",
		OwnerID:   uuid.New(),
		CreatedAt: time.Now(),
	}))

	svc := NewSlotService(discardLogger(), repo.Gallery, repo.Slot, repo.Media, repo.Calendar)
	return svc, repo, galleryID
}

func assertSlotInvariants(t *testing.T, repo *repository.Repository, galleryID uuid.UUID) {
	t.Helper()

	slots, err := repo.Slot.ListSlots(context.Background(), galleryID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(slots), models.SlotCapacity)

	seen := make(map[int]bool)
	for _, s := range slots {
		assert.False(t, seen[s.Index], "index %d used twice", s.Index)
		seen[s.Index] = true
		assert.Equal(t, string(rune('A'+s.Index)), s.Letter)
	}
}

func TestSlotService_Allocate_GapFilling(t *testing.T) {
	ctx := context.Background()
	svc, repo, galleryID := setup(t)

	for _, idx := range []int{0, 1, 3} {
		require.NoError(t, repo.Slot.CreateSlot(ctx, models.Slot{
			ID: uuid.New(), GalleryID: galleryID, Index: idx, Letter: models.SlotLetter(idx),
		}))
	}

	slot, err := svc.Allocate(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, 2, slot.Index)
	assert.Equal(t, "C", slot.Letter)

	g, err := repo.Gallery.GetGalleryByID(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, 4, g.NextSlotIndex)
	assert.Equal(t, "E", g.NextSlotLetter())
}

func TestSlotService_Allocate_Capacity(t *testing.T) {
	ctx := context.Background()
	svc, repo, galleryID := setup(t)

	for i := 0; i < models.SlotCapacity; i++ {
		slot, err := svc.Allocate(ctx, galleryID)
		require.NoError(t, err)
		assert.Equal(t, i, slot.Index)
	}

	_, err := svc.Allocate(ctx, galleryID)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)

	g, err := repo.Gallery.GetGalleryByID(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotCapacity, g.NextSlotIndex)
	assert.Empty(t, g.NextSlotLetter())
}

func TestSlotService_Allocate_UnknownGallery(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.Allocate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFoundOrAccessDenied)
}

func TestSlotService_RandomAllocateDelete(t *testing.T) {
	ctx := context.Background()
	svc, repo, galleryID := setup(t)
	rnd := rand.New(rand.NewSource(42))

	for step := 0; step < 300; step++ {
		slots, err := repo.Slot.ListSlots(ctx, galleryID)
		require.NoError(t, err)

		if len(slots) > 0 && rnd.Intn(3) == 0 {
			victim := slots[rnd.Intn(len(slots))]
			require.NoError(t, svc.DeleteSlot(ctx, victim.ID))
		} else {
			_, err := svc.Allocate(ctx, galleryID)
			if len(slots) == models.SlotCapacity {
				require.ErrorIs(t, err, models.ErrCapacityExceeded)
			} else {
				require.NoError(t, err)
			}
		}

		assertSlotInvariants(t, repo, galleryID)
	}
}

func TestSlotService_Allocate_Concurrent(t *testing.T) {
	ctx := context.Background()
	svc, repo, galleryID := setup(t)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Allocate(ctx, galleryID); err != nil && !errors.Is(err, models.ErrCapacityExceeded) {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	assertSlotInvariants(t, repo, galleryID)
}

// racingStore simulates another allocator inserting the same index between
// our scan and our insert.
type racingStore struct {
	*memory.Store
	once   sync.Once
	winner models.Slot
}

func (r *racingStore) CreateSlot(ctx context.Context, slot models.Slot) error {
	r.once.Do(func() {
		r.winner = slot
		r.winner.ID = uuid.New()
		_ = r.Store.CreateSlot(ctx, r.winner)
	})
	return r.Store.CreateSlot(ctx, slot)
}

func TestSlotService_Allocate_RaceReturnsExisting(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	galleryID := uuid.New()
	require.NoError(t, store.CreateGallery(ctx, models.Gallery{ID: galleryID}))

	racing := &racingStore{Store: store}
	svc := NewSlotService(discardLogger(), store, racing, store, store)

	slot, err := svc.Allocate(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, racing.winner.ID, slot.ID)
	assert.Equal(t, "A", slot.Letter)

	slots, err := store.ListSlots(ctx, galleryID)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

type MockGalleryRepository struct {
	mock.Mock
}

func (m *MockGalleryRepository) CreateGallery(ctx context.Context, gallery models.Gallery) error {
	args := m.Called(ctx, gallery)
	return args.Error(0)
}

func (m *MockGalleryRepository) GetGalleryByID(ctx context.Context, id uuid.UUID) (models.Gallery, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Gallery), args.Error(1)
}

func (m *MockGalleryRepository) ListGalleriesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Gallery, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]models.Gallery), args.Error(1)
}

func (m *MockGalleryRepository) UpdateGalleryFields(ctx context.Context, id uuid.UUID, patch models.GalleryPatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *MockGalleryRepository) SetNextSlotIndex(ctx context.Context, id uuid.UUID, next int) error {
	args := m.Called(ctx, id, next)
	return args.Error(0)
}

func (m *MockGalleryRepository) DeleteGallery(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestSlotService_Allocate_HintFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	galleryID := uuid.New()

	galleries := new(MockGalleryRepository)
	galleries.On("GetGalleryByID", mock.Anything, galleryID).Return(models.Gallery{ID: galleryID}, nil)
	galleries.On("SetNextSlotIndex", mock.Anything, galleryID, 1).Return(errors.New("connection reset")).Once()

	svc := NewSlotService(discardLogger(), galleries, store, store, store)

	slot, err := svc.Allocate(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, 0, slot.Index)
	galleries.AssertExpectations(t)
}

func TestSlotService_DeleteSlot(t *testing.T) {
	ctx := context.Background()
	svc, repo, galleryID := setup(t)

	a, err := svc.Allocate(ctx, galleryID)
	require.NoError(t, err)
	b, err := svc.Allocate(ctx, galleryID)
	require.NoError(t, err)

	require.NoError(t, repo.Calendar.AddEntry(ctx, models.CalendarEntry{GalleryID: galleryID, Date: "2024-01-01", SlotLetter: a.Letter}))
	require.NoError(t, repo.Calendar.AddEntry(ctx, models.CalendarEntry{GalleryID: galleryID, Date: "2024-01-02", SlotLetter: b.Letter}))

	require.NoError(t, svc.DeleteSlot(ctx, a.ID))

	entries, err := repo.Calendar.ListByGallery(ctx, galleryID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, b.Letter, entries[0].SlotLetter)

	g, err := repo.Gallery.GetGalleryByID(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, 0, g.NextSlotIndex, "hint points at the freed index")

	err = svc.DeleteSlot(ctx, a.ID)
	assert.ErrorIs(t, err, models.ErrNotFoundOrAccessDenied)
}

func TestSlotService_ImageList(t *testing.T) {
	ctx := context.Background()
	svc, repo, galleryID := setup(t)

	slot, err := svc.Allocate(ctx, galleryID)
	require.NoError(t, err)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		m := &models.Media{ID: uuid.New(), GalleryID: galleryID, StoredFilename: uuid.NewString()}
		require.NoError(t, repo.Media.CreateMedia(ctx, m))
		ids = append(ids, m.ID)

		slot, err = svc.AttachMedia(ctx, slot.ID, m.ID)
		require.NoError(t, err)
	}

	// повторное добавление идемпотентно
	slot, err = svc.AttachMedia(ctx, slot.ID, ids[0])
	require.NoError(t, err)
	assert.Len(t, slot.Images, 3)

	foreign := &models.Media{ID: uuid.New(), GalleryID: uuid.New(), StoredFilename: uuid.NewString()}
	require.NoError(t, repo.Media.CreateMedia(ctx, foreign))
	_, err = svc.AttachMedia(ctx, slot.ID, foreign.ID)
	assert.ErrorIs(t, err, models.ErrValidation)

	tests := []struct {
		name    string
		order   []uuid.UUID
		wantErr bool
	}{
		{name: "reverse", order: []uuid.UUID{ids[2], ids[1], ids[0]}},
		{name: "missing id", order: []uuid.UUID{ids[2], ids[1]}, wantErr: true},
		{name: "duplicate id", order: []uuid.UUID{ids[2], ids[2], ids[0]}, wantErr: true},
		{name: "unknown id", order: []uuid.UUID{ids[2], ids[1], uuid.New()}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ReorderImages(ctx, slot.ID, tt.order)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
				return
			}
			require.NoError(t, err)
			for i, img := range got.Images.Sorted() {
				assert.Equal(t, tt.order[i], img.MediaID)
				assert.Equal(t, i, img.Order)
			}
		})
	}
}

func TestSlotService_UpdateSlot(t *testing.T) {
	ctx := context.Background()
	svc, _, galleryID := setup(t)

	slot, err := svc.Allocate(ctx, galleryID)
	require.NoError(t, err)

	got, err := svc.UpdateSlot(ctx, slot.ID, models.SlotPatch{
		models.SlotFieldCaption:  "sunset",
		models.SlotFieldHashtags: "#sea",
	})
	require.NoError(t, err)
	assert.Equal(t, "sunset", got.Caption)
	assert.Equal(t, "#sea", got.Hashtags)

	_, err = svc.UpdateSlot(ctx, uuid.New(), models.SlotPatch{models.SlotFieldCaption: "x"})
	assert.ErrorIs(t, err, models.ErrNotFoundOrAccessDenied)
}

func TestSlotService_RefreshHint(t *testing.T) {
	ctx := context.Background()
	svc, repo, galleryID := setup(t)

	hint, err := svc.RefreshHint(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, 0, hint)

	for _, idx := range []int{0, 2} {
		require.NoError(t, repo.Slot.CreateSlot(ctx, models.Slot{
			ID: uuid.New(), GalleryID: galleryID, Index: idx, Letter: models.SlotLetter(idx),
		}))
	}

	hint, err = svc.RefreshHint(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, 1, hint)

	g, err := repo.Gallery.GetGalleryByID(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, 1, g.NextSlotIndex)

	for idx := 0; idx < models.SlotCapacity; idx++ {
		if idx == 0 || idx == 2 {
			continue
		}
		require.NoError(t, repo.Slot.CreateSlot(ctx, models.Slot{
			ID: uuid.New(), GalleryID: galleryID, Index: idx, Letter: models.SlotLetter(idx),
		}))
	}

	// 26 означает, что галерея заполнена
	hint, err = svc.RefreshHint(ctx, galleryID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotCapacity, hint)
}
