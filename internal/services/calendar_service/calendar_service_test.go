package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*CalendarService, *repository.Repository, uuid.UUID) {
	t.Helper()

	repo, _ := memory.NewRepository()
	galleryID := uuid.New()
	for idx := 0; idx < 3; idx++ {
		require.NoError(t, repo.Slot.CreateSlot(context.Background(), models.Slot{
			ID: uuid.New(), GalleryID: galleryID, Index: idx, Letter: models.SlotLetter(idx),
		}))
	}

	svc := NewCalendarService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo.Calendar, repo.Slot)
	return svc, repo, galleryID
}

func TestCalendarService_Schedule(t *testing.T) {
	ctx := context.Background()
	svc, _, galleryID := setup(t)

	tests := []struct {
		name      string
		galleryID uuid.UUID
		date      string
		letter    string
		wantErr   error
	}{
		{name: "existing slot", galleryID: galleryID, date: "2024-03-01", letter: "B"},
		{name: "repeat is idempotent", galleryID: galleryID, date: "2024-03-01", letter: "B"},
		{name: "slot without record", galleryID: galleryID, date: "2024-03-01", letter: "Z", wantErr: models.ErrNotFoundOrAccessDenied},
		{name: "unknown gallery", galleryID: uuid.New(), date: "2024-03-01", letter: "A", wantErr: models.ErrNotFoundOrAccessDenied},
		{name: "bad letter", galleryID: galleryID, date: "2024-03-01", letter: "b", wantErr: models.ErrValidation},
		{name: "bad date", galleryID: galleryID, date: "2024-02-30", letter: "A", wantErr: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := svc.Schedule(ctx, tt.galleryID, tt.date, tt.letter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.date, entry.Date)
			assert.Equal(t, tt.letter, entry.SlotLetter)
		})
	}

	entries, err := svc.ListForGallery(ctx, galleryID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCalendarService_Unschedule(t *testing.T) {
	ctx := context.Background()
	svc, _, galleryID := setup(t)

	_, err := svc.Schedule(ctx, galleryID, "2024-03-01", "A")
	require.NoError(t, err)

	require.NoError(t, svc.Unschedule(ctx, galleryID, "2024-03-01", "A"))
	assert.ErrorIs(t, svc.Unschedule(ctx, galleryID, "2024-03-01", "A"), models.ErrNotFoundOrAccessDenied)
}

func TestCalendarService_ListRange(t *testing.T) {
	ctx := context.Background()
	svc, _, galleryID := setup(t)

	for _, day := range []string{"2024-03-01", "2024-03-15", "2024-04-01"} {
		_, err := svc.Schedule(ctx, galleryID, day, "C")
		require.NoError(t, err)
	}

	entries, err := svc.ListRange(ctx, "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-03-01", entries[0].Date)
	assert.Equal(t, "2024-03-15", entries[1].Date)

	_, err = svc.ListRange(ctx, "2024-04-01", "2024-03-01")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.ListRange(ctx, "2020-01-01", "2024-01-01")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.ListRange(ctx, "yesterday", "2024-01-01")
	assert.ErrorIs(t, err, models.ErrValidation)
}
