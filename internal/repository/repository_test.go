package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/storage"
	"gallery_planner/internal/storage/postgresql"

	"github.com/brianvoe/gofakeit"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(ctx)
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	require.NoError(t, postgresql.Migrate(dsn))

	pool, err := pgxpool.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func newGallery() models.Gallery {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return models.Gallery{
		ID:           uuid.New(),
		Name:         gofakeit.Name(),
		OwnerID:      uuid.New(),
		Description:  gofakeit.Sentence(5),
		GridColumns:  3,
		ShowCaptions: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresRepositories(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	ctx := context.Background()

	t.Run("gallery roundtrip and whitelist update", func(t *testing.T) {
		g := newGallery()
		require.NoError(t, repo.Gallery.CreateGallery(ctx, g))

		got, err := repo.Gallery.GetGalleryByID(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.Name, got.Name)
		assert.Nil(t, got.ActiveSlot)

		letter := "C"
		require.NoError(t, repo.Gallery.UpdateGalleryFields(ctx, g.ID, models.GalleryPatch{
			models.GalleryFieldActiveSlot:  &letter,
			models.GalleryFieldGridColumns: 5,
		}))
		got, err = repo.Gallery.GetGalleryByID(ctx, g.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ActiveSlot)
		assert.Equal(t, "C", *got.ActiveSlot)
		assert.Equal(t, 5, got.GridColumns)

		err = repo.Gallery.UpdateGalleryFields(ctx, g.ID, models.GalleryPatch{"owner_id": uuid.New()})
		assert.ErrorIs(t, err, models.ErrValidation)

		_, err = repo.Gallery.GetGalleryByID(ctx, uuid.New())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("slot unique index maps to ErrAlreadyExists", func(t *testing.T) {
		g := newGallery()
		require.NoError(t, repo.Gallery.CreateGallery(ctx, g))

		slot := models.Slot{ID: uuid.New(), GalleryID: g.ID, Letter: "A", Index: 0, CreatedAt: time.Now()}
		require.NoError(t, repo.Slot.CreateSlot(ctx, slot))

		dup := slot
		dup.ID = uuid.New()
		assert.ErrorIs(t, repo.Slot.CreateSlot(ctx, dup), storage.ErrAlreadyExists)

		images := models.SlotImages{{MediaID: uuid.New(), Order: 0}, {MediaID: uuid.New(), Order: 1}}
		require.NoError(t, repo.Slot.UpdateSlotImages(ctx, slot.ID, images))

		got, err := repo.Slot.GetSlotByIndex(ctx, g.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, images, got.Images)
	})

	t.Run("media insert and variant listing", func(t *testing.T) {
		g := newGallery()
		require.NoError(t, repo.Gallery.CreateGallery(ctx, g))

		parent := &models.Media{
			ID:               uuid.New(),
			GalleryID:        g.ID,
			OwnerID:          g.OwnerID,
			OriginalFilename: "beach.jpg",
			StoredFilename:   fmt.Sprintf("%d_beach.jpg", time.Now().UnixMilli()),
			Path:             g.ID.String() + "/beach.jpg",
			ThumbnailPath:    g.ID.String() + "/thumb_beach.jpg",
			MimeType:         "image/jpeg",
			Size:             100,
			Width:            10,
			Height:           10,
			UploadedAt:       time.Now().UTC(),
		}
		require.NoError(t, repo.Media.CreateMedia(ctx, parent))

		variant := *parent
		variant.ID = uuid.New()
		variant.IsVariant = true
		variant.ParentMediaID = &parent.ID
		variant.OriginalFilename = "crop_beach.jpg"
		variant.StoredFilename = "v_" + parent.StoredFilename
		require.NoError(t, repo.Media.CreateMedia(ctx, &variant))

		dup := *parent
		dup.ID = uuid.New()
		assert.ErrorIs(t, repo.Media.CreateMedia(ctx, &dup), storage.ErrAlreadyExists)

		found, err := repo.Media.FindOriginalByFilename(ctx, g.ID, "beach.jpg")
		require.NoError(t, err)
		assert.Equal(t, parent.ID, found.ID)

		variants, err := repo.Media.ListVariants(ctx, parent.ID)
		require.NoError(t, err)
		require.Len(t, variants, 1)
		assert.Equal(t, variant.ID, variants[0].ID)
		require.NotNil(t, variants[0].ParentMediaID)
		assert.Equal(t, parent.ID, *variants[0].ParentMediaID)
	})

	t.Run("orphan sweeps", func(t *testing.T) {
		live := newGallery()
		require.NoError(t, repo.Gallery.CreateGallery(ctx, live))
		goneID := uuid.New()
		old := time.Now().Add(-time.Hour)

		require.NoError(t, repo.Slot.CreateSlot(ctx, models.Slot{ID: uuid.New(), GalleryID: live.ID, Letter: "A", Index: 0, CreatedAt: old}))
		require.NoError(t, repo.Slot.CreateSlot(ctx, models.Slot{ID: uuid.New(), GalleryID: goneID, Letter: "A", Index: 0, CreatedAt: old}))
		require.NoError(t, repo.Calendar.AddEntry(ctx, models.CalendarEntry{GalleryID: live.ID, Date: "2024-06-01", SlotLetter: "A", CreatedAt: old}))
		require.NoError(t, repo.Calendar.AddEntry(ctx, models.CalendarEntry{GalleryID: live.ID, Date: "2024-06-01", SlotLetter: "Z", CreatedAt: old}))
		require.NoError(t, repo.Calendar.AddEntry(ctx, models.CalendarEntry{GalleryID: goneID, Date: "2024-06-02", SlotLetter: "A", CreatedAt: old}))

		orphan := &models.Media{
			ID:               uuid.New(),
			GalleryID:        goneID,
			OwnerID:          uuid.New(),
			OriginalFilename: "lost.jpg",
			StoredFilename:   "1_lost.jpg",
			Path:             goneID.String() + "/1_lost.jpg",
			MimeType:         "image/jpeg",
			UploadedAt:       old,
		}
		require.NoError(t, repo.Media.CreateMedia(ctx, orphan))
		kept := *orphan
		kept.ID = uuid.New()
		kept.GalleryID = live.ID
		kept.StoredFilename = "2_lost.jpg"
		kept.Path = live.ID.String() + "/2_lost.jpg"
		require.NoError(t, repo.Media.CreateMedia(ctx, &kept))

		cutoff := time.Now()

		removed, err := repo.Slot.DeleteOrphanSlots(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		orphans, err := repo.Media.ListOrphanMedia(ctx, cutoff)
		require.NoError(t, err)
		require.Len(t, orphans, 1)
		assert.Equal(t, orphan.ID, orphans[0].ID)

		// отсечка раньше загрузки: ничего не трогаем
		orphans, err = repo.Media.ListOrphanMedia(ctx, old.Add(-time.Minute))
		require.NoError(t, err)
		assert.Empty(t, orphans)

		removed, err = repo.Calendar.DeleteOrphanEntries(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		entries, err := repo.Calendar.ListByGallery(ctx, live.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "2024-06-01", entries[0].Date)
	})

	t.Run("delete media binds ids as one array", func(t *testing.T) {
		g := newGallery()
		require.NoError(t, repo.Gallery.CreateGallery(ctx, g))

		target := &models.Media{
			ID:               uuid.New(),
			GalleryID:        g.ID,
			OwnerID:          g.OwnerID,
			OriginalFilename: "many.jpg",
			StoredFilename:   "1_many.jpg",
			Path:             g.ID.String() + "/1_many.jpg",
			MimeType:         "image/jpeg",
			UploadedAt:       time.Now().UTC(),
		}
		require.NoError(t, repo.Media.CreateMedia(ctx, target))

		// больше, чем postgres допускает bind-параметров в одном запросе
		ids := make([]uuid.UUID, 0, 70_001)
		for i := 0; i < 70_000; i++ {
			ids = append(ids, uuid.New())
		}
		ids = append(ids, target.ID)

		removed, err := repo.Media.DeleteMedia(ctx, ids...)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = repo.Media.GetMediaByID(ctx, target.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
