package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gallery_planner/internal/derive"
	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/repository/memory"
	filestorage "gallery_planner/internal/storage/filestorage"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc     *MediaService
	repo    *repository.Repository
	files   *filestorage.LocalFileStorage
	gallery models.Gallery
}

func newFixture(t *testing.T, worker derive.Worker, cfg Config) *fixture {
	t.Helper()

	repo, _ := memory.NewRepository()
	files, err := filestorage.NewLocalFileStorage(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)

	if worker == nil {
		pool := derive.NewPool(discardLogger(), derive.NewProcessor(), 2)
		t.Cleanup(pool.Close)
		worker = pool
	}

	gallery := models.Gallery{
		ID:          uuid.New(),
		Name:        "summer",
		OwnerID:     uuid.New(),
		GridColumns: 3,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, repo.Gallery.CreateGallery(context.Background(), gallery))

	svc := NewMediaService(discardLogger(), repo.Gallery, repo.Media, files, worker, cfg)

	return &fixture{svc: svc, repo: repo, files: files, gallery: gallery}
}

func (f *fixture) upload(name string, data []byte) UploadInput {
	return UploadInput{
		GalleryID: f.gallery.ID,
		OwnerID:   f.gallery.OwnerID,
		Filename:  name,
		Data:      data,
	}
}

// galleryFiles перечисляет все файлы каталога галереи, включая .part
func (f *fixture) galleryFiles(t *testing.T) []string {
	t.Helper()

	var out []string
	dir := filepath.Join(f.files.GetBaseDir(), f.gallery.ID.String())
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			out = append(out, filepath.Base(path))
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return out
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func webpBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, webp.Encode(&buf, testImage(w, h), &webp.Options{Quality: 80}))
	return buf.Bytes()
}

func TestMediaService_Ingest_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Config{ThumbWidth: 400, ThumbHeight: 400})

	media, err := f.svc.Ingest(ctx, f.upload("beach day.jpg", jpegBytes(t, 800, 600)))
	require.NoError(t, err)

	assert.Equal(t, "beach day.jpg", media.OriginalFilename)
	assert.True(t, strings.HasSuffix(media.StoredFilename, "_beach_day.jpg"), media.StoredFilename)
	assert.Equal(t, "image/jpeg", media.MimeType)
	assert.Equal(t, 800, media.Width)
	assert.Equal(t, 600, media.Height)
	assert.False(t, media.IsVariant)
	assert.Nil(t, media.CapturedAt)

	for _, rel := range media.ArtifactPaths() {
		ok, err := f.files.Exists(ctx, rel)
		require.NoError(t, err)
		assert.True(t, ok, rel)
	}
	assert.Len(t, media.ArtifactPaths(), 4)

	thumb, err := os.Open(f.files.GetFullPath(media.ThumbnailPath))
	require.NoError(t, err)
	defer thumb.Close()
	cfg, format, err := image.DecodeConfig(thumb)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 300, cfg.Height)

	stored, err := f.svc.GetMedia(ctx, media.ID)
	require.NoError(t, err)
	assert.Equal(t, media.Path, stored.Path)

	for _, name := range f.galleryFiles(t) {
		assert.False(t, strings.HasSuffix(name, ".part"), name)
	}
}

func TestMediaService_Ingest_Duplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Config{})

	_, err := f.svc.Ingest(ctx, f.upload("a.jpg", jpegBytes(t, 64, 64)))
	require.NoError(t, err)
	before := len(f.galleryFiles(t))

	_, err = f.svc.Ingest(ctx, f.upload("a.jpg", jpegBytes(t, 32, 32)))
	assert.ErrorIs(t, err, models.ErrDuplicateSkipped)

	list, err := f.svc.ListMedia(ctx, f.gallery.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Len(t, f.galleryFiles(t), before)
}

func TestMediaService_Ingest_Rejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Config{MaxSize: 1024})

	tests := []struct {
		name    string
		input   UploadInput
		wantErr error
	}{
		{
			name:    "empty data",
			input:   f.upload("a.jpg", nil),
			wantErr: models.ErrValidation,
		},
		{
			name:    "too large",
			input:   f.upload("a.jpg", make([]byte, 2048)),
			wantErr: models.ErrValidation,
		},
		{
			name:    "missing filename",
			input:   f.upload("  ", []byte{1}),
			wantErr: models.ErrValidation,
		},
		{
			name: "foreign owner",
			input: UploadInput{
				GalleryID: f.gallery.ID,
				OwnerID:   uuid.New(),
				Filename:  "a.jpg",
				Data:      []byte{1},
			},
			wantErr: models.ErrNotFoundOrAccessDenied,
		},
		{
			name: "unknown gallery",
			input: UploadInput{
				GalleryID: uuid.New(),
				OwnerID:   f.gallery.OwnerID,
				Filename:  "a.jpg",
				Data:      []byte{1},
			},
			wantErr: models.ErrNotFoundOrAccessDenied,
		},
		{
			name:    "unreadable image",
			input:   f.upload("notes.jpg", []byte("definitely not an image")),
			wantErr: models.ErrUnreadableImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ingest(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	list, err := f.svc.ListMedia(ctx, f.gallery.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.galleryFiles(t))
}

// stallingWorker пишет часть результата и ждёт отмены
type stallingWorker struct{}

func (stallingWorker) Run(ctx context.Context, task derive.Task) (derive.Result, error) {
	if err := os.WriteFile(task.ThumbnailPath, []byte("thumb"), 0o644); err != nil {
		return derive.Result{}, err
	}
	if err := os.WriteFile(task.WebpPath+".part", []byte("half"), 0o644); err != nil {
		return derive.Result{}, err
	}
	<-ctx.Done()
	return derive.Result{}, ctx.Err()
}

func TestMediaService_Ingest_WorkerTimeoutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, stallingWorker{}, Config{Timeout: 50 * time.Millisecond})

	_, err := f.svc.Ingest(ctx, f.upload("slow.jpg", jpegBytes(t, 64, 64)))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransientWorker)

	assert.Empty(t, f.galleryFiles(t))
	list, err := f.svc.ListMedia(ctx, f.gallery.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// lazyWorker сообщает об успехе, ничего не записав
type lazyWorker struct{}

func (lazyWorker) Run(ctx context.Context, task derive.Task) (derive.Result, error) {
	return derive.Result{Width: 10, Height: 10, MimeType: "image/jpeg"}, nil
}

func TestMediaService_Ingest_MissingArtifactIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, lazyWorker{}, Config{})

	_, err := f.svc.Ingest(ctx, f.upload("a.jpg", jpegBytes(t, 16, 16)))
	assert.ErrorIs(t, err, models.ErrTransientWorker)

	list, err := f.svc.ListMedia(ctx, f.gallery.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.galleryFiles(t))
}

func TestMediaService_Ingest_StoredNameCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Config{})
	fixed := time.UnixMilli(1700000000000)
	f.svc.now = func() time.Time { return fixed }

	first, err := f.svc.Ingest(ctx, f.upload("a.jpg", jpegBytes(t, 32, 32)))
	require.NoError(t, err)
	assert.Equal(t, "1700000000000_a.jpg", first.StoredFilename)

	// a.png делит с a.jpg webp-имена в ту же миллисекунду
	second, err := f.svc.Ingest(ctx, f.upload("a.png", pngBytes(t, 32, 32)))
	require.NoError(t, err)
	assert.NotEqual(t, "1700000000000_a.png", second.StoredFilename)
	assert.True(t, strings.HasSuffix(second.StoredFilename, "_a.png"))
	assert.NotEqual(t, first.WebpPath, second.WebpPath)
	assert.Equal(t, "image/png", second.MimeType)

	paths := make(map[string]bool)
	for _, m := range []*models.Media{first, second} {
		for _, p := range m.ArtifactPaths() {
			assert.False(t, paths[p], "artifact %s shared", p)
			paths[p] = true
		}
	}
}

func TestMediaService_Ingest_WebpOriginal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Config{})

	media, err := f.svc.Ingest(ctx, f.upload("pic.webp", webpBytes(t, 120, 80)))
	require.NoError(t, err)

	assert.Equal(t, "image/webp", media.MimeType)
	assert.Equal(t, media.Path, media.WebpPath)
	assert.Equal(t, media.ThumbnailPath, media.ThumbnailWebpPath)
	assert.Len(t, media.ArtifactPaths(), 2)
	assert.Len(t, f.galleryFiles(t), 2)
}

func TestMediaService_IngestVariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Config{})

	parent, err := f.svc.Ingest(ctx, f.upload("a.jpg", jpegBytes(t, 64, 48)))
	require.NoError(t, err)
	captured := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	parent.CapturedAt = &captured

	variant, err := f.svc.IngestVariant(ctx, VariantInput{
		Parent:     parent,
		Descriptor: "crop",
		Data:       jpegBytes(t, 32, 32),
	})
	require.NoError(t, err)

	assert.True(t, variant.IsVariant)
	require.NotNil(t, variant.ParentMediaID)
	assert.Equal(t, parent.ID, *variant.ParentMediaID)
	assert.Equal(t, "crop_a.jpg", variant.OriginalFilename)
	assert.Equal(t, "crop", variant.VariantDescriptor)
	require.NotNil(t, variant.CapturedAt)
	assert.True(t, captured.Equal(*variant.CapturedAt))

	// варианты не проходят проверку дубликатов
	_, err = f.svc.IngestVariant(ctx, VariantInput{Parent: parent, Descriptor: "crop", Data: jpegBytes(t, 32, 32)})
	require.NoError(t, err)

	_, err = f.svc.IngestVariant(ctx, VariantInput{Parent: variant, Descriptor: "x", Data: jpegBytes(t, 8, 8)})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestMediaService_IngestBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Config{BatchConcurrency: 3})

	_, err := f.svc.Ingest(ctx, f.upload("existing.jpg", jpegBytes(t, 16, 16)))
	require.NoError(t, err)

	files := []UploadFile{
		{Filename: "existing.jpg", Data: jpegBytes(t, 16, 16)},
		{Filename: "broken.jpg", Data: []byte("garbage")},
	}
	for i := 0; i < 5; i++ {
		files = append(files, UploadFile{Filename: fmt.Sprintf("img_%d.jpg", i), Data: jpegBytes(t, 40, 30)})
	}

	res := f.svc.IngestBatch(ctx, f.gallery.ID, f.gallery.OwnerID, files)

	require.Len(t, res.Created, 5)
	for i, m := range res.Created {
		assert.Equal(t, fmt.Sprintf("img_%d.jpg", i), m.OriginalFilename)
	}
	assert.Equal(t, []string{"existing.jpg"}, res.Skipped)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "broken.jpg", res.Failed[0].Filename)
	assert.False(t, res.Failed[0].Retryable)

	list, err := f.svc.ListMedia(ctx, f.gallery.ID)
	require.NoError(t, err)
	assert.Len(t, list, 6)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "photo.jpg", want: "photo.jpg"},
		{in: "my photo (1).JPG", want: "my_photo__1_.JPG"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: "фото.png", want: "____.png"},
		{in: ".hidden", want: "hidden"},
		{in: ".png", want: "png"},
		{in: "", want: "image"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}
