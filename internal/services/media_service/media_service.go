package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gallery_planner/internal/derive"
	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/lib/logger/sl"
	"gallery_planner/internal/metrics"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/storage"
	filestorage "gallery_planner/internal/storage/filestorage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	thumbPrefix        = "thumb_"
	webpExt            = ".webp"
	maxStoredNameLen   = 120
	storedNameAttempts = 5
)

type Config struct {
	ThumbWidth  int
	ThumbHeight int
	JPEGQuality int
	WebpQuality float32
	// Timeout ограничивает ожидание воркера со стороны вызывающего
	Timeout time.Duration
	// BatchConcurrency ограничивает число файлов пакета, обрабатываемых одновременно
	BatchConcurrency int
	MaxSize          int64
	// MaxPixels ограничивает ширину*высоту исходника до декодирования
	MaxPixels int64
}

type MediaService struct {
	log         *slog.Logger
	galleries   repository.GalleryRepository
	repo        repository.MediaRepository
	fileStorage filestorage.FileStorage
	worker      derive.Worker
	cfg         Config
	now         func() time.Time
}

func NewMediaService(
	log *slog.Logger,
	galleries repository.GalleryRepository,
	repo repository.MediaRepository,
	fileStorage filestorage.FileStorage,
	worker derive.Worker,
	cfg Config,
) *MediaService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}

	return &MediaService{
		log:         log,
		galleries:   galleries,
		repo:        repo,
		fileStorage: fileStorage,
		worker:      worker,
		cfg:         cfg,
		now:         time.Now,
	}
}

type UploadInput struct {
	GalleryID uuid.UUID
	OwnerID   uuid.UUID
	Filename  string
	Data      []byte
}

type UploadFile struct {
	Filename string
	Data     []byte
}

// VariantInput describes a transformed copy of Parent, which must be a root original.
type VariantInput struct {
	Parent     *models.Media
	Descriptor string
	Data       []byte
}

type FileFailure struct {
	Filename  string `json:"filename"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

type BatchResult struct {
	Created []*models.Media `json:"created"`
	Skipped []string        `json:"skipped"`
	Failed  []FileFailure   `json:"failed"`
}

// pipelineInput общий вход для оригиналов и вариантов
type pipelineInput struct {
	galleryID         uuid.UUID
	ownerID           uuid.UUID
	originalFilename  string
	data              []byte
	capturedAt        *time.Time
	parentID          *uuid.UUID
	variantDescriptor string
}

// Ingest превращает загруженные байты в медиа со всеми производными файлами.
// Повтор имени оригинала в галерее даёт models.ErrDuplicateSkipped.
func (s *MediaService) Ingest(ctx context.Context, in UploadInput) (*models.Media, error) {
	const op = "service.MediaService.Ingest"

	log := s.log.With(
		slog.String("op", op),
		slog.String("gallery_id", in.GalleryID.String()),
		slog.String("filename", in.Filename),
	)

	filename, err := s.validateUpload(in.Filename, in.Data)
	if err != nil {
		metrics.IngestTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gallery, err := s.galleries.GetGalleryByID(ctx, in.GalleryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		log.Error("failed to load gallery", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if gallery.OwnerID != in.OwnerID {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
	}

	// единственная защита от гонки одинаковых имён, best-effort
	existing, err := s.repo.FindOriginalByFilename(ctx, in.GalleryID, filename)
	switch {
	case err == nil:
		metrics.IngestTotal.WithLabelValues("skipped").Inc()
		log.Info("duplicate upload skipped", slog.String("existing_id", existing.ID.String()))
		return nil, fmt.Errorf("%s: %w", op, models.ErrDuplicateSkipped)
	case !errors.Is(err, storage.ErrNotFound):
		log.Error("failed to check duplicates", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	media, err := s.run(ctx, log, pipelineInput{
		galleryID:        in.GalleryID,
		ownerID:          in.OwnerID,
		originalFilename: filename,
		data:             in.Data,
		capturedAt:       derive.CaptureTime(bytes.NewReader(in.Data)),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return media, nil
}

// IngestVariant прогоняет преобразованную копию через тот же конвейер.
// Дубликаты не проверяются, время съёмки наследуется от родителя.
func (s *MediaService) IngestVariant(ctx context.Context, in VariantInput) (*models.Media, error) {
	const op = "service.MediaService.IngestVariant"

	if in.Parent == nil || in.Parent.IsVariant {
		return nil, fmt.Errorf("%s: %w: parent must be an original", op, models.ErrValidation)
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("parent_id", in.Parent.ID.String()),
		slog.String("descriptor", in.Descriptor),
	)

	filename, err := s.validateUpload(in.Descriptor+"_"+in.Parent.OriginalFilename, in.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	parentID := in.Parent.ID
	media, err := s.run(ctx, log, pipelineInput{
		galleryID:         in.Parent.GalleryID,
		ownerID:           in.Parent.OwnerID,
		originalFilename:  filename,
		data:              in.Data,
		capturedAt:        in.Parent.CapturedAt,
		parentID:          &parentID,
		variantDescriptor: in.Descriptor,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return media, nil
}

// IngestBatch обрабатывает файлы параллельно; ошибка одного файла не
// прерывает остальные и попадает в BatchResult.Failed.
func (s *MediaService) IngestBatch(ctx context.Context, galleryID, ownerID uuid.UUID, files []UploadFile) BatchResult {
	const op = "service.MediaService.IngestBatch"

	log := s.log.With(
		slog.String("op", op),
		slog.String("gallery_id", galleryID.String()),
		slog.Int("files", len(files)),
	)

	type outcome struct {
		media *models.Media
		err   error
	}
	outcomes := make([]outcome, len(files))

	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			m, err := s.Ingest(ctx, UploadInput{
				GalleryID: galleryID,
				OwnerID:   ownerID,
				Filename:  f.Filename,
				Data:      f.Data,
			})
			outcomes[i] = outcome{media: m, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{
		Created: []*models.Media{},
		Skipped: []string{},
		Failed:  []FileFailure{},
	}
	for i, o := range outcomes {
		switch {
		case o.err == nil:
			res.Created = append(res.Created, o.media)
		case errors.Is(o.err, models.ErrDuplicateSkipped):
			res.Skipped = append(res.Skipped, files[i].Filename)
		default:
			res.Failed = append(res.Failed, FileFailure{
				Filename:  files[i].Filename,
				Reason:    failureReason(o.err),
				Retryable: errors.Is(o.err, models.ErrTransientWorker),
			})
		}
	}

	log.Info("batch ingested",
		slog.Int("created", len(res.Created)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("failed", len(res.Failed)),
	)

	return res
}

func (s *MediaService) GetMedia(ctx context.Context, mediaID uuid.UUID) (*models.Media, error) {
	const op = "service.MediaService.GetMedia"

	m, err := s.repo.GetMediaByID(ctx, mediaID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return m, nil
}

func (s *MediaService) ListMedia(ctx context.Context, galleryID uuid.UUID) ([]models.Media, error) {
	const op = "service.MediaService.ListMedia"

	media, err := s.repo.ListMediaByGallery(ctx, galleryID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return media, nil
}

// artifactSet относительные пути всех файлов одного медиа
type artifactSet struct {
	stored        string
	original      string
	thumbnail     string
	webp          string
	thumbnailWebp string
}

func newArtifactSet(galleryID uuid.UUID, stored string) artifactSet {
	dir := galleryID.String()
	set := artifactSet{
		stored:    stored,
		original:  filepath.Join(dir, stored),
		thumbnail: filepath.Join(dir, thumbPrefix+stored),
	}

	ext := filepath.Ext(stored)
	if strings.EqualFold(ext, webpExt) {
		// у WebP-оригинала альтернативы совпадают с самим файлом и миниатюрой
		set.webp, set.thumbnailWebp = set.original, set.thumbnail
		return set
	}

	stem := strings.TrimSuffix(stored, ext)
	set.webp = filepath.Join(dir, stem+webpExt)
	set.thumbnailWebp = filepath.Join(dir, thumbPrefix+stem+webpExt)
	return set
}

// derived возвращает файлы, которые пишет воркер
func (a artifactSet) derived() []string {
	out := []string{a.thumbnail}
	if a.webp != a.original {
		out = append(out, a.webp, a.thumbnailWebp)
	}
	return out
}

func (a artifactSet) all() []string {
	return append([]string{a.original}, a.derived()...)
}

func (s *MediaService) run(ctx context.Context, log *slog.Logger, in pipelineInput) (*models.Media, error) {
	const op = "service.MediaService.run"

	artifacts, size, err := s.saveOriginal(ctx, in.galleryID, in.originalFilename, in.data)
	if err != nil {
		metrics.IngestTotal.WithLabelValues("failed").Inc()
		log.Error("failed to store original", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log = log.With(slog.String("stored_filename", artifacts.stored))

	task := derive.Task{
		Source:        s.fileStorage.GetFullPath(artifacts.original),
		ThumbnailPath: s.fileStorage.GetFullPath(artifacts.thumbnail),
		MaxWidth:      s.cfg.ThumbWidth,
		MaxHeight:     s.cfg.ThumbHeight,
		JPEGQuality:   s.cfg.JPEGQuality,
		WebpQuality:   s.cfg.WebpQuality,
		MaxPixels:     s.cfg.MaxPixels,
	}
	if artifacts.webp != artifacts.original {
		task.WebpPath = s.fileStorage.GetFullPath(artifacts.webp)
		task.ThumbnailWebpPath = s.fileStorage.GetFullPath(artifacts.thumbnailWebp)
	}

	res, err := s.derive(ctx, task)
	if err != nil {
		s.discard(ctx, log, artifacts, &task)
		outcome := "transient"
		if errors.Is(err, models.ErrUnreadableImage) {
			outcome = "unreadable"
		}
		metrics.IngestTotal.WithLabelValues(outcome).Inc()
		log.Warn("derivative worker failed", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// запись видна читателям только если все файлы на месте
	for _, rel := range artifacts.all() {
		ok, err := s.fileStorage.Exists(ctx, rel)
		if err == nil && !ok {
			err = fmt.Errorf("%w: worker did not produce %s", models.ErrTransientWorker, rel)
		}
		if err != nil {
			s.discard(ctx, log, artifacts, &task)
			metrics.IngestTotal.WithLabelValues("transient").Inc()
			log.Error("artifact check failed", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	media := &models.Media{
		ID:                uuid.New(),
		GalleryID:         in.galleryID,
		OwnerID:           in.ownerID,
		OriginalFilename:  in.originalFilename,
		StoredFilename:    artifacts.stored,
		Path:              artifacts.original,
		ThumbnailPath:     artifacts.thumbnail,
		WebpPath:          artifacts.webp,
		ThumbnailWebpPath: artifacts.thumbnailWebp,
		MimeType:          res.MimeType,
		Size:              size,
		Width:             res.Width,
		Height:            res.Height,
		CapturedAt:        in.capturedAt,
		UploadedAt:        s.now().UTC(),
		IsVariant:         in.parentID != nil,
		ParentMediaID:     in.parentID,
		VariantDescriptor: in.variantDescriptor,
	}

	if err := media.Validate(); err != nil {
		s.discard(ctx, log, artifacts, nil)
		metrics.IngestTotal.WithLabelValues("failed").Inc()
		log.Error("media validation failed", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.CreateMedia(ctx, media); err != nil {
		// файлы остаются на диске: принятый дрейф, запись не создана
		metrics.IngestTotal.WithLabelValues("failed").Inc()
		log.Error("failed to save media to database, artifacts left on disk",
			sl.Err(err),
			slog.Any("artifacts", artifacts.all()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.IngestTotal.WithLabelValues("created").Inc()
	log.Info("media ingested", slog.String("media_id", media.ID.String()))

	return media, nil
}

// derive вызывает воркер с таймаутом и сводит ошибки к таксономии домена
func (s *MediaService) derive(ctx context.Context, task derive.Task) (derive.Result, error) {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, err := s.worker.Run(dctx, task)

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, models.ErrUnreadableImage):
		result = "unreadable"
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
		err = fmt.Errorf("%w: timed out after %s: %v", models.ErrTransientWorker, s.cfg.Timeout, err)
	case !errors.Is(err, models.ErrTransientWorker):
		result = "error"
		err = fmt.Errorf("%w: %v", models.ErrTransientWorker, err)
	default:
		result = "error"
	}
	metrics.DeriveDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	return res, err
}

// saveOriginal публикует оригинал под уникальным именем, повторяя попытку
// при коллизии имени.
func (s *MediaService) saveOriginal(ctx context.Context, galleryID uuid.UUID, filename string, data []byte) (artifactSet, int64, error) {
	const op = "service.MediaService.saveOriginal"

	sanitized := SanitizeFilename(filename)
	millis := s.now().UnixMilli()

	for attempt := 0; attempt < storedNameAttempts; attempt++ {
		stored := fmt.Sprintf("%d_%s", millis, sanitized)
		if attempt > 0 {
			stored = fmt.Sprintf("%d_%s_%s", millis, strings.ReplaceAll(uuid.NewString(), "-", "")[:8], sanitized)
		}
		artifacts := newArtifactSet(galleryID, stored)

		size, err := s.fileStorage.Save(ctx, artifacts.original, bytes.NewReader(data))
		if errors.Is(err, storage.ErrArtifactExists) {
			continue
		}
		if err != nil {
			return artifactSet{}, 0, fmt.Errorf("%s: %w", op, err)
		}

		// производные имена могут совпасть у a.jpg и a.png одной миллисекунды
		taken, err := s.anyExists(ctx, artifacts.derived())
		if err != nil || taken {
			_ = s.fileStorage.Delete(ctx, artifacts.original)
			if err != nil {
				return artifactSet{}, 0, fmt.Errorf("%s: %w", op, err)
			}
			continue
		}

		return artifacts, size, nil
	}

	return artifactSet{}, 0, fmt.Errorf("%s: %w: no free stored filename after %d attempts", op, storage.ErrArtifactExists, storedNameAttempts)
}

func (s *MediaService) anyExists(ctx context.Context, rels []string) (bool, error) {
	for _, rel := range rels {
		ok, err := s.fileStorage.Exists(ctx, rel)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// discard удаляет оригинал и всё, что мог оставить воркер. Ошибки только логируются.
func (s *MediaService) discard(ctx context.Context, log *slog.Logger, artifacts artifactSet, task *derive.Task) {
	// контекст запроса мог истечь, а уборка должна пройти
	ctx = context.WithoutCancel(ctx)

	for _, rel := range artifacts.all() {
		if err := s.fileStorage.Delete(ctx, rel); err != nil && !errors.Is(err, storage.ErrArtifactNotFound) {
			log.Warn("failed to remove artifact", slog.String("path", rel), sl.Err(err))
		}
	}
	if task != nil {
		if err := derive.RemoveOutputs(*task); err != nil {
			log.Warn("failed to remove partial derivatives", sl.Err(err))
		}
	}
}

func (s *MediaService) validateUpload(filename string, data []byte) (string, error) {
	name := strings.TrimSpace(filepath.Base(filepath.ToSlash(filename)))
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: filename is required", models.ErrValidation)
	}
	if len(name) > 255 {
		return "", fmt.Errorf("%w: filename must be 255 characters or less", models.ErrValidation)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", models.ErrValidation)
	}
	if s.cfg.MaxSize > 0 && int64(len(data)) > s.cfg.MaxSize {
		return "", fmt.Errorf("%w: file size exceeds limit of %d bytes", models.ErrValidation, s.cfg.MaxSize)
	}
	return name, nil
}

// SanitizeFilename оставляет только безопасные для файловой системы символы
func SanitizeFilename(name string) string {
	name = filepath.Base(filepath.ToSlash(name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxStoredNameLen {
		ext := filepath.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:maxStoredNameLen-len(ext)] + ext
	}
	if out == "" {
		out = "image"
	}
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUnreadableImage):
		return "unreadable image"
	case errors.Is(err, models.ErrTransientWorker):
		return "transient worker failure, retry"
	case errors.Is(err, models.ErrValidation):
		return err.Error()
	case errors.Is(err, models.ErrNotFoundOrAccessDenied):
		return "gallery not found or access denied"
	default:
		return "internal error"
	}
}
