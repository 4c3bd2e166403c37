package repository

import (
	"context"
	"fmt"
	"time"

	"gallery_planner/internal/domain/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lib/pq"
)

var mediaColumns = []string{
	"id",
	"gallery_id",
	"owner_id",
	"original_filename",
	"stored_filename",
	"path",
	"thumbnail_path",
	"webp_path",
	"thumbnail_webp_path",
	"mime_type",
	"size",
	"width",
	"height",
	"captured_at",
	"uploaded_at",
	"is_variant",
	"parent_media_id",
	"variant_descriptor",
}

type MediaRepo struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewMediaRepo(db *pgxpool.Pool) *MediaRepo {
	return &MediaRepo{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *MediaRepo) CreateMedia(ctx context.Context, media *models.Media) error {
	const op = "repository.MediaRepo.CreateMedia"

	query, args, err := r.sb.Insert("media").
		Columns(mediaColumns...).
		Values(
			media.ID,
			media.GalleryID,
			media.OwnerID,
			media.OriginalFilename,
			media.StoredFilename,
			media.Path,
			media.ThumbnailPath,
			media.WebpPath,
			media.ThumbnailWebpPath,
			media.MimeType,
			media.Size,
			media.Width,
			media.Height,
			media.CapturedAt,
			media.UploadedAt,
			media.IsVariant,
			media.ParentMediaID,
			media.VariantDescriptor,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err = r.db.Exec(ctx, query, args...); err != nil {
		return mapErr(op, err)
	}

	return nil
}

func (r *MediaRepo) GetMediaByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	const op = "repository.MediaRepo.GetMediaByID"

	return r.getOne(ctx, op, sq.Eq{"id": id})
}

// FindOriginalByFilename ищет не-вариант с тем же исходным именем в галерее
func (r *MediaRepo) FindOriginalByFilename(ctx context.Context, galleryID uuid.UUID, filename string) (*models.Media, error) {
	const op = "repository.MediaRepo.FindOriginalByFilename"

	return r.getOne(ctx, op, sq.Eq{
		"gallery_id":        galleryID,
		"original_filename": filename,
		"is_variant":        false,
	})
}

func (r *MediaRepo) getOne(ctx context.Context, op string, where sq.Eq) (*models.Media, error) {
	query, args, err := r.sb.Select(mediaColumns...).
		From("media").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	media, err := scanMedia(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return &media, nil
}

func (r *MediaRepo) ListMediaByGallery(ctx context.Context, galleryID uuid.UUID) ([]models.Media, error) {
	const op = "repository.MediaRepo.ListMediaByGallery"

	return r.list(ctx, op, sq.Eq{"gallery_id": galleryID})
}

func (r *MediaRepo) ListVariants(ctx context.Context, parentID uuid.UUID) ([]models.Media, error) {
	const op = "repository.MediaRepo.ListVariants"

	return r.list(ctx, op, sq.Eq{"parent_media_id": parentID})
}

func (r *MediaRepo) ListOrphanMedia(ctx context.Context, uploadedBefore time.Time) ([]models.Media, error) {
	const op = "repository.MediaRepo.ListOrphanMedia"

	return r.list(ctx, op, sq.And{
		sq.Lt{"uploaded_at": uploadedBefore},
		sq.Expr("NOT EXISTS (SELECT 1 FROM galleries g WHERE g.id = media.gallery_id)"),
	})
}

func (r *MediaRepo) list(ctx context.Context, op string, where sq.Sqlizer) ([]models.Media, error) {
	query, args, err := r.sb.Select(mediaColumns...).
		From("media").
		Where(where).
		OrderBy("uploaded_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var media []models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		media = append(media, m)
	}

	return media, rows.Err()
}

func (r *MediaRepo) DeleteMedia(ctx context.Context, ids ...uuid.UUID) (int, error) {
	const op = "repository.MediaRepo.DeleteMedia"

	if len(ids) == 0 {
		return 0, nil
	}

	// один параметр-массив вместо bind-а на каждый id
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	n, err := r.deleteWhere(ctx, sq.Expr("id = ANY(?::uuid[])", pq.Array(keys)))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (r *MediaRepo) DeleteMediaByGallery(ctx context.Context, galleryID uuid.UUID) (int, error) {
	const op = "repository.MediaRepo.DeleteMediaByGallery"

	n, err := r.deleteWhere(ctx, sq.Eq{"gallery_id": galleryID})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (r *MediaRepo) deleteWhere(ctx context.Context, where sq.Sqlizer) (int, error) {
	query, args, err := r.sb.Delete("media").Where(where).ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

func scanMedia(row pgx.Row) (models.Media, error) {
	var m models.Media
	err := row.Scan(
		&m.ID,
		&m.GalleryID,
		&m.OwnerID,
		&m.OriginalFilename,
		&m.StoredFilename,
		&m.Path,
		&m.ThumbnailPath,
		&m.WebpPath,
		&m.ThumbnailWebpPath,
		&m.MimeType,
		&m.Size,
		&m.Width,
		&m.Height,
		&m.CapturedAt,
		&m.UploadedAt,
		&m.IsVariant,
		&m.ParentMediaID,
		&m.VariantDescriptor,
	)
	return m, err
}
