package repository

import (
	"context"
	"fmt"

	"gallery_planner/internal/domain/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var galleryColumns = []string{
	"id",
	"name",
	"owner_id",
	"description",
	"active_slot",
	"grid_columns",
	"show_captions",
	"next_slot_index",
	"created_at",
	"updated_at",
}

type GalleryRepo struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

func NewGalleryRepo(db *pgxpool.Pool) *GalleryRepo {
	return &GalleryRepo{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateGallery создает новую галерею
func (r *GalleryRepo) CreateGallery(ctx context.Context, gallery models.Gallery) error {
	const op = "repository.GalleryRepo.CreateGallery"

	query, args, err := r.sb.Insert("galleries").
		Columns(galleryColumns...).
		Values(
			gallery.ID,
			gallery.Name,
			gallery.OwnerID,
			gallery.Description,
			gallery.ActiveSlot,
			gallery.GridColumns,
			gallery.ShowCaptions,
			gallery.NextSlotIndex,
			gallery.CreatedAt,
			gallery.UpdatedAt,
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

// GetGalleryByID возвращает галерею по ID
func (r *GalleryRepo) GetGalleryByID(ctx context.Context, id uuid.UUID) (models.Gallery, error) {
	const op = "repository.GalleryRepo.GetGalleryByID"

	query, args, err := r.sb.Select(galleryColumns...).
		From("galleries").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return models.Gallery{}, fmt.Errorf("%s: %w", op, err)
	}

	gallery, err := scanGallery(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Gallery{}, mapErr(op, err)
	}

	return gallery, nil
}

func (r *GalleryRepo) ListGalleriesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Gallery, error) {
	const op = "repository.GalleryRepo.ListGalleriesByOwner"

	query, args, err := r.sb.Select(galleryColumns...).
		From("galleries").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var galleries []models.Gallery
	for rows.Next() {
		gallery, err := scanGallery(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		galleries = append(galleries, gallery)
	}

	return galleries, rows.Err()
}

// UpdateGalleryFields обновляет только поля из белого списка GalleryField
func (r *GalleryRepo) UpdateGalleryFields(ctx context.Context, id uuid.UUID, patch models.GalleryPatch) error {
	const op = "repository.GalleryRepo.UpdateGalleryFields"

	if len(patch) == 0 {
		return fmt.Errorf("%s: %w: no fields to update", op, models.ErrValidation)
	}

	builder := r.sb.Update("galleries").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id})

	for field, value := range patch {
		switch field {
		case models.GalleryFieldName,
			models.GalleryFieldDescription,
			models.GalleryFieldActiveSlot,
			models.GalleryFieldGridColumns,
			models.GalleryFieldShowCaptions:
			builder = builder.Set(string(field), value)
		default:
			return fmt.Errorf("%s: %w: field '%s' is not allowed for update", op, models.ErrValidation, field)
		}
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapErr(op, err)
	}

	return affected(op, tag.RowsAffected())
}

func (r *GalleryRepo) SetNextSlotIndex(ctx context.Context, id uuid.UUID, next int) error {
	const op = "repository.GalleryRepo.SetNextSlotIndex"

	query, args, err := r.sb.Update("galleries").
		Set("next_slot_index", next).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapErr(op, err)
	}

	return affected(op, tag.RowsAffected())
}

// DeleteGallery удаляет галерею по ID
func (r *GalleryRepo) DeleteGallery(ctx context.Context, id uuid.UUID) error {
	const op = "repository.GalleryRepo.DeleteGallery"

	query, args, err := r.sb.Delete("galleries").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapErr(op, err)
	}

	return affected(op, tag.RowsAffected())
}

func scanGallery(row pgx.Row) (models.Gallery, error) {
	var gallery models.Gallery
	err := row.Scan(
		&gallery.ID,
		&gallery.Name,
		&gallery.OwnerID,
		&gallery.Description,
		&gallery.ActiveSlot,
		&gallery.GridColumns,
		&gallery.ShowCaptions,
		&gallery.NextSlotIndex,
		&gallery.CreatedAt,
		&gallery.UpdatedAt,
	)
	return gallery, err
}
