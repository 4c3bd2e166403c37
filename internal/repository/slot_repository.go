package repository

import (
	"context"
	"fmt"
	"time"

	"gallery_planner/internal/domain/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var slotColumns = []string{
	"id",
	"gallery_id",
	"letter",
	"idx",
	"images",
	"description",
	"caption",
	"hashtags",
	"created_at",
	"updated_at",
}

type SlotRepo struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

func NewSlotRepo(db *pgxpool.Pool) *SlotRepo {
	return &SlotRepo{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateSlot вставляет слот; занятые (gallery_id, idx) или (gallery_id, letter)
// дают storage.ErrAlreadyExists
func (r *SlotRepo) CreateSlot(ctx context.Context, slot models.Slot) error {
	const op = "repository.SlotRepo.CreateSlot"

	if slot.Images == nil {
		slot.Images = models.SlotImages{}
	}

	query, args, err := r.sb.Insert("slots").
		Columns(slotColumns...).
		Values(
			slot.ID,
			slot.GalleryID,
			slot.Letter,
			slot.Index,
			slot.Images,
			slot.Description,
			slot.Caption,
			slot.Hashtags,
			slot.CreatedAt,
			slot.UpdatedAt,
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

func (r *SlotRepo) GetSlotByID(ctx context.Context, id uuid.UUID) (models.Slot, error) {
	const op = "repository.SlotRepo.GetSlotByID"

	return r.getOne(ctx, op, squirrel.Eq{"id": id})
}

func (r *SlotRepo) GetSlotByIndex(ctx context.Context, galleryID uuid.UUID, idx int) (models.Slot, error) {
	const op = "repository.SlotRepo.GetSlotByIndex"

	return r.getOne(ctx, op, squirrel.Eq{"gallery_id": galleryID, "idx": idx})
}

func (r *SlotRepo) getOne(ctx context.Context, op string, where squirrel.Eq) (models.Slot, error) {
	query, args, err := r.sb.Select(slotColumns...).
		From("slots").
		Where(where).
		ToSql()
	if err != nil {
		return models.Slot{}, fmt.Errorf("%s: %w", op, err)
	}

	slot, err := scanSlot(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Slot{}, mapErr(op, err)
	}

	return slot, nil
}

// ListSlots возвращает слоты галереи в порядке индекса
func (r *SlotRepo) ListSlots(ctx context.Context, galleryID uuid.UUID) ([]models.Slot, error) {
	const op = "repository.SlotRepo.ListSlots"

	query, args, err := r.sb.Select(slotColumns...).
		From("slots").
		Where(squirrel.Eq{"gallery_id": galleryID}).
		OrderBy("idx ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

func (r *SlotRepo) UpdateSlotImages(ctx context.Context, id uuid.UUID, images models.SlotImages) error {
	const op = "repository.SlotRepo.UpdateSlotImages"

	if images == nil {
		images = models.SlotImages{}
	}

	query, args, err := r.sb.Update("slots").
		Set("images", images).
		Set("updated_at", squirrel.Expr("NOW()")).
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

// UpdateSlotFields обновляет только текстовые поля из белого списка SlotField
func (r *SlotRepo) UpdateSlotFields(ctx context.Context, id uuid.UUID, patch models.SlotPatch) error {
	const op = "repository.SlotRepo.UpdateSlotFields"

	if len(patch) == 0 {
		return fmt.Errorf("%s: %w: no fields to update", op, models.ErrValidation)
	}

	builder := r.sb.Update("slots").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id})

	for field, value := range patch {
		switch field {
		case models.SlotFieldDescription, models.SlotFieldCaption, models.SlotFieldHashtags:
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

func (r *SlotRepo) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	const op = "repository.SlotRepo.DeleteSlot"

	n, err := r.deleteWhere(ctx, squirrel.Eq{"id": id})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, n)
}

func (r *SlotRepo) DeleteSlotsByGallery(ctx context.Context, galleryID uuid.UUID) (int, error) {
	const op = "repository.SlotRepo.DeleteSlotsByGallery"

	n, err := r.deleteWhere(ctx, squirrel.Eq{"gallery_id": galleryID})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return int(n), nil
}

// DeleteOrphanSlots удаляет слоты старше createdBefore, чьей галереи больше нет.
func (r *SlotRepo) DeleteOrphanSlots(ctx context.Context, createdBefore time.Time) (int, error) {
	const op = "repository.SlotRepo.DeleteOrphanSlots"

	n, err := r.deleteWhere(ctx, squirrel.And{
		squirrel.Lt{"created_at": createdBefore},
		squirrel.Expr("NOT EXISTS (SELECT 1 FROM galleries g WHERE g.id = slots.gallery_id)"),
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return int(n), nil
}

func (r *SlotRepo) deleteWhere(ctx context.Context, where squirrel.Sqlizer) (int64, error) {
	query, args, err := r.sb.Delete("slots").Where(where).ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func scanSlot(row pgx.Row) (models.Slot, error) {
	var slot models.Slot
	err := row.Scan(
		&slot.ID,
		&slot.GalleryID,
		&slot.Letter,
		&slot.Index,
		&slot.Images,
		&slot.Description,
		&slot.Caption,
		&slot.Hashtags,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	return slot, err
}
