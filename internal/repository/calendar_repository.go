package repository

import (
	"context"
	"fmt"
	"time"

	"gallery_planner/internal/domain/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
)

type CalendarRepo struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

func NewCalendarRepo(db *pgxpool.Pool) *CalendarRepo {
	return &CalendarRepo{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// AddEntry идемпотентна: повторная запись той же тройки ничего не меняет
func (r *CalendarRepo) AddEntry(ctx context.Context, entry models.CalendarEntry) error {
	const op = "repository.CalendarRepo.AddEntry"

	date, err := parseDate(entry.Date)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query, args, err := r.sb.Insert("calendar_entries").
		Columns("gallery_id", "date", "slot_letter", "created_at").
		Values(entry.GalleryID, date, entry.SlotLetter, entry.CreatedAt).
		Suffix("ON CONFLICT (gallery_id, date, slot_letter) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err = r.db.Exec(ctx, query, args...); err != nil {
		return mapErr(op, err)
	}

	return nil
}

func (r *CalendarRepo) DeleteEntry(ctx context.Context, galleryID uuid.UUID, date, letter string) error {
	const op = "repository.CalendarRepo.DeleteEntry"

	d, err := parseDate(date)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := r.deleteWhere(ctx, squirrel.Eq{"gallery_id": galleryID, "date": d, "slot_letter": letter})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affected(op, int64(n))
}

// ListRange возвращает записи всех галерей с from по to включительно
func (r *CalendarRepo) ListRange(ctx context.Context, from, to string) ([]models.CalendarEntry, error) {
	const op = "repository.CalendarRepo.ListRange"

	f, err := parseDate(from)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t, err := parseDate(to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return r.list(ctx, op, squirrel.And{squirrel.GtOrEq{"date": f}, squirrel.LtOrEq{"date": t}})
}

func (r *CalendarRepo) ListByGallery(ctx context.Context, galleryID uuid.UUID) ([]models.CalendarEntry, error) {
	const op = "repository.CalendarRepo.ListByGallery"

	return r.list(ctx, op, squirrel.Eq{"gallery_id": galleryID})
}

func (r *CalendarRepo) list(ctx context.Context, op string, where squirrel.Sqlizer) ([]models.CalendarEntry, error) {
	query, args, err := r.sb.Select("gallery_id", "to_char(date, 'YYYY-MM-DD')", "slot_letter", "created_at").
		From("calendar_entries").
		Where(where).
		OrderBy("date ASC", "slot_letter ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var entries []models.CalendarEntry
	for rows.Next() {
		var e models.CalendarEntry
		if err := rows.Scan(&e.GalleryID, &e.Date, &e.SlotLetter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *CalendarRepo) DeleteByGallery(ctx context.Context, galleryID uuid.UUID) (int, error) {
	const op = "repository.CalendarRepo.DeleteByGallery"

	n, err := r.deleteWhere(ctx, squirrel.Eq{"gallery_id": galleryID})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (r *CalendarRepo) DeleteBySlot(ctx context.Context, galleryID uuid.UUID, letter string) (int, error) {
	const op = "repository.CalendarRepo.DeleteBySlot"

	n, err := r.deleteWhere(ctx, squirrel.Eq{"gallery_id": galleryID, "slot_letter": letter})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// DeleteOrphanEntries удаляет записи, чья галерея исчезла или чья буква
// больше не соответствует ни одному слоту.
func (r *CalendarRepo) DeleteOrphanEntries(ctx context.Context, createdBefore time.Time) (int, error) {
	const op = "repository.CalendarRepo.DeleteOrphanEntries"

	query, args, err := r.sb.Delete("calendar_entries AS c").
		Where(squirrel.Lt{"c.created_at": createdBefore}).
		Where(squirrel.Or{
			squirrel.Expr("NOT EXISTS (SELECT 1 FROM galleries g WHERE g.id = c.gallery_id)"),
			squirrel.Expr("NOT EXISTS (SELECT 1 FROM slots s WHERE s.gallery_id = c.gallery_id AND s.letter = c.slot_letter)"),
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return int(tag.RowsAffected()), nil
}

func (r *CalendarRepo) deleteWhere(ctx context.Context, where squirrel.Sqlizer) (int, error) {
	query, args, err := r.sb.Delete("calendar_entries").Where(where).ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", models.ErrValidation, s)
	}
	return t, nil
}
