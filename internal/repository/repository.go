package repository

import (
	"errors"
	"fmt"

	"gallery_planner/internal/storage"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

type Repository struct {
	Gallery  GalleryRepository
	Slot     SlotRepository
	Media    MediaRepository
	Calendar CalendarRepository
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		Gallery:  NewGalleryRepo(db),
		Slot:     NewSlotRepo(db),
		Media:    NewMediaRepo(db),
		Calendar: NewCalendarRepo(db),
	}
}

// mapErr переводит ошибки драйвера в sentinel-ошибки storage
func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %s", op, storage.ErrAlreadyExists, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func affected(op string, n int64) error {
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}
