package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/lib/logger/sl"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/storage"

	"github.com/google/uuid"
)

// maxRangeDays ограничивает выборку по календарю
const maxRangeDays = 366

type CalendarService struct {
	log      *slog.Logger
	calendar repository.CalendarRepository
	slots    repository.SlotRepository
}

func NewCalendarService(log *slog.Logger, calendar repository.CalendarRepository, slots repository.SlotRepository) *CalendarService {
	return &CalendarService{
		log:      log,
		calendar: calendar,
		slots:    slots,
	}
}

// Schedule ставит слот галереи на дату. Повторный вызов ничего не меняет.
func (s *CalendarService) Schedule(ctx context.Context, galleryID uuid.UUID, date, letter string) (models.CalendarEntry, error) {
	const op = "service.CalendarService.Schedule"

	log := s.log.With(
		slog.String("op", op),
		slog.String("gallery_id", galleryID.String()),
		slog.String("date", date),
		slog.String("letter", letter),
	)

	day, idx, err := parseKey(date, letter)
	if err != nil {
		return models.CalendarEntry{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.slots.GetSlotByIndex(ctx, galleryID, idx); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.CalendarEntry{}, fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		log.Error("failed to load slot", sl.Err(err))
		return models.CalendarEntry{}, fmt.Errorf("%s: %w", op, err)
	}

	entry := models.CalendarEntry{
		GalleryID:  galleryID,
		Date:       day,
		SlotLetter: letter,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.calendar.AddEntry(ctx, entry); err != nil {
		log.Error("failed to add calendar entry", sl.Err(err))
		return models.CalendarEntry{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("slot scheduled")

	return entry, nil
}

func (s *CalendarService) Unschedule(ctx context.Context, galleryID uuid.UUID, date, letter string) error {
	const op = "service.CalendarService.Unschedule"

	day, _, err := parseKey(date, letter)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.calendar.DeleteEntry(ctx, galleryID, day, letter); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, models.ErrNotFoundOrAccessDenied)
		}
		s.log.Error("failed to delete calendar entry", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ListRange возвращает записи всех галерей между from и to включительно
func (s *CalendarService) ListRange(ctx context.Context, from, to string) ([]models.CalendarEntry, error) {
	const op = "service.CalendarService.ListRange"

	start, err := time.Parse(models.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid from date %q", op, models.ErrValidation, from)
	}
	end, err := time.Parse(models.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid to date %q", op, models.ErrValidation, to)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%s: %w: range end before start", op, models.ErrValidation)
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%s: %w: range exceeds %d days", op, models.ErrValidation, maxRangeDays)
	}

	entries, err := s.calendar.ListRange(ctx, start.Format(models.DateLayout), end.Format(models.DateLayout))
	if err != nil {
		s.log.Error("failed to list calendar", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

func (s *CalendarService) ListForGallery(ctx context.Context, galleryID uuid.UUID) ([]models.CalendarEntry, error) {
	const op = "service.CalendarService.ListForGallery"

	entries, err := s.calendar.ListByGallery(ctx, galleryID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

func parseKey(date, letter string) (string, int, error) {
	day, err := models.ParseDate(date)
	if err != nil {
		return "", 0, err
	}
	idx, err := models.SlotIndex(letter)
	if err != nil {
		return "", 0, err
	}
	return day, idx, nil
}
