package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/lib/logger/sl"
	"gallery_planner/internal/lock"
	"gallery_planner/internal/metrics"
	"gallery_planner/internal/repository"
	"gallery_planner/internal/storage"
	filestorage "gallery_planner/internal/storage/filestorage"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const sweepLockKey = "reconcile:sweep"

type Config struct {
	Schedule     string
	SweepTimeout time.Duration
	LockTTL      time.Duration
	// LockRetry задаёт интервал повторных попыток взять блокировку для
	// прохода после удаления галереи
	LockRetry time.Duration
}

type ReconcileService struct {
	log         *slog.Logger
	slots       repository.SlotRepository
	media       repository.MediaRepository
	calendar    repository.CalendarRepository
	fileStorage filestorage.FileStorage
	locker      lock.Locker
	cfg         Config
	now         func() time.Time

	cron  *cron.Cron
	sweep sync.WaitGroup
	// pending: проход после удаления уже ждёт блокировку, новые к нему присоединяются
	pending atomic.Bool
}

func NewReconcileService(
	log *slog.Logger,
	repo *repository.Repository,
	fileStorage filestorage.FileStorage,
	locker lock.Locker,
	cfg Config,
) *ReconcileService {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.SweepTimeout
	}
	if cfg.LockRetry <= 0 {
		cfg.LockRetry = time.Second
	}

	return &ReconcileService{
		log:         log,
		slots:       repo.Slot,
		media:       repo.Media,
		calendar:    repo.Calendar,
		fileStorage: fileStorage,
		locker:      locker,
		cfg:         cfg,
		now:         time.Now,
	}
}

// ReconcileOrphans удаляет слоты, медиа и записи календаря, чья галерея
// больше не существует. Трогает только строки старше снимка, поэтому
// безопасен параллельно с обычной нагрузкой и с самим собой.
func (s *ReconcileService) ReconcileOrphans(ctx context.Context) (models.ReconcileSummary, error) {
	const op = "service.ReconcileService.ReconcileOrphans"

	log := s.log.With(slog.String("op", op))

	var summary models.ReconcileSummary

	// строки новее снимка не трогаем: их галерея могла появиться после него
	snapshot := s.now().UTC()

	var err error
	summary.SlotsRemoved, err = s.slots.DeleteOrphanSlots(ctx, snapshot)
	if err != nil {
		log.Error("failed to delete orphan slots", sl.Err(err))
		return summary, fmt.Errorf("%s: %w", op, err)
	}

	orphans, err := s.media.ListOrphanMedia(ctx, snapshot)
	if err != nil {
		log.Error("failed to list orphan media", sl.Err(err))
		return summary, fmt.Errorf("%s: %w", op, err)
	}
	if len(orphans) > 0 {
		ids := make([]uuid.UUID, 0, len(orphans))
		for _, m := range orphans {
			s.deleteArtifacts(ctx, log, m)
			ids = append(ids, m.ID)
		}
		summary.MediaRemoved, err = s.media.DeleteMedia(ctx, ids...)
		if err != nil {
			log.Error("failed to delete orphan media", sl.Err(err))
			return summary, fmt.Errorf("%s: %w", op, err)
		}
	}

	summary.CalendarEntriesRemoved, err = s.calendar.DeleteOrphanEntries(ctx, snapshot)
	if err != nil {
		log.Error("failed to delete orphan calendar entries", sl.Err(err))
		return summary, fmt.Errorf("%s: %w", op, err)
	}

	record(summary)
	log.Info("orphans reconciled",
		slog.Int("slots", summary.SlotsRemoved),
		slog.Int("media", summary.MediaRemoved),
		slog.Int("calendar_entries", summary.CalendarEntriesRemoved),
	)

	return summary, nil
}

// PurgeGallery синхронно удаляет прямых потомков галереи. Каталог файлов и
// записи удаляются параллельно; возврат только после завершения обоих.
func (s *ReconcileService) PurgeGallery(ctx context.Context, galleryID uuid.UUID) (models.ReconcileSummary, error) {
	const op = "service.ReconcileService.PurgeGallery"

	log := s.log.With(
		slog.String("op", op),
		slog.String("gallery_id", galleryID.String()),
	)

	var summary models.ReconcileSummary
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// потерянные файлы только логируются
		if err := s.fileStorage.DeleteDir(gctx, galleryID.String()); err != nil {
			log.Warn("failed to remove gallery artifacts", sl.Err(err))
		}
		return nil
	})

	g.Go(func() (err error) {
		summary.SlotsRemoved, err = s.slots.DeleteSlotsByGallery(gctx, galleryID)
		return err
	})

	g.Go(func() (err error) {
		summary.MediaRemoved, err = s.media.DeleteMediaByGallery(gctx, galleryID)
		return err
	})

	g.Go(func() (err error) {
		summary.CalendarEntriesRemoved, err = s.calendar.DeleteByGallery(gctx, galleryID)
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("failed to purge gallery", sl.Err(err))
		return summary, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("gallery purged",
		slog.Int("slots", summary.SlotsRemoved),
		slog.Int("media", summary.MediaRemoved),
		slog.Int("calendar_entries", summary.CalendarEntriesRemoved),
	)

	return summary, nil
}

// ScheduleSweep запускает полный проход в фоне и сразу возвращается.
// Если другой проход держит блокировку, этот дожидается её и выполняется
// после: текущий мог прочитать список галерей ещё до удаления. Несколько
// вызовов за время чужого прохода дают один повторный проход.
// Ошибки прохода только логируются.
func (s *ReconcileService) ScheduleSweep() {
	s.sweep.Add(1)
	go func() {
		defer s.sweep.Done()
		s.runSweep("scheduled", true)
	}()
}

// Wait blocks until every sweep started by ScheduleSweep has finished.
func (s *ReconcileService) Wait() {
	s.sweep.Wait()
}

func (s *ReconcileService) runSweep(trigger string, follow bool) {
	const op = "service.ReconcileService.runSweep"

	log := s.log.With(
		slog.String("op", op),
		slog.String("trigger", trigger),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("sweep panicked", slog.Any("panic", r))
		}
	}()

	unlock, ok := s.acquire(log, follow)
	if !ok {
		return
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			log.Warn("failed to release sweep lock", sl.Err(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepTimeout)
	defer cancel()

	if _, err := s.ReconcileOrphans(ctx); err != nil {
		log.Error("sweep failed", sl.Err(err))
	}
}

// acquire берёт блокировку прохода. Без follow занятая блокировка означает
// пропуск. С follow проход ждёт её не дольше LockTTL, за это время чужая
// блокировка истекает сама.
func (s *ReconcileService) acquire(log *slog.Logger, follow bool) (lock.UnlockFunc, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LockTTL)
	defer cancel()

	waiting := false
	defer func() {
		if waiting {
			s.pending.Store(false)
		}
	}()

	for {
		unlock, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
		if err != nil {
			log.Error("failed to acquire sweep lock", sl.Err(err))
			return nil, false
		}
		if ok {
			return unlock, true
		}

		if !follow {
			log.Debug("sweep already running, skipped")
			return nil, false
		}
		if !waiting {
			if !s.pending.CompareAndSwap(false, true) {
				log.Debug("follow-up sweep already queued")
				return nil, false
			}
			waiting = true
			log.Debug("sweep already running, waiting to run after it")
		}

		select {
		case <-ctx.Done():
			log.Warn("gave up waiting for sweep lock", sl.Err(ctx.Err()))
			return nil, false
		case <-time.After(s.cfg.LockRetry):
		}
	}
}

// Start регистрирует периодический проход по расписанию cfg.Schedule.
func (s *ReconcileService) Start() error {
	const op = "service.ReconcileService.Start"

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.log})))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.runSweep("cron", false) }); err != nil {
		return fmt.Errorf("%s: %w: invalid schedule %q: %v", op, models.ErrValidation, s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c

	s.log.Info("reconcile sweeps scheduled", slog.String("schedule", s.cfg.Schedule))

	return nil
}

// Stop останавливает расписание и ждёт текущие проходы.
func (s *ReconcileService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.sweep.Wait()
}

func (s *ReconcileService) deleteArtifacts(ctx context.Context, log *slog.Logger, m models.Media) {
	for _, rel := range m.ArtifactPaths() {
		if err := s.fileStorage.Delete(ctx, rel); err != nil && !errors.Is(err, storage.ErrArtifactNotFound) {
			log.Warn("failed to delete orphan artifact",
				slog.String("media_id", m.ID.String()),
				slog.String("path", rel),
				sl.Err(err),
			)
		}
	}
}

func record(summary models.ReconcileSummary) {
	metrics.ReconcileRemoved.WithLabelValues("slot").Add(float64(summary.SlotsRemoved))
	metrics.ReconcileRemoved.WithLabelValues("media").Add(float64(summary.MediaRemoved))
	metrics.ReconcileRemoved.WithLabelValues("calendar_entry").Add(float64(summary.CalendarEntriesRemoved))
}

// cronLogger адаптирует slog к cron.Logger
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, sl.Err(err))...)
}
