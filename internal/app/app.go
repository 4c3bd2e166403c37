package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	httpapp "gallery_planner/internal/app/http"
	"gallery_planner/internal/config"
	"gallery_planner/internal/derive"
	"gallery_planner/internal/lib/logger/sl"
	"gallery_planner/internal/lock"
	"gallery_planner/internal/repository"
	calendar_service "gallery_planner/internal/services/calendar_service"
	gallery_service "gallery_planner/internal/services/gallery_service"
	lineage_service "gallery_planner/internal/services/lineage_service"
	media_service "gallery_planner/internal/services/media_service"
	reconcile_service "gallery_planner/internal/services/reconcile_service"
	slot_service "gallery_planner/internal/services/slot_service"
	filestorage "gallery_planner/internal/storage/filestorage"
	"gallery_planner/internal/storage/postgresql"
	redisstorage "gallery_planner/internal/storage/redis"
	httprouters "gallery_planner/internal/transport/http"
)

const (
	deriveModeInproc = "inproc"
	deriveModeExec   = "exec"
)

type App struct {
	log        *slog.Logger
	HTTPServer *httpapp.Server
	Reconciler *reconcile_service.ReconcileService

	storage *postgresql.Storage
	redis   *redisstorage.Client
	pool    *derive.Pool
}

func New(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	if err := postgresql.Migrate(cfg.DSN); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := postgresql.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a := &App{log: log, storage: db}

	fileStorage, err := filestorage.NewLocalFileStorage(cfg.FileStorage.BaseDir, cfg.FileStorage.BaseURL)
	if err != nil {
		a.Stop()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	health := []func(context.Context) error{db.HealthCheck}

	var locker lock.Locker
	if cfg.Redis.RedisAddr != "" {
		client, err := redisstorage.Connect(ctx, cfg.Redis.RedisAddr, cfg.Redis.RedisPassword, cfg.Redis.RedisDB)
		if err != nil {
			a.Stop()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.redis = client
		locker = lock.NewRedisLocker(client.Client)
		health = append(health, client.HealthCheck)
	} else {
		log.Warn("redis is not configured, sweep lock is local to this process")
		locker = lock.NewLocalLocker()
	}

	var worker derive.Worker
	switch cfg.Derive.Mode {
	case deriveModeExec:
		worker = derive.NewExecWorker(log, cfg.Derive.WorkerPath)
	case deriveModeInproc, "":
		a.pool = derive.NewPool(log, derive.NewProcessor(), cfg.Derive.Workers)
		worker = a.pool
	default:
		a.Stop()
		return nil, fmt.Errorf("%s: unknown derive mode %q", op, cfg.Derive.Mode)
	}

	repo := repository.NewRepository(db.Pool())

	reconciler := reconcile_service.NewReconcileService(log, repo, fileStorage, locker, reconcile_service.Config{
		Schedule:     cfg.Reconcile.Schedule,
		SweepTimeout: cfg.Reconcile.SweepTimeout,
		LockTTL:      cfg.Reconcile.LockTTL,
		LockRetry:    cfg.Reconcile.LockRetry,
	})
	a.Reconciler = reconciler

	mediaService := media_service.NewMediaService(log, repo.Gallery, repo.Media, fileStorage, worker, media_service.Config{
		ThumbWidth:       cfg.Derive.ThumbWidth,
		ThumbHeight:      cfg.Derive.ThumbHeight,
		JPEGQuality:      cfg.Derive.JPEGQuality,
		WebpQuality:      cfg.Derive.WebpQuality,
		Timeout:          cfg.Derive.Timeout,
		BatchConcurrency: cfg.Derive.Workers,
		MaxSize:          cfg.FileStorage.MaxSize,
		MaxPixels:        cfg.Derive.MaxPixels,
	})

	routers := httprouters.NewRouter(log, httprouters.Services{
		Gallery:    gallery_service.NewGalleryService(log, repo.Gallery, reconciler),
		Slot:       slot_service.NewSlotService(log, repo.Gallery, repo.Slot, repo.Media, repo.Calendar),
		Media:      mediaService,
		Lineage:    lineage_service.NewLineageService(log, repo.Media, repo.Slot, fileStorage, mediaService),
		Calendar:   calendar_service.NewCalendarService(log, repo.Calendar, repo.Slot),
		Reconciler: reconciler,
	}, fileStorage, cfg.FileStorage.MaxSize)

	a.HTTPServer = httpapp.New(log, cfg.Auth.TokenSecret, cfg.HTTP.Host, cfg.HTTP.Port, routers, health...)
	a.HTTPServer.BuildRouters()
	if prefix := artifactPrefix(cfg.FileStorage.BaseURL); prefix != "" {
		a.HTTPServer.ServeArtifacts(prefix, fileStorage.GetBaseDir())
	}

	if err := reconciler.Start(); err != nil {
		a.Stop()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

// artifactPrefix возвращает путь из base_url, если файлы раздаёт сам сервис
func artifactPrefix(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return strings.TrimRight(u.Path, "/")
}

// Stop освобождает ресурсы в обратном порядке создания
func (a *App) Stop() {
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Stop(); err != nil {
			a.log.Error("failed to stop http server", sl.Err(err))
		}
	}
	if a.Reconciler != nil {
		a.Reconciler.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("failed to close redis", sl.Err(err))
		}
	}
	if a.storage != nil {
		a.storage.Stop()
	}
}
