package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/lib/jwt"
	"gallery_planner/internal/lib/logger/sl"
	gallery_service "gallery_planner/internal/services/gallery_service"
	media_service "gallery_planner/internal/services/media_service"
	"gallery_planner/internal/transport/http/dto"
	"gallery_planner/internal/transport/http/dto/response"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type GalleryService interface {
	CreateGallery(ctx context.Context, in gallery_service.CreateGalleryInput) (models.Gallery, error)
	Owned(ctx context.Context, galleryID, ownerID uuid.UUID) (models.Gallery, error)
	ListGalleries(ctx context.Context, ownerID uuid.UUID) ([]models.Gallery, error)
	UpdateGallery(ctx context.Context, id uuid.UUID, patch models.GalleryPatch) (models.Gallery, error)
	DeleteGallery(ctx context.Context, id uuid.UUID) (models.ReconcileSummary, error)
}

type SlotService interface {
	Allocate(ctx context.Context, galleryID uuid.UUID) (models.Slot, error)
	GetSlot(ctx context.Context, slotID uuid.UUID) (models.Slot, error)
	ListSlots(ctx context.Context, galleryID uuid.UUID) ([]models.Slot, error)
	DeleteSlot(ctx context.Context, slotID uuid.UUID) error
	AttachMedia(ctx context.Context, slotID, mediaID uuid.UUID) (models.Slot, error)
	ReorderImages(ctx context.Context, slotID uuid.UUID, mediaIDs []uuid.UUID) (models.Slot, error)
	UpdateSlot(ctx context.Context, slotID uuid.UUID, patch models.SlotPatch) (models.Slot, error)
}

type MediaService interface {
	IngestBatch(ctx context.Context, galleryID, ownerID uuid.UUID, files []media_service.UploadFile) media_service.BatchResult
	GetMedia(ctx context.Context, mediaID uuid.UUID) (*models.Media, error)
	ListMedia(ctx context.Context, galleryID uuid.UUID) ([]models.Media, error)
}

type LineageService interface {
	CreateVariant(ctx context.Context, parentID uuid.UUID, data []byte, descriptor string) (*models.Media, error)
	DeleteMedia(ctx context.Context, mediaID uuid.UUID) error
	ListVariants(ctx context.Context, mediaID uuid.UUID) ([]models.Media, error)
}

type CalendarService interface {
	Schedule(ctx context.Context, galleryID uuid.UUID, date, letter string) (models.CalendarEntry, error)
	Unschedule(ctx context.Context, galleryID uuid.UUID, date, letter string) error
	ListRange(ctx context.Context, from, to string) ([]models.CalendarEntry, error)
	ListForGallery(ctx context.Context, galleryID uuid.UUID) ([]models.CalendarEntry, error)
}

type Reconciler interface {
	ReconcileOrphans(ctx context.Context) (models.ReconcileSummary, error)
}

type Routers struct {
	log             *slog.Logger
	GalleryService  GalleryService
	SlotService     SlotService
	MediaService    MediaService
	LineageService  LineageService
	CalendarService CalendarService
	Reconciler      Reconciler
	urls            dto.URLBuilder
	maxUploadSize   int64
}

type Services struct {
	Gallery    GalleryService
	Slot       SlotService
	Media      MediaService
	Lineage    LineageService
	Calendar   CalendarService
	Reconciler Reconciler
}

func NewRouter(log *slog.Logger, services Services, urls dto.URLBuilder, maxUploadSize int64) *Routers {
	return &Routers{
		log:             log,
		GalleryService:  services.Gallery,
		SlotService:     services.Slot,
		MediaService:    services.Media,
		LineageService:  services.Lineage,
		CalendarService: services.Calendar,
		Reconciler:      services.Reconciler,
		urls:            urls,
		maxUploadSize:   maxUploadSize,
	}
}

var ErrInvalidUUID = errors.New("not valid UUID")

// fail пишет ответ об ошибке; неожиданные ошибки логируются
func (r *Routers) fail(c echo.Context, log *slog.Logger, err error) error {
	status, body := response.FromError(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", sl.Err(err))
	} else {
		log.Debug("request rejected", sl.Err(err))
	}
	return c.JSON(status, body)
}

func ownerID(c echo.Context) (uuid.UUID, error) {
	token, _ := c.Get("user").(*gojwt.Token)
	return jwt.OwnerID(token)
}

func paramUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w %q", models.ErrValidation, ErrInvalidUUID, c.Param(name))
	}
	return id, nil
}

// ownedGallery проверяет, что галерея из пути принадлежит вызывающему
func (r *Routers) ownedGallery(c echo.Context) (models.Gallery, error) {
	owner, err := ownerID(c)
	if err != nil {
		return models.Gallery{}, models.ErrNotFoundOrAccessDenied
	}
	galleryID, err := paramUUID(c, "id")
	if err != nil {
		return models.Gallery{}, err
	}
	return r.GalleryService.Owned(c.Request().Context(), galleryID, owner)
}

func (r *Routers) ownedSlot(c echo.Context) (models.Slot, error) {
	owner, err := ownerID(c)
	if err != nil {
		return models.Slot{}, models.ErrNotFoundOrAccessDenied
	}
	slotID, err := paramUUID(c, "id")
	if err != nil {
		return models.Slot{}, err
	}

	ctx := c.Request().Context()
	slot, err := r.SlotService.GetSlot(ctx, slotID)
	if err != nil {
		return models.Slot{}, err
	}
	if _, err := r.GalleryService.Owned(ctx, slot.GalleryID, owner); err != nil {
		return models.Slot{}, err
	}
	return slot, nil
}

func (r *Routers) ownedMedia(c echo.Context) (*models.Media, error) {
	owner, err := ownerID(c)
	if err != nil {
		return nil, models.ErrNotFoundOrAccessDenied
	}
	mediaID, err := paramUUID(c, "id")
	if err != nil {
		return nil, err
	}

	ctx := c.Request().Context()
	media, err := r.MediaService.GetMedia(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if _, err := r.GalleryService.Owned(ctx, media.GalleryID, owner); err != nil {
		return nil, err
	}
	return media, nil
}

// Health godoc
// @Summary Проверка состояния сервиса
// @Tags service
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func (r *Routers) Health(checks ...func(context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		for _, check := range checks {
			if err := check(c.Request().Context()); err != nil {
				r.log.Warn("health check failed", sl.Err(err))
				return c.JSON(http.StatusServiceUnavailable, response.ErrorResponseWithDetails("unhealthy", err.Error()))
			}
		}
		return c.JSON(http.StatusOK, response.MessageResponse("ok"))
	}
}

// Reconcile godoc
// @Summary Запустить поиск осиротевших записей
// @Description Удаляет слоты, медиа и записи календаря без галереи. Идемпотентно.
// @Tags admin
// @Produce json
// @Success 200 {object} response.Response{data=models.ReconcileSummary}
// @Failure 500 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/admin/reconcile [post]
func (r *Routers) Reconcile(c echo.Context) error {
	const op = "http.routers.Reconcile"

	log := r.log.With(slog.String("op", op))

	summary, err := r.Reconciler.ReconcileOrphans(c.Request().Context())
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(summary))
}
