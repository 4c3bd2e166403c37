package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"gallery_planner/internal/domain/models"
	gallery_service "gallery_planner/internal/services/gallery_service"
	"gallery_planner/internal/transport/http/dto"
	"gallery_planner/internal/transport/http/dto/response"

	"github.com/labstack/echo/v4"
)

// CreateGallery godoc
// @Summary Создать галерею
// @Tags galleries
// @Accept json
// @Produce json
// @Param request body dto.CreateGalleryRequest true "Данные галереи"
// @Success 201 {object} response.Response{data=dto.GalleryResponse}
// @Failure 400 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/galleries [post]
func (r *Routers) CreateGallery(c echo.Context) error {
	const op = "http.routers.CreateGallery"

	log := r.log.With(slog.String("op", op))

	owner, err := ownerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
	}

	var req dto.CreateGalleryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", err.Error()))
	}

	gallery, err := r.GalleryService.CreateGallery(c.Request().Context(), gallery_service.CreateGalleryInput{
		OwnerID:      owner,
		Name:         req.Name,
		Description:  req.Description,
		GridColumns:  req.GridColumns,
		ShowCaptions: req.ShowCaptions,
	})
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(dto.NewGalleryResponse(gallery)))
}

// ListGalleries godoc
// @Summary Галереи текущего владельца
// @Tags galleries
// @Produce json
// @Success 200 {object} response.Response{data=[]dto.GalleryResponse}
// @Security ApiKeyAuth
// @Router /api/v1/galleries [get]
func (r *Routers) ListGalleries(c echo.Context) error {
	const op = "http.routers.ListGalleries"

	log := r.log.With(slog.String("op", op))

	owner, err := ownerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
	}

	galleries, err := r.GalleryService.ListGalleries(c.Request().Context(), owner)
	if err != nil {
		return r.fail(c, log, err)
	}

	out := make([]dto.GalleryResponse, 0, len(galleries))
	for _, g := range galleries {
		out = append(out, dto.NewGalleryResponse(g))
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(out))
}

// GetGallery godoc
// @Summary Получить галерею
// @Tags galleries
// @Produce json
// @Param id path string true "UUID галереи" format(uuid)
// @Success 200 {object} response.Response{data=dto.GalleryResponse}
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id} [get]
func (r *Routers) GetGallery(c echo.Context) error {
	const op = "http.routers.GetGallery"

	log := r.log.With(slog.String("op", op))

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewGalleryResponse(gallery)))
}

// UpdateGallery godoc
// @Summary Частично обновить галерею
// @Description Разрешены поля name, description, active_slot, grid_columns, show_captions
// @Tags galleries
// @Accept json
// @Produce json
// @Param id path string true "UUID галереи" format(uuid)
// @Success 200 {object} response.Response{data=dto.GalleryResponse}
// @Failure 400 {object} response.ErrorResponse "Неизвестное поле или неверное значение"
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id} [patch]
func (r *Routers) UpdateGallery(c echo.Context) error {
	const op = "http.routers.UpdateGallery"

	log := r.log.With(slog.String("op", op))

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	patch, err := models.ParseGalleryPatch(raw)
	if err != nil {
		return r.fail(c, log, err)
	}

	updated, err := r.GalleryService.UpdateGallery(c.Request().Context(), gallery.ID, patch)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewGalleryResponse(updated)))
}

// DeleteGallery godoc
// @Summary Удалить галерею со всеми слотами, медиа и записями календаря
// @Tags galleries
// @Produce json
// @Param id path string true "UUID галереи" format(uuid)
// @Success 200 {object} response.Response{data=dto.DeleteGalleryResponse}
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id} [delete]
func (r *Routers) DeleteGallery(c echo.Context) error {
	const op = "http.routers.DeleteGallery"

	log := r.log.With(slog.String("op", op))

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	removed, err := r.GalleryService.DeleteGallery(c.Request().Context(), gallery.ID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.DeleteGalleryResponse{
		GalleryID: gallery.ID,
		Removed:   removed,
	}))
}

// GalleryCalendar godoc
// @Summary Записи календаря галереи
// @Tags calendar
// @Produce json
// @Param id path string true "UUID галереи" format(uuid)
// @Success 200 {object} response.Response{data=[]models.CalendarEntry}
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id}/calendar [get]
func (r *Routers) GalleryCalendar(c echo.Context) error {
	const op = "http.routers.GalleryCalendar"

	log := r.log.With(slog.String("op", op))

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	entries, err := r.CalendarService.ListForGallery(c.Request().Context(), gallery.ID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(nonNil(entries)))
}

// ScheduleSlot godoc
// @Summary Поставить слот галереи на дату
// @Tags calendar
// @Produce json
// @Param id path string true "UUID галереи" format(uuid)
// @Param date path string true "Дата YYYY-MM-DD"
// @Param letter path string true "Буква слота A-Z"
// @Success 200 {object} response.Response{data=models.CalendarEntry}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse "Нет такого слота"
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id}/calendar/{date}/{letter} [put]
func (r *Routers) ScheduleSlot(c echo.Context) error {
	const op = "http.routers.ScheduleSlot"

	log := r.log.With(slog.String("op", op))

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	entry, err := r.CalendarService.Schedule(c.Request().Context(), gallery.ID, c.Param("date"), c.Param("letter"))
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(entry))
}

// UnscheduleSlot godoc
// @Summary Снять слот с даты
// @Tags calendar
// @Param id path string true "UUID галереи" format(uuid)
// @Param date path string true "Дата YYYY-MM-DD"
// @Param letter path string true "Буква слота A-Z"
// @Success 204
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id}/calendar/{date}/{letter} [delete]
func (r *Routers) UnscheduleSlot(c echo.Context) error {
	const op = "http.routers.UnscheduleSlot"

	log := r.log.With(slog.String("op", op))

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	if err := r.CalendarService.Unschedule(c.Request().Context(), gallery.ID, c.Param("date"), c.Param("letter")); err != nil {
		return r.fail(c, log, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// Calendar godoc
// @Summary Календарь по всем галереям владельца
// @Tags calendar
// @Produce json
// @Param from query string true "Начало YYYY-MM-DD"
// @Param to query string true "Конец YYYY-MM-DD"
// @Success 200 {object} response.Response{data=[]models.CalendarEntry}
// @Failure 400 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/calendar [get]
func (r *Routers) Calendar(c echo.Context) error {
	const op = "http.routers.Calendar"

	log := r.log.With(slog.String("op", op))

	owner, err := ownerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, response.ErrAuthenticationFailed)
	}

	ctx := c.Request().Context()
	entries, err := r.CalendarService.ListRange(ctx, c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return r.fail(c, log, err)
	}

	galleries, err := r.GalleryService.ListGalleries(ctx, owner)
	if err != nil {
		return r.fail(c, log, err)
	}
	owned := make(map[string]struct{}, len(galleries))
	for _, g := range galleries {
		owned[g.ID.String()] = struct{}{}
	}

	// чужие галереи не видны
	visible := make([]models.CalendarEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := owned[e.GalleryID.String()]; ok {
			visible = append(visible, e)
		}
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(visible))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
