package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/transport/http/dto"
	"gallery_planner/internal/transport/http/dto/response"

	"github.com/labstack/echo/v4"
)

// AllocateSlot godoc
// @Summary Создать слот на первой свободной букве
// @Tags slots
// @Produce json
// @Param id path string true "UUID галереи" format(uuid)
// @Success 201 {object} response.Response{data=models.Slot}
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Все буквы A-Z заняты"
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id}/slots [post]
func (r *Routers) AllocateSlot(c echo.Context) error {
	const op = "http.routers.AllocateSlot"

	log := r.log.With(slog.String("op", op))

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	slot, err := r.SlotService.Allocate(c.Request().Context(), gallery.ID)
	if err != nil {
		return r.fail(c, log, err)
	}

	log.Info("slot allocated", slog.String("gallery_id", gallery.ID.String()), slog.String("letter", slot.Letter))

	return c.JSON(http.StatusCreated, response.SuccessResponse(slot))
}

// ListSlots godoc
// @Summary Слоты галереи по порядку букв
// @Tags slots
// @Produce json
// @Param id path string true "UUID галереи" format(uuid)
// @Success 200 {object} response.Response{data=[]models.Slot}
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id}/slots [get]
func (r *Routers) ListSlots(c echo.Context) error {
	const op = "http.routers.ListSlots"

	log := r.log.With(slog.String("op", op))

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	slots, err := r.SlotService.ListSlots(c.Request().Context(), gallery.ID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(nonNil(slots)))
}

// UpdateSlot godoc
// @Summary Частично обновить слот
// @Description Разрешены поля description, caption, hashtags
// @Tags slots
// @Accept json
// @Produce json
// @Param id path string true "UUID слота" format(uuid)
// @Success 200 {object} response.Response{data=models.Slot}
// @Failure 400 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/slots/{id} [patch]
func (r *Routers) UpdateSlot(c echo.Context) error {
	const op = "http.routers.UpdateSlot"

	log := r.log.With(slog.String("op", op))

	slot, err := r.ownedSlot(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	patch, err := models.ParseSlotPatch(raw)
	if err != nil {
		return r.fail(c, log, err)
	}

	updated, err := r.SlotService.UpdateSlot(c.Request().Context(), slot.ID, patch)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(updated))
}

// DeleteSlot godoc
// @Summary Удалить слот
// @Description Буква освобождается, записи календаря на неё снимаются
// @Tags slots
// @Param id path string true "UUID слота" format(uuid)
// @Success 204
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/slots/{id} [delete]
func (r *Routers) DeleteSlot(c echo.Context) error {
	const op = "http.routers.DeleteSlot"

	log := r.log.With(slog.String("op", op))

	slot, err := r.ownedSlot(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	if err := r.SlotService.DeleteSlot(c.Request().Context(), slot.ID); err != nil {
		return r.fail(c, log, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// AttachImage godoc
// @Summary Добавить медиа в конец списка изображений слота
// @Tags slots
// @Accept json
// @Produce json
// @Param id path string true "UUID слота" format(uuid)
// @Param request body dto.AttachImageRequest true "Медиа"
// @Success 200 {object} response.Response{data=models.Slot}
// @Failure 400 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/slots/{id}/images [post]
func (r *Routers) AttachImage(c echo.Context) error {
	const op = "http.routers.AttachImage"

	log := r.log.With(slog.String("op", op))

	slot, err := r.ownedSlot(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	var req dto.AttachImageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", err.Error()))
	}

	updated, err := r.SlotService.AttachMedia(c.Request().Context(), slot.ID, req.MediaID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(updated))
}

// ReorderImages godoc
// @Summary Задать новый порядок изображений слота
// @Description Список должен содержать ровно текущие медиа слота
// @Tags slots
// @Accept json
// @Produce json
// @Param id path string true "UUID слота" format(uuid)
// @Param request body dto.ReorderImagesRequest true "Новый порядок"
// @Success 200 {object} response.Response{data=models.Slot}
// @Failure 400 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/slots/{id}/images/order [put]
func (r *Routers) ReorderImages(c echo.Context) error {
	const op = "http.routers.ReorderImages"

	log := r.log.With(slog.String("op", op))

	slot, err := r.ownedSlot(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	var req dto.ReorderImagesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrInvalidRequestFormat)
	}

	updated, err := r.SlotService.ReorderImages(c.Request().Context(), slot.ID, req.MediaIDs)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(updated))
}
