package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"gallery_planner/internal/domain/models"
	"gallery_planner/internal/lib/logger/sl"
	media_service "gallery_planner/internal/services/media_service"
	"gallery_planner/internal/transport/http/dto"
	"gallery_planner/internal/transport/http/dto/response"

	"github.com/labstack/echo/v4"
)

// UploadMedia godoc
// @Summary Загрузить изображения в галерею
// @Description Принимает несколько файлов в поле files. Ошибка одного файла не мешает остальным.
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "UUID галереи" format(uuid)
// @Param files formData file true "Изображения"
// @Success 201 {object} response.Response{data=dto.UploadResponse} "Создано хотя бы одно медиа"
// @Success 200 {object} response.Response{data=dto.UploadResponse} "Ничего не создано"
// @Failure 400 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id}/media [post]
func (r *Routers) UploadMedia(c echo.Context) error {
	const op = "http.routers.UploadMedia"

	log := r.log.With(slog.String("op", op))

	startTime := time.Now()

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "multipart form is required"))
	}

	headers := make([]*multipart.FileHeader, 0, len(form.File["files"])+1)
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["file"]...)
	if len(headers) == 0 {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "at least one file is required"))
	}

	// файл, который не удалось прочитать, не мешает остальным
	var unread []dto.FileFailure
	files := make([]media_service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := r.readUpload(fh)
		if err != nil {
			log.Debug("file rejected", slog.String("filename", fh.Filename), sl.Err(err))
			unread = append(unread, dto.FileFailure{Filename: fh.Filename, Reason: readFailureReason(err)})
			continue
		}
		files = append(files, media_service.UploadFile{Filename: fh.Filename, Data: data})
	}

	log.Debug("files received", slog.Int("count", len(files)), slog.Int("rejected", len(unread)))

	var res media_service.BatchResult
	if len(files) > 0 {
		res = r.MediaService.IngestBatch(c.Request().Context(), gallery.ID, gallery.OwnerID, files)
	}

	out := dto.UploadResponse{
		Created: make([]dto.MediaResponse, 0, len(res.Created)),
		Skipped: nonNil(res.Skipped),
		Failed:  make([]dto.FileFailure, 0, len(res.Failed)+len(unread)),
	}
	out.Failed = append(out.Failed, unread...)
	for _, m := range res.Created {
		out.Created = append(out.Created, dto.NewMediaResponse(m, r.urls))
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, dto.FileFailure{Filename: f.Filename, Reason: f.Reason, Retryable: f.Retryable})
	}

	log.Info("upload finished",
		slog.String("gallery_id", gallery.ID.String()),
		slog.Int("created", len(out.Created)),
		slog.Int("skipped", len(out.Skipped)),
		slog.Int("failed", len(out.Failed)),
		slog.Duration("duration", time.Since(startTime)),
	)

	status := http.StatusOK
	if len(out.Created) > 0 {
		status = http.StatusCreated
	}
	return c.JSON(status, response.SuccessResponse(out))
}

func readFailureReason(err error) string {
	if errors.Is(err, models.ErrValidation) {
		return err.Error()
	}
	return "failed to read file"
}

// readUpload читает файл целиком, но не больше лимита
func (r *Routers) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if r.maxUploadSize > 0 && fh.Size > r.maxUploadSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", models.ErrValidation, fh.Filename, r.maxUploadSize)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	if r.maxUploadSize > 0 {
		reader = io.LimitReader(f, r.maxUploadSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if r.maxUploadSize > 0 && int64(len(data)) > r.maxUploadSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", models.ErrValidation, fh.Filename, r.maxUploadSize)
	}
	return data, nil
}

// ListMedia godoc
// @Summary Медиа галереи
// @Tags media
// @Produce json
// @Param id path string true "UUID галереи" format(uuid)
// @Success 200 {object} response.Response{data=[]dto.MediaResponse}
// @Security ApiKeyAuth
// @Router /api/v1/galleries/{id}/media [get]
func (r *Routers) ListMedia(c echo.Context) error {
	const op = "http.routers.ListMedia"

	log := r.log.With(slog.String("op", op))

	gallery, err := r.ownedGallery(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	media, err := r.MediaService.ListMedia(c.Request().Context(), gallery.ID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewMediaList(media, r.urls)))
}

// CreateVariant godoc
// @Summary Сохранить вариант медиа (кроп, фильтр)
// @Description Вариант варианта привязывается к исходному оригиналу
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "UUID медиа" format(uuid)
// @Param file formData file true "Преобразованное изображение"
// @Param descriptor formData string true "Тип варианта, например crop"
// @Success 201 {object} response.Response{data=dto.MediaResponse}
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse "Файл не является изображением"
// @Failure 503 {object} response.ErrorResponse "Сбой обработки, можно повторить"
// @Security ApiKeyAuth
// @Router /api/v1/media/{id}/variants [post]
func (r *Routers) CreateVariant(c echo.Context) error {
	const op = "http.routers.CreateVariant"

	log := r.log.With(slog.String("op", op))

	parent, err := r.ownedMedia(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithDetails("invalid_request", "file is required"))
	}
	data, err := r.readUpload(fh)
	if err != nil {
		return r.fail(c, log, err)
	}

	variant, err := r.LineageService.CreateVariant(c.Request().Context(), parent.ID, data, c.FormValue("descriptor"))
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusCreated, response.SuccessResponse(dto.NewMediaResponse(variant, r.urls)))
}

// ListVariants godoc
// @Summary Варианты медиа
// @Tags media
// @Produce json
// @Param id path string true "UUID медиа" format(uuid)
// @Success 200 {object} response.Response{data=[]dto.MediaResponse}
// @Security ApiKeyAuth
// @Router /api/v1/media/{id}/variants [get]
func (r *Routers) ListVariants(c echo.Context) error {
	const op = "http.routers.ListVariants"

	log := r.log.With(slog.String("op", op))

	media, err := r.ownedMedia(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	variants, err := r.LineageService.ListVariants(c.Request().Context(), media.ID)
	if err != nil {
		return r.fail(c, log, err)
	}

	return c.JSON(http.StatusOK, response.SuccessResponse(dto.NewMediaList(variants, r.urls)))
}

// DeleteMedia godoc
// @Summary Удалить медиа
// @Description Для оригинала удаляются и все его варианты; медиа убирается из слотов
// @Tags media
// @Param id path string true "UUID медиа" format(uuid)
// @Success 204
// @Failure 404 {object} response.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/v1/media/{id} [delete]
func (r *Routers) DeleteMedia(c echo.Context) error {
	const op = "http.routers.DeleteMedia"

	log := r.log.With(slog.String("op", op))

	media, err := r.ownedMedia(c)
	if err != nil {
		return r.fail(c, log, err)
	}

	if err := r.LineageService.DeleteMedia(c.Request().Context(), media.ID); err != nil {
		return r.fail(c, log, err)
	}

	return c.NoContent(http.StatusNoContent)
}
