package dto

import (
	"gallery_planner/internal/domain/models"
)

// URLBuilder строит публичный адрес файла по относительному пути
type URLBuilder interface {
	URL(relativePath string) string
}

type MediaResponse struct {
	*models.Media
	URL              string `json:"url"`
	ThumbnailURL     string `json:"thumbnail_url"`
	WebpURL          string `json:"webp_url"`
	ThumbnailWebpURL string `json:"thumbnail_webp_url"`
}

func NewMediaResponse(m *models.Media, urls URLBuilder) MediaResponse {
	return MediaResponse{
		Media:            m,
		URL:              urls.URL(m.Path),
		ThumbnailURL:     urls.URL(m.ThumbnailPath),
		WebpURL:          urls.URL(m.WebpPath),
		ThumbnailWebpURL: urls.URL(m.ThumbnailWebpPath),
	}
}

func NewMediaList(media []models.Media, urls URLBuilder) []MediaResponse {
	out := make([]MediaResponse, 0, len(media))
	for i := range media {
		out = append(out, NewMediaResponse(&media[i], urls))
	}
	return out
}

// UploadResponse итог пакетной загрузки по файлам
type UploadResponse struct {
	Created []MediaResponse `json:"created"`
	Skipped []string        `json:"skipped"`
	Failed  []FileFailure   `json:"failed"`
}

type FileFailure struct {
	Filename  string `json:"filename"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}
