package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Media представляет изображение с производными файлами
type Media struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	GalleryID         uuid.UUID  `json:"gallery_id" db:"gallery_id"`
	OwnerID           uuid.UUID  `json:"owner_id" db:"owner_id"`
	OriginalFilename  string     `json:"original_filename" db:"original_filename"`
	StoredFilename    string     `json:"stored_filename" db:"stored_filename"`
	Path              string     `json:"path" db:"path"`
	ThumbnailPath     string     `json:"thumbnail_path" db:"thumbnail_path"`
	WebpPath          string     `json:"webp_path" db:"webp_path"`
	ThumbnailWebpPath string     `json:"thumbnail_webp_path" db:"thumbnail_webp_path"`
	MimeType          string     `json:"mime_type" db:"mime_type"`
	Size              int64      `json:"size" db:"size"`
	Width             int        `json:"width" db:"width"`
	Height            int        `json:"height" db:"height"`
	CapturedAt        *time.Time `json:"captured_at,omitempty" db:"captured_at"`
	UploadedAt        time.Time  `json:"uploaded_at" db:"uploaded_at"`
	IsVariant         bool       `json:"is_variant" db:"is_variant"`
	ParentMediaID     *uuid.UUID `json:"parent_media_id,omitempty" db:"parent_media_id"`
	VariantDescriptor string     `json:"variant_descriptor,omitempty" db:"variant_descriptor"`
}

// ArtifactPaths returns every distinct artifact the record declares, original
// first. WebP originals reuse Path and ThumbnailPath as their alternates.
func (m *Media) ArtifactPaths() []string {
	paths := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	for _, p := range []string{m.Path, m.ThumbnailPath, m.WebpPath, m.ThumbnailWebpPath} {
		if _, dup := seen[p]; p == "" || dup {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return paths
}

// Validate проверяет корректность записи перед сохранением
func (m *Media) Validate() error {
	var validationErrors []string

	if m.ID == uuid.Nil {
		validationErrors = append(validationErrors, "id is required")
	}
	if m.GalleryID == uuid.Nil {
		validationErrors = append(validationErrors, "gallery id is required")
	}
	if m.OriginalFilename == "" {
		validationErrors = append(validationErrors, "original filename is required")
	}
	if len(m.OriginalFilename) > 255 {
		validationErrors = append(validationErrors, "original filename must be 255 characters or less")
	}
	if m.StoredFilename == "" || m.Path == "" {
		validationErrors = append(validationErrors, "stored filename and path are required")
	}
	if m.ThumbnailPath == "" {
		validationErrors = append(validationErrors, "thumbnail path is required")
	}
	if m.Size <= 0 {
		validationErrors = append(validationErrors, "size must be positive")
	}
	if m.Width <= 0 || m.Height <= 0 {
		validationErrors = append(validationErrors, "width and height must be positive values")
	}
	if m.IsVariant != (m.ParentMediaID != nil) {
		validationErrors = append(validationErrors, "parent media id must be set iff the media is a variant")
	}

	if len(validationErrors) > 0 {
		return &MediaValidationError{
			Errors: validationErrors,
		}
	}

	return nil
}

// MediaValidationError кастомный тип ошибки для валидации
type MediaValidationError struct {
	Errors []string
}

func (e *MediaValidationError) Error() string {
	return fmt.Sprintf("media validation failed: %s", strings.Join(e.Errors, "; "))
}

func (e *MediaValidationError) Unwrap() error {
	return ErrValidation
}
