package dto

import (
	"gallery_planner/internal/domain/models"

	"github.com/google/uuid"
)

type CreateGalleryRequest struct {
	Name         string `json:"name" validate:"required,max=255"`
	Description  string `json:"description"`
	GridColumns  int    `json:"grid_columns" validate:"omitempty,min=1,max=12"`
	ShowCaptions bool   `json:"show_captions"`
}

// GalleryResponse добавляет к галерее букву следующего свободного слота
type GalleryResponse struct {
	models.Gallery
	NextSlotLetter string `json:"next_slot_letter,omitempty"`
}

func NewGalleryResponse(g models.Gallery) GalleryResponse {
	return GalleryResponse{Gallery: g, NextSlotLetter: g.NextSlotLetter()}
}

type AttachImageRequest struct {
	MediaID uuid.UUID `json:"media_id" validate:"required"`
}

type ReorderImagesRequest struct {
	MediaIDs []uuid.UUID `json:"media_ids" validate:"required"`
}

type DeleteGalleryResponse struct {
	GalleryID uuid.UUID               `json:"gallery_id"`
	Removed   models.ReconcileSummary `json:"removed"`
}
