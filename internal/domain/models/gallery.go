package models

import (
	"time"

	"github.com/google/uuid"
)

// Gallery представляет галерею, разбитую на слоты A–Z
type Gallery struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	OwnerID      uuid.UUID `json:"owner_id" db:"owner_id"`
	Description  string    `json:"description" db:"description"`
	ActiveSlot   *string   `json:"active_slot,omitempty" db:"active_slot"`
	GridColumns  int       `json:"grid_columns" db:"grid_columns"`
	ShowCaptions bool      `json:"show_captions" db:"show_captions"`

	// NextSlotIndex is a display hint only. SlotCapacity means the gallery is full.
	NextSlotIndex int       `json:"next_slot_index" db:"next_slot_index"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// NextSlotLetter returns the hinted letter, or "" when the gallery is full.
func (g Gallery) NextSlotLetter() string {
	if g.NextSlotIndex < 0 || g.NextSlotIndex >= SlotCapacity {
		return ""
	}
	return SlotLetter(g.NextSlotIndex)
}
