package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the ISO calendar date format used for calendar entries.
const DateLayout = "2006-01-02"

// CalendarEntry marks a gallery slot as scheduled for a date.
type CalendarEntry struct {
	GalleryID  uuid.UUID `json:"gallery_id" db:"gallery_id"`
	Date       string    `json:"date" db:"date"`
	SlotLetter string    `json:"slot_letter" db:"slot_letter"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ParseDate validates an ISO calendar date and returns it normalised.
func ParseDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid date %q", ErrValidation, s)
	}
	return d.Format(DateLayout), nil
}
