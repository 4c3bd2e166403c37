package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SlotCapacity is the number of letter-addressed slots a gallery can hold (A–Z).
const SlotCapacity = 26

// Slot is a letter-addressed publication unit inside a gallery.
type Slot struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	GalleryID   uuid.UUID  `json:"gallery_id" db:"gallery_id"`
	Letter      string     `json:"letter" db:"letter"`
	Index       int        `json:"index" db:"idx"`
	Images      SlotImages `json:"images" db:"images"`
	Description string     `json:"description" db:"description"`
	Caption     string     `json:"caption" db:"caption"`
	Hashtags    string     `json:"hashtags" db:"hashtags"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// SlotImage is one entry of a slot's ordered image list.
type SlotImage struct {
	MediaID uuid.UUID `json:"media_id"`
	Order   int       `json:"order"`
}

// SlotImages хранится в JSONB колонке images
type SlotImages []SlotImage

// SlotLetter maps an index in [0, SlotCapacity) to its letter.
func SlotLetter(index int) string {
	return string(rune('A' + index))
}

// SlotIndex is the inverse of SlotLetter.
func SlotIndex(letter string) (int, error) {
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return 0, fmt.Errorf("%w: invalid slot letter %q", ErrValidation, letter)
	}
	return int(letter[0] - 'A'), nil
}

// Sorted returns a copy ordered by Order.
func (s SlotImages) Sorted() SlotImages {
	out := make(SlotImages, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Contains reports whether mediaID is in the list.
func (s SlotImages) Contains(mediaID uuid.UUID) bool {
	for _, img := range s {
		if img.MediaID == mediaID {
			return true
		}
	}
	return false
}

// Without returns the list minus the given ids and whether anything was removed.
// Remaining entries keep their relative order and are renumbered from zero.
func (s SlotImages) Without(ids map[uuid.UUID]struct{}) (SlotImages, bool) {
	out := make(SlotImages, 0, len(s))
	removed := false
	for _, img := range s.Sorted() {
		if _, drop := ids[img.MediaID]; drop {
			removed = true
			continue
		}
		out = append(out, SlotImage{MediaID: img.MediaID, Order: len(out)})
	}
	return out, removed
}

// NextOrder returns max(order)+1, or 0 for an empty list.
func (s SlotImages) NextOrder() int {
	next := 0
	for _, img := range s {
		if img.Order >= next {
			next = img.Order + 1
		}
	}
	return next
}

// Value реализует driver.Valuer для сериализации в JSONB
func (s SlotImages) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan реализует sql.Scanner для десериализации JSONB
func (s *SlotImages) Scan(value interface{}) error {
	if value == nil {
		*s = SlotImages{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported type for SlotImages: %T", value)
	}
}
