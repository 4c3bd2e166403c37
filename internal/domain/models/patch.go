package models

import (
	"encoding/json"
	"fmt"
)

// Допустимое число колонок сетки галереи
const (
	MinGridColumns = 1
	MaxGridColumns = 12
)

// GalleryField enumerates gallery columns a client may change.
type GalleryField string

const (
	GalleryFieldName         GalleryField = "name"
	GalleryFieldDescription  GalleryField = "description"
	GalleryFieldActiveSlot   GalleryField = "active_slot"
	GalleryFieldGridColumns  GalleryField = "grid_columns"
	GalleryFieldShowCaptions GalleryField = "show_captions"
)

// SlotField enumerates slot columns a client may change.
type SlotField string

const (
	SlotFieldDescription SlotField = "description"
	SlotFieldCaption     SlotField = "caption"
	SlotFieldHashtags    SlotField = "hashtags"
)

// GalleryPatch is a validated partial update. Values are typed per field.
type GalleryPatch map[GalleryField]any

// SlotPatch is a validated partial update of a slot's free-text fields.
type SlotPatch map[SlotField]string

// ParseGalleryPatch decodes a JSON object, rejecting unknown fields and
// values of the wrong type.
func ParseGalleryPatch(raw map[string]json.RawMessage) (GalleryPatch, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	patch := make(GalleryPatch, len(raw))
	for key, value := range raw {
		field := GalleryField(key)
		var err error
		switch field {
		case GalleryFieldName:
			var v string
			if err = json.Unmarshal(value, &v); err == nil && v == "" {
				err = fmt.Errorf("name must not be empty")
			}
			patch[field] = v
		case GalleryFieldDescription:
			var v string
			err = json.Unmarshal(value, &v)
			patch[field] = v
		case GalleryFieldActiveSlot:
			var v *string
			if err = json.Unmarshal(value, &v); err == nil && v != nil {
				_, err = SlotIndex(*v)
			}
			patch[field] = v
		case GalleryFieldGridColumns:
			var v int
			if err = json.Unmarshal(value, &v); err == nil && (v < MinGridColumns || v > MaxGridColumns) {
				err = fmt.Errorf("grid_columns must be between %d and %d", MinGridColumns, MaxGridColumns)
			}
			patch[field] = v
		case GalleryFieldShowCaptions:
			var v bool
			err = json.Unmarshal(value, &v)
			patch[field] = v
		default:
			return nil, fmt.Errorf("%w: field '%s' is not allowed for update", ErrValidation, key)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: field '%s': %v", ErrValidation, key, err)
		}
	}

	return patch, nil
}

// ParseSlotPatch decodes a JSON object into a SlotPatch, rejecting unknown fields.
func ParseSlotPatch(raw map[string]json.RawMessage) (SlotPatch, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	patch := make(SlotPatch, len(raw))
	for key, value := range raw {
		field := SlotField(key)
		switch field {
		case SlotFieldDescription, SlotFieldCaption, SlotFieldHashtags:
		default:
			return nil, fmt.Errorf("%w: field '%s' is not allowed for update", ErrValidation, key)
		}

		var v string
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, fmt.Errorf("%w: field '%s': %v", ErrValidation, key, err)
		}
		patch[field] = v
	}

	return patch, nil
}
