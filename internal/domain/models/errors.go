package models

import "errors"

var (
	ErrValidation             = errors.New("validation error")
	ErrNotFoundOrAccessDenied = errors.New("not found or access denied")
	ErrCapacityExceeded       = errors.New("slot capacity exceeded")
	ErrTransientWorker        = errors.New("transient derivative worker failure")
	ErrUnreadableImage        = errors.New("unreadable image")
	ErrDuplicateSkipped       = errors.New("duplicate skipped")
)
