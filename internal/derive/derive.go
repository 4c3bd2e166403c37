// Package derive produces thumbnails and WebP alternates for uploaded images.
//
// The work runs behind the Worker interface so that a misbehaving decoder can
// only fail the task it was given: Pool isolates tasks in recovered
// goroutines, ExecWorker in a separate derive_worker process.
package derive

import (
	"context"
	"errors"
	"os"

	"gallery_planner/internal/domain/models"
)

// Task describes one derivation. All paths are absolute filesystem paths.
type Task struct {
	Source            string  `cbor:"1,keyasint" json:"source"`
	ThumbnailPath     string  `cbor:"2,keyasint" json:"thumbnail_path"`
	ThumbnailWebpPath string  `cbor:"3,keyasint" json:"thumbnail_webp_path"`
	WebpPath          string  `cbor:"4,keyasint" json:"webp_path"`
	MaxWidth          int     `cbor:"5,keyasint" json:"max_width"`
	MaxHeight         int     `cbor:"6,keyasint" json:"max_height"`
	JPEGQuality       int     `cbor:"7,keyasint" json:"jpeg_quality"`
	WebpQuality       float32 `cbor:"8,keyasint" json:"webp_quality"`
	// MaxPixels caps width*height read from the image header before decoding.
	MaxPixels int64 `cbor:"9,keyasint" json:"max_pixels"`
}

// Outputs lists every target path of the task.
func (t Task) Outputs() []string {
	out := make([]string, 0, 3)
	for _, p := range []string{t.ThumbnailPath, t.ThumbnailWebpPath, t.WebpPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Result is what a worker reports for a successful task.
type Result struct {
	Width    int      `cbor:"1,keyasint" json:"width"`
	Height   int      `cbor:"2,keyasint" json:"height"`
	MimeType string   `cbor:"3,keyasint" json:"mime_type"`
	Written  []string `cbor:"4,keyasint" json:"written"`
}

// Worker runs derivation tasks. Implementations must honour ctx: once it is
// done Run returns and no further output is published for that task.
type Worker interface {
	Run(ctx context.Context, task Task) (Result, error)
}

// TaskProcessor is the in-process unit of work behind every Worker.
type TaskProcessor interface {
	Process(ctx context.Context, task Task) (Result, error)
}

// RemoveOutputs deletes every target of the task together with any partial
// file left by an interrupted write. Missing files are ignored.
func RemoveOutputs(task Task) error {
	var errs []error
	for _, p := range task.Outputs() {
		for _, candidate := range []string{p, partialPath(p)} {
			if err := os.Remove(candidate); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func partialPath(p string) string {
	return p + ".part"
}

// IsTransient reports whether a failed task may succeed on retry.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, models.ErrUnreadableImage)
}
