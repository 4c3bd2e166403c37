package derive

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// порядок важен: сначала время съёмки, затем оцифровки, затем изменения файла
var captureFields = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
}

var captureLayouts = []string{
	"2006:01:02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006:01:02",
}

// CaptureTime extracts the best-effort capture timestamp from EXIF metadata.
// Absent, unparsable or malformed metadata yields nil, never an error.
func CaptureTime(r io.Reader) (t *time.Time) {
	defer func() {
		if recover() != nil {
			t = nil
		}
	}()

	x, err := exif.Decode(r)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return nil
	}

	for _, field := range captureFields {
		tag, err := x.Get(field)
		if err != nil || tag == nil {
			continue
		}
		if parsed, ok := tagTime(tag); ok {
			return &parsed
		}
	}

	return nil
}

func tagTime(tag *tiff.Tag) (time.Time, bool) {
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return time.Time{}, false
		}
		return ParseCaptureValue(s)
	case tiff.IntVal:
		n, err := tag.Int64(0)
		if err != nil {
			return time.Time{}, false
		}
		return epochTime(n)
	}
	return time.Time{}, false
}

// ParseCaptureValue accepts the EXIF layout, common ISO variants and numeric
// epochs in seconds or milliseconds.
func ParseCaptureValue(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return time.Time{}, false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epochTime(n)
	}

	for _, layout := range captureLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// камеры пишут "0000:00:00 00:00:00" вместо пустого значения
			if t.Year() < 1800 {
				return time.Time{}, false
			}
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

// 1e11 секунд это год ~5138, поэтому большие значения считаются миллисекундами
const millisThreshold = 100_000_000_000

func epochTime(n int64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n >= millisThreshold {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}
