package derive

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gallery_planner/internal/domain/models"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	defaultMaxSide     = 400
	defaultJPEGQuality = 85
	defaultWebpQuality = 80
	// 50 Мп: RGBA такого размера занимает около 200 МиБ
	DefaultMaxPixels int64 = 50_000_000
)

var mimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// Processor decodes the source image and writes its derivatives.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) Process(ctx context.Context, task Task) (res Result, err error) {
	const op = "derive.Processor.Process"

	// всё, что успели записать, удаляется при любой ошибке или отмене
	defer func() {
		if err != nil {
			for _, path := range res.Written {
				_ = os.Remove(path)
			}
			res = Result{}
		}
	}()

	maxPixels := task.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	src, format, err := decodeFile(task.Source, maxPixels)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	bounds := src.Bounds()
	res.Width, res.Height = bounds.Dx(), bounds.Dy()
	res.MimeType = mimeTypes[format]

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	maxW, maxH := task.MaxWidth, task.MaxHeight
	if maxW <= 0 {
		maxW = defaultMaxSide
	}
	if maxH <= 0 {
		maxH = defaultMaxSide
	}
	thumb := Thumbnail(src, maxW, maxH)

	jpegQuality := task.JPEGQuality
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = defaultJPEGQuality
	}
	webpQuality := task.WebpQuality
	if webpQuality <= 0 || webpQuality > 100 {
		webpQuality = defaultWebpQuality
	}

	outputs := []struct {
		path   string
		encode func(io.Writer) error
	}{
		{task.ThumbnailPath, func(w io.Writer) error {
			return encodeByExt(w, task.ThumbnailPath, thumb, jpegQuality, webpQuality)
		}},
		{task.ThumbnailWebpPath, func(w io.Writer) error {
			return webp.Encode(w, thumb, &webp.Options{Quality: webpQuality})
		}},
		{task.WebpPath, func(w io.Writer) error {
			return webp.Encode(w, src, &webp.Options{Quality: webpQuality})
		}},
	}

	for _, out := range outputs {
		if out.path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		if err := writeAtomic(out.path, out.encode); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		res.Written = append(res.Written, out.path)
	}

	// дедлайн мог истечь во время последней записи
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}

	return res, nil
}

// encodeByExt keeps the thumbnail format in line with its file name; unknown
// extensions get JPEG.
func encodeByExt(w io.Writer, path string, img image.Image, jpegQuality int, webpQuality float32) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode(w, img)
	case ".gif":
		return gif.Encode(w, img, nil)
	case ".webp":
		return webp.Encode(w, img, &webp.Options{Quality: webpQuality})
	default:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	}
}

// decodeFile checks the header dimensions before decoding, so a small file
// declaring a huge canvas is rejected without allocating the pixel buffer.
func decodeFile(path string, maxPixels int64) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrUnreadableImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty image", models.ErrUnreadableImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", models.ErrUnreadableImage, cfg.Width, cfg.Height, maxPixels)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrUnreadableImage, err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("%w: empty image", models.ErrUnreadableImage)
	}

	return img, format, nil
}

// Thumbnail fits src inside maxW x maxH keeping the aspect ratio. Images that
// already fit are copied at their original size, never upscaled.
func Thumbnail(src image.Image, maxW, maxH int) image.Image {
	w, h := FitSize(src.Bounds().Dx(), src.Bounds().Dy(), maxW, maxH)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// FitSize returns the largest size within maxW x maxH with the aspect ratio
// of w x h, capped at w x h.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	// сравнение w/maxW и h/maxH без деления
	if w*maxH >= h*maxW {
		nh := h * maxW / w
		return maxW, max(nh, 1)
	}
	nw := w * maxH / h
	return max(nw, 1), maxH
}

// writeAtomic encodes into a partial file next to path and renames it into place.
func writeAtomic(path string, encode func(io.Writer) error) error {
	tmp := partialPath(path)

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	err = encode(bw)
	if err == nil {
		err = bw.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return nil
}
