package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gallery_planner/internal/storage"
)

// FileStorage интерфейс для работы с файловым хранилищем артефактов
type FileStorage interface {
	// Save публикует файл эксклюзивно: занятый путь даёт storage.ErrArtifactExists
	Save(ctx context.Context, relPath string, r io.Reader) (int64, error)
	Open(ctx context.Context, relPath string) (io.ReadCloser, error)
	Exists(ctx context.Context, relPath string) (bool, error)
	Delete(ctx context.Context, relPath string) error
	DeleteDir(ctx context.Context, relDir string) error
	GetFullPath(relativePath string) string
	URL(relativePath string) string
	BaseURL() string
	GetBaseDir() string
}

// LocalFileStorage реализация для локальной файловой системы
type LocalFileStorage struct {
	baseDir string // Базовый каталог для хранения (например: "./uploads")
	baseURL string // Базовый URL для доступа к файлам (например: "http://localhost:8080/uploads")
}

func NewLocalFileStorage(baseDir, baseURL string) (*LocalFileStorage, error) {
	const op = "storage.filestorage.NewLocalFileStorage"

	// Создаем директорию, если она не существует
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &LocalFileStorage{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Save пишет во временный файл и публикует его через hard link,
// поэтому читатели никогда не видят частично записанный артефакт.
func (s *LocalFileStorage) Save(ctx context.Context, relPath string, r io.Reader) (int64, error) {
	const op = "storage.filestorage.Save"

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fullPath, err := s.resolve(relPath)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return 0, fmt.Errorf("%s: failed to create directories: %w", op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("%s: failed to create temp file: %w", op, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	size, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("%s: failed to copy file: %w", op, err)
	}

	if err := os.Link(tmpName, fullPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrArtifactExists)
		}
		return 0, fmt.Errorf("%s: failed to publish file: %w", op, err)
	}

	return size, nil
}

func (s *LocalFileStorage) Open(ctx context.Context, relPath string) (io.ReadCloser, error) {
	const op = "storage.filestorage.Open"

	fullPath, err := s.resolve(relPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return f, nil
}

func (s *LocalFileStorage) Exists(ctx context.Context, relPath string) (bool, error) {
	const op = "storage.filestorage.Exists"

	fullPath, err := s.resolve(relPath)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return info.Mode().IsRegular(), nil
}

// Delete удаляет файл из хранилища
func (s *LocalFileStorage) Delete(ctx context.Context, relPath string) error {
	const op = "storage.filestorage.Delete"

	fullPath, err := s.resolve(relPath)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", op, storage.ErrArtifactNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteDir удаляет каталог галереи целиком; отсутствие каталога не ошибка
func (s *LocalFileStorage) DeleteDir(ctx context.Context, relDir string) error {
	const op = "storage.filestorage.DeleteDir"

	fullPath, err := s.resolve(relDir)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if fullPath == filepath.Clean(s.baseDir) {
		return fmt.Errorf("%s: %w", op, storage.ErrInvalidPath)
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// GetFullPath возвращает полный путь к файлу на диске
func (s *LocalFileStorage) GetFullPath(relativePath string) string {
	return filepath.Join(s.baseDir, relativePath)
}

// URL возвращает публичный адрес артефакта
func (s *LocalFileStorage) URL(relativePath string) string {
	if relativePath == "" {
		return ""
	}
	u, err := url.JoinPath(s.baseURL, filepath.ToSlash(relativePath))
	if err != nil {
		return s.baseURL + "/" + path.Clean(filepath.ToSlash(relativePath))
	}
	return u
}

// BaseURL возвращает базовый URL для доступа к файлам
func (s *LocalFileStorage) BaseURL() string {
	return s.baseURL
}

func (s *LocalFileStorage) GetBaseDir() string {
	return s.baseDir
}

// resolve не даёт относительному пути выйти за пределы baseDir
func (s *LocalFileStorage) resolve(relPath string) (string, error) {
	if relPath == "" || filepath.IsAbs(relPath) {
		return "", storage.ErrInvalidPath
	}
	clean := filepath.Clean(relPath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", storage.ErrInvalidPath
	}
	return filepath.Join(s.baseDir, clean), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
