// Package objectstore содержит адаптеры объектного хранилища для чеков.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// ErrInvalidKey возвращается для ключей, выходящих за пределы хранилища.
var ErrInvalidKey = errors.New("invalid object key")

// Local складывает объекты в каталог на диске. HTTP сервер раздаёт этот каталог
// по публичному префиксу, поэтому URL = baseURL + key.
type Local struct {
	root    string
	baseURL string
}

// NewLocal создаёт локальное хранилище. Каталог создаётся при необходимости.
func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object store dir: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root возвращает корневой каталог хранилища.
func (s *Local) Root() string {
	return s.root
}

// Upload записывает объект атомарно (через временный файл) и возвращает его URL.
func (s *Local) Upload(ctx context.Context, obj domain.Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := cleanKey(obj.Key)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(obj.Body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("store object: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if key == "" || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

var _ domain.ObjectStore = (*Local)(nil)
