package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

func TestLocalUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "http://localhost:8080/files/")
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), domain.Object{
		Key:         "receipts/order-1.pdf",
		ContentType: "application/pdf",
		Body:        []byte("%PDF-1.3 test"),
	})
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/files/receipts/order-1.pdf", url)

	data, err := os.ReadFile(filepath.Join(dir, "receipts", "order-1.pdf"))
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.3 test", string(data))
}

func TestLocalUploadOverwrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "http://files")
	require.NoError(t, err)

	for _, body := range []string{"first", "second"} {
		_, err := store.Upload(context.Background(), domain.Object{Key: "receipts/order-1.pdf", Body: []byte(body)})
		require.NoError(t, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "receipts", "order-1.pdf"))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestLocalUploadRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "http://files")
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "receipts/../../x"} {
		_, err := store.Upload(context.Background(), domain.Object{Key: key, Body: []byte("x")})
		require.True(t, errors.Is(err, ErrInvalidKey), "key %q: %v", key, err)
	}
}

func TestLocalUploadCanceledContext(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "http://files")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Upload(ctx, domain.Object{Key: "receipts/a.pdf", Body: []byte("x")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPublicURL(t *testing.T) {
	require.Equal(t, "https://cdn.example.com/receipts/order-1.pdf", publicURL("https://cdn.example.com/", "/receipts/order-1.pdf"))
}
