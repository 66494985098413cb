package storage

import (
	"bytes"
	"context"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/apperr"
)

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	require.Len(t, form.File["file"], 1)
	return form.File["file"][0]
}

func TestLocalStore_SaveAndRemove(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "http://cdn.test/", 1<<20)
	id := uuid.New()

	stored, err := store.Save(context.Background(), CategoryArrangement, id, fileHeader(t, "Demo Mix.MP3", []byte("ID3\x03\x00\x00\x00\x00\x00\x00")))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stored.Path, CategoryArrangement+"/"+id.String()+"/"))
	assert.True(t, strings.HasSuffix(stored.Path, ".mp3"))
	assert.Equal(t, "http://cdn.test/uploads/"+stored.Path, stored.URL)
	assert.Equal(t, "Demo Mix.MP3", stored.OriginalName)
	assert.Equal(t, "audio/mpeg", stored.MimeType)
	assert.EqualValues(t, 10, stored.Size)

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(stored.Path)))
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), stored.Path))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(stored.Path)))
	assert.True(t, os.IsNotExist(err))

	// removing twice is fine
	require.NoError(t, store.Remove(context.Background(), stored.Path))
}

func TestLocalStore_RejectsDisallowedExtension(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "", 1<<20)

	_, err := store.Save(context.Background(), CategoryArrangement, uuid.New(), fileHeader(t, "payload.exe", []byte("MZ")))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidationFailed))
	assert.Contains(t, apperr.FieldsOf(err)["file"], "not allowed")
}

func TestLocalStore_RejectsOversizedFile(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "", 8)

	_, err := store.Save(context.Background(), CategoryArrangement, uuid.New(), fileHeader(t, "take.wav", []byte("0123456789")))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidationFailed))
}

func TestLocalStore_MissingFile(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "", 8)
	err := store.Check(nil)
	assert.Equal(t, "file is required", apperr.FieldsOf(err)["file"])
}

func TestLocalStore_RemoveRefusesEscape(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "", 8)
	assert.Error(t, store.Remove(context.Background(), "../../etc/passwd"))
}
