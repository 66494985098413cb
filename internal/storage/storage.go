// Package storage keeps workflow uploads on local disk.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"studio-backend/internal/apperr"
)

const (
	CategoryArrangement    = "arrangements"
	CategoryProcessedAudio = "processed-audio"
)

var allowedExtensions = map[string]struct{}{
	// audio
	"mp3": {}, "wav": {}, "flac": {}, "aac": {}, "m4a": {}, "ogg": {}, "aiff": {},
	// video
	"mp4": {}, "mov": {}, "avi": {}, "mkv": {},
	// document
	"pdf": {}, "doc": {}, "docx": {}, "txt": {},
	// midi
	"mid": {}, "midi": {},
}

// Stored describes a file that has been written.
type Stored struct {
	Path         string `json:"path"`
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
}

type Store interface {
	Save(ctx context.Context, category string, entityID uuid.UUID, fh *multipart.FileHeader) (*Stored, error)
	Remove(ctx context.Context, relPath string) error
}

type LocalStore struct {
	root    string
	baseURL string
	maxSize int64
}

func NewLocalStore(root, publicBaseURL string, maxSize int64) *LocalStore {
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		maxSize: maxSize,
	}
}

// Root is the directory served under /uploads.
func (s *LocalStore) Root() string {
	return s.root
}

// Check validates size and extension without touching the disk.
func (s *LocalStore) Check(fh *multipart.FileHeader) error {
	if fh == nil {
		return apperr.Field("file", "file is required")
	}
	if fh.Size <= 0 {
		return apperr.Field("file", "file is empty")
	}
	if fh.Size > s.maxSize {
		return apperr.Field("file", fmt.Sprintf("file exceeds the %d MB limit", s.maxSize/(1<<20)))
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	if _, ok := allowedExtensions[ext]; !ok {
		return apperr.Field("file", fmt.Sprintf("file type %q is not allowed", ext))
	}
	return nil
}

func (s *LocalStore) Save(ctx context.Context, category string, entityID uuid.UUID, fh *multipart.FileHeader) (*Stored, error) {
	if err := s.Check(fh); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	mime, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, fmt.Errorf("detect mime type: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	name := uuid.NewString() + ext
	rel := path.Join(category, entityID.String(), name)
	dst := filepath.Join(s.root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	written, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("write upload: %w", err)
	}

	return &Stored{
		Path:         rel,
		URL:          s.baseURL + "/uploads/" + rel,
		OriginalName: filepath.Base(fh.Filename),
		MimeType:     mime.String(),
		Size:         written,
	}, nil
}

// Remove deletes a previously stored file. Missing files are ignored.
func (s *LocalStore) Remove(_ context.Context, relPath string) error {
	if relPath == "" {
		return nil
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return fmt.Errorf("refusing to remove %q outside upload root", relPath)
	}
	if err := os.Remove(filepath.Join(s.root, clean)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
