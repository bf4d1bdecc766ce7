package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/examguard/examguard-backend/internal/config"
)

// LocalStore writes evidence and recordings to local disk. It is the
// fallback backend when no object storage is configured.
type LocalStore struct {
	evidenceDir  string
	recordingDir string
	maxBytes     int64
}

// NewLocalStore creates a LocalStore from config.
func NewLocalStore(cfg *config.Config) *LocalStore {
	return &LocalStore{
		evidenceDir:  cfg.EvidenceDir,
		recordingDir: cfg.RecordingDir,
		maxBytes:     cfg.MaxUploadBytes,
	}
}

// Save persists an evidence capture and returns its relative path.
func (s *LocalStore) Save(ctx context.Context, r io.Reader, size int64, kind EvidenceKind, userID int, examID string) (string, error) {
	if size > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, s.maxBytes)
	}

	dir := filepath.Join(s.evidenceDir, examID)
	filename := fmt.Sprintf("%s-%d.jpg", kind, userID)
	path, err := s.write(ctx, r, dir, filename)
	if err != nil {
		return "", err
	}
	return path, nil
}

// Upload persists a recording stream to disk. The returned URL is the
// relative file path; callers treat it as an opaque locator.
func (s *LocalStore) Upload(ctx context.Context, r io.Reader, size int64, folder string, kind MediaKind, filename string) (UploadResult, error) {
	if size > s.maxBytes {
		return UploadResult{}, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, s.maxBytes)
	}

	dir := filepath.Join(s.recordingDir, folder, string(kind))
	path, err := s.write(ctx, r, dir, filename)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{Success: true, URL: path}, nil
}

func (s *LocalStore) write(ctx context.Context, r io.Reader, dir, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	destPath := filepath.Join(dir, filename)
	dst, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return destPath, nil
}
