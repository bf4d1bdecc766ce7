// Package storage holds the evidence and media store collaborators the
// attempt lifecycle depends on. Both are narrow interfaces so the core
// treats locators as opaque regardless of the configured backend.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrFileTooLarge is returned when an upload exceeds the configured limit.
var ErrFileTooLarge = errors.New("file too large")

// EvidenceKind classifies a verification capture.
type EvidenceKind string

const (
	EvidenceFace EvidenceKind = "face"
	EvidenceID   EvidenceKind = "id"
)

// MediaKind classifies a recording stream.
type MediaKind string

const (
	MediaCamera MediaKind = "camera"
	MediaScreen MediaKind = "screen"
)

// EvidenceStore persists identity evidence captures synchronously and
// returns a storage path used in place of the raw payload.
type EvidenceStore interface {
	Save(ctx context.Context, r io.Reader, size int64, kind EvidenceKind, userID int, examID string) (string, error)
}

// UploadResult reports one media store call.
type UploadResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
}

// MediaStore uploads recording binaries. Each call reports success or
// failure independently so one stream's failure never blocks the other.
type MediaStore interface {
	Upload(ctx context.Context, r io.Reader, size int64, folder string, kind MediaKind, filename string) (UploadResult, error)
}
