package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/examguard/examguard-backend/internal/config"
	"github.com/qiniu/go-sdk/v7/auth/qbox"
	qiniustorage "github.com/qiniu/go-sdk/v7/storage"
)

// QiniuStore uploads evidence and recordings to Qiniu object storage.
type QiniuStore struct {
	mac      *qbox.Mac
	bucket   string
	domain   string
	maxBytes int64
	uploader *qiniustorage.FormUploader
}

// NewQiniuStore creates a QiniuStore from config.
func NewQiniuStore(cfg *config.Config) *QiniuStore {
	storageCfg := qiniustorage.Config{UseHTTPS: true}
	return &QiniuStore{
		mac:      qbox.NewMac(cfg.QiniuAccessKey, cfg.QiniuSecretKey),
		bucket:   cfg.QiniuBucket,
		domain:   cfg.QiniuDomain,
		maxBytes: cfg.MaxUploadBytes,
		uploader: qiniustorage.NewFormUploader(&storageCfg),
	}
}

func (s *QiniuStore) put(ctx context.Context, r io.Reader, size int64, key string) (string, error) {
	policy := qiniustorage.PutPolicy{Scope: fmt.Sprintf("%s:%s", s.bucket, key)}
	token := policy.UploadToken(s.mac)

	var ret qiniustorage.PutRet
	if err := s.uploader.Put(ctx, &ret, token, key, r, size, &qiniustorage.PutExtra{}); err != nil {
		return "", fmt.Errorf("qiniu put %s: %w", key, err)
	}
	return qiniustorage.MakePublicURL(s.domain, ret.Key), nil
}

// Save persists an evidence capture and returns its public URL.
func (s *QiniuStore) Save(ctx context.Context, r io.Reader, size int64, kind EvidenceKind, userID int, examID string) (string, error) {
	if size > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, s.maxBytes)
	}
	key := path.Join("evidence", examID, fmt.Sprintf("%s-%d.jpg", kind, userID))
	return s.put(ctx, r, size, key)
}

// Upload persists a recording stream and returns its public URL.
func (s *QiniuStore) Upload(ctx context.Context, r io.Reader, size int64, folder string, kind MediaKind, filename string) (UploadResult, error) {
	if size > s.maxBytes {
		return UploadResult{}, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, s.maxBytes)
	}
	key := path.Join("recordings", folder, string(kind), filename)
	url, err := s.put(ctx, r, size, key)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{Success: true, URL: url}, nil
}
