package gcsuploader

import (
	"context"
	"fmt"
	"time"
)

// StorageService provides cloud storage operations for statement files.
type StorageService interface {
	// UploadBytes writes content to a bucket under the given object name.
	UploadBytes(ctx context.Context, bucketName, objectName string, content []byte) error

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage.
type GCSStorageService struct{}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService() *GCSStorageService {
	return &GCSStorageService{}
}

// UploadBytes delegates to the package-level UploadBytes.
func (s *GCSStorageService) UploadBytes(ctx context.Context, bucketName, objectName string, content []byte) error {
	return UploadBytes(ctx, bucketName, objectName, content)
}

// FetchFromGCS delegates to the package-level FetchFromGCS.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return FetchFromGCS(ctx, gcsURI)
}

// StatementArchive keeps a copy of every uploaded statement in a bucket,
// one object per import: statements/<user>/<date>/<import>/<filename>.
type StatementArchive struct {
	storage StorageService
	bucket  string
	now     func() time.Time
}

// NewStatementArchive creates an archive writing to bucket.
func NewStatementArchive(storage StorageService, bucket string) *StatementArchive {
	return &StatementArchive{storage: storage, bucket: bucket, now: time.Now}
}

// ArchiveStatement uploads content and returns its gs:// URI.
func (a *StatementArchive) ArchiveStatement(ctx context.Context, userID, importID, filename string, content []byte) (string, error) {
	object := ObjectName(userID, importID, filename, a.now())
	if err := a.storage.UploadBytes(ctx, a.bucket, object, content); err != nil {
		return "", fmt.Errorf("ArchiveStatement: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}
