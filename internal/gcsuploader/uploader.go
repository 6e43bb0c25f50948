package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// UploadBytes uploads content to a GCS bucket under the given object name.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
func UploadBytes(ctx context.Context, bucketName, objectName string, content []byte) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType(objectName)
	defer func() {
		// Ensure the writer is closed even on early returns
		_ = w.Close()
	}()

	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("copy statement to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}

	return nil
}

// ObjectName builds the archive object path for one imported statement.
func ObjectName(userID, importID, filename string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "statement"
	}
	return path.Join("statements", userID, at.UTC().Format("2006-01-02"), importID, name)
}

func contentType(objectName string) string {
	switch strings.ToLower(path.Ext(objectName)) {
	case ".csv":
		return "text/csv"
	case ".ofx", ".qfx":
		return "application/x-ofx"
	default:
		return "application/octet-stream"
	}
}
