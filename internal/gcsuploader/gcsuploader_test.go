package gcsuploader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	bucket  string
	object  string
	content []byte
	err     error
}

func (f *fakeStorage) UploadBytes(ctx context.Context, bucketName, objectName string, content []byte) error {
	f.bucket, f.object, f.content = bucketName, objectName, content
	return f.err
}

func (f *fakeStorage) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func TestObjectName(t *testing.T) {
	at := time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)
	tests := []struct {
		filename string
		want     string
	}{
		{"sofi.csv", "statements/u1/2024-03-15/imp1/sofi.csv"},
		{"../../etc/passwd", "statements/u1/2024-03-15/imp1/passwd"},
		{`C:\Users\me\capone.csv`, "statements/u1/2024-03-15/imp1/capone.csv"},
		{"  ", "statements/u1/2024-03-15/imp1/statement"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectName("u1", "imp1", tt.filename, at))
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/a/b.csv", "bucket", "a/b.csv", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"s3://bucket/a.csv", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantObject, object)
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	assert.Equal(t, "file.csv", ExtractFilenameFromGCSURI("gs://bucket/folder/file.csv"))
	assert.Equal(t, "bucket", ExtractFilenameFromGCSURI("gs://bucket"))
}

func TestStatementArchive(t *testing.T) {
	fs := &fakeStorage{}
	a := NewStatementArchive(fs, "ledger-statements")
	a.now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }

	uri, err := a.ArchiveStatement(context.Background(), "u1", "imp1", "sofi.csv", []byte("Date,Amount"))
	require.NoError(t, err)
	assert.Equal(t, "gs://ledger-statements/statements/u1/2024-01-02/imp1/sofi.csv", uri)
	assert.Equal(t, "ledger-statements", fs.bucket)
	assert.Equal(t, []byte("Date,Amount"), fs.content)

	fs.err = errors.New("quota")
	_, err = a.ArchiveStatement(context.Background(), "u1", "imp1", "sofi.csv", nil)
	assert.ErrorContains(t, err, "quota")
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("a/b.CSV"))
	assert.Equal(t, "application/x-ofx", contentType("a/b.qfx"))
	assert.Equal(t, "application/octet-stream", contentType("a/b"))
}
