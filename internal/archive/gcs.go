// Package archive copies committed statement files to Cloud Storage.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/expense-tracker/internal/commit"
)

// uploadTimeout bounds a single object write.
const uploadTimeout = 2 * time.Minute

// GCSArchiver stores statement PDFs under
// gs://<bucket>/statements/<user>/<statement id>/<name>.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

var _ commit.Archiver = (*GCSArchiver)(nil)

// NewGCSArchiver creates a storage client using Application Default Credentials.
func NewGCSArchiver(ctx context.Context, bucket string) (*GCSArchiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSArchiver: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSArchiver: create storage client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}

// Archive uploads file and returns its gs:// URI.
func (a *GCSArchiver) Archive(ctx context.Context, userID string, statementID int64, name string, file []byte) (string, error) {
	objectName := ObjectName(userID, statementID, name)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/pdf"
	w.Metadata = map[string]string{
		"user_id":      userID,
		"statement_id": fmt.Sprint(statementID),
	}

	if _, err := w.Write(file); err != nil {
		w.Close()
		return "", fmt.Errorf("Archive: write %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Archive: finalize %s: %w", objectName, err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

// Fetch downloads the object behind a gs:// URI.
func (a *GCSArchiver) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, objectName, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := a.client.Bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: open %s/%s: %w", bucket, objectName, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: read %s/%s: %w", bucket, objectName, err)
	}
	return data, nil
}

// ObjectName builds the object path for a statement file. Path separators in
// name are dropped so a file name cannot escape its prefix.
func ObjectName(userID string, statementID int64, name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "statement.pdf"
	}
	return fmt.Sprintf("statements/%s/%d/%s", userID, statementID, base)
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (bucket, objectName string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("ParseURI: invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("ParseURI: invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
