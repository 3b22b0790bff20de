// Package archive stores rendered reports in a local directory or a Google
// Cloud Storage bucket and hands back a URI for them.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	applog "churchledger/internal/log"
)

// ErrNotConfigured is returned by Open for an empty target.
var ErrNotConfigured = errors.New("report archive not configured")

// Archive persists report files.
type Archive interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
	Close() error
}

// Open parses a REPORT_ARCHIVE value: "dir://<path>" or "gs://<bucket>[/<prefix>]".
func Open(ctx context.Context, target string, logger *applog.Logger) (Archive, error) {
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return nil, ErrNotConfigured
	case strings.HasPrefix(target, "dir://"):
		d, err := NewDir(strings.TrimPrefix(target, "dir://"))
		if err != nil {
			return nil, err
		}
		return d, nil
	case strings.HasPrefix(target, "gs://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(target, "gs://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("archive %q: missing bucket", target)
		}
		client, err := newStorageClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		return NewGCS(client, bucket, prefix, logger), nil
	}
	return nil, fmt.Errorf("archive %q: unsupported scheme (want dir:// or gs://)", target)
}

// Dir writes reports below a local directory.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("archive directory is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Save(ctx context.Context, name, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(d.root, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	// Write then rename so readers never see a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write report: %w", err)
	}
	return "file://" + filepath.ToSlash(path), nil
}

func (d *Dir) Close() error { return nil }

// GCS uploads reports to a bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	logger *applog.Logger
}

func NewGCS(client *storage.Client, bucket, prefix string, logger *applog.Logger) *GCS {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &GCS{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.WithComponent(applog.ComponentReport),
	}
}

func (g *GCS) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	object := filepath.ToSlash(clean)
	if g.prefix != "" {
		object = g.prefix + "/" + object
	}

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload report: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}

	uri := "gs://" + g.bucket + "/" + object
	g.logger.Info("Report archived", "uri", uri, "bytes", len(data))
	return uri, nil
}

func (g *GCS) Close() error { return g.client.Close() }

// newStorageClient prefers GCS_CREDENTIALS_JSON, then application default credentials.
func newStorageClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")); credJSON != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func cleanName(name string) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(name))
	if clean == "." || clean == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid report name %q", name)
	}
	return clean, nil
}
