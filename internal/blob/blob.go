// Package blob stores uploaded file contents and reports the metadata the
// workspace keeps about them. Only that metadata is ever synchronized.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/emgroup/sitesync/internal/domain/document"
	"github.com/rs/xid"
)

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Object describes a stored upload.
type Object struct {
	// Name is the original file name.
	Name string `json:"name"`
	// Type is the display type derived from the extension, e.g. "PDF".
	Type string `json:"type"`
	// ContentType is the MIME type, when known.
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// Uploader stores file contents.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (Object, error)
}

// FS stores uploads under a directory and serves them from a base URL.
type FS struct {
	dir     string
	baseURL string
	maxSize int64
}

// NewFS creates a filesystem uploader. maxSize <= 0 disables the limit.
func NewFS(dir, baseURL string, maxSize int64) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &FS{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxSize: maxSize}, nil
}

// Upload copies r into a new object named after a fresh xid, keeping the
// original extension.
func (f *FS) Upload(ctx context.Context, name string, r io.Reader) (Object, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return Object{}, fmt.Errorf("%w: file name is required", document.ErrInvalidInput)
	}
	ext := strings.ToLower(filepath.Ext(name))
	objectName := xid.New().String() + ext

	tmp, err := os.CreateTemp(f.dir, ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("failed to create upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if f.maxSize > 0 {
		src = io.LimitReader(r, f.maxSize+1)
	}
	size, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Object{}, fmt.Errorf("failed to store upload: %w", err)
	}
	if f.maxSize > 0 && size > f.maxSize {
		return Object{}, fmt.Errorf("%w: %s", ErrTooLarge, name)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(f.dir, objectName)); err != nil {
		return Object{}, fmt.Errorf("failed to store upload: %w", err)
	}

	return Object{
		Name:        name,
		Type:        document.TypeFromName(name),
		ContentType: mime.TypeByExtension(ext),
		Size:        size,
		URL:         f.baseURL + "/" + url.PathEscape(objectName),
	}, nil
}

// Open returns the stored object with the given object name.
func (f *FS) Open(objectName string) (*os.File, error) {
	if objectName != filepath.Base(objectName) || strings.HasPrefix(objectName, ".") {
		return nil, fmt.Errorf("%w: invalid object name", document.ErrInvalidInput)
	}
	return os.Open(filepath.Join(f.dir, objectName))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Uploader = (*FS)(nil)
