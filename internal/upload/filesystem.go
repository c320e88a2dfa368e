package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
)

var _ Provider = (*Filesystem)(nil)

// Filesystem stores images on local disk and serves them from a public base
// URL. It is meant for development and seeding.
type Filesystem struct {
	dir     string
	baseURL string
}

// NewFilesystem creates dir if needed and returns a provider rooted there.
func NewFilesystem(dir, publicBaseURL string) (*Filesystem, error) {
	if dir == "" {
		return nil, errors.New("filesystem directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create image dir")
	}
	return &Filesystem{
		dir:     dir,
		baseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// Dir returns the root directory.
func (f *Filesystem) Dir() string { return f.dir }

// Ready checks that the root directory still exists.
func (f *Filesystem) Ready(context.Context) error {
	_, err := os.Stat(f.dir)
	return err
}

func (f *Filesystem) PutBuffer(ctx context.Context, key string, data []byte, _ string) (string, error) {
	return f.write(ctx, key, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (f *Filesystem) PutStream(ctx context.Context, key string, body io.Reader, _ string) (string, error) {
	return f.write(ctx, key, func(w io.Writer) error {
		_, err := io.Copy(w, ctxReader{ctx: ctx, r: body})
		return err
	})
}

// write goes through a temp file renamed into place, so readers never see a
// partial image.
func (f *Filesystem) write(ctx context.Context, key string, fill func(io.Writer) error) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", errors.Errorf("invalid key %q", key)
	}
	dst := filepath.Join(f.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.Wrap(err, "create key dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return "", errors.Wrapf(err, "write %s", key)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", errors.Wrapf(err, "rename %s", key)
	}
	return f.baseURL + "/" + key, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
