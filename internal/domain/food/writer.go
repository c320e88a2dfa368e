package food

import (
	"context"

	"github.com/go-faster/errors"
)

// Writer persists catalog records. Each call is a single-document operation
// against the repository.
type Writer struct {
	repo Repository
}

// NewWriter creates a Writer backed by repo.
func NewWriter(repo Repository) *Writer {
	return &Writer{repo: repo}
}

// Create stores a new item. The image URL must already be hosted.
func (w *Writer) Create(ctx context.Context, f Fields) (*Food, error) {
	f.normalize()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.ImageURL == "" {
		return nil, &ValidationError{Reason: "missing required fields", Fields: []string{"imageUrl"}}
	}

	created, err := w.repo.Insert(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "insert food")
	}
	return created, nil
}

// Replace overwrites the item with id. Returns ErrNotFound when no such item
// exists.
func (w *Writer) Replace(ctx context.Context, id string, f Fields) (*Food, error) {
	f.normalize()
	if err := f.Validate(); err != nil {
		return nil, err
	}

	updated, err := w.repo.Update(ctx, id, f)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "update food %s", id)
	}
	return updated, nil
}
