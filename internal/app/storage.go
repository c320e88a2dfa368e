package app

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/food-catalog/internal/upload"
)

// ImageHost is a provider that can report its own readiness.
type ImageHost interface {
	upload.Provider
	Ready(ctx context.Context) error
}

// Storage is the configured image host.
type Storage struct {
	Host ImageHost
	// Dir is the local image directory of the filesystem driver, served
	// under /images/. Empty for other drivers.
	Dir string
}

// NewStorage builds the image host selected by cfg.Driver. The Azure
// container is created when missing and cfg.Azure.CreateContainer is set.
func NewStorage(ctx context.Context, cfg StorageConfig) (*Storage, error) {
	switch cfg.Driver {
	case DriverAzure:
		blob, err := upload.NewAzureBlob(upload.AzureConfig{
			ConnectionString: cfg.Azure.ConnectionString,
			ServiceURL:       cfg.Azure.ServiceURL,
			Container:        cfg.Azure.Container,
			PublicBaseURL:    cfg.Azure.PublicBaseURL,
			BlockSize:        cfg.Azure.BlockSize,
			Concurrency:      cfg.Azure.Concurrency,
		})
		if err != nil {
			return nil, errors.Wrap(err, "azure blob")
		}
		if cfg.Azure.CreateContainer {
			if err := blob.EnsureContainer(ctx); err != nil {
				return nil, err
			}
		}
		return &Storage{Host: blob}, nil
	case DriverFilesystem:
		fs, err := upload.NewFilesystem(cfg.Filesystem.Dir, cfg.Filesystem.PublicBaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "filesystem storage")
		}
		return &Storage{Host: fs, Dir: fs.Dir()}, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
