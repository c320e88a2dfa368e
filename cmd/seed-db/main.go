// Command seed-db loads catalog items and the admin API key into the
// database, uploading local item images through the ingestion pipeline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-catalog/internal/app"
	"github.com/xenking/food-catalog/internal/domain/auth"
	"github.com/xenking/food-catalog/internal/domain/food"
	"github.com/xenking/food-catalog/internal/ingest"
	"github.com/xenking/food-catalog/internal/storage/postgres"
	"github.com/xenking/food-catalog/internal/upload"
)

type foodJSON struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Tags     []string        `json:"tags"`
	Origins  []string        `json:"origins"`
	CookTime string          `json:"cookTime"`
	Favorite bool            `json:"favorite"`
	// Image is a file under the images directory to upload.
	Image string `json:"image"`
	// ImageURL is an already hosted image, used when Image is empty.
	ImageURL string `json:"imageUrl"`
}

type options struct {
	databaseURL string
	foodsFile   string
	imagesDir   string
	apiKey      string
	pepper      string
	concurrency int
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.foodsFile, "foods-file", "db/seed/foods.json", "path to foods JSON file (.json or .json.gz)")
	flag.StringVar(&opts.imagesDir, "images-dir", "db/seed/images", "directory holding local item images")
	flag.StringVar(&opts.apiKey, "api-key", "", "admin API key to seed (or CATALOG_SEED_API_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CATALOG_API_KEY_PEPPER env)")
	flag.IntVar(&opts.concurrency, "concurrency", 4, "parallel image uploads")
	flag.Parse()

	cfg, err := app.LoadEnvConfig()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if opts.databaseURL != "" {
		cfg.DatabaseURL = opts.databaseURL
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("CATALOG_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or CATALOG_SEED_API_KEY")
		os.Exit(1)
	}
	if opts.pepper != "" {
		cfg.APIKeyPepper = opts.pepper
	}
	if cfg.DatabaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, cfg *app.Config, opts options) error {
	items, err := readFoodsFile(opts.foodsFile)
	if err != nil {
		return errors.Wrap(err, "read foods")
	}
	slog.Info("read foods file", slog.String("path", opts.foodsFile), slog.Int("count", len(items)))

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	urls := make([]string, len(items))
	for i := range items {
		urls[i] = items[i].ImageURL
	}
	if hasLocalImages(items) {
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "image storage config")
		}
		storage, err := app.NewStorage(ctx, cfg.Storage)
		if err != nil {
			return errors.Wrap(err, "create image storage")
		}
		pipeline, err := ingest.New(upload.NewAdapter(storage.Host, upload.Options{
			Timeout: cfg.Upload.Timeout,
			Prefix:  cfg.Storage.Prefix,
		}), ingest.Options{MaxSize: cfg.Upload.MaxSize})
		if err != nil {
			return errors.Wrap(err, "create ingestion pipeline")
		}
		if urls, err = ingestImages(ctx, pipeline, opts.imagesDir, items, opts.concurrency); err != nil {
			return errors.Wrap(err, "ingest images")
		}
	}

	repo := postgres.NewFoodRepository(pool)
	if err := seedFoods(ctx, repo, items, urls); err != nil {
		return errors.Wrap(err, "seed foods")
	}

	keys := postgres.NewAPIKeyRepository(pool)
	if err := keys.Upsert(ctx, auth.HashKey(opts.apiKey, []byte(cfg.APIKeyPepper)), "Default admin key", []string{auth.ScopeAdmin}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}
	slog.Info("upserted API key", slog.String("name", "Default admin key"))

	return nil
}

// readFoodsFile decodes a JSON array of items, gunzipping files ending in
// .gz.
func readFoodsFile(path string) ([]foodJSON, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	var items []foodJSON
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, errors.Wrap(err, "parse foods JSON")
	}
	return items, nil
}

func hasLocalImages(items []foodJSON) bool {
	for _, item := range items {
		if item.Image != "" {
			return true
		}
	}
	return false
}

type ingester interface {
	Ingest(ctx context.Context, payload *upload.Payload) (string, error)
}

// ingestImages uploads the local images of items with at most limit
// uploads in flight. urls[i] is the hosted image of items[i], or its
// imageUrl when it has no local image.
func ingestImages(ctx context.Context, p ingester, dir string, items []foodJSON, limit int) ([]string, error) {
	urls := make([]string, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))

	for i, item := range items {
		if item.Image == "" {
			urls[i] = item.ImageURL
			continue
		}
		g.Go(func() error {
			path := filepath.Join(dir, filepath.Clean(item.Image))
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrapf(err, "open image for %s", item.Name)
			}
			defer func() { _ = f.Close() }()

			url, err := p.Ingest(ctx, upload.Stream(f, "", filepath.Base(path)))
			if err != nil {
				return errors.Wrapf(err, "ingest image for %s", item.Name)
			}
			slog.Info("uploaded image", slog.String("name", item.Name), slog.String("url", url))
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// seedFoods writes items in file order. An existing item with the same
// name is replaced, so reseeding is idempotent.
func seedFoods(ctx context.Context, repo foodStore, items []foodJSON, urls []string) error {
	w := food.NewWriter(repo)
	for i, item := range items {
		favorite := item.Favorite
		fields := food.Fields{
			Name:     item.Name,
			Price:    item.Price,
			Tags:     item.Tags,
			Origins:  item.Origins,
			CookTime: item.CookTime,
			ImageURL: urls[i],
			Favorite: &favorite,
		}

		existing, err := findByName(ctx, repo, item.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			if _, err := w.Replace(ctx, existing.ID, fields); err != nil {
				return errors.Wrapf(err, "replace %s", item.Name)
			}
			slog.Info("replaced food", slog.String("id", existing.ID), slog.String("name", item.Name))
			continue
		}

		created, err := w.Create(ctx, fields)
		if err != nil {
			return errors.Wrapf(err, "create %s", item.Name)
		}
		slog.Info("created food", slog.String("id", created.ID), slog.String("name", item.Name))
	}
	return nil
}

// foodStore is a food repository with an exact-name lookup.
type foodStore interface {
	food.Repository
	FindByName(ctx context.Context, name string) (*food.Food, error)
}

func findByName(ctx context.Context, repo foodStore, name string) (*food.Food, error) {
	existing, err := repo.FindByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, food.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find %s", name)
	}
	return existing, nil
}
