// Package handler serves the catalog HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/food-catalog/internal/domain/food"
	"github.com/xenking/food-catalog/internal/upload"
)

const (
	defaultSearchLimit = 20
	defaultMaxImage    = 10 << 20
)

// Ingester turns an image payload into a hosted URL.
type Ingester interface {
	Ingest(ctx context.Context, payload *upload.Payload) (string, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// SearchLimit caps the number of search results.
	SearchLimit int
	// MaxImageSize is the largest accepted image in bytes.
	MaxImageSize int64
}

// Handler serves the catalog routes, delegating storage to the food
// repository and images to the ingestion pipeline.
type Handler struct {
	foods       food.Repository
	writer      *food.Writer
	ingester    Ingester
	searchLimit int
	maxImage    int64
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg Config, foods food.Repository, ingester Ingester) *Handler {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaultSearchLimit
	}
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = defaultMaxImage
	}
	return &Handler{
		foods:       foods,
		writer:      food.NewWriter(foods),
		ingester:    ingester,
		searchLimit: cfg.SearchLimit,
		maxImage:    cfg.MaxImageSize,
	}
}

// Register mounts the API on mux. Mutating routes are wrapped with admin.
func (h *Handler) Register(mux *http.ServeMux, admin func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/foods", h.listFoods)
	mux.Handle("POST /api/foods", admin(http.HandlerFunc(h.createFood)))
	mux.Handle("PUT /api/foods", admin(http.HandlerFunc(h.updateFood)))
	mux.HandleFunc("GET /api/foods/tags", h.listTags)
	mux.HandleFunc("GET /api/foods/search/{searchTerm}", h.searchFoods)
	mux.HandleFunc("GET /api/foods/tag/{tag}", h.listFoodsByTag)
	mux.HandleFunc("GET /api/foods/{foodId}", h.getFood)
	mux.Handle("DELETE /api/foods/{foodId}", admin(http.HandlerFunc(h.deleteFood)))
	mux.Handle("POST /api/upload", admin(http.HandlerFunc(h.uploadImage)))
}

// limitBody caps the request body at the image limit plus room for the
// text fields.
func (h *Handler) limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImage+formOverhead)
}
