package food

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested food does not exist.
var ErrNotFound = errors.New("food item not found")

// MaxPrice is the exclusive upper bound of a price, matching the store's
// NUMERIC(10, 2) column.
var MaxPrice = decimal.New(1, 8)

// AllTag is the synthetic tag counting every catalog item.
const AllTag = "All"

// Food is a catalog item available for ordering.
type Food struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Tags      []string
	Origins   []string
	CookTime  string
	ImageURL  string
	Favorite  bool
	CreatedAt time.Time
}

// TagCount is the number of items carrying a tag.
type TagCount struct {
	Name  string
	Count int
}

// Fields is the validated input for creating or replacing a food.
type Fields struct {
	Name     string
	Price    decimal.Decimal
	Tags     []string
	Origins  []string
	CookTime string
	ImageURL string
	// Favorite is left unchanged on replace when nil.
	Favorite *bool
}

// ValidationError reports missing or malformed input fields.
type ValidationError struct {
	Reason string
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Fields, ", ")
}

// Validate checks that the required fields are present and well formed.
func (f *Fields) Validate() error {
	var missing []string
	if strings.TrimSpace(f.Name) == "" {
		missing = append(missing, "name")
	}
	if f.Price.IsZero() {
		missing = append(missing, "price")
	}
	if len(f.Origins) == 0 {
		missing = append(missing, "origins")
	}
	if strings.TrimSpace(f.CookTime) == "" {
		missing = append(missing, "cookTime")
	}
	if len(missing) > 0 {
		return &ValidationError{Reason: "missing required fields", Fields: missing}
	}
	if f.Price.IsNegative() {
		return &ValidationError{Reason: "price must be positive", Fields: []string{"price"}}
	}
	if !f.Price.Equal(f.Price.Round(2)) {
		return &ValidationError{Reason: "price must have at most two decimal places", Fields: []string{"price"}}
	}
	if f.Price.GreaterThanOrEqual(MaxPrice) {
		return &ValidationError{Reason: "price must be less than " + MaxPrice.String(), Fields: []string{"price"}}
	}
	return nil
}

// normalize trims text fields, deduplicates tags and replaces nil slices.
func (f *Fields) normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.CookTime = strings.TrimSpace(f.CookTime)
	f.ImageURL = strings.TrimSpace(f.ImageURL)
	f.Tags = dedupe(f.Tags)
	if f.Origins == nil {
		f.Origins = []string{}
	}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// WithAll prepends the synthetic AllTag entry to tag counts.
func WithAll(total int, tags []TagCount) []TagCount {
	out := make([]TagCount, 0, len(tags)+1)
	out = append(out, TagCount{Name: AllTag, Count: total})
	return append(out, tags...)
}

// Repository is the document store holding catalog items.
type Repository interface {
	List(ctx context.Context) ([]Food, error)
	GetByID(ctx context.Context, id string) (*Food, error)
	ListByTag(ctx context.Context, tag string) ([]Food, error)
	// Search matches name case-insensitively as a substring.
	Search(ctx context.Context, term string, limit int) ([]Food, error)
	// Tags returns counts ordered by count descending, then name.
	Tags(ctx context.Context) ([]TagCount, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, f Fields) (*Food, error)
	// Update replaces the item, keeping the stored image URL when
	// f.ImageURL is empty and the stored favorite flag when f.Favorite is
	// nil.
	Update(ctx context.Context, id string, f Fields) (*Food, error)
	Delete(ctx context.Context, id string) error
}
