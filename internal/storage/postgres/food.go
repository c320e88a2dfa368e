package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-catalog/internal/domain/food"
)

const foodColumns = `id::text, name, price, tags, origins, cook_time, image_url, favorite, created_at`

const (
	listFoodsSQL = `SELECT ` + foodColumns + ` FROM foods ORDER BY created_at, id`

	getFoodByIDSQL = `SELECT ` + foodColumns + ` FROM foods WHERE id = $1`

	listFoodsByTagSQL = `SELECT ` + foodColumns + ` FROM foods WHERE $1 = ANY(tags) ORDER BY created_at, id`

	searchFoodsSQL = `SELECT ` + foodColumns + ` FROM foods
		WHERE name ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY created_at, id LIMIT $2`

	findFoodByNameSQL = `SELECT ` + foodColumns + ` FROM foods
		WHERE lower(name) = lower($1)
		ORDER BY created_at, id LIMIT 1`

	tagCountsSQL = `SELECT tag, count(*) FROM foods, unnest(tags) AS tag
		GROUP BY tag ORDER BY count(*) DESC, tag`

	countFoodsSQL = `SELECT count(*) FROM foods`

	insertFoodSQL = `INSERT INTO foods (name, price, tags, origins, cook_time, image_url, favorite)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, FALSE))
		RETURNING ` + foodColumns

	updateFoodSQL = `UPDATE foods SET
			name = $2, price = $3, tags = $4, origins = $5, cook_time = $6,
			image_url = COALESCE(NULLIF($7, ''), image_url),
			favorite = COALESCE($8, favorite)
		WHERE id = $1
		RETURNING ` + foodColumns

	deleteFoodSQL = `DELETE FROM foods WHERE id = $1`
)

var _ food.Repository = (*FoodRepository)(nil)

// FoodRepository implements food.Repository backed by PostgreSQL.
type FoodRepository struct {
	pool *pgxpool.Pool
}

// NewFoodRepository returns a FoodRepository that uses the given pool.
func NewFoodRepository(pool *pgxpool.Pool) *FoodRepository {
	return &FoodRepository{pool: pool}
}

// List returns every item in insertion order.
func (r *FoodRepository) List(ctx context.Context) ([]food.Food, error) {
	rows, err := r.pool.Query(ctx, listFoodsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing foods: %w", err)
	}
	return pgx.CollectRows(rows, scanFood)
}

// GetByID returns a single item. Malformed ids yield food.ErrNotFound.
func (r *FoodRepository) GetByID(ctx context.Context, id string) (*food.Food, error) {
	uid, ok := parseID(id)
	if !ok {
		return nil, food.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getFoodByIDSQL, uid)
	if err != nil {
		return nil, fmt.Errorf("getting food %q: %w", id, err)
	}
	return collectOne(rows, id)
}

// ListByTag returns items carrying tag.
func (r *FoodRepository) ListByTag(ctx context.Context, tag string) ([]food.Food, error) {
	rows, err := r.pool.Query(ctx, listFoodsByTagSQL, tag)
	if err != nil {
		return nil, fmt.Errorf("listing foods by tag %q: %w", tag, err)
	}
	return pgx.CollectRows(rows, scanFood)
}

// Search returns at most limit items whose name contains term, ignoring
// case. LIKE wildcards in term match literally.
func (r *FoodRepository) Search(ctx context.Context, term string, limit int) ([]food.Food, error) {
	rows, err := r.pool.Query(ctx, searchFoodsSQL, escapeLike(term), limit)
	if err != nil {
		return nil, fmt.Errorf("searching foods %q: %w", term, err)
	}
	return pgx.CollectRows(rows, scanFood)
}

// FindByName returns the oldest item whose name equals name, ignoring case.
// Returns food.ErrNotFound when there is none.
func (r *FoodRepository) FindByName(ctx context.Context, name string) (*food.Food, error) {
	rows, err := r.pool.Query(ctx, findFoodByNameSQL, name)
	if err != nil {
		return nil, fmt.Errorf("finding food named %q: %w", name, err)
	}
	return collectOne(rows, name)
}

// Tags returns per-tag item counts, most used first.
func (r *FoodRepository) Tags(ctx context.Context) ([]food.TagCount, error) {
	rows, err := r.pool.Query(ctx, tagCountsSQL)
	if err != nil {
		return nil, fmt.Errorf("counting tags: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (food.TagCount, error) {
		var tc food.TagCount
		err := row.Scan(&tc.Name, &tc.Count)
		return tc, err
	})
}

// Count returns the number of items.
func (r *FoodRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countFoodsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting foods: %w", err)
	}
	return n, nil
}

// Insert stores a new item; the id is assigned by the database.
func (r *FoodRepository) Insert(ctx context.Context, f food.Fields) (*food.Food, error) {
	rows, err := r.pool.Query(ctx, insertFoodSQL,
		f.Name, f.Price, nonNil(f.Tags), nonNil(f.Origins), f.CookTime, f.ImageURL, f.Favorite,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting food %q: %w", f.Name, err)
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanFood)
	if err != nil {
		return nil, fmt.Errorf("inserting food %q: %w", f.Name, err)
	}
	return &created, nil
}

// Update replaces the item with id in a single statement.
func (r *FoodRepository) Update(ctx context.Context, id string, f food.Fields) (*food.Food, error) {
	uid, ok := parseID(id)
	if !ok {
		return nil, food.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, updateFoodSQL,
		uid, f.Name, f.Price, nonNil(f.Tags), nonNil(f.Origins), f.CookTime, f.ImageURL, f.Favorite,
	)
	if err != nil {
		return nil, fmt.Errorf("updating food %q: %w", id, err)
	}
	return collectOne(rows, id)
}

// Delete removes the item with id.
func (r *FoodRepository) Delete(ctx context.Context, id string) error {
	uid, ok := parseID(id)
	if !ok {
		return food.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, deleteFoodSQL, uid)
	if err != nil {
		return fmt.Errorf("deleting food %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return food.ErrNotFound
	}
	return nil
}

func collectOne(rows pgx.Rows, id string) (*food.Food, error) {
	f, err := pgx.CollectExactlyOneRow(rows, scanFood)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, food.ErrNotFound
		}
		return nil, fmt.Errorf("reading food %q: %w", id, err)
	}
	return &f, nil
}

func scanFood(row pgx.CollectableRow) (food.Food, error) {
	var f food.Food
	err := row.Scan(
		&f.ID, &f.Name, &f.Price, &f.Tags, &f.Origins,
		&f.CookTime, &f.ImageURL, &f.Favorite, &f.CreatedAt,
	)
	return f, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
