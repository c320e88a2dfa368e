package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"slices"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-catalog/internal/domain/auth"
	"github.com/xenking/food-catalog/internal/domain/food"
	"github.com/xenking/food-catalog/internal/ingest"
	"github.com/xenking/food-catalog/internal/upload"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

const (
	adminKey  = "admin-key"
	readerKey = "reader-key"
)

var testPepper = []byte("test-pepper")

// --- Mock implementations ---

// memRepo is an in-memory food.Repository with the same replace semantics
// as the PostgreSQL store.
type memRepo struct {
	order  []string
	items  map[string]food.Food
	events *[]string
	err    error
}

func newMemRepo(events *[]string) *memRepo {
	return &memRepo{items: map[string]food.Food{}, events: events}
}

func (m *memRepo) all() []food.Food {
	out := make([]food.Food, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id])
	}
	return out
}

func (m *memRepo) List(context.Context) ([]food.Food, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.all(), nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*food.Food, error) {
	f, ok := m.items[id]
	if !ok {
		return nil, food.ErrNotFound
	}
	return &f, nil
}

func (m *memRepo) ListByTag(_ context.Context, tag string) ([]food.Food, error) {
	var out []food.Food
	for _, f := range m.all() {
		if slices.Contains(f.Tags, tag) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memRepo) Search(_ context.Context, term string, limit int) ([]food.Food, error) {
	var out []food.Food
	for _, f := range m.all() {
		if strings.Contains(strings.ToLower(f.Name), strings.ToLower(term)) && len(out) < limit {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memRepo) Tags(context.Context) ([]food.TagCount, error) {
	counts := map[string]int{}
	for _, f := range m.items {
		for _, t := range f.Tags {
			counts[t]++
		}
	}
	out := make([]food.TagCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, food.TagCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memRepo) Count(context.Context) (int, error) { return len(m.items), nil }

func (m *memRepo) Insert(_ context.Context, f food.Fields) (*food.Food, error) {
	if m.err != nil {
		return nil, m.err
	}
	*m.events = append(*m.events, "insert")
	item := food.Food{
		ID:        uuid.NewString(),
		Name:      f.Name,
		Price:     f.Price,
		Tags:      f.Tags,
		Origins:   f.Origins,
		CookTime:  f.CookTime,
		ImageURL:  f.ImageURL,
		Favorite:  f.Favorite != nil && *f.Favorite,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	m.items[item.ID] = item
	m.order = append(m.order, item.ID)
	return &item, nil
}

func (m *memRepo) Update(_ context.Context, id string, f food.Fields) (*food.Food, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, food.ErrNotFound
	}
	item.Name, item.Price, item.Tags, item.Origins, item.CookTime = f.Name, f.Price, f.Tags, f.Origins, f.CookTime
	if f.ImageURL != "" {
		item.ImageURL = f.ImageURL
	}
	if f.Favorite != nil {
		item.Favorite = *f.Favorite
	}
	m.items[id] = item
	return &item, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return food.ErrNotFound
	}
	delete(m.items, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	return nil
}

type mockUploader struct {
	url      string
	err      error
	calls    int
	streamed bool
	received []byte
	events   *[]string
}

func (m *mockUploader) Upload(_ context.Context, p *upload.Payload) (string, error) {
	m.calls++
	m.streamed = p.Streaming()
	if p.Streaming() {
		data, err := io.ReadAll(p.Reader())
		if err != nil {
			return "", &upload.ProviderError{Message: "read body", Err: err}
		}
		m.received = data
	} else {
		m.received = p.Bytes()
	}
	if m.err != nil {
		return "", m.err
	}
	*m.events = append(*m.events, "upload")
	return m.url, nil
}

type mockKeys struct {
	keys map[string]*auth.APIKeyInfo
	err  error
}

func (m *mockKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

func newMockKeys() *mockKeys {
	admin := auth.HashKey(adminKey, testPepper)
	reader := auth.HashKey(readerKey, testPepper)
	return &mockKeys{keys: map[string]*auth.APIKeyInfo{
		admin:  {ID: "1", KeyHash: admin, Name: "admin", Scopes: []string{auth.ScopeAdmin}},
		reader: {ID: "2", KeyHash: reader, Name: "reader", Scopes: []string{"read"}},
	}}
}

// --- Helpers ---

type testEnv struct {
	repo     *memRepo
	uploader *mockUploader
	events   *[]string
	server   http.Handler
}

func newTestEnv(t *testing.T, maxImage int64) *testEnv {
	t.Helper()
	events := &[]string{}
	env := &testEnv{
		repo:     newMemRepo(events),
		uploader: &mockUploader{url: "https://cdn.example/taco.png", events: events},
		events:   events,
	}
	pipeline, err := ingest.New(env.uploader, ingest.Options{MaxSize: maxImage})
	require.NoError(t, err)

	h := NewHandler(Config{MaxImageSize: maxImage}, env.repo, pipeline)
	sec := NewSecurityHandler(newMockKeys(), testPepper)
	mux := http.NewServeMux()
	h.Register(mux, sec.RequireAdmin)
	env.server = mux
	return env
}

func (env *testEnv) seed(t *testing.T, name string, tags ...string) *food.Food {
	t.Helper()
	f, err := env.repo.Insert(context.Background(), food.Fields{
		Name:     name,
		Price:    decimal.RequireFromString("4.50"),
		Tags:     tags,
		Origins:  []string{"Italy"},
		CookTime: "10m",
		ImageURL: "https://cdn.example/" + strings.ToLower(name) + ".png",
	})
	require.NoError(t, err)
	*env.events = nil
	return f
}

func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

type formPart struct {
	name        string
	value       string
	filename    string
	contentType string
	data        []byte
}

func field(name, value string) formPart { return formPart{name: name, value: value} }

func image(data []byte) formPart {
	return formPart{name: "image", filename: "taco.png", contentType: "image/png", data: data}
}

func multipartRequest(t *testing.T, method, target string, parts ...formPart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.filename == "" && p.data == nil {
			require.NoError(t, mw.WriteField(p.name, p.value))
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+p.name+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(APIKeyHeader, adminKey)
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, adminKey)
	return req
}

func tacoFields() []formPart {
	return []formPart{
		field("name", "Taco"),
		field("price", "5.50"),
		field("origins", "Mexico"),
		field("cookTime", "10m"),
	}
}

type foodResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Tags      []string    `json:"tags"`
	Origins   []string    `json:"origins"`
	CookTime  string      `json:"cookTime"`
	ImageURL  string      `json:"imageUrl"`
	Favorite  bool        `json:"favorite"`
	CreatedAt string      `json:"createdAt"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// --- Create ---

func TestCreateFood_EndToEnd(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	parts := append(tacoFields(), image(pngHeader))
	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	got := decode[foodResponse](t, rec)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Taco", got.Name)
	assert.Equal(t, "5.5", got.Price.String())
	assert.Equal(t, "https://cdn.example/taco.png", got.ImageURL)
	assert.Equal(t, []string{}, got.Tags)
	assert.Equal(t, []string{"Mexico"}, got.Origins)
	assert.Equal(t, "2024-01-02T03:04:05Z", got.CreatedAt)

	stored, err := env.repo.GetByID(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/taco.png", stored.ImageURL)

	assert.Equal(t, []string{"upload", "insert"}, *env.events)
	assert.True(t, env.uploader.streamed, "image after fields is streamed")
	assert.Equal(t, pngHeader, env.uploader.received)
}

func TestCreateFood_ImageBeforeFieldsIsBuffered(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	parts := append([]formPart{image(pngHeader)}, tacoFields()...)
	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.False(t, env.uploader.streamed)
	assert.Equal(t, pngHeader, env.uploader.received)
	assert.Equal(t, []string{"upload", "insert"}, *env.events)
}

func TestCreateFood_NormalizesLists(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods",
		field("name", " Pizza "),
		field("price", "9"),
		field("tags", "italian, cheese,,italian"),
		field("tags", "hot"),
		field("origins", "Italy, USA"),
		field("cookTime", "20m"),
		image(pngHeader),
	))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decode[foodResponse](t, rec)
	assert.Equal(t, "Pizza", got.Name)
	assert.Equal(t, []string{"italian", "cheese", "hot"}, got.Tags)
	assert.Equal(t, []string{"Italy", "USA"}, got.Origins)
}

func TestCreateFood_MissingFields(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods",
		field("name", "Taco"),
		image(pngHeader),
	))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	got := decode[errorResponse](t, rec)
	assert.Equal(t, 400, got.Code)
	assert.Equal(t, "missing required fields: price, origins, cookTime", got.Message)
	assert.Zero(t, env.uploader.calls)
	assert.Empty(t, env.repo.items)
}

func TestCreateFood_MissingImage(t *testing.T) {
	for name, parts := range map[string][]formPart{
		"no image part":    tacoFields(),
		"empty streamed":   append(tacoFields(), image([]byte{})),
		"empty buffered":   append([]formPart{image([]byte{})}, tacoFields()...),
		"non-file payload": append(tacoFields(), field("image", "")),
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, 1<<20)

			rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
			require.Equal(t, http.StatusBadRequest, rec.Code)

			got := decode[errorResponse](t, rec)
			assert.Equal(t, ingest.ErrNoImage.Error(), got.Message)
			assert.Zero(t, env.uploader.calls)
			assert.Empty(t, env.repo.items)
		})
	}
}

func TestCreateFood_UploadFailure(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	env.uploader.err = &upload.ProviderError{Message: "provider rejected upload", Err: errors.New("403 forbidden")}

	parts := append(tacoFields(), image(pngHeader))
	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	got := decode[errorResponse](t, rec)
	assert.Equal(t, "Error uploading image", got.Message)
	assert.Contains(t, got.Error, "403 forbidden")
	assert.Empty(t, env.repo.items)
	assert.Empty(t, *env.events)
}

func TestCreateFood_UnsupportedType(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	parts := append(tacoFields(), formPart{
		name: "image", filename: "notes.txt", contentType: "text/plain", data: []byte("just some text"),
	})
	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	got := decode[errorResponse](t, rec)
	assert.Equal(t, ingest.ErrUnsupportedType.Error(), got.Message)
	assert.Zero(t, env.uploader.calls)
}

func TestCreateFood_TooLarge(t *testing.T) {
	big := append(slices.Clone(pngHeader), make([]byte, 4096)...)

	t.Run("buffered", func(t *testing.T) {
		env := newTestEnv(t, 1024)
		parts := append([]formPart{image(big)}, tacoFields()...)
		rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, ingest.ErrTooLarge.Error(), decode[errorResponse](t, rec).Message)
		assert.Zero(t, env.uploader.calls)
	})

	t.Run("streamed", func(t *testing.T) {
		env := newTestEnv(t, 1024)
		parts := append(tacoFields(), image(big))
		rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, env.repo.items)
	})
}

func TestCreateFood_BodyLimit(t *testing.T) {
	env := newTestEnv(t, 1024)

	// Each field fits its own cap but together they pass the body limit.
	parts := tacoFields()
	filler := strings.Repeat("x", maxFieldSize-1)
	for i := 0; i < 20; i++ {
		parts = append(parts, field("note"+strconv.Itoa(i), filler))
	}
	parts = append(parts, image(pngHeader))

	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, env.uploader.calls)
	assert.Empty(t, env.repo.items)
}

func TestCreateFood_PriceOutOfRange(t *testing.T) {
	for _, price := range []string{"0.001", "123456789012"} {
		t.Run(price, func(t *testing.T) {
			env := newTestEnv(t, 1<<20)

			parts := []formPart{
				field("name", "Taco"),
				field("price", price),
				field("origins", "Mexico"),
				field("cookTime", "10-15"),
				image(pngHeader),
			}
			rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, env.uploader.calls)
			assert.Empty(t, env.repo.items)
		})
	}
}

func TestCreateFood_StoreFailure(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	env.repo.err = errors.New("connection refused")

	parts := append(tacoFields(), image(pngHeader))
	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/foods", parts...))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, env.uploader.calls)
}

func TestCreateFood_NotMultipart(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	rec := env.do(t, jsonRequest(http.MethodPost, "/api/foods", `{"name":"Taco"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, env.uploader.calls)
}

// --- Update ---

func TestUpdateFood_JSONIdempotent(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	seeded := env.seed(t, "Taco", "mexican")

	body := `{"id":"` + seeded.ID + `","name":"Taco Supreme","price":7.25,` +
		`"tags":["mexican","spicy"],"origins":"Mexico, USA","cookTime":"15m","favorite":true}`

	first := env.do(t, jsonRequest(http.MethodPut, "/api/foods", body))
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	afterFirst := env.repo.items[seeded.ID]

	second := env.do(t, jsonRequest(http.MethodPut, "/api/foods", body))
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, afterFirst, env.repo.items[seeded.ID])
	assert.Equal(t, first.Body.String(), second.Body.String())

	got := decode[foodResponse](t, second)
	assert.Equal(t, "Taco Supreme", got.Name)
	assert.Equal(t, "7.25", got.Price.String())
	assert.Equal(t, []string{"mexican", "spicy"}, got.Tags)
	assert.Equal(t, []string{"Mexico", "USA"}, got.Origins)
	assert.True(t, got.Favorite)
	assert.Equal(t, seeded.ImageURL, got.ImageURL)
	assert.Zero(t, env.uploader.calls)
}

func TestUpdateFood_InvalidID(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	for name, body := range map[string]string{
		"missing":   `{"name":"x","price":1,"origins":["x"],"cookTime":"1m"}`,
		"malformed": `{"id":"nope","name":"x","price":1,"origins":["x"],"cookTime":"1m"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, jsonRequest(http.MethodPut, "/api/foods", body))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid food id", decode[errorResponse](t, rec).Message)
		})
	}
}

func TestUpdateFood_UnknownID(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	body := `{"id":"` + uuid.NewString() + `","name":"x","price":1,"origins":["x"],"cookTime":"1m"}`
	rec := env.do(t, jsonRequest(http.MethodPut, "/api/foods", body))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateFood_InvalidFields(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	seeded := env.seed(t, "Taco")

	for name, body := range map[string]string{
		"missing": `{"id":"` + seeded.ID + `","name":"x"}`,
		"price":   `{"id":"` + seeded.ID + `","name":"x","price":"abc","origins":["x"],"cookTime":"1m"}`,
		"syntax":  `{"id":`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, jsonRequest(http.MethodPut, "/api/foods", body))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, "Taco", env.repo.items[seeded.ID].Name)
}

func TestUpdateFood_MultipartNewImage(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	seeded := env.seed(t, "Taco")
	env.uploader.url = "https://cdn.example/new.png"

	rec := env.do(t, multipartRequest(t, http.MethodPut, "/api/foods",
		field("id", seeded.ID),
		field("name", "Taco"),
		field("price", "6"),
		field("origins", "Mexico"),
		field("cookTime", "10m"),
		image(pngHeader),
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "https://cdn.example/new.png", decode[foodResponse](t, rec).ImageURL)
	assert.True(t, env.uploader.streamed)
	assert.Equal(t, "https://cdn.example/new.png", env.repo.items[seeded.ID].ImageURL)
}

func TestUpdateFood_MultipartWithoutImage(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	seeded := env.seed(t, "Taco")

	rec := env.do(t, multipartRequest(t, http.MethodPut, "/api/foods",
		field("id", seeded.ID),
		field("name", "Taco"),
		field("price", "6"),
		field("origins", "Mexico"),
		field("cookTime", "10m"),
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Zero(t, env.uploader.calls)
	assert.Equal(t, seeded.ImageURL, env.repo.items[seeded.ID].ImageURL)
}

// --- Read routes ---

func TestListFoods(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	env.seed(t, "Pizza")
	env.seed(t, "Taco")

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]foodResponse](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, "Pizza", got[0].Name)
	assert.Equal(t, "Taco", got[1].Name)
}

func TestListFoods_StoreError(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	env.repo.err = errors.New("connection refused")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "connection refused")
}

func TestGetFood(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	seeded := env.seed(t, "Taco")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods/"+seeded.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Taco", decode[foodResponse](t, rec).Name)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, food.ErrNotFound.Error(), decode[errorResponse](t, rec).Message)
}

func TestListTags(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	env.seed(t, "One", "a", "b")
	env.seed(t, "Two", "a")
	env.seed(t, "Three", "c")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods/tags", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"name":"All","count":3},
		{"name":"a","count":2},
		{"name":"b","count":1},
		{"name":"c","count":1}
	]`, rec.Body.String())
}

func TestListFoodsByTag(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	env.seed(t, "One", "a")
	env.seed(t, "Two", "b")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods/tag/a", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]foodResponse](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "One", got[0].Name)
}

func TestSearchFoods(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	env.seed(t, "Spicy Noodles")
	env.seed(t, "Pizza")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods/search/spicy", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]foodResponse](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "Spicy Noodles", got[0].Name)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods/search/zzz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSearchFoods_Limit(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	for range 25 {
		env.seed(t, "Soup")
	}

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/foods/search/soup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]foodResponse](t, rec), defaultSearchLimit)
}

// --- Delete ---

func TestDeleteFood(t *testing.T) {
	env := newTestEnv(t, 1<<20)
	seeded := env.seed(t, "Taco")

	req := httptest.NewRequest(http.MethodDelete, "/api/foods/"+uuid.NewString(), nil)
	req.Header.Set(APIKeyHeader, adminKey)
	rec := env.do(t, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, env.repo.items, 1)

	req = httptest.NewRequest(http.MethodDelete, "/api/foods/"+seeded.ID, nil)
	req.Header.Set(APIKeyHeader, adminKey)
	rec = env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Food item deleted"}`, rec.Body.String())
	assert.Empty(t, env.repo.items)
}

// --- Upload ---

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/upload",
		field("note", "ignored"),
		image(pngHeader),
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"imageUrl":"https://cdn.example/taco.png"}`, rec.Body.String())
	assert.True(t, env.uploader.streamed)
	assert.Empty(t, env.repo.items)
}

func TestUploadImage_MissingImage(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/upload", field("note", "x")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ingest.ErrNoImage.Error(), decode[errorResponse](t, rec).Message)
	assert.Zero(t, env.uploader.calls)
}

func TestUploadImage_ProviderFailure(t *testing.T) {
	for name, err := range map[string]error{
		"provider": &upload.ProviderError{Message: "provider rejected upload", Err: errors.New("boom")},
		"timeout":  errors.Wrap(upload.ErrTimeout, "key x after 60s"),
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, 1<<20)
			env.uploader.err = err

			rec := env.do(t, multipartRequest(t, http.MethodPost, "/api/upload", image(pngHeader)))
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			got := decode[errorResponse](t, rec)
			assert.Equal(t, 500, got.Code)
			assert.Equal(t, "Error uploading image", got.Message)
			assert.NotEmpty(t, got.Error)
		})
	}
}
