package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-catalog/internal/domain/food"
	"github.com/xenking/food-catalog/internal/ingest"
	"github.com/xenking/food-catalog/internal/upload"
)

const (
	imageField   = "image"
	maxFieldSize = 64 << 10
	// formOverhead is the body allowance on top of the image size limit.
	formOverhead = 1 << 20
)

// badRequestError is a malformed request body or parameter.
type badRequestError struct {
	Message string
	Err     error
}

func (e *badRequestError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *badRequestError) Unwrap() error { return e.Err }

// parseList normalizes a string-or-list field: every value is split on
// commas, entries are trimmed and empty ones dropped. Order is kept.
func parseList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// parseFields converts form values into catalog fields. It reports
// malformed values; missing ones are left for Fields.Validate.
func parseFields(v url.Values) (food.Fields, error) {
	f := food.Fields{
		Name:     strings.TrimSpace(v.Get("name")),
		Tags:     parseList(v["tags"]),
		Origins:  parseList(v["origins"]),
		CookTime: strings.TrimSpace(v.Get("cookTime")),
		ImageURL: strings.TrimSpace(v.Get("imageUrl")),
	}
	if raw := strings.TrimSpace(v.Get("price")); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return f, &food.ValidationError{Reason: "invalid price", Fields: []string{"price"}}
		}
		f.Price = price
	}
	if raw := strings.TrimSpace(v.Get("favorite")); raw != "" {
		fav, err := strconv.ParseBool(raw)
		if err != nil {
			return f, &food.ValidationError{Reason: "invalid favorite", Fields: []string{"favorite"}}
		}
		f.Favorite = &fav
	}
	return f, nil
}

// validFields reports whether v already holds a complete field set.
func validFields(v url.Values) bool {
	f, err := parseFields(v)
	return err == nil && f.Validate() == nil
}

// parseID checks a client supplied item id.
func parseID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return "", &badRequestError{Message: "invalid food id", Err: err}
	}
	return id, nil
}

// foodForm is a parsed multipart catalog form.
type foodForm struct {
	Values url.Values
	// ImageURL is set when the image was ingested while reading the form.
	ImageURL string
	// Image is a buffered image still awaiting ingestion.
	Image *upload.Payload
}

// HasImage reports whether the form carried an image part.
func (f *foodForm) HasImage() bool {
	return f.ImageURL != "" || f.Image != nil
}

// readFoodForm walks the multipart body part by part. An image part that
// arrives once streamReady accepts the preceding fields is piped straight
// into the pipeline; an earlier one is buffered up to maxImage bytes.
// Only the first image part is used.
func readFoodForm(
	ctx context.Context,
	r *http.Request,
	ingester Ingester,
	maxImage int64,
	streamReady func(url.Values) bool,
) (*foodForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &badRequestError{Message: "expected multipart/form-data body", Err: err}
	}

	form := &foodForm{Values: url.Values{}}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			return form, multipartError(err)
		}
		if err := readPart(ctx, part, form, ingester, maxImage, streamReady); err != nil {
			_ = part.Close()
			return form, err
		}
		_ = part.Close()
	}
}

func readPart(
	ctx context.Context,
	part *multipart.Part,
	form *foodForm,
	ingester Ingester,
	maxImage int64,
	streamReady func(url.Values) bool,
) error {
	name := part.FormName()
	if name == "" {
		return nil
	}
	if name != imageField {
		value, err := readAll(part, maxFieldSize, &badRequestError{Message: "field " + name + " is too large"})
		if err != nil {
			return err
		}
		form.Values.Add(name, string(value))
		return nil
	}
	if form.HasImage() {
		return nil
	}

	contentType := part.Header.Get("Content-Type")
	if streamReady(form.Values) {
		payload := upload.Stream(part, contentType, part.FileName())
		// Browsers send an empty part for an unset file input.
		if empty, err := payload.Empty(); err != nil || empty {
			return multipartErrorOrNil(err)
		}
		imageURL, err := ingester.Ingest(ctx, payload)
		if err != nil {
			return err
		}
		form.ImageURL = imageURL
		return nil
	}

	data, err := readAll(part, maxImage, ingest.ErrTooLarge)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		form.Image = upload.Buffer(data, contentType, part.FileName())
	}
	return nil
}

// readAll reads at most limit bytes of r, failing with tooLarge past it.
func readAll(r io.Reader, limit int64, tooLarge error) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, multipartError(err)
	}
	if int64(len(data)) > limit {
		return nil, tooLarge
	}
	return data, nil
}

func multipartError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return &badRequestError{Message: "malformed multipart body", Err: err}
}

func jsonError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return &badRequestError{Message: "malformed JSON body", Err: err}
}

func multipartErrorOrNil(err error) error {
	if err == nil {
		return nil
	}
	return multipartError(err)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/")
}
