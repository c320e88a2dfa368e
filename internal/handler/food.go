package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-catalog/internal/domain/food"
	"github.com/xenking/food-catalog/internal/ingest"
)

func (h *Handler) listFoods(w http.ResponseWriter, r *http.Request) {
	foods, err := h.foods.List(r.Context())
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeFoods(w, foods)
}

func (h *Handler) getFood(w http.ResponseWriter, r *http.Request) {
	f, err := h.foods.GetByID(r.Context(), r.PathValue("foodId"))
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeFood(w, http.StatusOK, f)
}

func (h *Handler) listFoodsByTag(w http.ResponseWriter, r *http.Request) {
	foods, err := h.foods.ListByTag(r.Context(), r.PathValue("tag"))
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeFoods(w, foods)
}

func (h *Handler) searchFoods(w http.ResponseWriter, r *http.Request) {
	foods, err := h.foods.Search(r.Context(), r.PathValue("searchTerm"), h.searchLimit)
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeFoods(w, foods)
}

func (h *Handler) listTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tags, err := h.foods.Tags(ctx)
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	total, err := h.foods.Count(ctx)
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeTags(e, food.WithAll(total, tags))
	})
}

// createFood reads the multipart form, ingests the image and stores the
// item. The image is always hosted before the item is written.
func (h *Handler) createFood(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.limitBody(w, r)

	form, err := readFoodForm(ctx, r, h.ingester, h.maxImage, validFields)
	if err != nil {
		h.orphaned(ctx, form, err)
		fail(w, r, err, http.StatusBadRequest)
		return
	}

	fields, err := parseFields(form.Values)
	if err == nil {
		err = fields.Validate()
	}
	if err != nil {
		h.orphaned(ctx, form, err)
		fail(w, r, err, http.StatusBadRequest)
		return
	}

	imageURL, err := h.formImage(ctx, form)
	if err != nil {
		fail(w, r, err, http.StatusBadRequest)
		return
	}
	if imageURL == "" {
		fail(w, r, ingest.ErrNoImage, http.StatusBadRequest)
		return
	}
	fields.ImageURL = imageURL

	created, err := h.writer.Create(ctx, fields)
	if err != nil {
		h.orphaned(ctx, &foodForm{ImageURL: imageURL}, err)
		fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeFood(w, http.StatusCreated, created)
}

// updateFood replaces an item from a JSON body, or from a multipart form
// whose optional image re-enters the pipeline.
func (h *Handler) updateFood(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.limitBody(w, r)

	form := &foodForm{}
	if isMultipart(r) {
		var err error
		form, err = readFoodForm(ctx, r, h.ingester, h.maxImage, func(v url.Values) bool {
			_, err := parseID(v.Get("id"))
			return err == nil && validFields(v)
		})
		if err != nil {
			h.orphaned(ctx, form, err)
			fail(w, r, err, http.StatusBadRequest)
			return
		}
	} else {
		values, err := decodeFoodJSON(jx.Decode(r.Body, 4096))
		if err != nil {
			fail(w, r, jsonError(err), http.StatusBadRequest)
			return
		}
		form.Values = values
	}

	id, err := parseID(form.Values.Get("id"))
	if err != nil {
		h.orphaned(ctx, form, err)
		fail(w, r, err, http.StatusBadRequest)
		return
	}
	fields, err := parseFields(form.Values)
	if err == nil {
		err = fields.Validate()
	}
	if err != nil {
		h.orphaned(ctx, form, err)
		fail(w, r, err, http.StatusBadRequest)
		return
	}

	imageURL, err := h.formImage(ctx, form)
	if err != nil {
		fail(w, r, err, http.StatusBadRequest)
		return
	}
	if imageURL != "" {
		fields.ImageURL = imageURL
	}

	updated, err := h.writer.Replace(ctx, id, fields)
	if err != nil {
		h.orphaned(ctx, &foodForm{ImageURL: imageURL}, err)
		fail(w, r, err, http.StatusBadRequest)
		return
	}
	writeFood(w, http.StatusOK, updated)
}

func (h *Handler) deleteFood(w http.ResponseWriter, r *http.Request) {
	if err := h.foods.Delete(r.Context(), r.PathValue("foodId")); err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeMessage(e, "message", "Food item deleted")
	})
}

// formImage returns the hosted URL of the form image, ingesting a
// buffered one first. It is empty when the form had no image.
func (h *Handler) formImage(ctx context.Context, form *foodForm) (string, error) {
	if form.ImageURL != "" {
		return form.ImageURL, nil
	}
	if form.Image == nil {
		return "", nil
	}
	return h.ingester.Ingest(ctx, form.Image)
}

// orphaned logs an image that was hosted but whose item was not written.
func (h *Handler) orphaned(ctx context.Context, form *foodForm, err error) {
	if form == nil || form.ImageURL == "" {
		return
	}
	zctx.From(ctx).Warn("Image orphaned",
		zap.String("url", form.ImageURL),
		zap.Error(err),
	)
}

func writeFood(w http.ResponseWriter, status int, f *food.Food) {
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeFood(e, f)
	})
}

func writeFoods(w http.ResponseWriter, foods []food.Food) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeFoods(e, foods)
	})
}
