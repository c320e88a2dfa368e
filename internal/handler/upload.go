package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-catalog/internal/ingest"
	"github.com/xenking/food-catalog/internal/upload"
)

// uploadImage streams the first image part to the image host and returns
// its URL without touching the catalog.
func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.limitBody(w, r)

	mr, err := r.MultipartReader()
	if err != nil {
		fail(w, r, &badRequestError{Message: "expected multipart/form-data body", Err: err}, http.StatusInternalServerError)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail(w, r, multipartError(err), http.StatusInternalServerError)
			return
		}
		if part.FormName() != imageField {
			_ = part.Close()
			continue
		}

		imageURL, err := h.ingester.Ingest(ctx, upload.Stream(part, part.Header.Get("Content-Type"), part.FileName()))
		_ = part.Close()
		if err != nil {
			fail(w, r, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			encodeMessage(e, "imageUrl", imageURL)
		})
		return
	}

	fail(w, r, ingest.ErrNoImage, http.StatusInternalServerError)
}
