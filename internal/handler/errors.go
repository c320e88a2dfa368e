package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-catalog/internal/domain/food"
	"github.com/xenking/food-catalog/internal/ingest"
)

const uploadFailedMessage = "Error uploading image"

func writeError(w http.ResponseWriter, status int, message string, cause error) {
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeError(e, status, message, cause)
	})
}

// fail maps err to an error response. uploadStatus is the status used when
// the image host rejected the upload, which differs between routes.
func fail(w http.ResponseWriter, r *http.Request, err error, uploadStatus int) {
	var (
		maxErr    *http.MaxBytesError
		reqErr    *badRequestError
		vErr      *food.ValidationError
		uploadErr *ingest.UploadFailedError
	)
	switch {
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
	case errors.Is(err, ingest.ErrTooLarge):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, reqErr.Message, reqErr.Err)
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error(), nil)
	case errors.Is(err, ingest.ErrNoImage), errors.Is(err, ingest.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &uploadErr):
		zctx.From(r.Context()).Warn("Image upload failed", zap.Error(uploadErr.Cause))
		writeError(w, uploadStatus, uploadFailedMessage, uploadErr.Cause)
	case errors.Is(err, food.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", err)
	}
}
