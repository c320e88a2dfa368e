package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-catalog/internal/domain/auth"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "X-API-Key"

var errUnauthorized = errors.New("unauthorized")

// SecurityHandler authenticates admin requests via HMAC-SHA256 hashed API
// keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// RequireAdmin rejects requests without a known key (401) or whose key
// lacks the admin scope (403).
func (s *SecurityHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := s.authenticate(ctx, r.Header.Get(APIKeyHeader))
		if err != nil {
			if !errors.Is(err, errUnauthorized) {
				zctx.From(ctx).Error("API key lookup failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal server error", nil)
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		if !info.HasScope(auth.ScopeAdmin) {
			writeError(w, http.StatusForbidden, "forbidden", nil)
			return
		}
		ctx = zctx.With(ctx, zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate looks key up by its hash and compares the stored hash in
// constant time.
func (s *SecurityHandler) authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, errUnauthorized
	}
	hexHash := auth.HashKey(key, s.pepper)

	info, err := s.apikeys.FindByHash(ctx, hexHash)
	if errors.Is(err, auth.ErrKeyNotFound) {
		return nil, errUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}

	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}
