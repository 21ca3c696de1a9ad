package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/cache"
)

type CacheHandler struct {
	store  cache.Store
	logger zerolog.Logger
}

func NewCacheHandler(store cache.Store, logger zerolog.Logger) *CacheHandler {
	return &CacheHandler{store: store, logger: logger}
}

// ClearCache flushes every cache entry, forcing fresh upstream fetches.
func (h *CacheHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.store.ClearAll(r.Context())
	h.logger.Info().Msg("cache cleared")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Cache cleared",
	})
}
