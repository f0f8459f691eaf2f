package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"papercompanion/internal/repository"
	"papercompanion/internal/transport/http/response"
)

type CacheHandler struct {
	cache             *repository.CacheRepository
	maxEntriesPerType int
}

func NewCacheHandler(cache *repository.CacheRepository, maxEntriesPerType int) *CacheHandler {
	return &CacheHandler{cache: cache, maxEntriesPerType: maxEntriesPerType}
}

func (h *CacheHandler) Stats(c *gin.Context) {
	stats, err := h.cache.Stats()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "cache stats failed")
		return
	}
	response.OK(c, stats)
}

// Sweep drops all expired entries.
func (h *CacheHandler) Sweep(c *gin.Context) {
	removed, err := h.cache.InvalidateExpired()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "cache sweep failed")
		return
	}
	response.OK(c, gin.H{"removed": removed})
}

// Cleanup trims a cache type down to the configured size, keeping the
// most used entries.
func (h *CacheHandler) Cleanup(c *gin.Context) {
	cacheType := c.Query("type")
	if cacheType == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing type")
		return
	}
	keep := parseIntQuery(c, "keep", h.maxEntriesPerType)

	removed, err := h.cache.CleanupLeastUsed(cacheType, keep)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "cache cleanup failed")
		return
	}
	response.OK(c, gin.H{"removed": removed, "kept_at_most": keep})
}

// Clear removes every entry of a type, or the whole cache when type is
// empty.
func (h *CacheHandler) Clear(c *gin.Context) {
	removed, err := h.cache.Clear(c.Query("type"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "cache clear failed")
		return
	}
	response.OK(c, gin.H{"removed": removed})
}
