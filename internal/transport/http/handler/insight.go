package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"papercompanion/internal/ai"
	"papercompanion/internal/app"
	"papercompanion/internal/repository"
	"papercompanion/internal/storage"
	"papercompanion/internal/transport/http/response"
)

type InsightHandler struct {
	insightService *app.InsightService
	sessions       *repository.SessionRepository
}

func NewInsightHandler(insightService *app.InsightService, sessions *repository.SessionRepository) *InsightHandler {
	return &InsightHandler{insightService: insightService, sessions: sessions}
}

// Get returns the session's insight bundle, extracting a fresh one
// only when the conversation moved on since the last extraction.
// Query params: force=true bypasses the freshness check, cache_only=true
// never extracts, grouped=true reads the stored insight rows instead.
func (h *InsightHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	if c.Query("grouped") == "true" {
		grouped, err := h.sessions.GetInsightsGrouped(sessionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
			} else {
				response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list insights failed")
			}
			return
		}
		response.OK(c, grouped)
		return
	}

	force := c.Query("force") == "true"
	cacheOnly := c.Query("cache_only") == "true"

	result, err := h.insightService.GetInsights(c.Request.Context(), sessionID, force, cacheOnly)
	if err != nil {
		var parseErr *ai.ParseError
		switch {
		case errors.Is(err, storage.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.Is(err, app.ErrNoCachedInsights):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.As(err, &parseErr):
			response.Error(c, http.StatusBadGateway, response.CodeInternalServer, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get insights failed")
		}
		return
	}
	response.OK(c, result)
}
