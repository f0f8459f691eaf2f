package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"papercompanion/internal/migrate"
	"papercompanion/internal/transport/http/response"
)

// SchemaHandler reports migration state for diagnostics.
type SchemaHandler struct {
	migrator *migrate.Migrator
}

func NewSchemaHandler(migrator *migrate.Migrator) *SchemaHandler {
	return &SchemaHandler{migrator: migrator}
}

func (h *SchemaHandler) Info(c *gin.Context) {
	info, err := h.migrator.MigrationInfo()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "migration info failed")
		return
	}
	response.OK(c, info)
}
