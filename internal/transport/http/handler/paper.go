package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"papercompanion/internal/app"
	"papercompanion/internal/repository"
	"papercompanion/internal/storage"
	"papercompanion/internal/transport/http/response"
)

const maxPDFSize = 10 << 20 // 10 MB

type PaperHandler struct {
	paperService *app.PaperService
	papers       *repository.PaperRepository
}

func NewPaperHandler(paperService *app.PaperService, papers *repository.PaperRepository) *PaperHandler {
	return &PaperHandler{paperService: paperService, papers: papers}
}

// Upload accepts a multipart form with "file" (PDF) plus optional
// metadata fields and ingests the paper. Re-uploading the same bytes
// returns the existing paper with created=false.
func (h *PaperHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > maxPDFSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 10MB)")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only PDF files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	result, err := h.paperService.IngestPDF(app.IngestPDFInput{
		FileName:  file.Filename,
		Data:      data,
		Title:     strings.TrimSpace(c.PostForm("title")),
		Authors:   strings.TrimSpace(c.PostForm("authors")),
		DOI:       strings.TrimSpace(c.PostForm("doi")),
		ArxivID:   strings.TrimSpace(c.PostForm("arxiv_id")),
		ZoteroKey: strings.TrimSpace(c.PostForm("zotero_key")),
		Metadata:  strings.TrimSpace(c.PostForm("metadata")),
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, storage.ErrConstraint):
			response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *PaperHandler) Get(c *gin.Context) {
	paperID, err := parseUintParam(c, "id")
	if err != nil || paperID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid paper id")
		return
	}

	paper, err := h.papers.FindByID(paperID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get paper failed")
		}
		return
	}
	response.OK(c, paper)
}

func (h *PaperHandler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	papers, err := h.papers.List(limit, offset)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list papers failed")
		return
	}
	response.OK(c, papers)
}

func (h *PaperHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing query")
		return
	}
	limit := parseIntQuery(c, "limit", 10)

	papers, err := h.papers.Search(query, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "search papers failed")
		return
	}
	response.OK(c, papers)
}

type UpdatePaperRequest struct {
	PDFPath   *string `json:"pdf_path"`
	Title     *string `json:"title"`
	Authors   *string `json:"authors"`
	DOI       *string `json:"doi"`
	ArxivID   *string `json:"arxiv_id"`
	ZoteroKey *string `json:"zotero_key"`
	Metadata  *string `json:"metadata"`
}

func (h *PaperHandler) Update(c *gin.Context) {
	paperID, err := parseUintParam(c, "id")
	if err != nil || paperID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid paper id")
		return
	}

	var req UpdatePaperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	fields := map[string]interface{}{}
	setIfPresent := func(column string, value *string) {
		if value != nil {
			fields[column] = *value
		}
	}
	setIfPresent("pdf_path", req.PDFPath)
	setIfPresent("title", req.Title)
	setIfPresent("authors", req.Authors)
	setIfPresent("doi", req.DOI)
	setIfPresent("arxiv_id", req.ArxivID)
	setIfPresent("zotero_key", req.ZoteroKey)
	setIfPresent("metadata", req.Metadata)

	if err := h.papers.UpdateMetadata(paperID, fields); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.Is(err, storage.ErrConstraint):
			response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "update paper failed")
		}
		return
	}
	response.OK(c, gin.H{"updated_paper_id": paperID})
}

func (h *PaperHandler) Delete(c *gin.Context) {
	paperID, err := parseUintParam(c, "id")
	if err != nil || paperID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid paper id")
		return
	}

	if err := h.papers.Delete(paperID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete paper failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_paper_id": paperID})
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	s := c.Param(key)
	u, err := strconv.ParseUint(s, 10, 64)
	return uint(u), err
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
