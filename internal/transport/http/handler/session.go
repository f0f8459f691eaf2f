package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"papercompanion/internal/app"
	"papercompanion/internal/model"
	"papercompanion/internal/platform/rabbitmq"
	"papercompanion/internal/repository"
	"papercompanion/internal/storage"
	"papercompanion/internal/transport/http/response"
)

type SessionHandler struct {
	sessions     *repository.SessionRepository
	queryService *app.QueryService
	exporter     *rabbitmq.ExportPublisher
}

func NewSessionHandler(
	sessions *repository.SessionRepository,
	queryService *app.QueryService,
	exporter *rabbitmq.ExportPublisher,
) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		queryService: queryService,
		exporter:     exporter,
	}
}

type CreateSessionRequest struct {
	PaperID   uint   `json:"paper_id" binding:"required,gt=0"`
	SessionID string `json:"session_id" binding:"max=128"`
	Model     string `json:"model" binding:"max=128"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session, err := h.sessions.Create(req.PaperID, req.SessionID, req.Model)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.Is(err, storage.ErrConstraint):
			response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		}
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) List(c *gin.Context) {
	paperID := uint(parseIntQuery(c, "paper_id", 0))
	if paperID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid paper_id")
		return
	}
	status := c.Query("status")
	if status != "" && !model.ValidSessionStatus(status) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid status")
		return
	}

	sessions, err := h.sessions.ListForPaper(paperID, status, parseIntQuery(c, "limit", 0))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.GetByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get session failed")
		}
		return
	}
	response.OK(c, session)
}

type UpdateSessionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	var req UpdateSessionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if !model.ValidSessionStatus(req.Status) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid status")
		return
	}

	sessionID := c.Param("id")
	if err := h.sessions.UpdateStatus(sessionID, req.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "update status failed")
		}
		return
	}
	response.OK(c, gin.H{"session_id": sessionID, "status": req.Status})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.sessions.Delete(sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete session failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

func (h *SessionHandler) Stats(c *gin.Context) {
	stats, err := h.sessions.Stats(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "session stats failed")
		}
		return
	}
	response.OK(c, stats)
}

func (h *SessionHandler) GetMessages(c *gin.Context) {
	includeSummaries := c.Query("include_summaries") == "true"
	messages, err := h.sessions.GetMessages(
		c.Param("id"),
		includeSummaries,
		parseIntQuery(c, "limit", 0),
		parseIntQuery(c, "offset", 0),
	)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list messages failed")
		}
		return
	}
	response.OK(c, messages)
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask runs one question/answer exchange against the session's paper.
func (h *SessionHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.queryService.Ask(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMessageEmpty), errors.Is(err, app.ErrLLMConfig):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ask failed")
		}
		return
	}
	response.OK(c, result)
}

// AskStream is Ask over server-sent events.
func (h *SessionHandler) AskStream(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	result, err := h.queryService.AskStream(c.Request.Context(), c.Param("id"), req.Question, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + chunk + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if _, writeErr := c.Writer.Write([]byte("event: error\ndata: " + sanitizeSSE(err.Error()) + "\n\n")); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(result.AssistantMessage.Content) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

type AddFlagRequest struct {
	UserMessageID      uint   `json:"user_message_id" binding:"required,gt=0"`
	AssistantMessageID uint   `json:"assistant_message_id" binding:"required,gt=0"`
	Note               string `json:"note" binding:"max=2048"`
}

func (h *SessionHandler) AddFlag(c *gin.Context) {
	var req AddFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flag, err := h.sessions.AddFlag(c.Param("id"), req.UserMessageID, req.AssistantMessageID, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		case errors.Is(err, storage.ErrReferential):
			response.Error(c, http.StatusUnprocessableEntity, response.CodeUnprocessable, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "add flag failed")
		}
		return
	}
	response.OK(c, flag)
}

func (h *SessionHandler) GetFlags(c *gin.Context) {
	flags, err := h.sessions.GetFlags(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list flags failed")
		}
		return
	}
	response.OK(c, flags)
}

// Export enqueues a note-export job for the session; the worker does
// the actual push to the reference manager.
func (h *SessionHandler) Export(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.sessions.GetByID(sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "export failed")
		}
		return
	}

	if err := h.exporter.Publish(c.Request.Context(), rabbitmq.ExportJob{SessionID: sessionID}); err != nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeInternalServer, "enqueue export failed")
		return
	}
	response.OK(c, gin.H{"session_id": sessionID, "queued": true})
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
