package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sivakandan01/ai-backend/internal/ai"
	"github.com/sivakandan01/ai-backend/internal/app"
	"github.com/sivakandan01/ai-backend/internal/transport/http/middleware"
	"github.com/sivakandan01/ai-backend/internal/transport/http/response"
)

type RAGHandler struct {
	ragService *app.RAGService
}

func NewRAGHandler(ragService *app.RAGService) *RAGHandler {
	return &RAGHandler{ragService: ragService}
}

type QueryRequest struct {
	Query       string   `json:"query" binding:"required,min=1,max=1000"`
	TopK        int      `json:"top_k" binding:"omitempty,min=1,max=20"`
	DocumentIDs []string `json:"document_ids"`
}

func getUserIDFromContext(c *gin.Context) (string, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return "", false
	}
	userID, ok := userIDAny.(string)
	return userID, ok && userID != ""
}

// Upload accepts a multipart form with a single "file" part (PDF) and either
// indexes it inline or queues it, depending on server configuration.
func (h *RAGHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	result, err := h.ragService.Upload(c.Request.Context(), app.UploadInput{
		OwnerID:  userID,
		Filename: file.Filename,
		Size:     file.Size,
		Content:  f,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNoExtractableText):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "PDF contains no extractable text")
		case errors.Is(err, ai.ErrEmbeddingUnavailable):
			response.Error(c, http.StatusServiceUnavailable, response.CodeUpstreamDown, "embedding backend unavailable")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed: "+err.Error())
		}
		return
	}

	response.OK(c, result)
}

func (h *RAGHandler) Query(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.ragService.Query(c.Request.Context(), app.QueryInput{
		OwnerID:     userID,
		Query:       req.Query,
		TopK:        req.TopK,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		var conflict *app.StatusConflictError
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		case errors.As(err, &conflict):
			response.Error(c, http.StatusConflict, response.CodeDocumentNotReady, conflict.Error())
		case errors.Is(err, ai.ErrEmbeddingUnavailable):
			response.Error(c, http.StatusServiceUnavailable, response.CodeUpstreamDown, "embedding backend unavailable")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "query failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *RAGHandler) ListDocuments(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	list, err := h.ragService.ListDocuments(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}

	response.OK(c, list)
}

func (h *RAGHandler) DocumentStatus(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	documentID := c.Param("id")
	if documentID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	status, err := h.ragService.DocumentStatus(c.Request.Context(), userID, documentID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get document status failed")
		}
		return
	}

	response.OK(c, status)
}

func (h *RAGHandler) DeleteDocument(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	documentID := c.Param("id")
	if documentID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	if err := h.ragService.DeleteDocument(c.Request.Context(), userID, documentID); err != nil {
		switch {
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}

	response.OK(c, gin.H{"document_id": documentID})
}
