package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ragmix/src/core/rag"
)

type chatRequest struct {
	Query    string  `json:"query" binding:"required"`
	UseRAG   *bool   `json:"useRag"`
	Limit    int     `json:"ragLimit"`
	MinScore float64 `json:"minScore"`
	Model    string  `json:"model"`
}

// Chat godoc
// @Summary Answer a question over the ingested documents
// @Tags chat
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param body body chatRequest true "Chat parameters"
// @Success 200 {object} rag.TurnResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /chat [post]
func (h *Handler) Chat(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	// Retrieval is on unless the caller turns it off
	useRetrieval := true
	if req.UseRAG != nil {
		useRetrieval = *req.UseRAG
	}

	resp, err := h.chatService.Answer(c.Request.Context(), rag.TurnRequest{
		User:         user,
		Query:        req.Query,
		Limit:        req.Limit,
		MinScore:     req.MinScore,
		Model:        req.Model,
		UseRetrieval: useRetrieval,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, resp)
}
