package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ragmix/src/core/rag"
)

type searchRequest struct {
	Query    string  `json:"query" binding:"required"`
	Limit    int     `json:"limit"`
	MinScore float64 `json:"minScore"`
	Modality string  `json:"modality"`
}

type structuredSearchRequest struct {
	Query  string `json:"query" binding:"required"`
	FileID int64  `json:"fileId" binding:"required"`
	Limit  int    `json:"limit"`
}

// Search godoc
// @Summary Semantic search over accessible chunks
// @Tags search
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param body body searchRequest true "Search parameters"
// @Success 200 {array} rag.RetrievalResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /search [post]
func (h *Handler) Search(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	results, err := h.searchService.Search(c.Request.Context(), rag.SearchRequest{
		Query:    req.Query,
		Limit:    req.Limit,
		MinScore: req.MinScore,
		Modality: rag.Modality(req.Modality),
		User:     user,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, results)
}

// SearchStructured godoc
// @Summary Run SQL-backed retrieval against one file's data table
// @Tags search
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param body body structuredSearchRequest true "Structured search parameters"
// @Success 200 {object} rag.StructuredResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /search/structured [post]
func (h *Handler) SearchStructured(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	var req structuredSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.structuredService.SearchStructured(c.Request.Context(), rag.StructuredSearchRequest{
		Query:  req.Query,
		FileID: req.FileID,
		Limit:  req.Limit,
		User:   user,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, result)
}
