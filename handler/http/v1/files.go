package v1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragmix/src/core/rag"
)

type setRestrictionsRequest struct {
	UserIDs []int64 `json:"userIds"`
}

type fileDetailResponse struct {
	File     rag.File      `json:"file"`
	Document *rag.Document `json:"document,omitempty"`
}

type restrictionsResponse struct {
	FileID            int64   `json:"fileId"`
	RestrictedUserIDs []int64 `json:"restrictedUserIds"`
}

// ListFiles godoc
// @Summary List files visible to the caller
// @Tags files
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Success 200 {array} rag.File
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /files [get]
func (h *Handler) ListFiles(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	files, err := h.fileService.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	visible := make([]rag.File, 0, len(files))
	for i := range files {
		if rag.Accessible(&files[i], user) {
			visible = append(visible, files[i])
		}
	}

	sendJSON(c, http.StatusOK, visible)
}

// GetFile godoc
// @Summary Get one file with its document metadata
// @Tags files
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param id path int true "File ID"
// @Success 200 {object} fileDetailResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /files/{id} [get]
func (h *Handler) GetFile(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	fileID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid file ID"))
		return
	}

	file, err := h.fileService.GetByID(c.Request.Context(), fileID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if file == nil {
		sendError(c, http.StatusNotFound, rag.ErrFileNotFound)
		return
	}
	if !rag.Accessible(file, user) {
		sendError(c, http.StatusForbidden, rag.ErrAccessDenied)
		return
	}

	// Files without an ingested document header still render, document omitted
	doc, err := h.documentService.GetByFileID(c.Request.Context(), fileID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, fileDetailResponse{
		File:     *file,
		Document: doc,
	})
}

// GetFileRestrictions godoc
// @Summary Read the deny list of a file
// @Tags files
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param id path int true "File ID"
// @Success 200 {object} restrictionsResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /files/{id}/restrictions [get]
func (h *Handler) GetFileRestrictions(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}
	if user.Role != rag.RoleAdmin {
		sendError(c, http.StatusForbidden, fmt.Errorf("only admins can read restrictions"))
		return
	}

	fileID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid file ID"))
		return
	}

	file, err := h.fileService.GetByID(c.Request.Context(), fileID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if file == nil {
		sendError(c, http.StatusNotFound, rag.ErrFileNotFound)
		return
	}

	userIDs, err := h.fileService.GetRestrictions(c.Request.Context(), fileID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, restrictionsResponse{
		FileID:            fileID,
		RestrictedUserIDs: userIDs,
	})
}

// SetFileRestrictions godoc
// @Summary Replace the deny list of a file
// @Tags files
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param id path int true "File ID"
// @Param body body setRestrictionsRequest true "Restricted user IDs"
// @Success 200 {object} restrictionsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /files/{id}/restrictions [put]
func (h *Handler) SetFileRestrictions(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}
	if user.Role != rag.RoleAdmin {
		sendError(c, http.StatusForbidden, fmt.Errorf("only admins can change restrictions"))
		return
	}

	fileID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid file ID"))
		return
	}

	var req setRestrictionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	file, err := h.fileService.GetByID(c.Request.Context(), fileID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if file == nil {
		sendError(c, http.StatusNotFound, rag.ErrFileNotFound)
		return
	}

	// Unknown user IDs are dropped rather than rejected
	applied, err := h.userService.ExistingIDs(c.Request.Context(), req.UserIDs)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if err := h.fileService.SetRestrictions(c.Request.Context(), fileID, applied); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if applied == nil {
		applied = []int64{}
	}
	sendJSON(c, http.StatusOK, restrictionsResponse{
		FileID:            fileID,
		RestrictedUserIDs: applied,
	})
}
