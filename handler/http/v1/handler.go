package v1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragmix/src/core/rag"
	"ragmix/src/infrastructure/job"
	"ragmix/src/storage/minioctrl"
	"ragmix/src/storage/postgres/documentctrl"
	"ragmix/src/storage/postgres/evalctrl"
	"ragmix/src/storage/postgres/filectrl"
	"ragmix/src/storage/postgres/userctrl"
)

type Handler struct {
	chatService       rag.ChatService
	searchService     rag.SearchService
	structuredService rag.StructuredSearchService
	sysService        rag.SystemService
	userService       *userctrl.UserService
	fileService       *filectrl.FileService
	documentService   *documentctrl.DocumentService
	evalService       *evalctrl.EvaluationService
	minioService      *minioctrl.MinioService
	jobService        *job.JobService
	datasetBucket     string
	reportBucket      string
}

func NewHandler(
	chatService rag.ChatService,
	searchService rag.SearchService,
	structuredService rag.StructuredSearchService,
	sysService rag.SystemService,
	userService *userctrl.UserService,
	fileService *filectrl.FileService,
	documentService *documentctrl.DocumentService,
	evalService *evalctrl.EvaluationService,
	minioService *minioctrl.MinioService,
	jobService *job.JobService,
	datasetBucket string,
	reportBucket string,
) *Handler {
	return &Handler{
		chatService:       chatService,
		searchService:     searchService,
		structuredService: structuredService,
		sysService:        sysService,
		userService:       userService,
		fileService:       fileService,
		documentService:   documentService,
		evalService:       evalService,
		minioService:      minioService,
		jobService:        jobService,
		datasetBucket:     datasetBucket,
		reportBucket:      reportBucket,
	}
}

// RegisterRoutes registers all v1 API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Chat routes
	v1.POST("/chat", h.Chat)

	// Search routes
	v1.POST("/search", h.Search)
	v1.POST("/search/structured", h.SearchStructured)

	// File routes
	v1.GET("/files", h.ListFiles)
	v1.GET("/files/:id", h.GetFile)
	v1.GET("/files/:id/restrictions", h.GetFileRestrictions)
	v1.PUT("/files/:id/restrictions", h.SetFileRestrictions)

	// Evaluation routes
	v1.POST("/evaluations", h.CreateEvaluation)
	v1.GET("/evaluations", h.ListEvaluations)
	v1.GET("/evaluations/:id", h.GetEvaluation)
	v1.GET("/evaluations/:id/report", h.GetEvaluationReport)

	// System routes
	v1.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	var code string
	switch {
	case err == rag.ErrAccessDenied:
		code = "ACCESS_DENIED"
		status = http.StatusForbidden
	case err == rag.ErrFileNotFound, err == rag.ErrDocumentNotFound, err == rag.ErrUserNotFound:
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case err == rag.ErrInvalidRequest:
		code = "INVALID_REQUEST"
		status = http.StatusBadRequest
	case status == http.StatusBadRequest:
		code = "INVALID_REQUEST"
	case status == http.StatusUnauthorized:
		code = "UNAUTHORIZED"
	case status == http.StatusForbidden:
		code = "ACCESS_DENIED"
	case status == http.StatusNotFound:
		code = "NOT_FOUND"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// currentUser resolves the caller from the X-User-ID header.
func (h *Handler) currentUser(c *gin.Context) (*rag.User, error) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return nil, fmt.Errorf("X-User-ID header is required")
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid X-User-ID header")
	}

	user, err := h.userService.GetByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %d", id)
	}

	return user, nil
}
