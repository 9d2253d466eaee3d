package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ragmix/src/core/evalflow"
	"ragmix/src/core/rag"
	"ragmix/src/jobctrl"
	"ragmix/src/storage/postgres/evalctrl"
)

// CreateEvaluation godoc
// @Summary Upload a dataset and enqueue an evaluation run
// @Tags evaluations
// @Accept multipart/form-data
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param file formData file true "Evaluation dataset (JSON)"
// @Success 202 {object} evalctrl.EvaluationRun
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /evaluations [post]
func (h *Handler) CreateEvaluation(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("no dataset file uploaded"))
		return
	}
	defer file.Close()

	if filepath.Ext(header.Filename) != ".json" {
		sendError(c, http.StatusBadRequest, fmt.Errorf("only JSON datasets are allowed"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		sendError(c, http.StatusInternalServerError, fmt.Errorf("failed to read dataset file"))
		return
	}

	// Reject malformed datasets before anything is stored
	ds, err := evalflow.ParseDataset(data)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	objectName := fmt.Sprintf("%s.json", uuid.New().String())
	if err := h.minioService.PutObject(c.Request.Context(), h.datasetBucket, objectName, data, "application/json"); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	run, err := h.evalService.Create(c.Request.Context(), ds.Name, objectName, user.ID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	payload, err := json.Marshal(jobctrl.EvaluationPayload{RunID: run.ID})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	if _, err := h.jobService.EnqueueJob(c.Request.Context(), jobctrl.TaskTypeEvaluation, payload); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, run)
}

// ListEvaluations godoc
// @Summary List evaluation runs
// @Tags evaluations
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param offset query int false "Pagination offset"
// @Param limit query int false "Pagination limit"
// @Success 200 {array} evalctrl.EvaluationRun
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /evaluations [get]
func (h *Handler) ListEvaluations(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return
	}

	offset, limit := getPaginationParams(c)

	// Admins see every run, everyone else only their own
	var runs []evalctrl.EvaluationRun
	if user.Role == rag.RoleAdmin {
		runs, err = h.evalService.List(c.Request.Context(), offset, limit)
	} else {
		runs, err = h.evalService.ListByRequester(c.Request.Context(), user.ID, offset, limit)
	}
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, runs)
}

// GetEvaluation godoc
// @Summary Get one evaluation run
// @Tags evaluations
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param id path int true "Evaluation run ID"
// @Success 200 {object} evalctrl.EvaluationRun
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /evaluations/{id} [get]
func (h *Handler) GetEvaluation(c *gin.Context) {
	run, ok := h.loadRunForCaller(c)
	if !ok {
		return
	}

	sendJSON(c, http.StatusOK, run)
}

// GetEvaluationReport godoc
// @Summary Download the report of a completed evaluation run
// @Tags evaluations
// @Produce json
// @Param X-User-ID header string true "Caller user ID"
// @Param id path int true "Evaluation run ID"
// @Success 200 {object} evalflow.Report
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /evaluations/{id}/report [get]
func (h *Handler) GetEvaluationReport(c *gin.Context) {
	run, ok := h.loadRunForCaller(c)
	if !ok {
		return
	}

	if run.ReportObject == "" {
		sendError(c, http.StatusNotFound, fmt.Errorf("report not available for run %d", run.ID))
		return
	}

	data, err := h.minioService.GetObject(c.Request.Context(), h.reportBucket, run.ReportObject)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

// loadRunForCaller resolves the run in the path and enforces that only
// admins or the requester may see it. It writes the error response itself.
func (h *Handler) loadRunForCaller(c *gin.Context) (*evalctrl.EvaluationRun, bool) {
	user, err := h.currentUser(c)
	if err != nil {
		sendError(c, http.StatusUnauthorized, err)
		return nil, false
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid evaluation run ID"))
		return nil, false
	}

	run, err := h.evalService.GetByID(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return nil, false
	}
	if run == nil {
		sendError(c, http.StatusNotFound, fmt.Errorf("evaluation run %d not found", id))
		return nil, false
	}

	if user.Role != rag.RoleAdmin && run.RequestedBy != user.ID {
		sendError(c, http.StatusForbidden, fmt.Errorf("not allowed to view this evaluation run"))
		return nil, false
	}

	return run, true
}

func getPaginationParams(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.Query("offset"))
	limit, _ = strconv.Atoi(c.Query("limit"))

	if limit <= 0 {
		limit = 10 // default limit
	}
	if offset < 0 {
		offset = 0
	}

	return offset, limit
}
