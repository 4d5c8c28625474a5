package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"faersignal/app"
	"faersignal/domain/analysis"
	"faersignal/domain/core"
	"faersignal/domain/signal"
	"faersignal/internal"
	apperrors "faersignal/internal/errors"
	"faersignal/internal/report"
)

// maxResultsLimit caps ?limit= on result listings.
const maxResultsLimit = 10000

// SignalHandler serves signal computation and stored runs.
type SignalHandler struct {
	analysis *app.AnalysisService
	logger   *internal.Logger
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(analysis *app.AnalysisService, logger *internal.Logger) *SignalHandler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &SignalHandler{analysis: analysis, logger: logger}
}

// ComputeRequest is the body of POST /signals/compute. Spec keys that are
// absent keep their defaults. When Rows is set the spec's source is ignored.
type ComputeRequest struct {
	Spec json.RawMessage    `json:"spec,omitempty"`
	Rows []signal.PairCount `json:"rows,omitempty"`
}

// ComputeResponse is a completed run.
type ComputeResponse struct {
	RunID    core.RunID        `json:"run_id"`
	Manifest analysis.Manifest `json:"manifest"`
	Results  []signal.Result   `json:"results"`
	Rejected []signal.RowError `json:"rejected"`
}

// Register mounts the routes on r.
func (h *SignalHandler) Register(r gin.IRouter) {
	r.POST("/signals/compute", h.Compute)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/runs/:id/results", h.GetResults)
	r.GET("/runs/:id/report", h.GetReport)
}

// Compute runs a spec, or a spec over caller-supplied rows.
func (h *SignalHandler) Compute(c *gin.Context) {
	var req ComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.InvalidInput("invalid request body: "+err.Error()))
		return
	}

	spec := analysis.DefaultSpec()
	if len(req.Spec) > 0 {
		if err := json.Unmarshal(req.Spec, &spec); err != nil {
			h.fail(c, apperrors.InvalidInput("invalid spec: "+err.Error()))
			return
		}
	}

	var (
		run *analysis.Run
		err error
	)
	if req.Rows != nil {
		run, err = h.analysis.ExecuteRows(c.Request.Context(), spec, req.Rows)
	} else {
		run, err = h.analysis.Execute(c.Request.Context(), spec)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	rejected := run.Rejected
	if rejected == nil {
		rejected = []signal.RowError{}
	}
	c.JSON(http.StatusOK, ComputeResponse{
		RunID:    run.Manifest.RunID,
		Manifest: run.Manifest,
		Results:  nonNil(run.Results),
		Rejected: rejected,
	})
}

// ListRuns returns recent manifests, newest first.
func (h *SignalHandler) ListRuns(c *gin.Context) {
	limit, err := queryLimit(c, 50)
	if err != nil {
		h.fail(c, err)
		return
	}
	runs, err := h.analysis.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if runs == nil {
		runs = []analysis.Manifest{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun returns the manifest of a run.
func (h *SignalHandler) GetRun(c *gin.Context) {
	run, ok := h.loadRun(c, 1)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run.Manifest)
}

// GetResults returns the ranked rows of a run; ?limit= bounds them.
func (h *SignalHandler) GetResults(c *gin.Context) {
	limit, err := queryLimit(c, 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	run, ok := h.loadRun(c, limit)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":  run.Manifest.RunID,
		"count":   len(run.Results),
		"results": nonNil(run.Results),
	})
}

// GetReport renders the run as an HTML page; ?top= sets the table size.
func (h *SignalHandler) GetReport(c *gin.Context) {
	top, err := strconv.Atoi(c.DefaultQuery("top", "0"))
	if err != nil || top < 0 {
		h.fail(c, apperrors.InvalidInput("top must be a non-negative integer"))
		return
	}
	run, ok := h.loadRun(c, 0)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(run, top))
}

func (h *SignalHandler) loadRun(c *gin.Context, limit int) (*analysis.Run, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	run, err := h.analysis.GetRun(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return run, true
}

// fail writes err as {"error", "code"} with the status its code maps to.
func (h *SignalHandler) fail(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  apperrors.Classify(err),
	})
}

func queryLimit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxResultsLimit {
		return 0, apperrors.InvalidInput("limit must be an integer between 0 and " + strconv.Itoa(maxResultsLimit))
	}
	return n, nil
}

func nonNil(results []signal.Result) []signal.Result {
	if results == nil {
		return []signal.Result{}
	}
	return results
}
