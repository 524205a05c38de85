package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/runs"
	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
)

const defaultArchiveLimit = 50

// NewHandler wires the HTTP handlers. archive may be nil when no database is
// configured.
func NewHandler(catalog SourceCatalog, executor tasks.Executor, manager *runs.Manager,
	archive RunArchive, extractorConfigured bool, version string) *Handler {
	return &Handler{
		catalog:             catalog,
		executor:            executor,
		manager:             manager,
		archive:             archive,
		extractorConfigured: extractorConfigured,
		version:             version,
	}
}

func (h *Handler) SearchSource(c *gin.Context) {
	var req SearchSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "message": err.Error()})
		return
	}

	mode, err := source.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode", "message": err.Error()})
		return
	}

	descriptor := source.Descriptor{
		ID:          req.SourceName,
		DisplayName: req.SourceName,
		Target:      req.URL,
		Mode:        mode,
	}

	outcome := h.executor.Execute(c.Request.Context(), descriptor)

	resp := SearchSourceResponse{
		Events: []event.Candidate{},
		Debug:  outcome.Debug,
	}

	switch outcome.Kind {
	case tasks.OutcomeSuccess:
		resp.Events = outcome.Events
	case tasks.OutcomeSoftWarning:
		resp.Warning = outcome.Message
	default:
		resp.Error = outcome.Message
	}

	slog.Debug("Source searched", "source", req.SourceName, "mode", mode, "outcome", outcome.Kind, "events", len(resp.Events))

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":               "ok",
		"version":              h.version,
		"timestamp":            time.Now().In(time.Local).Format(time.RFC3339),
		"extractor_configured": h.extractorConfigured,
		"sources_loaded":       h.catalog.GetConfigCount(),
	}

	if h.manager != nil {
		health["active_runs"] = h.manager.ActiveCount()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListSources(c *gin.Context) {
	descriptors := h.catalog.GetDescriptors()

	c.JSON(http.StatusOK, gin.H{
		"sources":     descriptors,
		"total":       len(descriptors),
		"concurrency": h.catalog.GetConcurrency(),
	})
}

func (h *Handler) StartRun(c *gin.Context) {
	if !h.extractorConfigured {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "extractor not configured",
			"message": "Set an LLM provider and API key to start runs",
		})
		return
	}

	var req StartRunRequest
	// An empty body starts a run over every configured source.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "message": err.Error()})
		return
	}

	descriptors := h.catalog.GetDescriptors()
	if len(req.Sources) > 0 {
		selected, err := h.catalog.Select(req.Sources)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sources", "message": err.Error()})
			return
		}
		descriptors = selected
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = h.catalog.GetConcurrency()
	}

	run := h.manager.Start(descriptors, concurrency)

	c.Header("Location", "/api/runs/"+run.ID)
	c.JSON(http.StatusAccepted, run.Snapshot())
}

func (h *Handler) ListRuns(c *gin.Context) {
	snapshots := h.manager.List()

	c.JSON(http.StatusOK, gin.H{
		"runs":  snapshots,
		"total": len(snapshots),
	})
}

func (h *Handler) GetRun(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, run.Snapshot())
}

func (h *Handler) StopRun(c *gin.Context) {
	run, err := h.manager.Stop(c.Param("id"))
	if err != nil {
		h.runError(c, err)
		return
	}

	slog.Info("Run stopped via API", "run_id", run.ID)

	c.JSON(http.StatusOK, run.Snapshot())
}

func (h *Handler) ListArchivedRuns(c *gin.Context) {
	limit := defaultArchiveLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := h.archive.ListRuns(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_runs", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	result := make([]ArchivedRun, 0, len(records))
	for _, record := range records {
		result = append(result, toArchivedRun(record, false))
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  result,
		"total": len(result),
	})
}

func (h *Handler) GetArchivedRun(c *gin.Context) {
	id := c.Param("id")

	record, err := h.archive.GetRun(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_run", "run_id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, toArchivedRun(*record, true))
}

func (h *Handler) lookupRun(c *gin.Context) (*runs.Run, bool) {
	run, err := h.manager.Get(c.Param("id"))
	if err != nil {
		h.runError(c, err)
		return nil, false
	}
	return run, true
}

func (h *Handler) runError(c *gin.Context, err error) {
	if errors.Is(err, runs.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	slog.Error("Run lookup failed", "run_id", c.Param("id"), "error", err)
	c.Status(http.StatusInternalServerError)
}

func toArchivedRun(record database.Run, detailed bool) ArchivedRun {
	result := ArchivedRun{
		ID:          record.ID,
		State:       record.State,
		Concurrency: record.Concurrency,
		Total:       record.Total,
		Completed:   record.Completed,
		Failed:      record.Failed,
		Pending:     record.Pending,
		EventCount:  record.EventCount,
		CreatedAt:   record.CreatedAt.Format(time.RFC3339),
	}

	if record.FinishedAt != nil {
		result.FinishedAt = record.FinishedAt.Format(time.RFC3339)
	}

	if !detailed {
		return result
	}

	result.Warnings = record.Warnings
	result.Events = record.Events
	for _, status := range record.Statuses {
		result.Statuses = append(result.Statuses, archivedSourceState{
			ID:         status.ID,
			Name:       status.DisplayName,
			State:      string(status.State),
			EventCount: status.EventCount,
			Message:    status.Message,
		})
	}

	return result
}
