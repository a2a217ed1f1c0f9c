package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/cost-reconciler/internal/application/service"
	"github.com/garyjia/cost-reconciler/pkg/utils"
)

// HealthFunc reports overall health and per-component details
type HealthFunc func(ctx context.Context) (bool, interface{})

// Services groups the application services the handlers call
type Services struct {
	Matching     service.MatchingService
	Mapping      service.MappingService
	CostTracking service.CostTrackingService
	Ingestion    service.IngestionService
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	health   HealthFunc
	logger   Logger
}

// NewHandlers creates a new Handlers instance. health may be nil.
func NewHandlers(services Services, health HealthFunc, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		health:   health,
		logger:   logger,
	}
}

// Response is the envelope of every endpoint except the engine results
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	healthy, details := true, interface{}(nil)
	if h.health != nil {
		healthy, details = h.health(c.Request.Context())
	}

	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: details,
	}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, Response{Success: healthy, Data: resp})
}

// CreateProject handles POST /api/projects
func (h *Handlers) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if !h.bind(c, &req) {
		return
	}

	project, err := h.services.Ingestion.CreateProject(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err, "failed to create project")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: project})
}

// MatchProject handles POST /api/projects/:id/match
func (h *Handlers) MatchProject(c *gin.Context) {
	projectID, ok := h.pathID(c, "id", "project")
	if !ok {
		return
	}

	var body MatchBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, err)
		return
	}

	result, err := h.services.Matching.MatchAll(c.Request.Context(), service.MatchRequest{
		ProjectID:          projectID,
		InvoiceLineItemIDs: body.InvoiceLineItemIDs,
		Rematch:            body.Rematch,
	})
	if err != nil {
		h.fail(c, err, "matching failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCostTracking handles GET /api/projects/:id/cost-tracking
func (h *Handlers) GetCostTracking(c *gin.Context) {
	projectID, ok := h.pathID(c, "id", "project")
	if !ok {
		return
	}

	resp, err := h.services.CostTracking.ComputeProjectCostTracking(c.Request.Context(), projectID)
	if err != nil {
		h.fail(c, err, "failed to compute cost tracking")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateTrade handles POST /api/projects/:id/trades
func (h *Handlers) CreateTrade(c *gin.Context) {
	projectID, ok := h.pathID(c, "id", "project")
	if !ok {
		return
	}

	var req CreateTradeRequest
	if !h.bind(c, &req) {
		return
	}

	trade := req.toEntity(projectID)
	if err := h.services.Ingestion.CreateTrade(c.Request.Context(), trade); err != nil {
		h.fail(c, err, "failed to create trade")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: trade})
}

// DeleteEstimateLineItem handles DELETE /api/estimate-line-items/:id
func (h *Handlers) DeleteEstimateLineItem(c *gin.Context) {
	id, ok := h.pathID(c, "id", "estimate line item")
	if !ok {
		return
	}

	if err := h.services.Ingestion.DeleteEstimateLineItem(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to delete estimate line item")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// CreateInvoice handles POST /api/projects/:id/invoices
func (h *Handlers) CreateInvoice(c *gin.Context) {
	projectID, ok := h.pathID(c, "id", "project")
	if !ok {
		return
	}

	var req CreateInvoiceRequest
	if !h.bind(c, &req) {
		return
	}

	invoice := req.toEntity(projectID)
	if err := h.services.Ingestion.IngestInvoice(c.Request.Context(), invoice); err != nil {
		h.fail(c, err, "failed to ingest invoice")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: invoice})
}

// UpdateInvoiceStatus handles PATCH /api/invoices/:id/status
func (h *Handlers) UpdateInvoiceStatus(c *gin.Context) {
	id, ok := h.pathID(c, "id", "invoice")
	if !ok {
		return
	}

	var req UpdateInvoiceStatusRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.services.Ingestion.UpdateInvoiceStatus(c.Request.Context(), id, req.Status); err != nil {
		h.fail(c, err, "failed to update invoice status")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// GetInvoiceMappings handles GET /api/invoices/:id/mappings
func (h *Handlers) GetInvoiceMappings(c *gin.Context) {
	id, ok := h.pathID(c, "id", "invoice")
	if !ok {
		return
	}

	views, err := h.services.Mapping.GetMappingsForInvoice(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load mappings")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: views})
}

// AssignMapping handles PUT /api/invoice-line-items/:id/mapping
func (h *Handlers) AssignMapping(c *gin.Context) {
	id, ok := h.pathID(c, "id", "invoice line item")
	if !ok {
		return
	}

	var req AssignMappingRequest
	if !h.bind(c, &req) {
		return
	}

	mapping, err := h.services.Mapping.AssignManual(c.Request.Context(), id, req.EstimateLineItemID)
	if err != nil {
		h.fail(c, err, "failed to assign mapping")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: mapping})
}

// ClearMapping handles DELETE /api/invoice-line-items/:id/mapping
func (h *Handlers) ClearMapping(c *gin.Context) {
	id, ok := h.pathID(c, "id", "invoice line item")
	if !ok {
		return
	}

	if err := h.services.Mapping.ClearMapping(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to clear mapping")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

func (h *Handlers) pathID(c *gin.Context, param, name string) (int64, bool) {
	idStr := c.Param(param)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Error("Invalid path ID", "param", param, "value", idStr)
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid " + name + " ID"})
		return 0, false
	}
	return id, true
}

func (h *Handlers) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.badRequest(c, err)
		return false
	}
	return true
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	h.logger.Error("Invalid request body", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: utils.FormatValidationError(err)})
}

// fail maps service errors: validation 400, not found 404, anything else 500
func (h *Handlers) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error(msg, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: msg})
	}
}
