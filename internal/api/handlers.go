// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/senushidinara/DreamStruct/internal/config"
	apperrors "github.com/senushidinara/DreamStruct/internal/errors"
	"github.com/senushidinara/DreamStruct/internal/llm"
	"github.com/senushidinara/DreamStruct/internal/models"
	"github.com/senushidinara/DreamStruct/internal/render"
	"github.com/senushidinara/DreamStruct/internal/services"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

// Handler serves the HTTP API.
type Handler struct {
	Sessions *services.SessionService
	Exporter *services.ExportService
	Gallery  *services.GalleryService
	LLM      *services.LLMService
	Metrics  *utils.DesignMetrics
	WS       *WebSocketManager

	resp          *ResponseHelper
	htmlTemplates bool
}

// GenerateRequest is the body of a generate call.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Theme  string `json:"theme"`
}

// UpdateLLMConfigRequest replaces the provider settings.
type UpdateLLMConfigRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Config   map[string]string `json:"config" binding:"required"`
}

var (
	sessionErrorCodes = map[apperrors.ErrorType]string{
		apperrors.ErrorTypeNotFound: ErrorSessionNotFound,
	}
	generateErrorCodes = map[apperrors.ErrorType]string{
		apperrors.ErrorTypeNotFound: ErrorSessionNotFound,
		apperrors.ErrorTypeConflict: ErrorGenerationBusy,
	}
	analyzeErrorCodes = map[apperrors.ErrorType]string{
		apperrors.ErrorTypeNotFound: ErrorSessionNotFound,
		apperrors.ErrorTypeConflict: ErrorAnalysisConflict,
	}
	designErrorCodes = map[apperrors.ErrorType]string{
		apperrors.ErrorTypeNotFound: ErrorDesignNotFound,
	}
	exportErrorCodes = map[apperrors.ErrorType]string{
		apperrors.ErrorTypeNotFound:   ErrorDesignNotFound,
		apperrors.ErrorTypeValidation: ErrorExportFormatInvalid,
		apperrors.ErrorTypeError:      ErrorExportFailed,
	}
	galleryErrorCodes = map[apperrors.ErrorType]string{
		apperrors.ErrorTypeNotFound: ErrorGalleryNotFound,
	}
)

// NewHandler wires the handler to its services and subscribes the WebSocket
// manager to session snapshots.
func NewHandler(
	sessions *services.SessionService,
	exporter *services.ExportService,
	gallery *services.GalleryService,
	llmService *services.LLMService,
	metrics *utils.DesignMetrics,
) *Handler {
	if metrics == nil {
		metrics = utils.NewDesignMetrics()
	}
	h := &Handler{
		Sessions: sessions,
		Exporter: exporter,
		Gallery:  gallery,
		LLM:      llmService,
		Metrics:  metrics,
		WS:       NewWebSocketManager(),
		resp:     NewResponseHelper(),
	}
	sessions.Subscribe(h.WS.PublishSnapshot)
	return h
}

// IndexPage serves the viewer.
func (h *Handler) IndexPage(c *gin.Context) {
	if !h.htmlTemplates {
		h.resp.Success(c, gin.H{"name": "DreamStruct", "themes": models.ThemeCatalog()})
		return
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":  "DreamStruct",
		"themes": models.ThemeCatalog(),
	})
}

// GetThemes lists the available themes.
func (h *Handler) GetThemes(c *gin.Context) {
	h.resp.Success(c, models.ThemeCatalog())
}

func (h *Handler) CreateSession(c *gin.Context) {
	view, err := h.Sessions.CreateSession()
	if err != nil {
		h.resp.AppError(c, err, sessionErrorCodes)
		return
	}
	h.resp.Created(c, view)
}

func (h *Handler) ListSessions(c *gin.Context) {
	h.resp.Success(c, h.Sessions.ListSessions())
}

func (h *Handler) GetSession(c *gin.Context) {
	view, err := h.Sessions.GetSession(c.Param("id"))
	if err != nil {
		h.resp.AppError(c, err, sessionErrorCodes)
		return
	}
	h.resp.Success(c, view)
}

// ResetSession clears the design and analysis of a session.
func (h *Handler) ResetSession(c *gin.Context) {
	view, err := h.Sessions.ResetSession(c.Param("id"))
	if err != nil {
		h.resp.AppError(c, err, sessionErrorCodes)
		return
	}
	h.resp.Success(c, view)
}

// Generate runs a design generation. A failed generation still answers 200
// with the snapshot carrying the error.
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, ErrorBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.resp.BadRequest(c, ErrorPromptEmpty, "prompt must not be empty")
		return
	}
	if _, err := models.ParseTheme(req.Theme); err != nil {
		h.resp.BadRequest(c, ErrorThemeInvalid, err.Error())
		return
	}

	view, err := h.Sessions.Generate(c.Request.Context(), c.Param("id"), req.Prompt, req.Theme)
	if err != nil {
		h.resp.AppError(c, err, generateErrorCodes)
		return
	}
	h.resp.Success(c, view)
}

// Analyze runs the feasibility analysis of the current design.
func (h *Handler) Analyze(c *gin.Context) {
	view, err := h.Sessions.Analyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.resp.AppError(c, err, analyzeErrorCodes)
		return
	}
	h.resp.Success(c, view)
}

// GetScene returns the render description of the current design.
func (h *Handler) GetScene(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Sessions.GetSession(id); err != nil {
		h.resp.AppError(c, err, sessionErrorCodes)
		return
	}
	view, err := h.Sessions.CurrentDesign(id)
	if err != nil {
		h.resp.AppError(c, err, designErrorCodes)
		return
	}
	h.resp.Success(c, render.BuildScene(view.State.Design.Structure))
}

// ExportSession downloads the design. ?format=json|yaml|markdown, and
// ?download=false returns the content inside the envelope instead.
func (h *Handler) ExportSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Sessions.GetSession(id); err != nil {
		h.resp.AppError(c, err, sessionErrorCodes)
		return
	}

	result, err := h.Exporter.ExportSession(id, c.DefaultQuery("format", services.FormatJSON))
	if err != nil {
		h.resp.AppError(c, err, exportErrorCodes)
		return
	}

	if c.DefaultQuery("download", "true") == "false" {
		h.resp.Success(c, result)
		return
	}
	h.resp.FileResponse(c, result.Content, result.FileName, result.ContentType)
}

// Simulate is the placeholder for the AR walkthrough.
func (h *Handler) Simulate(c *gin.Context) {
	h.resp.Success(c, gin.H{"notice": models.SimulationNotice}, models.SimulationNotice)
}

func (h *Handler) ListGallery(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.resp.BadRequest(c, ErrorBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.Gallery.List(c.Request.Context(), limit)
	if err != nil {
		h.resp.AppError(c, err, galleryErrorCodes)
		return
	}
	h.resp.Success(c, entries)
}

func (h *Handler) GetGalleryEntry(c *gin.Context) {
	entry, err := h.Gallery.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.resp.AppError(c, err, galleryErrorCodes)
		return
	}
	h.resp.Success(c, entry)
}

// GetLLMStatus reports whether a model call could be made right now.
func (h *Handler) GetLLMStatus(c *gin.Context) {
	ready, state := h.LLM.GetProviderStatus()
	cfg := config.GetCurrentConfig()

	model := cfg.LLMConfig["default_model"]
	if model == "" {
		model = config.DefaultModel
	}

	h.resp.Success(c, gin.H{
		"ready":    ready,
		"status":   state,
		"provider": h.LLM.ProviderName(),
		"config": gin.H{
			"provider":    cfg.LLMProvider,
			"model":       model,
			"has_api_key": config.ResolveAPIKey() != "",
		},
	})
}

// GetLLMModels lists the models of ?provider=, defaulting to the configured one.
func (h *Handler) GetLLMModels(c *gin.Context) {
	provider := c.DefaultQuery("provider", config.GetCurrentConfig().LLMProvider)
	if !contains(llm.ListProviders(), provider) {
		h.resp.BadRequest(c, ErrorBadRequest, "unsupported LLM provider: "+provider)
		return
	}

	available := llm.GetSupportedModelsForProvider(provider)
	h.resp.Success(c, gin.H{
		"provider": provider,
		"models":   available,
		"count":    len(available),
	})
}

// UpdateLLMConfig replaces and persists the provider settings. The next
// model call picks them up.
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.resp.BadRequest(c, ErrorBadRequest, "invalid request body", err.Error())
		return
	}
	if !contains(llm.ListProviders(), req.Provider) {
		h.resp.BadRequest(c, ErrorBadRequest, "unsupported LLM provider: "+req.Provider)
		return
	}

	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		if errors.Is(err, config.ErrUnsupportedLLMSetting) {
			h.resp.BadRequest(c, ErrorBadRequest, err.Error())
			return
		}
		h.resp.InternalError(c, "failed to save LLM config", err.Error())
		return
	}

	ready, state := h.LLM.GetProviderStatus()
	if !ready {
		h.resp.Error(c, http.StatusServiceUnavailable, ErrorLLMServiceUnavailable, "config saved but LLM service not ready", state)
		return
	}
	h.resp.Success(c, gin.H{"provider": req.Provider, "ready": ready}, "LLM config updated")
}

// GetMetrics returns counters, gauges and latency histograms.
func (h *Handler) GetMetrics(c *gin.Context) {
	h.resp.Success(c, h.Metrics.Collector().GetMetrics())
}

// Health is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	ready, _ := h.LLM.GetProviderStatus()
	h.resp.Success(c, gin.H{"status": "ok", "llm_ready": ready})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
