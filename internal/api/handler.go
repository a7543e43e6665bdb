package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/prasenjit/go-replay/internal/bundle"
	"github.com/prasenjit/go-replay/internal/matching"
	"github.com/prasenjit/go-replay/internal/models"
	"github.com/prasenjit/go-replay/internal/parser"
	"github.com/prasenjit/go-replay/internal/replay"
	"github.com/prasenjit/go-replay/internal/stats"
	"github.com/prasenjit/go-replay/internal/storage"
	"github.com/prasenjit/go-replay/internal/tracing"
)

// Handler handles admin API requests
type Handler struct {
	store          storage.Storage
	statsCollector *stats.Collector
	tracingService *tracing.Service
	replayEngine   *replay.Engine
	parser         *parser.Parser
	logger         logrus.FieldLogger
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage, statsCollector *stats.Collector, tracingService *tracing.Service, replayEngine *replay.Engine, logger logrus.FieldLogger) *Handler {
	return &Handler{
		store:          store,
		statsCollector: statsCollector,
		tracingService: tracingService,
		replayEngine:   replayEngine,
		parser:         parser.NewParser(),
		logger:         logger.WithField("component", "api"),
	}
}

// storeError maps storage errors to HTTP statuses
func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// reload recompiles the replay rules after a mutation
func (h *Handler) reload() {
	if err := h.replayEngine.Reload(); err != nil {
		h.logger.WithError(err).Error("failed to reload replay rules")
	}
}

// ListPolicies returns all policies in registration order
func (h *Handler) ListPolicies(c *gin.Context) {
	policies, err := h.store.GetAllPolicies()
	if err != nil {
		storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, policies)
}

// CreatePolicy creates a new policy
func (h *Handler) CreatePolicy(c *gin.Context) {
	var policy models.MatchingPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := policy.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}
	now := time.Now()
	policy.CreatedAt = now
	policy.UpdatedAt = now

	if err := h.store.CreatePolicy(&policy); err != nil {
		storeError(c, err)
		return
	}

	h.reload()

	c.JSON(http.StatusCreated, policy)
}

// GetPolicy returns a single policy
func (h *Handler) GetPolicy(c *gin.Context) {
	policy, err := h.store.GetPolicy(c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, policy)
}

// UpdatePolicy replaces a policy, keeping its ID and registration time
func (h *Handler) UpdatePolicy(c *gin.Context) {
	existing, err := h.store.GetPolicy(c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}

	var policy models.MatchingPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := policy.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy.ID = existing.ID
	policy.CreatedAt = existing.CreatedAt
	policy.UpdatedAt = time.Now()

	if err := h.store.UpdatePolicy(&policy); err != nil {
		storeError(c, err)
		return
	}

	h.reload()

	c.JSON(http.StatusOK, policy)
}

// DeletePolicy deletes a policy
func (h *Handler) DeletePolicy(c *gin.Context) {
	if err := h.store.DeletePolicy(c.Param("id")); err != nil {
		storeError(c, err)
		return
	}

	h.reload()

	c.JSON(http.StatusOK, gin.H{"message": "Policy deleted"})
}

// EnablePolicy enables a policy
func (h *Handler) EnablePolicy(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisablePolicy disables a policy
func (h *Handler) DisablePolicy(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c *gin.Context, enabled bool) {
	policy, err := h.store.GetPolicy(c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}

	updated := *policy
	updated.Enabled = enabled
	updated.UpdatedAt = time.Now()

	if err := h.store.UpdatePolicy(&updated); err != nil {
		storeError(c, err)
		return
	}

	h.reload()

	c.JSON(http.StatusOK, updated)
}

// UpdatePolicyPriority updates the priority of a policy
func (h *Handler) UpdatePolicyPriority(c *gin.Context) {
	policy, err := h.store.GetPolicy(c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}

	var input struct {
		Priority *int `json:"priority"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Priority == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority is required"})
		return
	}

	updated := *policy
	updated.Priority = *input.Priority
	updated.UpdatedAt = time.Now()

	if err := h.store.UpdatePolicy(&updated); err != nil {
		storeError(c, err)
		return
	}

	h.reload()

	c.JSON(http.StatusOK, updated)
}

// GetClassification returns the endpoint classification config
func (h *Handler) GetClassification(c *gin.Context) {
	cfg, err := h.store.GetClassification()
	if err != nil {
		storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// UpdateClassification replaces the endpoint classification config
func (h *Handler) UpdateClassification(c *gin.Context) {
	var cfg models.EndpointClassificationConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if cfg.Fallback == "" {
		cfg.Fallback = models.DefaultFallbackType
	}

	if err := h.store.SaveClassification(&cfg); err != nil {
		storeError(c, err)
		return
	}

	h.reload()

	c.JSON(http.StatusOK, gin.H{
		"classification": cfg,
		"errors":         h.replayEngine.Classifier().Errors(),
	})
}

// GetDefaults returns the global matching defaults
func (h *Handler) GetDefaults(c *gin.Context) {
	defaults, err := h.store.GetDefaults()
	if err != nil {
		storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, defaults)
}

// UpdateDefaults replaces the global matching defaults
func (h *Handler) UpdateDefaults(c *gin.Context) {
	var defaults models.GlobalDefaults
	if err := c.ShouldBindJSON(&defaults); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := defaults.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defaults.Replay.Mode = models.ModeReplay
	defaults.Recording.Mode = models.ModeRecording

	if err := h.store.SaveDefaults(&defaults); err != nil {
		storeError(c, err)
		return
	}

	h.reload()

	c.JSON(http.StatusOK, h.replayEngine.Resolver().Defaults())
}

// GetRuleErrors returns the rules disabled by the last reload
func (h *Handler) GetRuleErrors(c *gin.Context) {
	errs := make([]models.ConfigError, 0)
	errs = append(errs, h.replayEngine.Classifier().Errors()...)
	errs = append(errs, h.replayEngine.Resolver().Errors()...)

	c.JSON(http.StatusOK, errs)
}

// ListExchanges returns recorded exchanges, optionally for one endpoint
func (h *Handler) ListExchanges(c *gin.Context) {
	method, path := c.Query("method"), c.Query("path")

	var exchanges []*models.CandidateExchange
	var err error
	if method != "" && path != "" {
		exchanges, err = h.store.GetExchangesByEndpoint(method, path)
	} else {
		exchanges, err = h.store.GetAllExchanges()
	}
	if err != nil {
		storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, exchanges)
}

// CreateExchange stores a recorded exchange
func (h *Handler) CreateExchange(c *gin.Context) {
	var exchange models.CandidateExchange
	if err := c.ShouldBindJSON(&exchange); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if exchange.ID == "" {
		exchange.ID = uuid.New().String()
	}
	exchange.Method = strings.ToUpper(exchange.Method)
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = time.Now()
	}
	if err := exchange.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.CreateExchange(&exchange); err != nil {
		storeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, exchange)
}

// GetExchange returns a single exchange
func (h *Handler) GetExchange(c *gin.Context) {
	exchange, err := h.store.GetExchange(c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, exchange)
}

// DeleteExchange deletes an exchange
func (h *Handler) DeleteExchange(c *gin.Context) {
	if err := h.store.DeleteExchange(c.Param("id")); err != nil {
		storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Exchange deleted"})
}

// Classify classifies a path with the active classification rules
func (h *Handler) Classify(c *gin.Context) {
	var input struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.replayEngine.Classifier().Classify(input.Path))
}

// Resolve returns the effective policy for an endpoint, method and mode
func (h *Handler) Resolve(c *gin.Context) {
	var input struct {
		Endpoint string      `json:"endpoint" binding:"required"`
		Method   string      `json:"method"`
		Mode     models.Mode `json:"mode"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.Mode == "" {
		input.Mode = models.ModeReplay
	}
	if !input.Mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be replay, recording or both"})
		return
	}

	c.JSON(http.StatusOK, h.replayEngine.Resolver().Resolve(input.Endpoint, input.Method, input.Mode))
}

// Match runs candidate selection without serving or recording anything.
// Candidates default to the stored exchanges for the request's endpoint and
// the policy defaults to the resolved replay policy.
func (h *Handler) Match(c *gin.Context) {
	var input struct {
		Request    models.RequestDescriptor    `json:"request"`
		Candidates []*models.CandidateExchange `json:"candidates"`
		Policy     *models.MatchingPolicy      `json:"policy"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := input.Request
	if req.Method == "" || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request method and path are required"})
		return
	}
	req.Method = strings.ToUpper(req.Method)

	policy := h.replayEngine.Resolver().Resolve(req.Path, req.Method, models.ModeReplay)
	if input.Policy != nil {
		policy = *input.Policy
	}

	candidates := input.Candidates
	if candidates == nil {
		stored, err := h.store.GetExchangesByEndpoint(req.Method, req.Path)
		if err != nil {
			storeError(c, err)
			return
		}
		candidates = stored
	}

	c.JSON(http.StatusOK, gin.H{
		"policy":  policy,
		"outcome": matching.FindBestMatch(req, candidates, policy),
	})
}

// Export returns the replay rules as a YAML or JSON bundle
func (h *Handler) Export(c *gin.Context) {
	format, err := bundle.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := bundle.Export(h.store)
	if err != nil {
		storeError(c, err)
		return
	}

	contentType := "application/yaml"
	if format == bundle.FormatJSON {
		contentType = "application/json"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=replay-rules."+string(format))
	c.Status(http.StatusOK)
	if err := bundle.Encode(c.Writer, b, format); err != nil {
		h.logger.WithError(err).Error("failed to encode bundle")
	}
}

// Import loads a YAML or JSON bundle. ?replace=true drops existing policies first.
func (h *Handler) Import(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	format := bundle.DetectFormat(data)
	if f := c.Query("format"); f != "" {
		if format, err = bundle.ParseFormat(f); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	replace, _ := strconv.ParseBool(c.Query("replace"))

	b, skipped, err := bundle.Decode(data, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := bundle.Import(h.store, b, replace)
	if err != nil {
		if result == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		storeError(c, err)
		return
	}
	result.Errors = append(skipped, result.Errors...)

	h.reload()

	h.logger.WithFields(logrus.Fields{
		"created": result.Created,
		"updated": result.Updated,
		"deleted": result.Deleted,
		"skipped": len(result.Errors),
	}).Info("bundle imported")

	c.JSON(http.StatusOK, result)
}

// ImportOpenAPI seeds policies, a secure type rule and example recordings
// from an OpenAPI 3 document
func (h *Handler) ImportOpenAPI(c *gin.Context) {
	var input struct {
		Content  string `json:"content" binding:"required"`
		BasePath string `json:"basePath"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	parsed, err := h.parser.Parse(input.Content, input.BasePath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OpenAPI spec: " + err.Error()})
		return
	}

	b := &bundle.Bundle{Version: bundle.CurrentVersion, Policies: parsed.Policies}
	if parsed.SecureType != nil {
		cfg, err := h.store.GetClassification()
		if err != nil {
			storeError(c, err)
			return
		}
		b.Classification = mergeTypeRule(cfg, *parsed.SecureType)
	}

	result, err := bundle.Import(h.store, b, false)
	if err != nil {
		storeError(c, err)
		return
	}

	recorded := 0
	for _, ex := range parsed.Exchanges {
		if err := h.store.CreateExchange(ex); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			storeError(c, err)
			return
		}
		recorded++
	}

	h.reload()

	c.JSON(http.StatusCreated, gin.H{
		"title":     parsed.Title,
		"version":   parsed.Version,
		"created":   result.Created,
		"updated":   result.Updated,
		"exchanges": recorded,
		"errors":    result.Errors,
	})
}

// mergeTypeRule returns a copy of cfg with rule added, or with its patterns
// appended to an existing rule of the same name
func mergeTypeRule(cfg *models.EndpointClassificationConfig, rule models.EndpointTypeRule) *models.EndpointClassificationConfig {
	out := &models.EndpointClassificationConfig{
		Types:    make([]models.EndpointTypeRule, 0, len(cfg.Types)+1),
		Tags:     cfg.Tags,
		Fallback: cfg.Fallback,
	}

	merged := false
	for _, existing := range cfg.Types {
		if existing.Name == rule.Name {
			seen := make(map[string]bool)
			patterns := make([]string, 0, len(existing.Patterns)+len(rule.Patterns))
			for _, p := range append(append([]string{}, existing.Patterns...), rule.Patterns...) {
				if !seen[p] {
					seen[p] = true
					patterns = append(patterns, p)
				}
			}
			existing.Patterns = patterns
			merged = true
		}
		out.Types = append(out.Types, existing)
	}
	if !merged {
		out.Types = append(out.Types, rule)
	}
	if out.Tags == nil {
		out.Tags = make([]models.EndpointTagRule, 0)
	}
	return out
}

// GetGlobalStats returns global decision statistics
func (h *Handler) GetGlobalStats(c *gin.Context) {
	policies, _ := h.store.GetAllPolicies()
	exchanges, _ := h.store.GetAllExchanges()

	c.JSON(http.StatusOK, h.statsCollector.GetGlobalStats(len(policies), len(exchanges)))
}

// GetEndpointStats returns statistics for one method and path
func (h *Handler) GetEndpointStats(c *gin.Context) {
	method, path := strings.ToUpper(c.Query("method")), c.Query("path")
	if method == "" || path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "method and path are required"})
		return
	}

	stat := h.statsCollector.GetEndpointStats(method, path)
	if stat == nil {
		c.JSON(http.StatusOK, gin.H{"message": "No statistics available"})
		return
	}

	c.JSON(http.StatusOK, stat)
}

// ResetStats resets all statistics
func (h *Handler) ResetStats(c *gin.Context) {
	h.statsCollector.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Statistics reset"})
}

// ListTraces returns decision traces, newest first
func (h *Handler) ListTraces(c *gin.Context) {
	filter, err := tracing.ParseFilter(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.tracingService.GetTraces(filter))
}

// GetTrace returns a single trace
func (h *Handler) GetTrace(c *gin.Context) {
	trace := h.tracingService.GetTrace(c.Param("id"))
	if trace == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trace not found"})
		return
	}

	c.JSON(http.StatusOK, trace)
}

// ClearTraces clears all traces
func (h *Handler) ClearTraces(c *gin.Context) {
	h.tracingService.ClearTraces()
	c.JSON(http.StatusOK, gin.H{"message": "Traces cleared"})
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"tracing":   h.tracingService.GetStats(),
	})
}
