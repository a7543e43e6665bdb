// Package replay answers live requests from recorded exchanges.
package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prasenjit/go-replay/internal/classify"
	"github.com/prasenjit/go-replay/internal/config"
	"github.com/prasenjit/go-replay/internal/logging"
	"github.com/prasenjit/go-replay/internal/matching"
	"github.com/prasenjit/go-replay/internal/models"
	"github.com/prasenjit/go-replay/internal/resolve"
	"github.com/prasenjit/go-replay/internal/stats"
	"github.com/prasenjit/go-replay/internal/storage"
	"github.com/prasenjit/go-replay/internal/tracing"
)

// Response headers set on every replayed or passed-through request
const (
	HeaderOutcome  = "X-Replay-Outcome"
	HeaderExchange = "X-Replay-Exchange"
	HeaderScore    = "X-Replay-Score"

	OutcomeReplayed    = "replayed"
	OutcomePassthrough = "passthrough"
)

// ErrBodyTooLarge is returned by Describe when the request body exceeds the configured limit
var ErrBodyTooLarge = errors.New("request body too large")

// Options configures an Engine
type Options struct {
	Logger logrus.FieldLogger
	Replay config.ReplayConfig
}

// Decision is the full result of deciding how to answer one request
type Decision struct {
	Request        models.RequestDescriptor
	Classification models.Classification
	Policy         models.MatchingPolicy
	Outcome        models.MatchOutcome
	Duration       time.Duration
}

// Engine serves recorded responses for live requests
type Engine struct {
	store          storage.Storage
	statsCollector *stats.Collector
	tracingService *tracing.Service
	logger         logrus.FieldLogger
	cfg            config.ReplayConfig

	mu         sync.RWMutex
	classifier *classify.Classifier
	resolver   *resolve.Resolver
}

// NewEngine creates a new replay engine and loads its rules from store
func NewEngine(store storage.Storage, statsCollector *stats.Collector, tracingService *tracing.Service, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	cfg := opts.Replay
	defaults := config.Default().Replay
	if cfg.VersionHeader == "" {
		cfg.VersionHeader = defaults.VersionHeader
	}
	if cfg.PlatformHeader == "" {
		cfg.PlatformHeader = defaults.PlatformHeader
	}
	if cfg.LanguageHeader == "" {
		cfg.LanguageHeader = defaults.LanguageHeader
	}
	if cfg.EnvironmentHeader == "" {
		cfg.EnvironmentHeader = defaults.EnvironmentHeader
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}

	e := &Engine{
		store:          store,
		statsCollector: statsCollector,
		tracingService: tracingService,
		logger:         logger.WithField("component", "replay"),
		cfg:            cfg,
		classifier:     classify.Compile(models.DefaultClassification()),
		resolver:       resolve.Compile(nil, nil),
	}

	if err := e.Reload(); err != nil {
		e.logger.WithError(err).Error("failed to load replay rules")
	}

	return e
}

// Reload recompiles the classifier and resolver from storage. Rule errors
// are logged and the offending rules stay disabled; a storage error keeps
// the previous rules in place.
func (e *Engine) Reload() error {
	classification, err := e.store.GetClassification()
	if err != nil {
		return fmt.Errorf("load classification: %w", err)
	}
	policies, err := e.store.GetAllPolicies()
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}
	defaults, err := e.store.GetDefaults()
	if err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	classifier := classify.Compile(classification)
	resolver := resolve.Compile(policies, defaults)

	ruleErrs := make([]models.ConfigError, 0, len(classifier.Errors())+len(resolver.Errors()))
	ruleErrs = append(ruleErrs, classifier.Errors()...)
	ruleErrs = append(ruleErrs, resolver.Errors()...)
	for _, ce := range ruleErrs {
		e.logger.WithFields(logrus.Fields{
			"kind": ce.Kind,
			"rule": ce.Rule,
		}).WithError(ce.Err).Warn("rule disabled")
	}

	e.mu.Lock()
	e.classifier = classifier
	e.resolver = resolver
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"policies":   len(policies),
		"types":      len(classification.Types),
		"tags":       len(classification.Tags),
		"ruleErrors": len(ruleErrs),
	}).Info("replay rules loaded")

	return nil
}

// Classifier returns the currently compiled classifier
func (e *Engine) Classifier() *classify.Classifier {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.classifier
}

// Resolver returns the currently compiled resolver
func (e *Engine) Resolver() *resolve.Resolver {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolver
}

// Describe derives the matchable dimensions of r. The body is consumed.
func (e *Engine) Describe(r *http.Request) (models.RequestDescriptor, error) {
	req := models.RequestDescriptor{
		Method:      strings.ToUpper(r.Method),
		Path:        r.URL.Path,
		Version:     strings.TrimSpace(r.Header.Get(e.cfg.VersionHeader)),
		Platform:    strings.TrimSpace(r.Header.Get(e.cfg.PlatformHeader)),
		Language:    primaryLanguage(r.Header.Get(e.cfg.LanguageHeader)),
		Environment: strings.TrimSpace(r.Header.Get(e.cfg.EnvironmentHeader)),
		Headers:     firstValues(r.Header),
		QueryParams: firstValues(r.URL.Query()),
	}
	if req.Environment == "" {
		req.Environment = e.cfg.DefaultEnvironment
	}

	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, e.cfg.MaxBodyBytes+1))
		if err != nil {
			return req, fmt.Errorf("read request body: %w", err)
		}
		if int64(len(body)) > e.cfg.MaxBodyBytes {
			return req, ErrBodyTooLarge
		}
		req.Body = string(body)
	}

	return req, nil
}

// primaryLanguage returns the first tag of an Accept-Language value:
// "en-US,en;q=0.9" -> "en-US"
func primaryLanguage(header string) string {
	tag := header
	if i := strings.IndexByte(tag, ','); i >= 0 {
		tag = tag[:i]
	}
	if i := strings.IndexByte(tag, ';'); i >= 0 {
		tag = tag[:i]
	}
	tag = strings.TrimSpace(tag)
	if tag == "*" {
		return ""
	}
	return tag
}

func firstValues(values map[string][]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// Decide classifies the request, resolves its replay policy and selects
// the best recorded exchange. The decision is recorded in stats and traces.
func (e *Engine) Decide(req models.RequestDescriptor) (Decision, error) {
	d, err := e.evaluate(req)
	if err != nil {
		return d, err
	}
	e.record(d, decisionStatus(d))
	return d, nil
}

func (e *Engine) evaluate(req models.RequestDescriptor) (Decision, error) {
	start := time.Now()

	e.mu.RLock()
	classifier, resolver := e.classifier, e.resolver
	e.mu.RUnlock()

	d := Decision{
		Request:        req,
		Classification: classifier.Classify(req.Path),
		Policy:         resolver.Resolve(req.Path, req.Method, models.ModeReplay),
	}

	candidates, err := e.store.GetExchangesByEndpoint(req.Method, req.Path)
	if err != nil {
		return d, fmt.Errorf("load recordings for %s %s: %w", req.Method, req.Path, err)
	}

	d.Outcome = matching.FindBestMatch(req, candidates, d.Policy)
	d.Duration = time.Since(start)
	return d, nil
}

func decisionStatus(d Decision) int {
	if d.Outcome.Matched() {
		return d.Outcome.Selected.ResponseStatus
	}
	return http.StatusNotFound
}

func (e *Engine) record(d Decision, status int) {
	e.statsCollector.RecordDecision(stats.Decision{
		Method:       d.Request.Method,
		Path:         d.Request.Path,
		EndpointType: d.Classification.Type,
		Matched:      d.Outcome.Matched(),
		Score:        d.Outcome.Score,
		Considered:   d.Outcome.Considered,
		Rejected:     len(d.Outcome.Rejections),
		Duration:     d.Duration,
	})

	trace := &models.DecisionTrace{
		Timestamp:      time.Now().Add(-d.Duration),
		Duration:       d.Duration.Nanoseconds(),
		Request:        d.Request,
		Classification: d.Classification,
		Policy:         d.Policy,
		Matched:        d.Outcome.Matched(),
		Score:          d.Outcome.Score,
		Considered:     d.Outcome.Considered,
		Rejections:     d.Outcome.Rejections,
		ResponseStatus: status,
	}
	if d.Outcome.Matched() {
		trace.SelectedID = d.Outcome.Selected.ID
	}
	e.tracingService.RecordTrace(trace)
}

// Handler returns an http.Handler for the replay engine
func (e *Engine) Handler() http.Handler {
	return http.HandlerFunc(e.ServeHTTP)
}

// ServeHTTP answers the request with the best recorded response
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := e.Describe(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return
	}

	d, err := e.evaluate(req)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.Path,
		}).Error("replay decision failed")
		writeError(w, http.StatusInternalServerError, "failed to load recordings")
		return
	}

	log := e.logger.WithFields(logrus.Fields{
		"method":     req.Method,
		"path":       req.Path,
		"type":       d.Classification.Type,
		"considered": d.Outcome.Considered,
		"rejected":   len(d.Outcome.Rejections),
	})

	if !d.Outcome.Matched() {
		w.Header().Set(HeaderOutcome, OutcomePassthrough)
		writeError(w, http.StatusNotFound, "no recording found")
		e.record(d, http.StatusNotFound)
		log.Debug("no recording found")
		return
	}

	selected := d.Outcome.Selected
	for key, value := range selected.ResponseHeaders {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" && selected.ResponseBody != "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set(HeaderOutcome, OutcomeReplayed)
	w.Header().Set(HeaderExchange, selected.ID)
	w.Header().Set(HeaderScore, strconv.FormatFloat(d.Outcome.Score, 'f', -1, 64))

	w.WriteHeader(selected.ResponseStatus)
	if selected.ResponseBody != "" {
		w.Write([]byte(selected.ResponseBody))
	}

	e.record(d, selected.ResponseStatus)
	log.WithFields(logrus.Fields{
		"exchange": selected.ID,
		"score":    d.Outcome.Score,
	}).Debug("replayed recording")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
