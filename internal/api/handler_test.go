package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/go-replay/internal/config"
	"github.com/prasenjit/go-replay/internal/models"
	"github.com/prasenjit/go-replay/internal/replay"
	"github.com/prasenjit/go-replay/internal/stats"
	"github.com/prasenjit/go-replay/internal/storage"
	"github.com/prasenjit/go-replay/internal/tracing"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testServer struct {
	router *Router
	store  *storage.MemoryStorage
	stats  *stats.Collector
	traces *tracing.Service
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger, _ := logtest.NewNullLogger()
	store := storage.NewMemoryStorage()
	collector := stats.NewCollector()
	tracingSvc := tracing.NewService(100, 0)
	engine := replay.NewEngine(store, collector, tracingSvc, replay.Options{
		Logger: logger,
		Replay: config.Default().Replay,
	})

	return &testServer{
		router: NewRouter(store, collector, tracingSvc, engine, logger),
		store:  store,
		stats:  collector,
		traces: tracingSvc,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *testServer) exchange(t *testing.T, id, method, path, version string, offset time.Duration) {
	t.Helper()
	require.NoError(t, s.store.CreateExchange(&models.CandidateExchange{
		ID:                id,
		RequestDescriptor: models.RequestDescriptor{Method: method, Path: path, Version: version},
		ResponseStatus:    200,
		ResponseBody:      `{"id":"` + id + `"}`,
		CreatedAt:         epoch.Add(offset),
	}))
}

func TestNewHandler(t *testing.T) {
	s := setupTestServer(t)
	require.NotNil(t, s.router.handler)
	assert.NotNil(t, s.router.handler.parser)
}

func TestListPolicies_Empty(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/_api/policies", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result []models.MatchingPolicy
	decode(t, w, &result)
	assert.Empty(t, result)
}

func TestCreatePolicy(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/_api/policies", map[string]interface{}{
		"endpointPattern": "/items",
		"method":          "GET",
		"mode":            "replay",
		"matchVersion":    "exact",
		"override":        true,
		"enabled":         true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.MatchingPolicy
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	// The engine sees the new rule immediately
	resolved := s.router.replayEngine.Resolver().Resolve("/items", "GET", models.ModeReplay)
	assert.Equal(t, models.VersionExact, resolved.MatchVersion)
}

func TestCreatePolicy_Invalid(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "{"},
		{"missing pattern", map[string]interface{}{"mode": "replay"}},
		{"unknown mode", map[string]interface{}{"endpointPattern": "/a", "mode": "sometimes"}},
		{"unknown version mode", map[string]interface{}{"endpointPattern": "/a", "mode": "replay", "matchVersion": "newest"}},
		{"bad status", map[string]interface{}{"endpointPattern": "/a", "mode": "replay", "matchResponseStatus": "7xx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/_api/policies", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreatePolicy_Conflict(t *testing.T) {
	s := setupTestServer(t)
	body := map[string]interface{}{"endpointPattern": "/items", "method": "GET", "mode": "replay", "enabled": true}

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/_api/policies", body).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/_api/policies", body).Code)
}

func TestPolicyLifecycle(t *testing.T) {
	s := setupTestServer(t)
	require.NoError(t, s.store.CreatePolicy(&models.MatchingPolicy{
		ID: "p1", EndpointPattern: "/items", Method: "GET", Mode: models.ModeReplay,
		MatchPlatform: models.PlatformExact, Override: true, Enabled: true, CreatedAt: epoch,
	}))

	w := s.do(t, http.MethodGet, "/_api/policies/p1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, "/_api/policies/p1/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	p, err := s.store.GetPolicy("p1")
	require.NoError(t, err)
	assert.False(t, p.Enabled)

	w = s.do(t, http.MethodPut, "/_api/policies/p1/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, "/_api/policies/p1/priority", map[string]int{"priority": 4})
	require.Equal(t, http.StatusOK, w.Code)
	p, err = s.store.GetPolicy("p1")
	require.NoError(t, err)
	assert.Equal(t, 4, p.Priority)
	assert.True(t, p.Enabled)

	w = s.do(t, http.MethodPut, "/_api/policies/p1/priority", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/_api/policies/p1", map[string]interface{}{
		"endpointPattern": "/items", "method": "GET", "mode": "replay", "matchLanguage": "exact", "enabled": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p, err = s.store.GetPolicy("p1")
	require.NoError(t, err)
	assert.Equal(t, models.LanguageExact, p.MatchLanguage)
	assert.True(t, p.CreatedAt.Equal(epoch), "registration time is kept")

	w = s.do(t, http.MethodDelete, "/_api/policies/p1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/_api/policies/p1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPolicy_NotFound(t *testing.T) {
	s := setupTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/_api/policies/missing"},
		{http.MethodDelete, "/_api/policies/missing"},
		{http.MethodPut, "/_api/policies/missing/enable"},
		{http.MethodPut, "/_api/policies/missing/priority"},
	} {
		w := s.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.method+" "+tc.path)
	}
}

func TestClassification(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/_api/classification", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg models.EndpointClassificationConfig
	decode(t, w, &cfg)
	assert.Equal(t, models.DefaultFallbackType, cfg.Fallback)

	w = s.do(t, http.MethodPut, "/_api/classification", map[string]interface{}{
		"types": []map[string]interface{}{
			{"name": "secure", "patterns": []string{"^/account/"}, "priority": 0},
			{"name": "broken", "patterns": []string{"("}, "priority": 1},
		},
		"tags": []map[string]interface{}{{"name": "billing", "pattern": "invoice", "color": "#f80"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Classification models.EndpointClassificationConfig `json:"classification"`
		Errors         []map[string]string                 `json:"errors"`
	}
	decode(t, w, &result)
	assert.Equal(t, models.DefaultFallbackType, result.Classification.Fallback)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "broken", result.Errors[0]["rule"])

	w = s.do(t, http.MethodPost, "/_api/classify", map[string]string{"path": "/account/invoices"})
	require.Equal(t, http.StatusOK, w.Code)
	var c models.Classification
	decode(t, w, &c)
	assert.Equal(t, "secure", c.Type)
	require.Len(t, c.Tags, 1)
	assert.Equal(t, "billing", c.Tags[0].Name)

	w = s.do(t, http.MethodGet, "/_api/rules/errors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var errs []map[string]string
	decode(t, w, &errs)
	assert.Len(t, errs, 1)
}

func TestClassification_Invalid(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPut, "/_api/classification", map[string]interface{}{
		"types": []map[string]interface{}{{"name": "", "patterns": []string{"/x"}}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/_api/classify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDefaults(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/_api/defaults", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var defaults models.GlobalDefaults
	decode(t, w, &defaults)
	assert.Equal(t, models.VersionClosest, defaults.Replay.MatchVersion)

	defaults.Replay.MatchVersion = models.VersionExact
	w = s.do(t, http.MethodPut, "/_api/defaults", defaults)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resolved := s.router.replayEngine.Resolver().Resolve("/anything", "GET", models.ModeReplay)
	assert.Equal(t, models.VersionExact, resolved.MatchVersion)

	defaults.Replay.MatchPlatform = "sometimes"
	w = s.do(t, http.MethodPut, "/_api/defaults", defaults)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExchanges(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/_api/exchanges", map[string]interface{}{
		"method":         "get",
		"path":           "/items",
		"version":        "1.0.0",
		"responseStatus": 200,
		"responseBody":   `{"ok":true}`,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.CandidateExchange
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "GET", created.Method)

	s.exchange(t, "other", "GET", "/other", "", time.Second)

	w = s.do(t, http.MethodGet, "/_api/exchanges?method=GET&path=/items", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.CandidateExchange
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	w = s.do(t, http.MethodGet, "/_api/exchanges", nil)
	decode(t, w, &list)
	assert.Len(t, list, 2)

	w = s.do(t, http.MethodGet, "/_api/exchanges/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, "/_api/exchanges/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/_api/exchanges/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/_api/exchanges", map[string]interface{}{"path": "/x", "responseStatus": 200})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/_api/exchanges", map[string]interface{}{"method": "GET", "path": "/x", "responseStatus": 42})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolve(t *testing.T) {
	s := setupTestServer(t)
	require.NoError(t, s.store.CreatePolicy(&models.MatchingPolicy{
		ID: "shared", EndpointPattern: `^/items/\d+$`, Regex: true, Mode: models.ModeBoth,
		MatchHeaders: []string{"X-Tenant"}, Override: true, Enabled: true, CreatedAt: epoch,
	}))
	require.NoError(t, s.router.replayEngine.Reload())

	w := s.do(t, http.MethodPost, "/_api/resolve", map[string]string{"endpoint": "/items/7", "method": "GET", "mode": "recording"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p models.MatchingPolicy
	decode(t, w, &p)
	assert.Equal(t, []string{"X-Tenant"}, p.MatchHeaders)
	assert.Equal(t, models.ModeRecording, p.Mode)

	w = s.do(t, http.MethodPost, "/_api/resolve", map[string]string{"endpoint": "/items/7", "mode": "never"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatch_DoesNotRecord(t *testing.T) {
	s := setupTestServer(t)
	s.exchange(t, "v1", "GET", "/items", "1.0.0", 0)
	s.exchange(t, "v2", "GET", "/items", "2.0.0", time.Second)

	w := s.do(t, http.MethodPost, "/_api/match", map[string]interface{}{
		"request": map[string]string{"method": "get", "path": "/items", "version": "2.0.1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Outcome models.MatchOutcome `json:"outcome"`
	}
	decode(t, w, &result)
	require.NotNil(t, result.Outcome.Selected)
	assert.Equal(t, "v2", result.Outcome.Selected.ID)
	assert.Equal(t, 2, result.Outcome.Considered)

	assert.Empty(t, s.traces.GetTraces(nil))
	assert.Equal(t, int64(0), s.stats.GetGlobalStats(0, 0).TotalDecisions)
}

func TestMatch_ExplicitCandidatesAndPolicy(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/_api/match", map[string]interface{}{
		"request": map[string]string{"method": "GET", "path": "/x", "platform": "ios"},
		"candidates": []map[string]interface{}{
			{"id": "android", "platform": "android", "responseStatus": 200},
		},
		"policy": map[string]interface{}{"endpointPattern": "/x", "mode": "replay", "matchPlatform": "exact"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Outcome models.MatchOutcome `json:"outcome"`
	}
	decode(t, w, &result)
	assert.Nil(t, result.Outcome.Selected)
	assert.Len(t, result.Outcome.Rejections, 1)

	w = s.do(t, http.MethodPost, "/_api/match", map[string]interface{}{"request": map[string]string{"path": "/x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportImport(t *testing.T) {
	s := setupTestServer(t)
	require.NoError(t, s.store.CreatePolicy(&models.MatchingPolicy{
		ID: "p1", EndpointPattern: "/items", Method: "GET", Mode: models.ModeReplay,
		MatchVersion: models.VersionExact, Override: true, Enabled: true, CreatedAt: epoch,
	}))

	w := s.do(t, http.MethodGet, "/_api/export?format=json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	exported := w.Body.String()

	w = s.do(t, http.MethodGet, "/_api/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "endpointPattern: /items")

	w = s.do(t, http.MethodGet, "/_api/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	target := setupTestServer(t)
	w = target.do(t, http.MethodPost, "/_api/import", exported)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Created int `json:"created"`
	}
	decode(t, w, &result)
	assert.Equal(t, 1, result.Created)

	resolved := target.router.replayEngine.Resolver().Resolve("/items", "GET", models.ModeReplay)
	assert.Equal(t, models.VersionExact, resolved.MatchVersion)

	w = target.do(t, http.MethodPost, "/_api/import?replace=true", "version: 1\npolicies: []\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	policies, err := target.store.GetAllPolicies()
	require.NoError(t, err)
	assert.Empty(t, policies)

	w = target.do(t, http.MethodPost, "/_api/import", "version: [")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

const openapiDoc = `
openapi: 3.0.0
info:
  title: Items
  version: 2.0.0
security:
  - key: []
components:
  securitySchemes:
    key:
      type: apiKey
      in: header
      name: X-Key
paths:
  /items:
    get:
      responses:
        '200':
          description: OK
          content:
            application/json:
              example: [1, 2]
  /items/{id}:
    get:
      security: []
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: string
      responses:
        '200':
          description: OK
`

func TestImportOpenAPI(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/_api/openapi/import", map[string]string{"content": openapiDoc})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result struct {
		Title     string `json:"title"`
		Created   int    `json:"created"`
		Exchanges int    `json:"exchanges"`
	}
	decode(t, w, &result)
	assert.Equal(t, "Items", result.Title)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Exchanges)

	c := s.router.replayEngine.Classifier().Classify("/items")
	assert.Equal(t, "secure", c.Type)
	c = s.router.replayEngine.Classifier().Classify("/items/5")
	assert.Equal(t, models.DefaultFallbackType, c.Type)

	// Re-importing updates the same policies and keeps existing recordings
	w = s.do(t, http.MethodPost, "/_api/openapi/import", map[string]string{"content": openapiDoc})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	decode(t, w, &result)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Exchanges)

	cfg, err := s.store.GetClassification()
	require.NoError(t, err)
	require.Len(t, cfg.Types, 1)
	assert.Equal(t, []string{"^/items$"}, cfg.Types[0].Patterns)

	w = s.do(t, http.MethodPost, "/_api/openapi/import", map[string]string{"content": "nope: ["})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMergeTypeRule(t *testing.T) {
	cfg := &models.EndpointClassificationConfig{
		Types: []models.EndpointTypeRule{
			{Name: "secure", Patterns: []string{"^/a$"}},
			{Name: "internal", Patterns: []string{"^/int/"}, Priority: 1},
		},
		Fallback: "public",
	}

	merged := mergeTypeRule(cfg, models.EndpointTypeRule{Name: "secure", Patterns: []string{"^/a$", "^/b$"}})
	require.Len(t, merged.Types, 2)
	assert.Equal(t, []string{"^/a$", "^/b$"}, merged.Types[0].Patterns)
	assert.Equal(t, []string{"^/a$"}, cfg.Types[0].Patterns, "input is not modified")
	assert.NotNil(t, merged.Tags)

	added := mergeTypeRule(cfg, models.EndpointTypeRule{Name: "admin", Patterns: []string{"^/admin"}})
	require.Len(t, added.Types, 3)
	assert.Equal(t, "admin", added.Types[2].Name)
}

func TestReplayThroughRouter(t *testing.T) {
	s := setupTestServer(t)
	s.exchange(t, "rec-1", "GET", "/items", "1.0.0", 0)

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("X-App-Version", "1.0.0")
	w := httptest.NewRecorder()
	s.router.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, replay.OutcomeReplayed, w.Header().Get(replay.HeaderOutcome))
	assert.Equal(t, "rec-1", w.Header().Get(replay.HeaderExchange))

	w = s.do(t, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, replay.OutcomePassthrough, w.Header().Get(replay.HeaderOutcome))

	// Both decisions show up in stats and traces
	w = s.do(t, http.MethodGet, "/_api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var global models.GlobalStats
	decode(t, w, &global)
	assert.Equal(t, int64(2), global.TotalDecisions)
	assert.Equal(t, int64(1), global.TotalMatched)
	assert.Equal(t, 1, global.ExchangeCount)

	w = s.do(t, http.MethodGet, "/_api/stats/endpoints?method=get&path=/items", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var endpoint models.EndpointStat
	decode(t, w, &endpoint)
	assert.Equal(t, int64(1), endpoint.Matched)

	w = s.do(t, http.MethodGet, "/_api/traces?matched=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var traces []models.DecisionTrace
	decode(t, w, &traces)
	require.Len(t, traces, 1)
	assert.Equal(t, "/missing", traces[0].Request.Path)

	w = s.do(t, http.MethodGet, "/_api/traces/"+traces[0].ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/_api/stats/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, "/_api/traces", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, s.traces.GetTraces(nil))
	assert.Equal(t, int64(0), s.stats.GetGlobalStats(0, 0).TotalDecisions)
}

func TestListTraces_BadQuery(t *testing.T) {
	s := setupTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/_api/traces?matched=maybe", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/_api/traces?limit=-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/_api/traces/nope", nil).Code)
}

func TestGetEndpointStats(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/_api/stats/endpoints", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/_api/stats/endpoints?method=GET&path=/none", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No statistics available")
}

func TestHealthCheck(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/_api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]interface{}
	decode(t, w, &result)
	assert.Equal(t, "healthy", result["status"])
}

func TestCORSMiddleware(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodOptions, "/_api/policies", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	r := gin.New()
	r.Use(requestLogger(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, http.StatusAccepted, entry.Data["status"])
	assert.Equal(t, "/ok", entry.Data["path"])
	assert.True(t, strings.HasPrefix(entry.Message, "request"))
}
