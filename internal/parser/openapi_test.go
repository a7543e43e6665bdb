package parser

import (
	"regexp"
	"strings"
	"testing"

	"github.com/prasenjit/go-replay/internal/models"
)

const petstore = `
openapi: 3.0.0
info:
  title: Pet Store
  version: 1.4.0
security:
  - apiKey: []
components:
  securitySchemes:
    apiKey:
      type: apiKey
      in: header
      name: X-Api-Key
paths:
  /pets:
    get:
      operationId: listPets
      security: []
      parameters:
        - name: limit
          in: query
          required: true
          schema:
            type: integer
        - name: cursor
          in: query
          schema:
            type: string
      responses:
        '200':
          description: Success
          content:
            application/json:
              example:
                pets:
                  - id: 1
                    name: Rex
    post:
      operationId: createPet
      parameters:
        - name: X-Tenant
          in: header
          required: true
          schema:
            type: string
      responses:
        '201':
          description: Created
  /pets/{petId}:
    get:
      operationId: getPet
      parameters:
        - name: petId
          in: path
          required: true
          schema:
            type: string
      responses:
        '200':
          description: Success
  /owners/{ownerId}/pets/{petId}:
    delete:
      parameters:
        - name: ownerId
          in: path
          required: true
          schema:
            type: string
        - name: petId
          in: path
          required: true
          schema:
            type: string
      responses:
        '204':
          description: No Content
`

func findPolicy(t *testing.T, result *ParseResult, method, pattern string) *models.MatchingPolicy {
	t.Helper()
	for _, p := range result.Policies {
		if p.Method == method && p.EndpointPattern == pattern {
			return p
		}
	}
	t.Fatalf("No policy for %s %s", method, pattern)
	return nil
}

func TestNewParser(t *testing.T) {
	p := NewParser()
	if p == nil {
		t.Fatal("NewParser returned nil")
	}
}

func TestParse_Policies(t *testing.T) {
	result, err := NewParser().Parse(petstore, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if result.Title != "Pet Store" || result.Version != "1.4.0" {
		t.Errorf("Unexpected document info %q %q", result.Title, result.Version)
	}
	if len(result.Policies) != 4 {
		t.Fatalf("Expected 4 policies, got %d", len(result.Policies))
	}

	list := findPolicy(t, result, "GET", "/pets")
	if list.Regex || list.Priority != 0 {
		t.Errorf("Expected an exact policy with priority 0, got regex=%v priority=%d", list.Regex, list.Priority)
	}
	if list.Mode != models.ModeBoth || !list.Enabled {
		t.Errorf("Expected an enabled both-mode policy, got %q enabled=%v", list.Mode, list.Enabled)
	}
	if strings.Join(list.MatchQueryParams, ",") != "limit" {
		t.Errorf("Expected required query param 'limit', got %v", list.MatchQueryParams)
	}

	create := findPolicy(t, result, "POST", "/pets")
	if strings.Join(create.MatchHeaders, ",") != "X-Tenant" {
		t.Errorf("Expected required header 'X-Tenant', got %v", create.MatchHeaders)
	}

	one := findPolicy(t, result, "GET", `^/pets/[^/]+$`)
	if !one.Regex || one.Priority != 1 {
		t.Errorf("Expected a regex policy with priority 1, got regex=%v priority=%d", one.Regex, one.Priority)
	}

	nested := findPolicy(t, result, "DELETE", `^/owners/[^/]+/pets/[^/]+$`)
	if nested.Priority != 2 {
		t.Errorf("Expected priority 2, got %d", nested.Priority)
	}

	for _, p := range result.Policies {
		if err := p.Validate(); err != nil {
			t.Errorf("Policy %s is invalid: %v", p.ID, err)
		}
	}
}

func TestParse_TemplatedPatternsMatchOneSegment(t *testing.T) {
	result, err := NewParser().Parse(petstore, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	re := regexp.MustCompile(findPolicy(t, result, "GET", `^/pets/[^/]+$`).EndpointPattern)
	if !re.MatchString("/pets/42") {
		t.Error("Expected '/pets/42' to match")
	}
	if re.MatchString("/pets/42/toys") || re.MatchString("/pets/") {
		t.Error("Expected the template to match exactly one segment")
	}
}

func TestParse_StableIDs(t *testing.T) {
	first, err := NewParser().Parse(petstore, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second, _ := NewParser().Parse(petstore, "")

	for i := range first.Policies {
		if first.Policies[i].ID != second.Policies[i].ID {
			t.Errorf("Policy %d ID changed between parses: %q vs %q", i, first.Policies[i].ID, second.Policies[i].ID)
		}
	}

	seen := make(map[string]bool)
	for _, p := range first.Policies {
		if seen[p.ID] {
			t.Errorf("Duplicate policy ID %q", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestParse_RegistrationOrderFollowsDocument(t *testing.T) {
	result, err := NewParser().Parse(petstore, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	for i := 1; i < len(result.Policies); i++ {
		if !result.Policies[i].CreatedAt.After(result.Policies[i-1].CreatedAt) {
			t.Errorf("Policy %d is not registered after policy %d", i, i-1)
		}
	}
}

func TestParse_SecureType(t *testing.T) {
	result, err := NewParser().Parse(petstore, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if result.SecureType == nil {
		t.Fatal("Expected a secure type rule")
	}
	if result.SecureType.Name != SecureTypeName {
		t.Errorf("Expected type name %q, got %q", SecureTypeName, result.SecureType.Name)
	}

	// GET /pets opts out with an empty security list; the rest inherit the document default
	want := []string{`^/owners/[^/]+/pets/[^/]+$`, `^/pets$`, `^/pets/[^/]+$`}
	if strings.Join(result.SecureType.Patterns, " ") != strings.Join(want, " ") {
		t.Errorf("Expected patterns %v, got %v", want, result.SecureType.Patterns)
	}
}

func TestParse_NoSecurity(t *testing.T) {
	doc := `
openapi: 3.0.0
info:
  title: Open API
  version: 1.0.0
paths:
  /status:
    get:
      responses:
        '200':
          description: OK
`
	result, err := NewParser().Parse(doc, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.SecureType != nil {
		t.Errorf("Expected no secure type, got %+v", result.SecureType)
	}
}

func TestParse_ExampleExchanges(t *testing.T) {
	result, err := NewParser().Parse(petstore, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Only literal paths with an example or a 204 become recordings
	if len(result.Exchanges) != 1 {
		t.Fatalf("Expected 1 exchange, got %d", len(result.Exchanges))
	}

	ex := result.Exchanges[0]
	if ex.Method != "GET" || ex.Path != "/pets" {
		t.Errorf("Expected GET /pets, got %s %s", ex.Method, ex.Path)
	}
	if ex.ResponseStatus != 200 {
		t.Errorf("Expected status 200, got %d", ex.ResponseStatus)
	}
	if !strings.Contains(ex.ResponseBody, "Rex") {
		t.Errorf("Expected body to contain 'Rex', got %q", ex.ResponseBody)
	}
	if ex.ResponseHeaders["Content-Type"] != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ex.ResponseHeaders["Content-Type"])
	}
	if ex.Version != "1.4.0" {
		t.Errorf("Expected document version on the exchange, got %q", ex.Version)
	}
	if err := ex.Validate(); err != nil {
		t.Errorf("Exchange is invalid: %v", err)
	}
}

func TestParse_NoContentExchange(t *testing.T) {
	doc := `
openapi: 3.0.0
info:
  title: Test API
  version: 1.0.0
paths:
  /session:
    delete:
      responses:
        '204':
          description: No Content
`
	result, err := NewParser().Parse(doc, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Exchanges) != 1 || result.Exchanges[0].ResponseStatus != 204 {
		t.Fatalf("Expected one 204 exchange, got %+v", result.Exchanges)
	}
}

func TestParse_BasePath(t *testing.T) {
	result, err := NewParser().Parse(petstore, "api/v1/")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	findPolicy(t, result, "GET", "/api/v1/pets")
	findPolicy(t, result, "GET", `^/api/v1/pets/[^/]+$`)

	if result.Exchanges[0].Path != "/api/v1/pets" {
		t.Errorf("Expected exchange path under the base path, got %q", result.Exchanges[0].Path)
	}
}

func TestParse_InvalidSpec(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not a document", "not: [valid"},
		{"missing info", "openapi: 3.0.0\npaths: {}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewParser().Parse(tt.content, ""); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestParse_JSONSpec(t *testing.T) {
	doc := `{
  "openapi": "3.0.0",
  "info": {"title": "JSON API", "version": "2.0.0"},
  "paths": {
    "/items": {
      "get": {"responses": {"200": {"description": "OK"}}}
    }
  }
}`

	result, err := NewParser().Parse(doc, "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Title != "JSON API" {
		t.Errorf("Expected title 'JSON API', got %q", result.Title)
	}
	if len(result.Policies) != 1 {
		t.Errorf("Expected 1 policy, got %d", len(result.Policies))
	}
}

func TestEndpointPattern(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		params  int
	}{
		{"/users", "/users", 0},
		{"/users/{id}", `^/users/[^/]+$`, 1},
		{"/v1.0/users/{id}", `^/v1\.0/users/[^/]+$`, 1},
		{"/a/{x}/b/{y}", `^/a/[^/]+/b/[^/]+$`, 2},
	}

	for _, tt := range tests {
		pattern, params := endpointPattern(tt.path)
		if pattern != tt.pattern || params != tt.params {
			t.Errorf("endpointPattern(%q) = %q, %d; want %q, %d", tt.path, pattern, params, tt.pattern, tt.params)
		}
	}
}

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"/api", "/api"},
		{"api", "/api"},
		{"/api/", "/api"},
		{"api/v1/", "/api/v1"},
	}

	for _, tt := range tests {
		if got := normalizeBasePath(tt.input); got != tt.expected {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatExample(t *testing.T) {
	tests := []struct {
		input    interface{}
		expected string
	}{
		{"plain", "plain"},
		{[]byte("bytes"), "bytes"},
		{map[string]interface{}{"a": 1}, `{"a":1}`},
		{[]interface{}{1, 2}, `[1,2]`},
	}

	for _, tt := range tests {
		if got := formatExample(tt.input); got != tt.expected {
			t.Errorf("formatExample(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
