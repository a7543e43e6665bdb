package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/prasenjit/go-replay/internal/models"
)

// SecureTypeName is the endpoint type assigned to operations with security requirements
const SecureTypeName = "secure"

var pathParamPattern = regexp.MustCompile(`\\\{([^}]+)\\\}`)

// methodOrder fixes the order operations are emitted in for each path
var methodOrder = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// Parser seeds replay rules from OpenAPI 3 documents
type Parser struct {
	now func() time.Time
}

// NewParser creates a new OpenAPI parser
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// ParseResult contains the rules seeded from one document
type ParseResult struct {
	Title      string
	Version    string
	Policies   []*models.MatchingPolicy
	SecureType *models.EndpointTypeRule   // nil when no operation requires security
	Exchanges  []*models.CandidateExchange // Example responses of literal paths
}

// Parse parses an OpenAPI 3 document into one both-mode policy per
// operation. Literal paths become exact policies; templated paths become
// anchored regex policies whose priority is their parameter count, so the
// more literal template wins.
func (p *Parser) Parse(content string, basePath string) (*ParseResult, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromData([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	result := &ParseResult{
		Policies:  make([]*models.MatchingPolicy, 0),
		Exchanges: make([]*models.CandidateExchange, 0),
	}
	if doc.Info != nil {
		result.Title = doc.Info.Title
		result.Version = doc.Info.Version
	}

	basePath = normalizeBasePath(basePath)
	now := p.now()
	var securePatterns []string

	paths := doc.Paths.Map()
	pathKeys := make([]string, 0, len(paths))
	for k := range paths {
		pathKeys = append(pathKeys, k)
	}
	sort.Strings(pathKeys)

	for _, pathPattern := range pathKeys {
		pathItem := paths[pathPattern]
		if pathItem == nil {
			continue
		}
		fullPath := joinPath(basePath, pathPattern)
		pattern, params := endpointPattern(fullPath)
		operations := pathItem.Operations()

		for _, method := range methodOrder {
			op := operations[method]
			if op == nil {
				continue
			}

			// Keep document order as registration order
			createdAt := now.Add(time.Duration(len(result.Policies)) * time.Millisecond)

			policy := &models.MatchingPolicy{
				ID:               generateID("policy", method, fullPath),
				EndpointPattern:  pattern,
				Method:           method,
				Mode:             models.ModeBoth,
				Regex:            params > 0,
				Priority:         params,
				MatchHeaders:     requiredParams(pathItem.Parameters, op.Parameters, openapi3.ParameterInHeader),
				MatchQueryParams: requiredParams(pathItem.Parameters, op.Parameters, openapi3.ParameterInQuery),
				Enabled:          true,
				CreatedAt:        createdAt,
				UpdatedAt:        createdAt,
			}
			result.Policies = append(result.Policies, policy)

			if requiresSecurity(doc, op) {
				securePatterns = append(securePatterns, anchored(pattern, params > 0))
			}

			if params == 0 {
				if ex := exampleExchange(op); ex != nil {
					ex.ID = generateID("exchange", method, fullPath)
					ex.Method = method
					ex.Path = fullPath
					ex.Version = result.Version
					ex.CreatedAt = createdAt
					result.Exchanges = append(result.Exchanges, ex)
				}
			}
		}
	}

	if len(securePatterns) > 0 {
		result.SecureType = &models.EndpointTypeRule{
			Name:     SecureTypeName,
			Patterns: dedupe(securePatterns),
		}
	}

	return result, nil
}

// endpointPattern returns the policy pattern for a path and its number of
// path parameters. Templated segments match one path segment.
func endpointPattern(fullPath string) (string, int) {
	escaped := regexp.QuoteMeta(fullPath)
	params := len(pathParamPattern.FindAllString(escaped, -1))
	if params == 0 {
		return fullPath, 0
	}
	return "^" + pathParamPattern.ReplaceAllString(escaped, `[^/]+`) + "$", params
}

// anchored turns an endpoint pattern into a classification pattern
func anchored(pattern string, isRegex bool) string {
	if isRegex {
		return pattern
	}
	return "^" + regexp.QuoteMeta(pattern) + "$"
}

// requiredParams lists required parameters of the given location, path
// item parameters first. Operation parameters override path item ones.
func requiredParams(shared, own openapi3.Parameters, in string) []string {
	required := make(map[string]bool)
	var names []string
	for _, params := range []openapi3.Parameters{shared, own} {
		for _, ref := range params {
			if ref == nil || ref.Value == nil || ref.Value.In != in {
				continue
			}
			name := ref.Value.Name
			if _, seen := required[name]; !seen {
				names = append(names, name)
			}
			required[name] = ref.Value.Required
		}
	}

	var out []string
	for _, name := range names {
		if required[name] {
			out = append(out, name)
		}
	}
	return out
}

// requiresSecurity reports whether op needs credentials. An explicit empty
// requirement list on the operation opts out of the document default.
func requiresSecurity(doc *openapi3.T, op *openapi3.Operation) bool {
	if op.Security != nil {
		return hasRequirement(*op.Security)
	}
	return hasRequirement(doc.Security)
}

func hasRequirement(reqs openapi3.SecurityRequirements) bool {
	for _, req := range reqs {
		if len(req) > 0 {
			return true
		}
	}
	return false
}

// exampleExchange builds a recorded exchange from the first success
// response with an example (200, 201, 202, then 204 without body)
func exampleExchange(op *openapi3.Operation) *models.CandidateExchange {
	if op.Responses == nil {
		return nil
	}

	for _, statusCode := range []int{200, 201, 202, 204} {
		response := op.Responses.Status(statusCode)
		if response == nil || response.Value == nil {
			continue
		}

		ex := &models.CandidateExchange{
			ResponseStatus:  statusCode,
			ResponseHeaders: make(map[string]string),
		}

		for name, header := range response.Value.Headers {
			if header.Value != nil && header.Value.Example != nil {
				ex.ResponseHeaders[name] = fmt.Sprintf("%v", header.Value.Example)
			}
		}

		for mediaType, content := range response.Value.Content {
			if !strings.Contains(mediaType, "json") {
				continue
			}
			ex.ResponseHeaders["Content-Type"] = mediaType

			switch {
			case content.Example != nil:
				ex.ResponseBody = formatExample(content.Example)
			case len(content.Examples) > 0:
				ex.ResponseBody = firstNamedExample(content.Examples)
			case content.Schema != nil && content.Schema.Value != nil:
				ex.ResponseBody = generateExampleFromSchema(content.Schema.Value)
			}
			break
		}

		if ex.ResponseBody != "" || statusCode == 204 {
			return ex
		}
	}

	return nil
}

// firstNamedExample returns the alphabetically first named example
func firstNamedExample(examples openapi3.Examples) string {
	names := make([]string, 0, len(examples))
	for name := range examples {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ex := examples[name]; ex != nil && ex.Value != nil && ex.Value.Value != nil {
			return formatExample(ex.Value.Value)
		}
	}
	return ""
}

// formatExample converts an example value to a JSON string
func formatExample(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", val)
	}
}

// generateExampleFromSchema generates a basic example from an OpenAPI schema
func generateExampleFromSchema(schema *openapi3.Schema) string {
	if schema.Example != nil {
		return formatExample(schema.Example)
	}
	if schema.Type == nil || len(schema.Type.Slice()) == 0 {
		return ""
	}

	switch schema.Type.Slice()[0] {
	case "object":
		return "{}"
	case "array":
		return "[]"
	case "string":
		return `"string"`
	case "integer":
		return "0"
	case "number":
		return "0.0"
	case "boolean":
		return "false"
	default:
		return "null"
	}
}

// normalizeBasePath ensures the base path is properly formatted
func normalizeBasePath(basePath string) string {
	if basePath == "" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimSuffix(basePath, "/")
}

func joinPath(basePath, pathPattern string) string {
	if basePath == "" {
		return pathPattern
	}
	return path.Join(basePath, pathPattern)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// generateID derives a stable ID from kind, method and path so that
// re-importing a document updates the same records
func generateID(kind, method, fullPath string) string {
	hash := sha256.Sum256([]byte(kind + ":" + method + ":" + fullPath))
	return kind[:2] + "-" + hex.EncodeToString(hash[:8])
}
