package storage

import (
	"errors"
	"sort"
	"strings"

	"github.com/prasenjit/go-replay/internal/models"
)

var (
	// ErrNotFound is returned (wrapped) when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record collides with an existing one
	ErrConflict = errors.New("conflict")
)

// Storage defines the interface for data persistence
type Storage interface {
	// Policy operations. GetAllPolicies returns registration order.
	CreatePolicy(p *models.MatchingPolicy) error
	GetPolicy(id string) (*models.MatchingPolicy, error)
	GetAllPolicies() ([]*models.MatchingPolicy, error)
	UpdatePolicy(p *models.MatchingPolicy) error
	DeletePolicy(id string) error

	// Classification and defaults. Missing values return the built-ins.
	GetClassification() (*models.EndpointClassificationConfig, error)
	SaveClassification(cfg *models.EndpointClassificationConfig) error
	GetDefaults() (*models.GlobalDefaults, error)
	SaveDefaults(d *models.GlobalDefaults) error

	// Exchange operations
	CreateExchange(e *models.CandidateExchange) error
	GetExchange(id string) (*models.CandidateExchange, error)
	GetAllExchanges() ([]*models.CandidateExchange, error)
	GetExchangesByEndpoint(method, path string) ([]*models.CandidateExchange, error)
	DeleteExchange(id string) error

	// Utility
	Close() error
}

// policyKey identifies the (pattern, method, mode) slot a policy occupies
func policyKey(p *models.MatchingPolicy) string {
	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = "*"
	}
	return p.EndpointPattern + "\x00" + method + "\x00" + string(p.Mode)
}

// checkUnique rejects p when another enabled policy already holds its slot
func checkUnique(p *models.MatchingPolicy, existing []*models.MatchingPolicy) error {
	if !p.Enabled {
		return nil
	}
	key := policyKey(p)
	for _, other := range existing {
		if other.ID != p.ID && other.Enabled && policyKey(other) == key {
			return conflictf("enabled policy %s already covers %s %s (%s)", other.ID, other.Method, other.EndpointPattern, other.Mode)
		}
	}
	return nil
}

// sortPolicies orders policies by registration: CreatedAt, then ID
func sortPolicies(policies []*models.MatchingPolicy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if !policies[i].CreatedAt.Equal(policies[j].CreatedAt) {
			return policies[i].CreatedAt.Before(policies[j].CreatedAt)
		}
		return policies[i].ID < policies[j].ID
	})
}

// sortExchanges orders exchanges by CreatedAt, then ID
func sortExchanges(exchanges []*models.CandidateExchange) {
	sort.SliceStable(exchanges, func(i, j int) bool {
		if !exchanges[i].CreatedAt.Equal(exchanges[j].CreatedAt) {
			return exchanges[i].CreatedAt.Before(exchanges[j].CreatedAt)
		}
		return exchanges[i].ID < exchanges[j].ID
	})
}

// sameEndpoint reports whether e was recorded for method and path
func sameEndpoint(e *models.CandidateExchange, method, path string) bool {
	return strings.EqualFold(e.Method, method) && e.Path == path
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
	_ Storage = (*RedisStorage)(nil)
)
