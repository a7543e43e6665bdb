package storage

import (
	"sync"

	"github.com/prasenjit/go-replay/internal/models"
)

// MemoryStorage implements Storage interface with in-memory storage
type MemoryStorage struct {
	mu             sync.RWMutex
	policies       map[string]*models.MatchingPolicy
	exchanges      map[string]*models.CandidateExchange
	classification *models.EndpointClassificationConfig
	defaults       *models.GlobalDefaults
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		policies:  make(map[string]*models.MatchingPolicy),
		exchanges: make(map[string]*models.CandidateExchange),
	}
}

// CreatePolicy creates a new policy
func (m *MemoryStorage) CreatePolicy(p *models.MatchingPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.policies[p.ID]; exists {
		return conflictf("policy with ID %s already exists", p.ID)
	}
	if err := checkUnique(p, m.policyList()); err != nil {
		return err
	}

	m.policies[p.ID] = p
	return nil
}

// GetPolicy retrieves a policy by ID
func (m *MemoryStorage) GetPolicy(id string) (*models.MatchingPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.policies[id]
	if !exists {
		return nil, notFoundf("policy %s", id)
	}

	return p, nil
}

// GetAllPolicies retrieves all policies in registration order
func (m *MemoryStorage) GetAllPolicies() ([]*models.MatchingPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	policies := m.policyList()
	sortPolicies(policies)
	return policies, nil
}

func (m *MemoryStorage) policyList() []*models.MatchingPolicy {
	policies := make([]*models.MatchingPolicy, 0, len(m.policies))
	for _, p := range m.policies {
		policies = append(policies, p)
	}
	return policies
}

// UpdatePolicy updates a policy
func (m *MemoryStorage) UpdatePolicy(p *models.MatchingPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.policies[p.ID]; !exists {
		return notFoundf("policy %s", p.ID)
	}
	if err := checkUnique(p, m.policyList()); err != nil {
		return err
	}

	m.policies[p.ID] = p
	return nil
}

// DeletePolicy deletes a policy
func (m *MemoryStorage) DeletePolicy(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.policies[id]; !exists {
		return notFoundf("policy %s", id)
	}

	delete(m.policies, id)
	return nil
}

// GetClassification returns the stored classification config or the default
func (m *MemoryStorage) GetClassification() (*models.EndpointClassificationConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.classification == nil {
		return models.DefaultClassification(), nil
	}
	return m.classification, nil
}

// SaveClassification replaces the classification config
func (m *MemoryStorage) SaveClassification(cfg *models.EndpointClassificationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.classification = cfg
	return nil
}

// GetDefaults returns the stored global defaults or the built-ins
func (m *MemoryStorage) GetDefaults() (*models.GlobalDefaults, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.defaults == nil {
		return models.DefaultGlobalDefaults(), nil
	}
	return m.defaults, nil
}

// SaveDefaults replaces the global defaults
func (m *MemoryStorage) SaveDefaults(d *models.GlobalDefaults) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.defaults = d
	return nil
}

// CreateExchange stores a recorded exchange
func (m *MemoryStorage) CreateExchange(e *models.CandidateExchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.exchanges[e.ID]; exists {
		return conflictf("exchange with ID %s already exists", e.ID)
	}

	m.exchanges[e.ID] = e
	return nil
}

// GetExchange retrieves an exchange by ID
func (m *MemoryStorage) GetExchange(id string) (*models.CandidateExchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.exchanges[id]
	if !exists {
		return nil, notFoundf("exchange %s", id)
	}

	return e, nil
}

// GetAllExchanges retrieves all exchanges, oldest first
func (m *MemoryStorage) GetAllExchanges() ([]*models.CandidateExchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exchanges := make([]*models.CandidateExchange, 0, len(m.exchanges))
	for _, e := range m.exchanges {
		exchanges = append(exchanges, e)
	}

	sortExchanges(exchanges)
	return exchanges, nil
}

// GetExchangesByEndpoint retrieves the exchanges recorded for method and path
func (m *MemoryStorage) GetExchangesByEndpoint(method, path string) ([]*models.CandidateExchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exchanges := make([]*models.CandidateExchange, 0)
	for _, e := range m.exchanges {
		if sameEndpoint(e, method, path) {
			exchanges = append(exchanges, e)
		}
	}

	sortExchanges(exchanges)
	return exchanges, nil
}

// DeleteExchange deletes an exchange
func (m *MemoryStorage) DeleteExchange(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.exchanges[id]; !exists {
		return notFoundf("exchange %s", id)
	}

	delete(m.exchanges, id)
	return nil
}

// Close closes the storage (no-op for memory storage)
func (m *MemoryStorage) Close() error {
	return nil
}
