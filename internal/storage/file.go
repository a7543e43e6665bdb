package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prasenjit/go-replay/internal/models"
)

const (
	policiesDir        = "policies"
	exchangesDir       = "exchanges"
	classificationFile = "classification.json"
	defaultsFile       = "defaults.json"
)

// FileStorage implements Storage interface with file-based persistence
type FileStorage struct {
	mu       sync.RWMutex
	basePath string
	memory   *MemoryStorage
	skipped  []string
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(basePath string) (*FileStorage, error) {
	dirs := []string{
		basePath,
		filepath.Join(basePath, policiesDir),
		filepath.Join(basePath, exchangesDir),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fs := &FileStorage{
		basePath: basePath,
		memory:   NewMemoryStorage(),
	}

	if err := fs.loadAll(); err != nil {
		return nil, err
	}

	return fs, nil
}

// Skipped returns the record files that could not be decoded at load time
func (f *FileStorage) Skipped() []string {
	return f.skipped
}

// loadAll loads all data from disk
func (f *FileStorage) loadAll() error {
	err := f.loadDir(policiesDir, func(data []byte) error {
		var p models.MatchingPolicy
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.ID == "" {
			return fmt.Errorf("policy has no id")
		}
		f.memory.policies[p.ID] = &p
		return nil
	})
	if err != nil {
		return err
	}

	err = f.loadDir(exchangesDir, func(data []byte) error {
		var e models.CandidateExchange
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		if err := e.Validate(); err != nil {
			return err
		}
		f.memory.exchanges[e.ID] = &e
		return nil
	})
	if err != nil {
		return err
	}

	var classification models.EndpointClassificationConfig
	if ok, err := f.loadFile(classificationFile, &classification); err != nil {
		return err
	} else if ok {
		f.memory.classification = &classification
	}

	var defaults models.GlobalDefaults
	if ok, err := f.loadFile(defaultsFile, &defaults); err != nil {
		return err
	} else if ok {
		f.memory.defaults = &defaults
	}

	return nil
}

// loadDir decodes every .json file in dir; files that fail are recorded
// in skipped and do not stop the load
func (f *FileStorage) loadDir(dir string, decode func([]byte) error) error {
	path := filepath.Join(f.basePath, dir)
	entries, err := os.ReadDir(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		name := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(path, entry.Name()))
		if err != nil {
			f.skipped = append(f.skipped, name)
			continue
		}
		if err := decode(data); err != nil {
			f.skipped = append(f.skipped, name)
		}
	}

	return nil
}

// loadFile decodes a single optional file; a corrupt file is skipped
func (f *FileStorage) loadFile(name string, v interface{}) (bool, error) {
	data, err := os.ReadFile(filepath.Join(f.basePath, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		f.skipped = append(f.skipped, name)
		return false, nil
	}
	return true, nil
}

func (f *FileStorage) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(f.basePath, name), data, 0644)
}

func (f *FileStorage) removeFile(name string) error {
	err := os.Remove(filepath.Join(f.basePath, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func policyFile(id string) string {
	return filepath.Join(policiesDir, id+".json")
}

func exchangeFile(id string) string {
	return filepath.Join(exchangesDir, id+".json")
}

// CreatePolicy creates a new policy
func (f *FileStorage) CreatePolicy(p *models.MatchingPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.CreatePolicy(p); err != nil {
		return err
	}

	return f.writeJSON(policyFile(p.ID), p)
}

// GetPolicy retrieves a policy by ID
func (f *FileStorage) GetPolicy(id string) (*models.MatchingPolicy, error) {
	return f.memory.GetPolicy(id)
}

// GetAllPolicies retrieves all policies in registration order
func (f *FileStorage) GetAllPolicies() ([]*models.MatchingPolicy, error) {
	return f.memory.GetAllPolicies()
}

// UpdatePolicy updates a policy
func (f *FileStorage) UpdatePolicy(p *models.MatchingPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.UpdatePolicy(p); err != nil {
		return err
	}

	return f.writeJSON(policyFile(p.ID), p)
}

// DeletePolicy deletes a policy
func (f *FileStorage) DeletePolicy(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.DeletePolicy(id); err != nil {
		return err
	}

	return f.removeFile(policyFile(id))
}

// GetClassification returns the stored classification config or the default
func (f *FileStorage) GetClassification() (*models.EndpointClassificationConfig, error) {
	return f.memory.GetClassification()
}

// SaveClassification replaces the classification config
func (f *FileStorage) SaveClassification(cfg *models.EndpointClassificationConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.SaveClassification(cfg); err != nil {
		return err
	}

	return f.writeJSON(classificationFile, cfg)
}

// GetDefaults returns the stored global defaults or the built-ins
func (f *FileStorage) GetDefaults() (*models.GlobalDefaults, error) {
	return f.memory.GetDefaults()
}

// SaveDefaults replaces the global defaults
func (f *FileStorage) SaveDefaults(d *models.GlobalDefaults) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.SaveDefaults(d); err != nil {
		return err
	}

	return f.writeJSON(defaultsFile, d)
}

// CreateExchange stores a recorded exchange
func (f *FileStorage) CreateExchange(e *models.CandidateExchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.CreateExchange(e); err != nil {
		return err
	}

	return f.writeJSON(exchangeFile(e.ID), e)
}

// GetExchange retrieves an exchange by ID
func (f *FileStorage) GetExchange(id string) (*models.CandidateExchange, error) {
	return f.memory.GetExchange(id)
}

// GetAllExchanges retrieves all exchanges, oldest first
func (f *FileStorage) GetAllExchanges() ([]*models.CandidateExchange, error) {
	return f.memory.GetAllExchanges()
}

// GetExchangesByEndpoint retrieves the exchanges recorded for method and path
func (f *FileStorage) GetExchangesByEndpoint(method, path string) ([]*models.CandidateExchange, error) {
	return f.memory.GetExchangesByEndpoint(method, path)
}

// DeleteExchange deletes an exchange
func (f *FileStorage) DeleteExchange(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.DeleteExchange(id); err != nil {
		return err
	}

	return f.removeFile(exchangeFile(id))
}

// Close closes the storage
func (f *FileStorage) Close() error {
	return nil
}
