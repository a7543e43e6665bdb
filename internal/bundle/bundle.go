// Package bundle moves replay rules between stores as YAML or JSON documents.
package bundle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/prasenjit/go-replay/internal/models"
	"github.com/prasenjit/go-replay/internal/storage"
)

// CurrentVersion is the bundle format version written by Export
const CurrentVersion = 1

// Format is a bundle encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat parses a format name; empty selects YAML
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported bundle format %q", s)
	}
}

// DetectFormat guesses the encoding of data from its first character
func DetectFormat(data []byte) Format {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// Bundle is a portable snapshot of the replay rules
type Bundle struct {
	Version        int                                  `json:"version" yaml:"version"`
	Classification *models.EndpointClassificationConfig `json:"classification,omitempty" yaml:"classification,omitempty"`
	Defaults       *models.GlobalDefaults               `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Policies       []*models.MatchingPolicy             `json:"policies" yaml:"policies"`
}

// Export snapshots the rules held by store. Policies keep registration order.
func Export(store storage.Storage) (*Bundle, error) {
	classification, err := store.GetClassification()
	if err != nil {
		return nil, fmt.Errorf("export classification: %w", err)
	}
	defaults, err := store.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("export defaults: %w", err)
	}
	policies, err := store.GetAllPolicies()
	if err != nil {
		return nil, fmt.Errorf("export policies: %w", err)
	}

	return &Bundle{
		Version:        CurrentVersion,
		Classification: classification,
		Defaults:       defaults,
		Policies:       policies,
	}, nil
}

// Encode writes b to w in the given format
func Encode(w io.Writer, b *Bundle, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported bundle format %q", format)
	}
}

// rawJSON and rawYAML defer policy decoding so one bad record does not
// reject the whole bundle
type rawJSON struct {
	Version        int                                  `json:"version"`
	Classification *models.EndpointClassificationConfig `json:"classification"`
	Defaults       *models.GlobalDefaults               `json:"defaults"`
	Policies       []json.RawMessage                    `json:"policies"`
}

type rawYAML struct {
	Version        int                                  `yaml:"version"`
	Classification *models.EndpointClassificationConfig `yaml:"classification"`
	Defaults       *models.GlobalDefaults               `yaml:"defaults"`
	Policies       []yaml.Node                          `yaml:"policies"`
}

// Decode parses a bundle. Policies that fail to decode are skipped and
// returned as ConfigErrors; a malformed document is an error.
func Decode(data []byte, format Format) (*Bundle, []models.ConfigError, error) {
	b := &Bundle{Policies: make([]*models.MatchingPolicy, 0)}
	var skipped []models.ConfigError

	switch format {
	case FormatJSON:
		var raw rawJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, nil, fmt.Errorf("decode bundle: %w", err)
		}
		b.Version, b.Classification, b.Defaults = raw.Version, raw.Classification, raw.Defaults
		for i, msg := range raw.Policies {
			var p models.MatchingPolicy
			if err := json.Unmarshal(msg, &p); err != nil {
				skipped = append(skipped, recordError(i, err))
				continue
			}
			b.Policies = append(b.Policies, &p)
		}
	case FormatYAML:
		var raw rawYAML
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, nil, fmt.Errorf("decode bundle: %w", err)
		}
		b.Version, b.Classification, b.Defaults = raw.Version, raw.Classification, raw.Defaults
		for i := range raw.Policies {
			var p models.MatchingPolicy
			if err := raw.Policies[i].Decode(&p); err != nil {
				skipped = append(skipped, recordError(i, err))
				continue
			}
			b.Policies = append(b.Policies, &p)
		}
	default:
		return nil, nil, fmt.Errorf("unsupported bundle format %q", format)
	}

	if b.Version > CurrentVersion {
		return nil, nil, fmt.Errorf("bundle version %d is newer than supported version %d", b.Version, CurrentVersion)
	}

	return b, skipped, nil
}

func recordError(index int, err error) models.ConfigError {
	return models.ConfigError{Kind: "policy", Rule: fmt.Sprintf("policies[%d]", index), Err: err}
}

// ImportResult summarizes an Import
type ImportResult struct {
	Created int                  `json:"created"`
	Updated int                  `json:"updated"`
	Deleted int                  `json:"deleted"`
	Errors  []models.ConfigError `json:"errors,omitempty"`
}

// Import writes b into store. With replace, existing policies are removed
// first; otherwise policies are upserted by ID. Invalid or conflicting
// policies are skipped and reported. Policies without an ID get a new one
// and policies without a creation time are registered after the rest, in
// bundle order.
func Import(store storage.Storage, b *Bundle, replace bool) (*ImportResult, error) {
	result := &ImportResult{}

	if b.Classification != nil {
		if err := b.Classification.Validate(); err != nil {
			return nil, err
		}
	}
	if b.Defaults != nil {
		if err := b.Defaults.Validate(); err != nil {
			return nil, err
		}
	}

	if replace {
		existing, err := store.GetAllPolicies()
		if err != nil {
			return nil, fmt.Errorf("list policies: %w", err)
		}
		for _, p := range existing {
			if err := store.DeletePolicy(p.ID); err != nil {
				return nil, fmt.Errorf("delete policy %s: %w", p.ID, err)
			}
			result.Deleted++
		}
	}

	if b.Classification != nil {
		if err := store.SaveClassification(b.Classification); err != nil {
			return nil, fmt.Errorf("save classification: %w", err)
		}
	}
	if b.Defaults != nil {
		if err := store.SaveDefaults(b.Defaults); err != nil {
			return nil, fmt.Errorf("save defaults: %w", err)
		}
	}

	now := time.Now()
	for i, p := range b.Policies {
		if p == nil {
			continue
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = p.CreatedAt
		}
		if err := p.Validate(); err != nil {
			result.Errors = append(result.Errors, models.ConfigError{Kind: "policy", Rule: p.ID, Err: err})
			continue
		}

		_, err := store.GetPolicy(p.ID)
		switch {
		case err == nil:
			err = store.UpdatePolicy(p)
			if err == nil {
				result.Updated++
			}
		case errors.Is(err, storage.ErrNotFound):
			err = store.CreatePolicy(p)
			if err == nil {
				result.Created++
			}
		}
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				result.Errors = append(result.Errors, models.ConfigError{Kind: "policy", Rule: p.ID, Err: err})
				continue
			}
			return result, fmt.Errorf("import policy %s: %w", p.ID, err)
		}
	}

	return result, nil
}
