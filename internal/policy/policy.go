// Package policy holds the editing engine's tunable limits, shipped as
// embedded YAML so a binary always carries working defaults.
package policy

import (
	"embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"reviso/internal/domain/models"
)

//go:embed config/editing.yaml
var configFiles embed.FS

// Policy is the loaded editing policy.
type Policy struct {
	Splitter struct {
		MinBlockSize    int `yaml:"min_block_size"`
		TargetBlockSize int `yaml:"target_block_size"`
		MaxBlockSize    int `yaml:"max_block_size"`
	} `yaml:"splitter"`

	Bulk struct {
		MaxChanges      int `yaml:"max_changes"`
		MediumThreshold int `yaml:"medium_threshold"`
		HighThreshold   int `yaml:"high_threshold"`
	} `yaml:"bulk"`

	Apply struct {
		MaxRetries int `yaml:"max_retries"`
	} `yaml:"apply"`

	Confirm struct {
		TokenTTLMinutes int `yaml:"token_ttl_minutes"`
	} `yaml:"confirm"`

	Preview struct {
		SnippetLength       int `yaml:"snippet_length"`
		InsertSnippetLength int `yaml:"insert_snippet_length"`
	} `yaml:"preview"`
}

// Load parses the embedded default policy.
func Load() (*Policy, error) {
	data, err := configFiles.ReadFile("config/editing.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded policy: %w", err)
	}
	return parse(data)
}

// LoadFile parses a policy from an external path, replacing the defaults.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) validate() error {
	if p.Splitter.MaxBlockSize <= 0 || p.Splitter.MaxBlockSize < p.Splitter.MinBlockSize {
		return fmt.Errorf("invalid splitter sizes: min=%d max=%d", p.Splitter.MinBlockSize, p.Splitter.MaxBlockSize)
	}
	if p.Bulk.HighThreshold <= p.Bulk.MediumThreshold {
		return fmt.Errorf("invalid impact thresholds: medium=%d high=%d", p.Bulk.MediumThreshold, p.Bulk.HighThreshold)
	}
	if p.Confirm.TokenTTLMinutes <= 0 {
		return fmt.Errorf("token TTL must be positive, got %d", p.Confirm.TokenTTLMinutes)
	}
	return nil
}

// TokenTTL returns the confirm-token lifetime.
func (p *Policy) TokenTTL() time.Duration {
	return time.Duration(p.Confirm.TokenTTLMinutes) * time.Minute
}

// EstimateImpact classifies a change count against the configured thresholds.
func (p *Policy) EstimateImpact(changeCount int) models.Impact {
	switch {
	case changeCount > p.Bulk.HighThreshold:
		return models.ImpactHigh
	case changeCount > p.Bulk.MediumThreshold:
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}
