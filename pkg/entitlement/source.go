package entitlement

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Source defines how plan entitlements are loaded into the service.
type Source interface {
	Load(ctx context.Context) (map[string]Entitlements, error)
}

// inMemSource implements Source using an in-memory plan map.
type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Entitlements
}

// NewInMemSource returns an in-memory Source with a deep copy of the given plans.
func NewInMemSource(plans map[string]Entitlements) Source {
	return &inMemSource{plans: clonePlans(plans)}
}

// Load returns a copy of all available plans from memory.
func (s *inMemSource) Load(ctx context.Context) (map[string]Entitlements, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePlans(s.plans), nil
}

// fileSource loads the plan catalog from a YAML file. Deployments override
// the compiled-in defaults by pointing ENTITLEMENT_PLANS_FILE at a catalog.
type fileSource struct {
	path string
}

// NewFileSource returns a Source backed by a YAML plan catalog on disk.
func NewFileSource(path string) Source {
	return &fileSource{path: path}
}

type planCatalog struct {
	Plans map[string]Entitlements `yaml:"plans"`
}

func (s *fileSource) Load(ctx context.Context) (map[string]Entitlements, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog %s: %w", s.path, err)
	}

	var catalog planCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse plan catalog %s: %w", s.path, err)
	}

	for id, plan := range catalog.Plans {
		if plan.ID == "" {
			plan.ID = id
			catalog.Plans[id] = plan
		}
	}
	return catalog.Plans, nil
}

func clonePlans(plans map[string]Entitlements) map[string]Entitlements {
	out := make(map[string]Entitlements, len(plans))
	for id, plan := range plans {
		out[id] = Entitlements{
			ID:       plan.ID,
			Name:     plan.Name,
			Limits:   maps.Clone(plan.Limits),
			Features: slices.Clone(plan.Features),
		}
	}
	return out
}
