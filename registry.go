package llmstream

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/models/*.yaml
var embeddedModelTables embed.FS

// Model Table Philosophy:
//
// This package ships MODEL METADATA for parameter resolution and cost
// accounting. It does NOT enforce validation - provider APIs are the source
// of truth for what a model accepts.
//
// Tables go stale as providers ship new models. Library users can override
// the embedded tables by:
//  1. Calling LoadModelsFromFile() with custom YAML
//  2. Calling RegisterModels() programmatically

// ProviderModels is one provider's model table.
type ProviderModels struct {
	Version     string               `yaml:"version"`      // Semantic version (e.g., "1.0.0")
	LastUpdated string               `yaml:"last_updated"` // ISO 8601 date
	Provider    string               `yaml:"provider"`
	Models      map[string]ModelInfo `yaml:"models"`
}

// ModelRegistry maps provider -> model id -> capability descriptor.
// Descriptors are read-only during a turn.
type ModelRegistry struct {
	providers map[string]*ProviderModels
	mu        sync.RWMutex
}

var (
	globalModelRegistry     *ModelRegistry
	globalModelRegistryOnce sync.Once
)

// GetModelRegistry returns the global model registry (singleton), populated
// from the embedded tables.
func GetModelRegistry() *ModelRegistry {
	globalModelRegistryOnce.Do(func() {
		globalModelRegistry = &ModelRegistry{
			providers: make(map[string]*ProviderModels),
		}
		if err := globalModelRegistry.loadEmbedded(); err != nil {
			// Missing embedded tables degrade to lookup misses, not panics.
			fmt.Fprintf(os.Stderr, "llmstream: failed to load embedded model tables: %v\n", err)
		}
	})
	return globalModelRegistry
}

func (r *ModelRegistry) loadEmbedded() error {
	entries, err := fs.ReadDir(embeddedModelTables, "config/models")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		data, err := embeddedModelTables.ReadFile("config/models/" + entry.Name())
		if err != nil {
			return err
		}
		if err := r.registerYAML(data); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (r *ModelRegistry) registerYAML(data []byte) error {
	var table ProviderModels
	if err := yaml.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("failed to unmarshal model table: %w", err)
	}
	if table.Provider == "" {
		return fmt.Errorf("model table missing provider name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[table.Provider] = &table
	return nil
}

// Lookup returns the capability descriptor for a model, or false when the
// provider or model is unknown.
func (r *ModelRegistry) Lookup(provider ProviderID, model string) (ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	table, ok := r.providers[provider.String()]
	if !ok {
		return ModelInfo{}, false
	}
	info, ok := table.Models[model]
	return info, ok
}

// SupportsModel checks if a provider's table lists the given model.
func (r *ModelRegistry) SupportsModel(provider ProviderID, model string) bool {
	_, ok := r.Lookup(provider, model)
	return ok
}

// LoadModelsFromFile loads a provider model table from a YAML file,
// replacing any existing table for that provider. The file format matches
// the embedded YAML structure.
func (r *ModelRegistry) LoadModelsFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model table: %w", err)
	}
	return r.registerYAML(data)
}

// RegisterModels programmatically registers a provider's model table.
func (r *ModelRegistry) RegisterModels(provider ProviderID, models map[string]ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.String()] = &ProviderModels{
		Provider: provider.String(),
		Models:   models,
	}
}

// LoadModelsFromFile is a convenience function on the global registry.
func LoadModelsFromFile(path string) error {
	return GetModelRegistry().LoadModelsFromFile(path)
}

// RegisterModels is a convenience function on the global registry.
func RegisterModels(provider ProviderID, models map[string]ModelInfo) {
	GetModelRegistry().RegisterModels(provider, models)
}
