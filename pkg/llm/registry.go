package llm

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownModel indicates the requested model id is not in the registry.
var ErrUnknownModel = errors.New("model not available")

// Registry is the static table of models the gateway can route to.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelInfo
}

// NewRegistry builds a registry from the given entries.
func NewRegistry(models ...ModelInfo) *Registry {
	r := &Registry{models: make(map[string]ModelInfo, len(models))}
	for _, model := range models {
		r.put(model)
	}
	return r
}

// DefaultRegistry returns the built-in model table.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultModels()...)
}

// DefaultModels lists the models served out of the box.
func DefaultModels() []ModelInfo {
	return []ModelInfo{
		{ID: "gpt-4-turbo", ProviderModel: "gpt-4-turbo", Provider: ProviderOpenAI, Name: "GPT-4 Turbo", Description: "Most capable GPT-4 model with vision support", ContextWindow: 128000, MaxOutputTokens: 4096, SupportsVision: true, SupportsFunctions: true},
		{ID: "gpt-4", ProviderModel: "gpt-4", Provider: ProviderOpenAI, Name: "GPT-4", Description: "Original GPT-4 model", ContextWindow: 8192, MaxOutputTokens: 4096, SupportsFunctions: true},
		{ID: "gpt-3.5-turbo", ProviderModel: "gpt-3.5-turbo", Provider: ProviderOpenAI, Name: "GPT-3.5 Turbo", Description: "Fast and efficient model for most tasks", ContextWindow: 16385, MaxOutputTokens: 4096, SupportsFunctions: true},
		{ID: "claude-3-opus", ProviderModel: "claude-3-opus-20240229", Provider: ProviderAnthropic, Name: "Claude 3 Opus", Description: "Most capable Claude model", ContextWindow: 200000, MaxOutputTokens: 4096, SupportsVision: true},
		{ID: "claude-3-sonnet", ProviderModel: "claude-3-sonnet-20240229", Provider: ProviderAnthropic, Name: "Claude 3 Sonnet", Description: "Balanced performance and speed", ContextWindow: 200000, MaxOutputTokens: 4096, SupportsVision: true},
		{ID: "claude-3-haiku", ProviderModel: "claude-3-haiku-20240307", Provider: ProviderAnthropic, Name: "Claude 3 Haiku", Description: "Fast and efficient Claude model", ContextWindow: 200000, MaxOutputTokens: 4096, SupportsVision: true},
		{ID: "gemini-pro", ProviderModel: "gemini-pro", Provider: ProviderGoogle, Name: "Gemini Pro", Description: "Google's most capable model", ContextWindow: 32768, MaxOutputTokens: 8192},
		{ID: "gemini-pro-vision", ProviderModel: "gemini-pro-vision", Provider: ProviderGoogle, Name: "Gemini Pro Vision", Description: "Gemini with vision capabilities", ContextWindow: 32768, MaxOutputTokens: 8192, SupportsVision: true},
		{ID: "azure-gpt-4", ProviderModel: "gpt-4", Provider: ProviderAzure, Name: "Azure GPT-4", Description: "GPT-4 via Azure OpenAI", ContextWindow: 8192, MaxOutputTokens: 4096, SupportsFunctions: true},
		{ID: "azure-gpt-35-turbo", ProviderModel: "gpt-35-turbo", Provider: ProviderAzure, Name: "Azure GPT-3.5 Turbo", Description: "GPT-3.5 Turbo via Azure OpenAI", ContextWindow: 16385, MaxOutputTokens: 4096, SupportsFunctions: true},
	}
}

type registryFile struct {
	Models []ModelInfo `toml:"models"`
}

// LoadFile overlays entries from a TOML file onto the registry. Entries with
// an existing id replace it.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model registry: %w", err)
	}

	var file registryFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode model registry: %w", err)
	}

	for i, model := range file.Models {
		if strings.TrimSpace(model.ID) == "" || strings.TrimSpace(model.Provider) == "" {
			return fmt.Errorf("model registry entry %d: id and provider are required", i)
		}
		r.put(model)
	}

	return nil
}

func (r *Registry) put(model ModelInfo) {
	if model.ProviderModel == "" {
		model.ProviderModel = model.ID
	}
	model.Provider = strings.ToLower(model.Provider)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model.ID] = model
}

// Lookup returns the entry for an exact model id.
func (r *Registry) Lookup(id string) (ModelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, ok := r.models[id]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return model, nil
}

// List returns every entry ordered by id.
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]ModelInfo, 0, len(r.models))
	for _, model := range r.models {
		models = append(models, model)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models
}

// Len reports the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
