package inference

import "sort"

// Provider names the backend serving a model.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Model is a registry entry.
type Model struct {
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`
	Premium  bool     `json:"premium"`
	Default  bool     `json:"default"`
}

// Registry is the closed set of models users may pick.  It is built once at
// startup and read-only afterwards.
type Registry struct {
	models map[string]Model
	def    string
}

// DefaultModel is used when neither the request nor the settings name one.
const DefaultModel = "llama3.2:3b"

// NewRegistry returns the local models, plus the hosted ones when hosted is
// true (an API key is configured).
func NewRegistry(hosted bool) *Registry {
	r := &Registry{models: map[string]Model{}, def: DefaultModel}
	r.add(Model{Name: DefaultModel, Provider: ProviderOllama})
	r.add(Model{Name: "gemma3", Provider: ProviderOllama})
	if hosted {
		r.add(Model{Name: "gpt-4o-mini", Provider: ProviderOpenAI, Premium: true})
	}
	return r
}

func (r *Registry) add(m Model) {
	m.Default = m.Name == r.def
	r.models[m.Name] = m
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Default returns the default model entry.
func (r *Registry) Default() Model { return r.models[r.def] }

// List returns every model, default first then by name.
func (r *Registry) List() []Model {
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Default != out[j].Default {
			return out[i].Default
		}
		return out[i].Name < out[j].Name
	})
	return out
}
