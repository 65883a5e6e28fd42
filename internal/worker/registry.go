package worker

import (
	"fmt"
	"sort"

	"github.com/refitlab/refit/internal/config"
)

// Registry is the static catalog of known workers. The worker set is closed:
// entries are registered at construction time and never discovered at runtime.
type Registry struct {
	workers map[string]*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Duplicate names and nil workers are rejected.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("register worker: name is required")
	}
	if d.Worker == nil {
		return fmt.Errorf("register worker %s: implementation is required", d.Name)
	}
	if _, exists := r.workers[d.Name]; exists {
		return fmt.Errorf("register worker %s: already registered", d.Name)
	}
	if d.ProviderBound && d.Provider == "" {
		return fmt.Errorf("register worker %s: provider-bound worker needs a provider", d.Name)
	}
	cp := d
	r.workers[d.Name] = &cp
	return nil
}

// Get returns the descriptor for a worker name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.workers[name]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// All returns every descriptor sorted by name.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.workers))
	for _, d := range r.workers {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enabled returns every enabled descriptor sorted by name.
func (r *Registry) Enabled() []Descriptor {
	all := r.All()
	out := all[:0]
	for _, d := range all {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// ApplyConfig overlays per-worker configuration: enablement toggles and cost
// model overrides. Unknown worker names are ignored so stale config entries
// do not break startup.
func (r *Registry) ApplyConfig(conf map[string]config.WorkerConf) {
	for name, wc := range conf {
		d, ok := r.workers[name]
		if !ok {
			continue
		}
		if wc.Enabled != nil {
			d.Enabled = *wc.Enabled
		}
		if wc.CostModel != nil {
			d.CostModel = CostModel{
				Base:          wc.CostModel.Base,
				PerLine:       wc.CostModel.PerLine,
				PerCallable:   wc.CostModel.PerCallable,
				PerContainer:  wc.CostModel.PerContainer,
				CriticalBonus: wc.CostModel.CriticalBonus,
			}
		}
	}
}

// DefaultRegistry returns the built-in worker catalog.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range builtinDescriptors() {
		// Built-in names are unique and implementations non-nil, so
		// registration cannot fail here.
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}
