package strategy

import (
	"fmt"
	"sort"
	"sync"
)

const (
	NameComposite = "score"
	NameTrend     = "trend"
	NameBreakout  = "breakout"
	NameCombo     = "combo"
	NameMeanRev   = "meanrev"
)

// Names lists the built-in strategies.
func Names() []string {
	return []string{NameBreakout, NameCombo, NameMeanRev, NameComposite, NameTrend}
}

// New builds a built-in strategy by name.
func New(name string, p Params) (Strategy, error) {
	switch name {
	case NameComposite:
		return NewComposite(p.Composite)
	case NameTrend:
		return NewTrend(p.Trend)
	case NameBreakout:
		return NewBreakout(p.Breakout)
	case NameCombo:
		return NewCombo(p.Combo)
	case NameMeanRev:
		return NewMeanRev(p.MeanRev)
	default:
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
}

// Registry holds strategies by name. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// NewDefaultRegistry registers every built-in strategy with default params.
func NewDefaultRegistry() *Registry {
	r, err := Build(Names(), DefaultParams())
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return r
}

// Build registers the named strategies configured with p.
func Build(names []string, p Params) (*Registry, error) {
	r := NewRegistry()
	for _, name := range names {
		s, err := New(name, p)
		if err != nil {
			return nil, err
		}
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[s.Name()]; ok {
		return fmt.Errorf("strategy %s already registered", s.Name())
	}
	r.strategies[s.Name()] = s
	return nil
}

func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered strategies ordered by name.
func (r *Registry) All() []Strategy {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, len(names))
	for i, name := range names {
		out[i] = r.strategies[name]
	}
	return out
}
