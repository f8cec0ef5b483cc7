package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind tags the concrete adapter behind a registered strategy.
type Kind string

const (
	KindVault   Kind = "vault"
	KindLending Kind = "lending"
)

// ParseKind normalises a configured kind string.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindVault:
		return KindVault, nil
	case KindLending:
		return KindLending, nil
	default:
		return "", fmt.Errorf("strategy: unknown kind %q", raw)
	}
}

type entry struct {
	kind     Kind
	strategy Strategy
}

// Registry maps strategy names to live adapters so a ledger can switch its
// yield source at runtime.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a strategy under name.
func (r *Registry) Register(name string, kind Kind, s Strategy) error {
	name = strings.TrimSpace(name)
	if name == "" || s == nil {
		return fmt.Errorf("strategy: name and adapter required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.entries[name] = entry{kind: kind, strategy: s}
	return nil
}

// Lookup resolves a strategy by name.
func (r *Registry) Lookup(name string) (Strategy, Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.TrimSpace(name)]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return e.strategy, e.kind, nil
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Lending returns every registered lending-market adapter.
func (r *Registry) Lending() []*LendingMarket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LendingMarket, 0)
	for _, name := range r.namesLocked() {
		if lm, ok := r.entries[name].strategy.(*LendingMarket); ok {
			out = append(out, lm)
		}
	}
	return out
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
