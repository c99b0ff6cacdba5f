// ==============================
// File: internal/dex/registry.go
// ==============================
package dex

import (
	"fmt"
	"sort"
	"sync"

	"github.com/suimax/sui-bot/internal/suiaddr"
)

// Registry — реестр адаптеров, ключом служит идентификатор программы.
// Разрешается один раз на старте; вызывающие зависят только от Adapter.
type Registry struct {
	mu        sync.RWMutex
	byPackage map[suiaddr.Address]Adapter
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{byPackage: make(map[suiaddr.Address]Adapter)}
}

// Register добавляет адаптер; повторная регистрация того же package id — ошибка.
func (r *Registry) Register(a Adapter) error {
	pkg := a.PackageID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byPackage[pkg]; ok {
		return fmt.Errorf("package %s is already registered by %s", pkg.Shorten(0), existing.Name())
	}
	r.byPackage[pkg] = a
	return nil
}

// ByPackage возвращает адаптер по идентификатору программы.
func (r *Registry) ByPackage(pkg suiaddr.Address) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byPackage[pkg]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for package %s", pkg.Shorten(0))
	}
	return a, nil
}

// All возвращает адаптеры в детерминированном порядке (по имени).
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	out := make([]Adapter, 0, len(r.byPackage))
	for _, a := range r.byPackage {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
