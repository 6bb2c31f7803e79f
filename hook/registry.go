package hook

import (
	stderrors "errors"
	"sync"

	"github.com/wippyai/native-runtime/errors"
)

// Registry owns live hooks and allows one per site.
type Registry struct {
	mu    sync.Mutex
	sites map[uintptr]Hook
	order []uintptr
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sites: make(map[uintptr]Hook)}
}

// Install hooks h to replacement and records it. A different hook already
// registered at the same site is rejected.
func (r *Registry) Install(h Hook, replacement uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	site := h.Site()
	if other, ok := r.sites[site]; ok && other != h {
		return errors.AlreadyHooked(site)
	}
	if err := h.Hook(replacement); err != nil {
		return err
	}
	if _, ok := r.sites[site]; !ok {
		r.sites[site] = h
		r.order = append(r.order, site)
	}
	return nil
}

// Remove unhooks the hook at site and forgets it. The hook itself is not
// closed. Unknown sites are ignored.
func (r *Registry) Remove(site uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.sites[site]
	if !ok {
		return nil
	}
	if err := h.Unhook(); err != nil {
		return err
	}
	r.forget(site)
	return nil
}

func (r *Registry) forget(site uintptr) {
	delete(r.sites, site)
	for i, s := range r.order {
		if s == site {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the hook registered at site.
func (r *Registry) Lookup(site uintptr) (Hook, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.sites[site]
	return h, ok
}

// Len returns the number of registered sites.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sites)
}

// CloseAll closes every hook, newest first.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		site := r.order[i]
		if err := r.sites[site].Close(); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(r.sites, site)
	}
	r.order = r.order[:0]
	for site := range r.sites {
		r.order = append(r.order, site)
	}
	return stderrors.Join(errs...)
}
