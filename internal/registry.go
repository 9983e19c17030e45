package internal

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/databiosphere/tablesmasher"
)

// Presence is the tri-state result of a registry lookup.
type Presence int

const (
	// PresenceUnknown means the registry has never been loaded; callers
	// must Refresh before trusting an answer.
	PresenceUnknown Presence = iota
	PresenceAbsent
	PresenceExists
)

// Registry is a lazily populated cache of table name to table info. It is
// never implicitly invalidated: a table written or deleted elsewhere in
// the same run is invisible until an explicit Refresh.
type Registry struct {
	store tablesmasher.TableStore
	retry tablesmasher.RetryPolicy

	mu     sync.Mutex
	info   map[string]tablesmasher.TableInfo
	loaded bool
}

// NewRegistry creates an unloaded registry over the store with the given
// retry policy.
func NewRegistry(store tablesmasher.TableStore, retry tablesmasher.RetryPolicy) *Registry {
	return &Registry{store: store, retry: retry}
}

// Refresh reloads the whole table listing from the store. Transient
// listing failures are retried per the policy.
func (r *Registry) Refresh(ctx context.Context) error {
	var info map[string]tablesmasher.TableInfo
	err := r.retry.Do(ctx, "list_tables", func() error {
		var listErr error
		info, listErr = r.store.ListTables(ctx)
		return listErr
	})
	if err != nil {
		r.mu.Lock()
		r.info = nil
		r.loaded = false
		r.mu.Unlock()
		return err
	}
	r.mu.Lock()
	r.info = info
	r.loaded = true
	r.mu.Unlock()
	zap.S().Debugw("refreshed table registry", "table_count", len(info))
	return nil
}

func (r *Registry) ensure(ctx context.Context) error {
	r.mu.Lock()
	loaded := r.loaded
	r.mu.Unlock()
	if loaded {
		return nil
	}
	return r.Refresh(ctx)
}

// Lookup answers from cache without touching the store. The result is
// PresenceUnknown until the registry has been loaded.
func (r *Registry) Lookup(name string) (tablesmasher.TableInfo, Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return tablesmasher.TableInfo{}, PresenceUnknown
	}
	info, ok := r.info[name]
	if !ok {
		return tablesmasher.TableInfo{}, PresenceAbsent
	}
	return info, PresenceExists
}

// Exists loads the registry if needed and reports whether the table is
// present, serving from cache otherwise.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	if err := r.ensure(ctx); err != nil {
		return false, err
	}
	_, p := r.Lookup(name)
	return p == PresenceExists, nil
}

// TableInfo returns the cached info for a table, reloading first when
// refresh is true.
func (r *Registry) TableInfo(ctx context.Context, name string, refresh bool) (tablesmasher.TableInfo, Presence, error) {
	if refresh {
		if err := r.Refresh(ctx); err != nil {
			return tablesmasher.TableInfo{}, PresenceUnknown, err
		}
	} else if err := r.ensure(ctx); err != nil {
		return tablesmasher.TableInfo{}, PresenceUnknown, err
	}
	info, p := r.Lookup(name)
	return info, p, nil
}

// TableNames returns the cached table names, loading the registry if needed.
func (r *Registry) TableNames(ctx context.Context) ([]string, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.info))
	for name := range r.info {
		names = append(names, name)
	}
	return names, nil
}
