// Package session implements the provider registry, credential
// callbacks, and per-provider store/transport caching that make up
// the system's session glue: a sync.RWMutex-guarded map with
// panic-on-duplicate Register, generalized here into one Registry
// covering store providers, transport providers, and the auth
// mechanisms each advertises.
package session

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"github.com/infodancer/sprucemail/errors"
	"github.com/infodancer/sprucemail/store"
)

// Provider identifies a URL scheme's equivalence rule: two service
// URLs hash-equal under URLHash and URLEqual name the same backing
// service instance and should share one cached connection.
type Provider interface {
	Scheme() string
	URLHash(u *url.URL) string
	URLEqual(a, b *url.URL) bool
	AuthMechanisms() []string
}

// StoreProvider supplies folder/store instances for its scheme.
type StoreProvider interface {
	Provider
	OpenStore(ctx context.Context, u *url.URL) (store.Store, error)
}

// Transport is the minimal shape session cares about for a transport
// service: closeable, nothing else assumed.
type Transport interface {
	Close() error
}

// TransportProvider supplies transport instances for its scheme.
type TransportProvider interface {
	Provider
	OpenTransport(ctx context.Context, u *url.URL) (Transport, error)
}

// Registry holds every store and transport provider registered for
// this process, plus the service caches keyed by provider.
type Registry struct {
	mu         sync.RWMutex
	stores     map[string]StoreProvider
	transports map[string]TransportProvider

	storeCaches     map[string]*ServiceCache
	transportCaches map[string]*ServiceCache
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		stores:          make(map[string]StoreProvider),
		transports:      make(map[string]TransportProvider),
		storeCaches:     make(map[string]*ServiceCache),
		transportCaches: make(map[string]*ServiceCache),
	}
}

// RegisterStore adds a store provider. It panics if scheme is empty,
// p is nil, or scheme is already registered.
func (r *Registry) RegisterStore(p StoreProvider) {
	if p == nil {
		panic("session: RegisterStore called with nil provider")
	}
	scheme := p.Scheme()
	if scheme == "" {
		panic("session: RegisterStore called with empty scheme")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[scheme]; exists {
		panic("session: RegisterStore called twice for " + scheme)
	}
	r.stores[scheme] = p
	r.storeCaches[scheme] = newServiceCache(p)
}

// RegisterTransport adds a transport provider, with the same
// panic-on-duplicate/empty semantics as RegisterStore.
func (r *Registry) RegisterTransport(p TransportProvider) {
	if p == nil {
		panic("session: RegisterTransport called with nil provider")
	}
	scheme := p.Scheme()
	if scheme == "" {
		panic("session: RegisterTransport called with empty scheme")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transports[scheme]; exists {
		panic("session: RegisterTransport called twice for " + scheme)
	}
	r.transports[scheme] = p
	r.transportCaches[scheme] = newServiceCache(p)
}

// StoreProviderFor looks up the store provider registered for scheme.
func (r *Registry) StoreProviderFor(scheme string) (StoreProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.stores[scheme]
	return p, ok
}

// TransportProviderFor looks up the transport provider registered for
// scheme.
func (r *Registry) TransportProviderFor(scheme string) (TransportProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.transports[scheme]
	return p, ok
}

// AuthMechanismsFor returns the auth mechanisms advertised by the
// store or transport provider registered for scheme, whichever
// matches first.
func (r *Registry) AuthMechanismsFor(scheme string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.stores[scheme]; ok {
		return p.AuthMechanisms()
	}
	if p, ok := r.transports[scheme]; ok {
		return p.AuthMechanisms()
	}
	return nil
}

// RegisteredSchemes returns every scheme with a store or transport
// provider, sorted.
func (r *Registry) RegisteredSchemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for scheme := range r.stores {
		seen[scheme] = struct{}{}
	}
	for scheme := range r.transports {
		seen[scheme] = struct{}{}
	}
	schemes := make([]string, 0, len(seen))
	for scheme := range seen {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// GetStore returns the cached store.Store for u, opening and caching
// a new one via the scheme's provider if none matches.
func (r *Registry) GetStore(ctx context.Context, u *url.URL) (store.Store, error) {
	r.mu.RLock()
	provider, ok := r.stores[u.Scheme]
	cache := r.storeCaches[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.ErrStoreNotRegistered
	}

	svc, err := cache.getOrCreate(u, func() (any, error) {
		return provider.OpenStore(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return svc.(store.Store), nil
}

// GetTransport returns the cached Transport for u, opening and
// caching a new one via the scheme's provider if none matches.
func (r *Registry) GetTransport(ctx context.Context, u *url.URL) (Transport, error) {
	r.mu.RLock()
	provider, ok := r.transports[u.Scheme]
	cache := r.transportCaches[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.ErrTransportNotRegistered
	}

	svc, err := cache.getOrCreate(u, func() (any, error) {
		return provider.OpenTransport(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return svc.(Transport), nil
}

// EvictStore drops u's cached store so a later GetStore reopens it.
func (r *Registry) EvictStore(u *url.URL) {
	r.mu.RLock()
	cache := r.storeCaches[u.Scheme]
	r.mu.RUnlock()
	if cache != nil {
		cache.Evict(u)
	}
}

// EvictTransport drops u's cached transport so a later GetTransport
// reopens it.
func (r *Registry) EvictTransport(u *url.URL) {
	r.mu.RLock()
	cache := r.transportCaches[u.Scheme]
	r.mu.RUnlock()
	if cache != nil {
		cache.Evict(u)
	}
}
