// Package inmemorystore provides an ephemeral, in-memory implementation of
// the facetstore.Store interface.
//
// # Concurrency Model
//
// Facets are keyed by node identity in sync.Maps. Writes come from the queue
// goroutine only, while the health endpoint reads Stats from its own goroutine,
// so counts are kept in atomics instead of being derived by ranging the maps.
package inmemorystore

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/livebind/internal/facetstore"
	"github.com/specialistvlad/livebind/internal/provider"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/tree"
)

// Store is an in-memory implementation of facetstore.Store.
type Store struct {
	providers sync.Map // Key: tree.NodeID, Value: *provider.Provider
	consumers sync.Map // Key: tree.NodeID, Value: *consumer
	epochs    sync.Map // Key: tree.NodeID, Value: uint64

	epochSeq      atomic.Uint64
	providerCount atomic.Int64
	bindingCount  atomic.Int64
	nodeCount     atomic.Int64
}

type consumer struct {
	mu       sync.Mutex
	bindings map[string]reactive.Disposer
}

// New creates a new, empty facet store.
func New() facetstore.Store {
	return &Store{}
}

// Provider returns the provider facet of a node.
func (s *Store) Provider(id tree.NodeID) (*provider.Provider, bool) {
	p, ok := s.providers.Load(id)
	if !ok {
		return nil, false
	}
	return p.(*provider.Provider), true
}

// SetProvider installs a provider facet.
func (s *Store) SetProvider(id tree.NodeID, p *provider.Provider) {
	if _, loaded := s.providers.Swap(id, p); !loaded {
		s.providerCount.Add(1)
	}
}

// DeleteProvider removes and returns a node's provider facet.
func (s *Store) DeleteProvider(id tree.NodeID) (*provider.Provider, bool) {
	p, ok := s.providers.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	s.providerCount.Add(-1)
	return p.(*provider.Provider), true
}

func (s *Store) consumer(id tree.NodeID, create bool) *consumer {
	if c, ok := s.consumers.Load(id); ok {
		return c.(*consumer)
	}
	if !create {
		return nil
	}
	c, loaded := s.consumers.LoadOrStore(id, &consumer{bindings: make(map[string]reactive.Disposer)})
	if !loaded {
		s.nodeCount.Add(1)
	}
	return c.(*consumer)
}

// SetBinding records the disposer of a (node, attribute) binding.
func (s *Store) SetBinding(id tree.NodeID, attribute string, dispose reactive.Disposer) error {
	c := s.consumer(id, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.bindings[attribute]; exists {
		return facetstore.ErrAlreadyBound
	}
	c.bindings[attribute] = dispose
	s.bindingCount.Add(1)
	return nil
}

// DeleteBinding removes and returns one binding's disposer. The consumer facet
// goes away with its last binding.
func (s *Store) DeleteBinding(id tree.NodeID, attribute string) (reactive.Disposer, bool) {
	c := s.consumer(id, false)
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	dispose, ok := c.bindings[attribute]
	if ok {
		delete(c.bindings, attribute)
		s.bindingCount.Add(-1)
	}
	empty := len(c.bindings) == 0
	c.mu.Unlock()
	if empty {
		s.dropConsumer(id)
	}
	return dispose, ok
}

// TakeBindings removes and returns all of a node's bindings.
func (s *Store) TakeBindings(id tree.NodeID) map[string]reactive.Disposer {
	c := s.consumer(id, false)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	taken := c.bindings
	c.bindings = make(map[string]reactive.Disposer)
	s.bindingCount.Add(-int64(len(taken)))
	c.mu.Unlock()
	s.dropConsumer(id)
	return taken
}

func (s *Store) dropConsumer(id tree.NodeID) {
	if _, loaded := s.consumers.LoadAndDelete(id); loaded {
		s.nodeCount.Add(-1)
	}
}

// Bindings returns the sorted attribute names bound on a node.
func (s *Store) Bindings(id tree.NodeID) []string {
	c := s.consumer(id, false)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.bindings))
	for name := range c.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Epoch returns a node's current binding epoch; zero if never bumped.
func (s *Store) Epoch(id tree.NodeID) uint64 {
	e, ok := s.epochs.Load(id)
	if !ok {
		return 0
	}
	return e.(uint64)
}

// BumpEpoch gives a node a fresh binding epoch. Epochs come from one
// store-wide sequence, so a forgotten node never sees an epoch repeat.
func (s *Store) BumpEpoch(id tree.NodeID) uint64 {
	next := s.epochSeq.Add(1)
	s.epochs.Store(id, next)
	return next
}

// Forget drops a node's epoch. Facets must already be gone.
func (s *Store) Forget(id tree.NodeID) {
	s.epochs.Delete(id)
}

// Stats reports current counts.
func (s *Store) Stats() facetstore.Stats {
	return facetstore.Stats{
		Providers: s.providerCount.Load(),
		Bindings:  s.bindingCount.Load(),
		Nodes:     s.nodeCount.Load(),
	}
}
