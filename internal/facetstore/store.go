// Package facetstore defines the side table that associates runtime facets
// with tree nodes.
//
// # Why a Side Table
//
// Nodes belong to the tree substrate and carry only tag, attributes and
// children. Everything the runtime attaches to a node lives here, keyed by
// tree.NodeID:
//   - **Provider facet:** the node's *provider.Provider, if it hosts context
//     declarations and its resolution has not failed
//   - **Consumer facet:** attribute name to binding disposer, present while at
//     least one binding is active
//   - **Binding epoch:** a counter bumped on every re-initialization, used to
//     discard binding work queued before the bump
//
// # Invariants
//
// At most one provider facet per node and at most one disposer per
// (node, attribute). The lifecycle engine disposes the previous facet before
// installing a new one; a store rejects a second binding for the same
// attribute with ErrAlreadyBound.
//
// # Thread-Safety
//
// Facets are written only from the queue goroutine. Implementations must still
// allow Stats to be read concurrently, e.g. by the health endpoint.
package facetstore

import (
	"errors"

	"github.com/specialistvlad/livebind/internal/provider"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/tree"
)

// ErrAlreadyBound is returned when a binding is installed over a live one.
var ErrAlreadyBound = errors.New("attribute already bound")

// Stats is a snapshot of the store's size.
type Stats struct {
	Providers int64 `json:"providers"`
	Bindings  int64 `json:"bindings"`
	Nodes     int64 `json:"nodes"`
}

// Store holds the facets of every live node.
type Store interface {
	// Provider returns the provider facet of a node.
	Provider(id tree.NodeID) (*provider.Provider, bool)

	// SetProvider installs a provider facet, replacing any previous one. The
	// caller disposes the previous facet first.
	SetProvider(id tree.NodeID, p *provider.Provider)

	// DeleteProvider removes and returns a node's provider facet.
	DeleteProvider(id tree.NodeID) (*provider.Provider, bool)

	// SetBinding records the disposer of a (node, attribute) binding.
	// Returns ErrAlreadyBound if one is already recorded.
	SetBinding(id tree.NodeID, attribute string, dispose reactive.Disposer) error

	// DeleteBinding removes and returns one binding's disposer.
	DeleteBinding(id tree.NodeID, attribute string) (reactive.Disposer, bool)

	// TakeBindings removes and returns all of a node's bindings.
	TakeBindings(id tree.NodeID) map[string]reactive.Disposer

	// Bindings returns the sorted attribute names bound on a node.
	Bindings(id tree.NodeID) []string

	// Epoch returns a node's current binding epoch.
	Epoch(id tree.NodeID) uint64

	// BumpEpoch invalidates pending binding work for a node and returns the new epoch.
	BumpEpoch(id tree.NodeID) uint64

	// Forget drops whatever bookkeeping remains for a node with no facets.
	Forget(id tree.NodeID)

	// Stats reports current counts. Safe for concurrent use.
	Stats() Stats
}
