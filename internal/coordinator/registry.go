package coordinator

import (
	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
)

// Registry owns all node records. Like JobStore it relies on the coordinator
// lock for synchronization. Nodes are never deleted; owners mark them OFFLINE.
type Registry struct {
	nodes map[string]*domain.Node
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[string]*domain.Node),
	}
}

// Register inserts a new node in IDLE state. Fails with ErrDuplicateNodeID.
func (r *Registry) Register(node *domain.Node) error {
	if _, exists := r.nodes[node.NodeID]; exists {
		return domain.ErrDuplicateNodeID
	}
	node.Status = domain.NodeStatusIdle
	r.nodes[node.NodeID] = node
	r.order = append(r.order, node.NodeID)
	return nil
}

// Get returns the live node record, or ErrNodeNotFound.
func (r *Registry) Get(nodeID string) (*domain.Node, error) {
	node, exists := r.nodes[nodeID]
	if !exists {
		return nil, domain.ErrNodeNotFound
	}
	return node, nil
}

// List returns all nodes in registration order.
func (r *Registry) List() []*domain.Node {
	out := make([]*domain.Node, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.nodes[id])
	}
	return out
}

// SetStatus updates a node's status. Fails with ErrNodeNotFound.
func (r *Registry) SetStatus(nodeID, status string) error {
	node, exists := r.nodes[nodeID]
	if !exists {
		return domain.ErrNodeNotFound
	}
	node.Status = status
	return nil
}

// Eligible reports whether a node can take a job with the given requirements:
// IDLE, exact spec string match, and enough memory. Spec matching is plain
// string equality; there is no normalization or scoring.
func Eligible(node *domain.Node, requiredSpecs string, minMemoryGB int) bool {
	return node.Status == domain.NodeStatusIdle &&
		node.GPUSpecs == requiredSpecs &&
		node.MemoryGB >= minMemoryGB
}

// FindEligible returns the IDLE nodes matching the requirements, recomputed
// on every call, in registration order.
func (r *Registry) FindEligible(requiredSpecs string, minMemoryGB int) []*domain.Node {
	var out []*domain.Node
	for _, id := range r.order {
		if node := r.nodes[id]; Eligible(node, requiredSpecs, minMemoryGB) {
			out = append(out, node)
		}
	}
	return out
}
