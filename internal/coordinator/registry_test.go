package coordinator

import (
	"testing"

	"github.com/gridmesh/gpumarket/internal/coordinator/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	node := &domain.Node{NodeID: "node-1", Owner: "provider", Status: domain.NodeStatusBusy}
	require.NoError(t, registry.Register(node))

	// Registration always starts a node IDLE regardless of the passed status.
	got, err := registry.Get("node-1")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeStatusIdle, got.Status)

	assert.ErrorIs(t, registry.Register(&domain.Node{NodeID: "node-1"}), domain.ErrDuplicateNodeID)

	_, err = registry.Get("nope")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestRegistry_SetStatus(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&domain.Node{NodeID: "node-1"}))

	require.NoError(t, registry.SetStatus("node-1", domain.NodeStatusOffline))
	node, err := registry.Get("node-1")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeStatusOffline, node.Status)

	assert.ErrorIs(t, registry.SetStatus("nope", domain.NodeStatusIdle), domain.ErrNodeNotFound)
}

func TestEligible(t *testing.T) {
	tests := []struct {
		name     string
		node     *domain.Node
		specs    string
		minMem   int
		eligible bool
	}{
		{
			name:     "exact match with enough memory",
			node:     &domain.Node{Status: domain.NodeStatusIdle, GPUSpecs: "RTX4090-24GB", MemoryGB: 24},
			specs:    "RTX4090-24GB",
			minMem:   16,
			eligible: true,
		},
		{
			name:     "memory exactly at the minimum",
			node:     &domain.Node{Status: domain.NodeStatusIdle, GPUSpecs: "RTX4090-24GB", MemoryGB: 16},
			specs:    "RTX4090-24GB",
			minMem:   16,
			eligible: true,
		},
		{
			name:     "spec string mismatch",
			node:     &domain.Node{Status: domain.NodeStatusIdle, GPUSpecs: "rtx4090-24gb", MemoryGB: 24},
			specs:    "RTX4090-24GB",
			minMem:   16,
			eligible: false,
		},
		{
			name:     "not enough memory",
			node:     &domain.Node{Status: domain.NodeStatusIdle, GPUSpecs: "RTX4090-24GB", MemoryGB: 8},
			specs:    "RTX4090-24GB",
			minMem:   16,
			eligible: false,
		},
		{
			name:     "busy node",
			node:     &domain.Node{Status: domain.NodeStatusBusy, GPUSpecs: "RTX4090-24GB", MemoryGB: 24},
			specs:    "RTX4090-24GB",
			minMem:   16,
			eligible: false,
		},
		{
			name:     "offline node",
			node:     &domain.Node{Status: domain.NodeStatusOffline, GPUSpecs: "RTX4090-24GB", MemoryGB: 24},
			specs:    "RTX4090-24GB",
			minMem:   16,
			eligible: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eligible, Eligible(tt.node, tt.specs, tt.minMem))
		})
	}
}

func TestRegistry_FindEligible(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&domain.Node{NodeID: "node-1", GPUSpecs: "RTX4090-24GB", MemoryGB: 24}))
	require.NoError(t, registry.Register(&domain.Node{NodeID: "node-2", GPUSpecs: "A100-80GB", MemoryGB: 80}))
	require.NoError(t, registry.Register(&domain.Node{NodeID: "node-3", GPUSpecs: "RTX4090-24GB", MemoryGB: 24}))

	matches := registry.FindEligible("RTX4090-24GB", 16)
	require.Len(t, matches, 2)
	// Registration order.
	assert.Equal(t, "node-1", matches[0].NodeID)
	assert.Equal(t, "node-3", matches[1].NodeID)

	// A node that goes busy drops out on the next call.
	require.NoError(t, registry.SetStatus("node-1", domain.NodeStatusBusy))
	matches = registry.FindEligible("RTX4090-24GB", 16)
	require.Len(t, matches, 1)
	assert.Equal(t, "node-3", matches[0].NodeID)

	assert.Empty(t, registry.FindEligible("H100-80GB", 16))
}
