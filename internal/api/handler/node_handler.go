package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gridmesh/gpumarket/internal/api/dto"
	"github.com/gridmesh/gpumarket/internal/coordinator"
)

// RegisterNode handles POST /api/v1/nodes
// Registers a GPU provider node, generating a node id when none is supplied
func (h *MarketHandler) RegisterNode(c *gin.Context) {
	var req dto.RegisterNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	node, err := h.coord.RegisterNode(c.Request.Context(), coordinator.RegisterNodeParams{
		NodeID:   req.NodeID,
		Owner:    caller(c),
		GPUName:  req.GPUName,
		GPUSpecs: req.GPUSpecs,
		MemoryGB: req.MemoryGB,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, nodeDTO(node))
}

// ListNodes handles GET /api/v1/nodes
func (h *MarketHandler) ListNodes(c *gin.Context) {
	nodes := h.coord.ListNodes()

	out := make([]dto.NodeDTO, len(nodes))
	for i, node := range nodes {
		out[i] = nodeDTO(node)
	}
	c.JSON(http.StatusOK, dto.ListNodesResponse{Nodes: out})
}

// GetNode handles GET /api/v1/nodes/:node_id
func (h *MarketHandler) GetNode(c *gin.Context) {
	node, err := h.coord.GetNode(c.Param("node_id"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, nodeDTO(node))
}

// SetNodeOffline handles POST /api/v1/nodes/:node_id/offline
func (h *MarketHandler) SetNodeOffline(c *gin.Context) {
	nodeID := c.Param("node_id")

	if err := h.coord.SetNodeOffline(c.Request.Context(), nodeID, caller(c)); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"node_id": nodeID, "status": "OFFLINE"})
}
