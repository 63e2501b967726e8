package domain

import "time"

// Node status constants
const (
	NodeStatusIdle    = "IDLE"
	NodeStatusBusy    = "BUSY"
	NodeStatusOffline = "OFFLINE"
)

// Node represents a registered GPU provider. A BUSY node has exactly one
// active job, recorded in ActiveJobID.
type Node struct {
	NodeID       string
	Owner        string
	GPUName      string
	GPUSpecs     string
	MemoryGB     int
	Status       string
	ActiveJobID  string
	RegisteredAt time.Time
}

// Clone returns a copy safe to hand to readers outside the coordinator lock.
func (n *Node) Clone() *Node {
	c := *n
	return &c
}
