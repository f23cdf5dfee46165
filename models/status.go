package models

// NodeStatus is the canonical node state derived from upstream signals.
type NodeStatus string

const (
	StatusOffline NodeStatus = "Offline"
	StatusQueued  NodeStatus = "Queued"
	StatusRunning NodeStatus = "Running"
)

// InitialStatus is the state a node is assumed to be in before the first cycle.
const InitialStatus = StatusOffline

func (s NodeStatus) String() string {
	return string(s)
}

// TriggerType is the lower-case name used for status transition triggers.
func (s NodeStatus) TriggerType() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusQueued:
		return "queued"
	default:
		return "offline"
	}
}
