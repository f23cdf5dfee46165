package normalize

import (
	"strings"

	"gitlab.com/nunet/nosana-node-monitor/models"
)

// statusTable maps upper-cased upstream vocabulary to the canonical status.
var statusTable = map[string]models.NodeStatus{
	"OTHER":   models.StatusRunning,
	"QUEUED":  models.StatusQueued,
	"RUNNING": models.StatusRunning,
	"ONLINE":  models.StatusRunning,
	"OFFLINE": models.StatusOffline,
	"STOPPED": models.StatusOffline,
	"ERROR":   models.StatusOffline,
}

// NormalizeStatus derives the canonical status from the upstream state.
// A failed info fetch is always Offline. A reachable node reporting an
// unknown or empty state is treated as Running.
func NormalizeStatus(state *string, fetched bool) models.NodeStatus {
	if !fetched {
		return models.StatusOffline
	}
	if state == nil {
		return models.StatusRunning
	}
	if s, ok := statusTable[strings.ToUpper(strings.TrimSpace(*state))]; ok {
		return s
	}
	return models.StatusRunning
}
