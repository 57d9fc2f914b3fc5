package domain

import "time"

// SyncSummary describes one run of mirroring the taxonomy into the database.
type SyncSummary struct {
	SyncedAt       time.Time     `json:"syncedAt"`
	Nodes          map[Level]int `json:"nodes"`
	Removed        int64         `json:"removed"`
	FailedBranches []string      `json:"failedBranches,omitempty"`
}
