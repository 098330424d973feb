package main

import engine "github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1"

// SnapshotsLoadedMsg carries the snapshots of the selected run.
type SnapshotsLoadedMsg struct {
	RunID string
	Rows  []engine.SnapshotRow
}

// LoadErrorMsg indicates the selected run could not be read.
type LoadErrorMsg struct {
	Err error
}
