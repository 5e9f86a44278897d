// Package orchestrator drives the watcher's poll loop: read a frame, extract
// the HUD status, debounce, notify, publish.
package orchestrator

import "time"

const (
	DefaultPollInterval  = 1 * time.Second
	DefaultNotifyTimeout = 15 * time.Second
	DefaultTitle         = "Bets are open"
	HistoryEntries       = 50
)
