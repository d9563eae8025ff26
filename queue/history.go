package queue

import (
	"sync"
	"time"

	"pnp-bridge/models"
)

// HistoryEntry pairs a completed command with its response.
type HistoryEntry struct {
	Command  *models.Command
	Response *models.Response
}

// HistoryStats aggregates past executions.
type HistoryStats struct {
	Total           int
	ByStatus        map[models.ResponseStatus]int
	SuccessRate     float64
	AverageDuration time.Duration
}

// ExecutionHistory is a bounded ring of past executions. The consumer
// appends; callers only read.
type ExecutionHistory struct {
	mu       sync.RWMutex
	entries  []HistoryEntry
	capacity int
}

// NewExecutionHistory creates a history ring with the given capacity.
func NewExecutionHistory(capacity int) *ExecutionHistory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ExecutionHistory{capacity: capacity}
}

// Record appends a completed execution, evicting the oldest entry on
// overflow.
func (h *ExecutionHistory) Record(cmd *models.Command, resp *models.Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, HistoryEntry{Command: cmd, Response: resp})
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
}

// Recent returns up to limit entries, newest last. limit <= 0 returns all.
func (h *ExecutionHistory) Recent(limit int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entries := h.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// Len returns the number of retained entries.
func (h *ExecutionHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Clear drops all retained entries.
func (h *ExecutionHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// Stats returns counts by status, the success rate, and the average
// execution duration across retained entries.
func (h *ExecutionHistory) Stats() HistoryStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HistoryStats{
		Total:    len(h.entries),
		ByStatus: make(map[models.ResponseStatus]int),
	}
	if stats.Total == 0 {
		return stats
	}
	var totalDuration time.Duration
	for _, e := range h.entries {
		stats.ByStatus[e.Response.Status]++
		totalDuration += e.Response.ExecutionTime
	}
	stats.SuccessRate = float64(stats.ByStatus[models.ResponseSuccess]) / float64(stats.Total)
	stats.AverageDuration = totalDuration / time.Duration(stats.Total)
	return stats
}
