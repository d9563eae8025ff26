package translator

import (
	"context"

	"pnp-bridge/cache"
	"pnp-bridge/models"
)

// executeHybrid serves aggregated status queries that combine a backend
// query with locally tracked state.
func (t *Translator) executeHybrid(ctx context.Context, cmd *models.Command) *models.Response {
	switch cmd.Type {
	case models.OpStatusGet:
		snap, err := t.backend.QueryState(ctx, []string{"print_stats", "idle_timeout", "toolhead"})
		connected := err == nil
		if err != nil {
			t.logger.Warn("status query degraded, backend unreachable", "error", err)
		}
		state := t.projectState()
		state.BackendConnected = connected
		stats := t.history.Stats()
		data := map[string]interface{}{
			"backend_connected": connected,
			"derived_state":     state,
			"queue_size":        t.queue.Size(),
			"queue_paused":      t.paused.Load(),
			"safety_level":      t.safety.Level().String(),
			"history": map[string]interface{}{
				"total":            stats.Total,
				"success_rate":     stats.SuccessRate,
				"average_duration": stats.AverageDuration.String(),
			},
		}
		if connected {
			data["backend"] = snap
		}
		return models.NewSuccessResponse(cmd, data)

	case models.OpPositionGet:
		value, err := t.cache.Get(ctx, "position", cache.CategoryPosition)
		if err != nil {
			return timeoutOr(ctx, cmd, err)
		}
		data := map[string]interface{}{"position": value}
		if m := positionMap(value); m != nil {
			data["position"] = m
		}
		return models.NewSuccessResponse(cmd, data)

	case models.OpPrinterStateGet:
		value, err := t.cache.Get(ctx, "printer_state", cache.CategoryPrinterState)
		if err != nil {
			return timeoutOr(ctx, cmd, err)
		}
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"printer_state": value,
		})
	}

	return models.NewErrorResponse(cmd, models.NewCommandError(
		models.ErrCodeNotImplemented, "hybrid operation not implemented: "+string(cmd.Type)))
}
