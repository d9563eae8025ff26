package translator

import (
	"context"
	"fmt"
	"strconv"

	"pnp-bridge/cache"
	"pnp-bridge/models"
)

// executeDirect serves commands that bypass template assembly: cached state
// reads, single-instruction mutations, and queue control.
func (t *Translator) executeDirect(ctx context.Context, cmd *models.Command) *models.Response {
	p := cmd.Parameters
	switch cmd.Type {
	case models.OpGPIORead:
		pin, ok := p.String("pin")
		if !ok {
			return models.NewErrorResponse(cmd, models.NewMissingParameterError("pin"))
		}
		value, err := t.cache.Get(ctx, "gpio:"+pin, cache.CategoryGPIO)
		if err != nil {
			return timeoutOr(ctx, cmd, err)
		}
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"pin": pin, "value": value,
		})

	case models.OpSensorRead:
		name, ok := p.String("sensor")
		if !ok {
			return models.NewErrorResponse(cmd, models.NewMissingParameterError("sensor"))
		}
		value, err := t.cache.Get(ctx, "sensor:"+name, cache.CategorySensor)
		if err != nil {
			return timeoutOr(ctx, cmd, err)
		}
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"sensor": name, "value": value,
		})

	case models.OpSensorReadAll:
		value, err := t.cache.Get(ctx, "sensor:all", cache.CategorySensor)
		if err != nil {
			return timeoutOr(ctx, cmd, err)
		}
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"sensors": value,
		})

	case models.OpFanSet:
		// Speed is validated as a 0..1 fraction; the wire value is 0..255.
		speed := p.FloatOr("speed", 0)
		line := models.Instruction("M106 S" + formatNum(speed*255))
		if err := t.backend.Execute(ctx, models.InstructionSequence{line}); err != nil {
			return timeoutOr(ctx, cmd, err)
		}
		t.cache.Set("fan", speed, 0, cache.CategoryFan)
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"speed": speed,
		})

	case models.OpPWMSet:
		pin, _ := p.String("pin")
		value := p.FloatOr("value", 0)
		line := setPinInstruction(pin, value)
		if err := t.backend.Execute(ctx, models.InstructionSequence{line}); err != nil {
			return timeoutOr(ctx, cmd, err)
		}
		t.cache.Set("pwm:"+pin, value, 0, cache.CategoryPWM)
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"pin": pin, "value": value,
		})

	case models.OpPWMRamp:
		return t.executePWMRamp(ctx, cmd)

	case models.OpQueueStatus:
		entries := t.queue.Snapshot()
		pending := make([]map[string]interface{}, 0, len(entries))
		for _, e := range entries {
			pending = append(pending, map[string]interface{}{
				"command_id": e.Command.ID,
				"type":       e.Command.Type,
				"priority":   e.Command.Priority,
				"enqueued":   e.EnqueuedAt,
			})
		}
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"size":    t.queue.Size(),
			"paused":  t.paused.Load(),
			"pending": pending,
		})

	case models.OpQueueClear:
		cleared := t.queue.Clear()
		t.logger.Info("queue cleared", "count", cleared)
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"cleared": cleared,
		})

	case models.OpCancel:
		id, _ := p.String("command_id")
		if err := t.queue.Cancel(id); err != nil {
			return models.NewErrorResponse(cmd, err)
		}
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"cancelled": id,
		})

	case models.OpPause:
		t.paused.Store(true)
		t.logger.Info("queue consumption paused")
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"paused": true,
		})

	case models.OpResume:
		t.paused.Store(false)
		t.logger.Info("queue consumption resumed")
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"paused": false,
		})

	case models.OpReset:
		if err := t.ResetEmergency(); err != nil {
			return models.NewErrorResponse(cmd, err)
		}
		return models.NewSuccessResponse(cmd, map[string]interface{}{
			"safety_level": t.safety.Level().String(),
		})
	}

	return models.NewErrorResponse(cmd, models.NewCommandError(
		models.ErrCodeNotImplemented, "direct operation not implemented: "+string(cmd.Type)))
}

// executePWMRamp emits the ramp as a single backend sequence of SET_PIN
// steps with dwells in between, so the ramp cannot be interleaved with
// another command's output.
func (t *Translator) executePWMRamp(ctx context.Context, cmd *models.Command) *models.Response {
	p := cmd.Parameters
	pin, _ := p.String("pin")
	start := p.FloatOr("start_value", 0)
	end := p.FloatOr("end_value", 1)
	steps := p.IntOr("steps", 10)
	if steps < 1 {
		return models.NewErrorResponse(cmd, models.NewCommandError(
			models.ErrCodeInvalidParameter, "steps must be at least 1"))
	}
	durationMs := p.FloatOr("duration_ms", 1000)
	dwell := durationMs / float64(steps)

	seq := make(models.InstructionSequence, 0, steps*2)
	for i := 1; i <= steps; i++ {
		value := start + (end-start)*float64(i)/float64(steps)
		seq = append(seq, setPinInstruction(pin, value))
		if i < steps && dwell > 0 {
			seq = append(seq, models.Instruction("G4 P"+formatNum(dwell)))
		}
	}
	if err := t.backend.Execute(ctx, seq); err != nil {
		return timeoutOr(ctx, cmd, err)
	}
	t.cache.Set("pwm:"+pin, end, 0, cache.CategoryPWM)
	return models.NewSuccessResponse(cmd, map[string]interface{}{
		"pin": pin, "start_value": start, "end_value": end, "steps": steps,
	})
}

func setPinInstruction(pin string, value float64) models.Instruction {
	return models.Instruction(fmt.Sprintf("SET_PIN PIN=%s VALUE=%s", pin, formatNum(value)))
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
