package translator

import (
	"context"

	"pnp-bridge/cache"
	"pnp-bridge/models"
)

// executeSequence renders the command's instruction template and submits the
// whole sequence to the backend in one call, so multi-step operations cannot
// interleave with other traffic.
func (t *Translator) executeSequence(ctx context.Context, cmd *models.Command) *models.Response {
	seq, err := t.asm.Assemble(cmd.Type, cmd.Parameters)
	if err != nil {
		return models.NewErrorResponse(cmd, err)
	}

	resp := models.NewSuccessResponse(cmd, map[string]interface{}{
		"instructions":      seq,
		"instruction_count": len(seq),
	})
	for _, axis := range t.unhomedAxes(cmd) {
		resp.AddWarning("axis " + axis + " has not been homed")
	}

	if err := t.backend.Execute(ctx, seq); err != nil {
		return timeoutOr(ctx, cmd, err)
	}

	t.applySideEffects(cmd)
	return resp
}

// applySideEffects updates the state cache after a successful mutation so
// reads in the next few hundred milliseconds see the commanded state instead
// of a stale snapshot.
func (t *Translator) applySideEffects(cmd *models.Command) {
	p := cmd.Parameters
	switch cmd.Type {
	case models.OpMove, models.OpMoveAbsolute, models.OpMoveRelative,
		models.OpPick, models.OpPlace, models.OpPickAndPlace:
		// The commanded target is not the settled position; force a refetch.
		t.cache.Invalidate("position")

	case models.OpHome:
		t.cache.Invalidate("position")
		t.markHomed(p)

	case models.OpVacuumOn:
		t.cache.Set("vacuum", p.FloatOr("power", 255), 0, cache.CategoryActuator)
	case models.OpVacuumOff:
		t.cache.Set("vacuum", 0.0, 0, cache.CategoryActuator)
	case models.OpVacuumSet:
		t.cache.Set("vacuum", p.FloatOr("power", 0), 0, cache.CategoryActuator)

	case models.OpFanOn:
		t.cache.Set("fan", p.FloatOr("speed", 1.0), 0, cache.CategoryFan)
	case models.OpFanOff:
		t.cache.Set("fan", 0.0, 0, cache.CategoryFan)

	case models.OpActuate:
		if pin, ok := p.String("pin"); ok {
			t.cache.Set("actuator:"+pin, p.FloatOr("value", 1), 0, cache.CategoryActuator)
		}
	case models.OpActuateOn:
		if pin, ok := p.String("pin"); ok {
			t.cache.Set("actuator:"+pin, 1.0, 0, cache.CategoryActuator)
		}
	case models.OpActuateOff:
		if pin, ok := p.String("pin"); ok {
			t.cache.Set("actuator:"+pin, 0.0, 0, cache.CategoryActuator)
		}

	case models.OpGPIOWrite:
		if pin, ok := p.String("pin"); ok {
			t.cache.Set("gpio:"+pin, p.FloatOr("value", 0), 0, cache.CategoryGPIO)
		}
	}
}
