package assembler

import (
	"fmt"
	"strconv"

	"pnp-bridge/models"
)

// Built-in instruction templates. Rendering mirrors the backend's G-code
// dialect: G0/G28 motion, M106/M107 fan-circuit outputs (the vacuum ejector
// rides the fan circuit), SET_PIN digital outputs.

const (
	defaultFeedrate     = 1500.0
	defaultVacuumPower  = 255.0
	defaultTravelHeight = 5.0
	defaultSafeHeight   = 10.0
)

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func g0(f float64, axes ...string) models.Instruction {
	line := "G0"
	for _, a := range axes {
		line += " " + a
	}
	return models.Instruction(line + " F" + num(f))
}

func registerDefaultTemplates(a *Assembler) {
	a.templates[string(models.OpMove)] = moveTemplate
	a.templates[string(models.OpMoveAbsolute)] = moveAbsoluteTemplate
	a.templates[string(models.OpMoveRelative)] = moveRelativeTemplate
	a.templates[string(models.OpHome)] = homeTemplate
	a.templates[string(models.OpPick)] = pickTemplate
	a.templates[string(models.OpPlace)] = placeTemplate
	a.templates[string(models.OpPickAndPlace)] = pickAndPlaceTemplate
	a.templates[string(models.OpActuate)] = actuateTemplate(nil)
	a.templates[string(models.OpActuateOn)] = actuateTemplate(floatPtr(1))
	a.templates[string(models.OpActuateOff)] = actuateTemplate(floatPtr(0))
	a.templates[string(models.OpVacuumOn)] = vacuumOnTemplate
	a.templates[string(models.OpVacuumOff)] = staticTemplate("M107")
	a.templates[string(models.OpVacuumSet)] = vacuumSetTemplate
	a.templates[string(models.OpFanOn)] = fanOnTemplate
	a.templates[string(models.OpFanOff)] = staticTemplate("M107")
	a.templates[string(models.OpGPIOWrite)] = actuateTemplate(nil)
	a.templates[string(models.OpFeederAdvance)] = feederTemplate(1)
	a.templates[string(models.OpFeederRetract)] = feederTemplate(-1)
}

func staticTemplate(line models.Instruction) Template {
	return func(models.Params) (models.InstructionSequence, error) {
		return models.InstructionSequence{line}, nil
	}
}

func floatPtr(f float64) *float64 { return &f }

func moveTemplate(p models.Params) (models.InstructionSequence, error) {
	var axes []string
	if x, ok := p.Float("x"); ok {
		axes = append(axes, "X"+num(x))
	}
	if y, ok := p.Float("y"); ok {
		axes = append(axes, "Y"+num(y))
	}
	if z, ok := p.Float("z"); ok {
		axes = append(axes, "Z"+num(z))
	}
	if len(axes) == 0 {
		return nil, models.NewMissingParameterError("x|y|z")
	}
	f := p.FloatOr("feedrate", defaultFeedrate)
	return models.InstructionSequence{g0(f, axes...)}, nil
}

func moveAbsoluteTemplate(p models.Params) (models.InstructionSequence, error) {
	move, err := moveTemplate(p)
	if err != nil {
		return nil, err
	}
	return append(models.InstructionSequence{"G90"}, move...), nil
}

// moveRelativeTemplate restores absolute mode afterwards so a later command
// never inherits relative positioning.
func moveRelativeTemplate(p models.Params) (models.InstructionSequence, error) {
	move, err := moveTemplate(p)
	if err != nil {
		return nil, err
	}
	seq := append(models.InstructionSequence{"G91"}, move...)
	return append(seq, "G90"), nil
}

func homeTemplate(p models.Params) (models.InstructionSequence, error) {
	axes := p.StringOr("axes", "all")
	if axes == "all" || axes == "" {
		return models.InstructionSequence{"G28"}, nil
	}
	return models.InstructionSequence{models.Instruction("G28 " + axes)}, nil
}

func pickTemplate(p models.Params) (models.InstructionSequence, error) {
	z := p.FloatOr("z", p.FloatOr("pick_height", 0))
	f := p.FloatOr("feedrate", defaultFeedrate)
	power := p.FloatOr("vacuum_power", defaultVacuumPower)
	travel := p.FloatOr("travel_height", defaultTravelHeight)
	return models.InstructionSequence{
		g0(f, "Z"+num(z)),
		models.Instruction("M106 S" + num(power)),
		g0(f, "Z"+num(travel)),
	}, nil
}

func placeTemplate(p models.Params) (models.InstructionSequence, error) {
	z := p.FloatOr("z", p.FloatOr("place_height", 0))
	f := p.FloatOr("feedrate", defaultFeedrate)
	travel := p.FloatOr("travel_height", defaultTravelHeight)
	return models.InstructionSequence{
		g0(f, "Z"+num(z)),
		"M107",
		g0(f, "Z"+num(travel)),
	}, nil
}

// pickAndPlaceTemplate emits the fixed nine-step sequence. The safe-height
// legs between travel moves are a correctness contract: the hardware cannot
// skip them without risking collision, so the order here never changes.
func pickAndPlaceTemplate(p models.Params) (models.InstructionSequence, error) {
	pickX := p.FloatOr("x", 0)
	pickY := p.FloatOr("y", 0)
	placeX := p.FloatOr("place_x", 0)
	placeY := p.FloatOr("place_y", 0)
	pickZ := p.FloatOr("pick_height", 0)
	placeZ := p.FloatOr("place_height", 0)
	safe := p.FloatOr("safe_height", defaultSafeHeight)
	f := p.FloatOr("feedrate", defaultFeedrate)
	power := p.FloatOr("vacuum_power", defaultVacuumPower)

	return models.InstructionSequence{
		g0(f, "Z"+num(safe)),
		g0(f, "X"+num(pickX), "Y"+num(pickY)),
		g0(f, "Z"+num(pickZ)),
		models.Instruction("M106 S" + num(power)),
		g0(f, "Z"+num(safe)),
		g0(f, "X"+num(placeX), "Y"+num(placeY)),
		g0(f, "Z"+num(placeZ)),
		"M107",
		g0(f, "Z"+num(safe)),
	}, nil
}

// actuateTemplate renders SET_PIN. A non-nil forced value pins VALUE to it
// (actuate_on/actuate_off); otherwise the "value" parameter is used.
func actuateTemplate(forced *float64) Template {
	return func(p models.Params) (models.InstructionSequence, error) {
		pin, ok := p.String("pin")
		if !ok || pin == "" {
			return nil, models.NewMissingParameterError("pin")
		}
		value := 1.0
		if forced != nil {
			value = *forced
		} else if v, ok := p.Float("value"); ok {
			value = v
		}
		line := fmt.Sprintf("SET_PIN PIN=%s VALUE=%s", pin, num(value))
		return models.InstructionSequence{models.Instruction(line)}, nil
	}
}

func vacuumOnTemplate(p models.Params) (models.InstructionSequence, error) {
	power := p.FloatOr("power", defaultVacuumPower)
	return models.InstructionSequence{models.Instruction("M106 S" + num(power))}, nil
}

func vacuumSetTemplate(p models.Params) (models.InstructionSequence, error) {
	power := p.FloatOr("power", 0)
	return models.InstructionSequence{models.Instruction("M106 S" + num(power))}, nil
}

func fanOnTemplate(p models.Params) (models.InstructionSequence, error) {
	speed := p.FloatOr("speed", 255)
	return models.InstructionSequence{models.Instruction("M106 S" + num(speed))}, nil
}

func feederTemplate(direction float64) Template {
	return func(p models.Params) (models.InstructionSequence, error) {
		distance := p.FloatOr("distance", 10)
		f := p.FloatOr("feedrate", 100)
		return models.InstructionSequence{
			models.Instruction("G0 E" + num(direction*distance) + " F" + num(f)),
		}, nil
	}
}
