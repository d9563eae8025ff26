package safety

import (
	"strings"

	"pnp-bridge/models"
)

// Stateless bounds checks. Each takes a value plus the current limits and
// returns nil or a coded error carrying the offending parameter, the limit,
// and the actual value.

// CheckPosition validates a target coordinate on one axis.
func CheckPosition(axis string, value float64, l Limits) *models.CommandError {
	min, max, ok := l.axisBounds(strings.ToLower(axis))
	if !ok {
		return models.NewCommandError(models.ErrCodeInvalidParameter, "unknown axis: "+axis)
	}
	if value < min || value > max {
		return models.NewBoundsError(models.ErrCodePositionOutOfBounds, strings.ToLower(axis), value, min, max)
	}
	return nil
}

// CheckVelocity validates a velocity in mm/s.
func CheckVelocity(value float64, l Limits) *models.CommandError {
	if value < 0 || value > l.MaxVelocity {
		return models.NewBoundsError(models.ErrCodeVelocityOutOfBounds, "velocity", value, 0, l.MaxVelocity)
	}
	return nil
}

// CheckFeedrate validates a feedrate in mm/min.
func CheckFeedrate(value float64, l Limits) *models.CommandError {
	if value < l.MinFeedrate || value > l.MaxFeedrate {
		return models.NewBoundsError(models.ErrCodeFeedrateOutOfBounds, "feedrate", value, l.MinFeedrate, l.MaxFeedrate)
	}
	return nil
}

// CheckPWM validates a PWM duty value.
func CheckPWM(value float64, l Limits) *models.CommandError {
	if value < l.MinPWM || value > l.MaxPWM {
		return models.NewBoundsError(models.ErrCodePWMOutOfBounds, "value", value, l.MinPWM, l.MaxPWM)
	}
	return nil
}

// CheckFanSpeed validates a fan speed fraction.
func CheckFanSpeed(value float64, l Limits) *models.CommandError {
	if value < l.MinFanSpeed || value > l.MaxFanSpeed {
		return models.NewBoundsError(models.ErrCodeFanSpeedOutOfBounds, "speed", value, l.MinFanSpeed, l.MaxFanSpeed)
	}
	return nil
}

// CheckTemperature validates a target temperature for a heater zone.
func CheckTemperature(zone string, value float64, l Limits) *models.CommandError {
	max := l.zoneMaxTemp(zone)
	if value < 0 || value > max {
		err := models.NewBoundsError(models.ErrCodeTemperatureOutOfBounds, "temperature", value, 0, max)
		err.Parameter = zone
		return err
	}
	return nil
}

// ValidateCommand runs every applicable bounds check for a command's
// parameters. It is called before any backend-affecting dispatch; a non-nil
// result means the command must be rejected with zero side effects.
func ValidateCommand(cmd *models.Command, l Limits) *models.CommandError {
	p := cmd.Parameters

	checkAxes := func(keys map[string]string) *models.CommandError {
		for param, axis := range keys {
			if v, ok := p.Float(param); ok {
				if err := CheckPosition(axis, v, l); err != nil {
					err.Parameter = param
					return err
				}
			}
		}
		return nil
	}
	checkFeedrate := func() *models.CommandError {
		if v, ok := p.Float("feedrate"); ok {
			return CheckFeedrate(v, l)
		}
		return nil
	}

	switch cmd.Type {
	case models.OpMove, models.OpMoveAbsolute:
		if !p.Has("x") && !p.Has("y") && !p.Has("z") {
			return models.NewMissingParameterError("x|y|z")
		}
		if err := checkAxes(map[string]string{"x": "x", "y": "y", "z": "z"}); err != nil {
			return err
		}
		return checkFeedrate()

	case models.OpMoveRelative:
		// Deltas cannot be checked against absolute bounds; the position
		// monitor catches any resulting excursion.
		if !p.Has("x") && !p.Has("y") && !p.Has("z") {
			return models.NewMissingParameterError("x|y|z")
		}
		return checkFeedrate()

	case models.OpPick, models.OpPlace:
		if err := checkAxes(map[string]string{
			"z": "z", "pick_height": "z", "place_height": "z", "travel_height": "z",
		}); err != nil {
			return err
		}
		return checkFeedrate()

	case models.OpPickAndPlace:
		if err := checkAxes(map[string]string{
			"x": "x", "y": "y",
			"place_x": "x", "place_y": "y",
			"pick_height": "z", "place_height": "z", "safe_height": "z",
		}); err != nil {
			return err
		}
		return checkFeedrate()

	case models.OpFanSet:
		v, ok := p.Float("speed")
		if !ok {
			return models.NewMissingParameterError("speed")
		}
		return CheckFanSpeed(v, l)

	case models.OpPWMSet:
		if _, ok := p.String("pin"); !ok {
			return models.NewMissingParameterError("pin")
		}
		v, ok := p.Float("value")
		if !ok {
			return models.NewMissingParameterError("value")
		}
		return CheckPWM(v, l)

	case models.OpPWMRamp:
		if _, ok := p.String("pin"); !ok {
			return models.NewMissingParameterError("pin")
		}
		for _, key := range []string{"start_value", "end_value"} {
			if v, ok := p.Float(key); ok {
				if err := CheckPWM(v, l); err != nil {
					err.Parameter = key
					return err
				}
			}
		}
		return nil

	case models.OpActuate, models.OpActuateOn, models.OpActuateOff, models.OpGPIOWrite:
		if _, ok := p.String("pin"); !ok {
			return models.NewMissingParameterError("pin")
		}
		return nil

	case models.OpVacuumSet, models.OpVacuumOn:
		// Vacuum power rides the 0..255 PWM output scale.
		if v, ok := p.Float("power"); ok && (v < 0 || v > 255) {
			return models.NewBoundsError(models.ErrCodePWMOutOfBounds, "power", v, 0, 255)
		}
		return nil

	case models.OpFeederAdvance, models.OpFeederRetract:
		return checkFeedrate()

	case models.OpCancel:
		if _, ok := p.String("command_id"); !ok {
			return models.NewMissingParameterError("command_id")
		}
		return nil
	}

	return nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}
