package safety

// Helpers that pull typed values out of cached backend snapshots. Snapshots
// arrive as JSON-decoded maps, so everything is asserted defensively.

// extractPosition digs toolhead.position out of a state snapshot.
func extractPosition(value interface{}) (map[string]float64, bool) {
	snap, ok := value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	toolhead, ok := snap["toolhead"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	raw, ok := toolhead["position"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	pos := make(map[string]float64, len(raw))
	for axis, v := range raw {
		if f, ok := toFloat(v); ok {
			pos[axis] = f
		}
	}
	return pos, len(pos) > 0
}

// extractTemperatures flattens heater/sensor readings to zone -> temperature.
func extractTemperatures(value interface{}) map[string]float64 {
	snap, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	out := map[string]float64{}
	for _, group := range []string{"heaters", "temperature_sensor"} {
		sensors, ok := snap[group].(map[string]interface{})
		if !ok {
			continue
		}
		for name, raw := range sensors {
			reading, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if temp, ok := toFloat(reading["temperature"]); ok {
				out[name] = temp
			}
		}
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
