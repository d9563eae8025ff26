package safety

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pnp-bridge/models"
)

// Limits are the configured hardware safety bounds. They are loaded once at
// construction and change only through an explicit administrative update.
type Limits struct {
	// Position bounds per axis, in mm.
	MinX float64 `yaml:"min_x"`
	MaxX float64 `yaml:"max_x"`
	MinY float64 `yaml:"min_y"`
	MaxY float64 `yaml:"max_y"`
	MinZ float64 `yaml:"min_z"`
	MaxZ float64 `yaml:"max_z"`

	// Motion bounds.
	MaxVelocity     float64 `yaml:"max_velocity"`     // mm/s
	MaxAcceleration float64 `yaml:"max_acceleration"` // mm/s^2
	MinFeedrate     float64 `yaml:"min_feedrate"`     // mm/min
	MaxFeedrate     float64 `yaml:"max_feedrate"`     // mm/min

	// Output bounds.
	MinPWM      float64 `yaml:"min_pwm"`
	MaxPWM      float64 `yaml:"max_pwm"`
	MinFanSpeed float64 `yaml:"min_fan_speed"`
	MaxFanSpeed float64 `yaml:"max_fan_speed"`

	// Temperature bounds per zone, in Celsius.
	MaxExtruderTemp float64 `yaml:"max_extruder_temp"`
	MaxBedTemp      float64 `yaml:"max_bed_temp"`
	MaxChamberTemp  float64 `yaml:"max_chamber_temp"`

	// Monitor intervals.
	TemperatureCheckInterval time.Duration `yaml:"temperature_check_interval"`
	PositionCheckInterval    time.Duration `yaml:"position_check_interval"`
	StateCheckInterval       time.Duration `yaml:"state_check_interval"`
}

// DefaultLimits returns the stock hardware envelope.
func DefaultLimits() Limits {
	return Limits{
		MinX: 0, MaxX: 300,
		MinY: 0, MaxY: 300,
		MinZ: 0, MaxZ: 400,

		MaxVelocity:     500,
		MaxAcceleration: 3000,
		MinFeedrate:     1,
		MaxFeedrate:     30000,

		MinPWM: 0, MaxPWM: 1,
		MinFanSpeed: 0, MaxFanSpeed: 1,

		MaxExtruderTemp: 250,
		MaxBedTemp:      120,
		MaxChamberTemp:  60,

		TemperatureCheckInterval: time.Second,
		PositionCheckInterval:    500 * time.Millisecond,
		StateCheckInterval:       2 * time.Second,
	}
}

// LoadLimitsFile overlays the stock limits with values from a YAML file.
func LoadLimitsFile(path string) (Limits, error) {
	limits := DefaultLimits()
	data, err := os.ReadFile(path)
	if err != nil {
		return limits, fmt.Errorf("read limits file: %w", err)
	}
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return limits, fmt.Errorf("parse limits file %s: %w", path, err)
	}
	if err := limits.Validate(); err != nil {
		return limits, err
	}
	return limits, nil
}

// Validate rejects any limit pair where min exceeds max.
func (l Limits) Validate() error {
	pairs := []struct {
		name     string
		min, max float64
	}{
		{"x position", l.MinX, l.MaxX},
		{"y position", l.MinY, l.MaxY},
		{"z position", l.MinZ, l.MaxZ},
		{"feedrate", l.MinFeedrate, l.MaxFeedrate},
		{"pwm", l.MinPWM, l.MaxPWM},
		{"fan speed", l.MinFanSpeed, l.MaxFanSpeed},
	}
	for _, p := range pairs {
		if p.min > p.max {
			return models.NewCommandError(models.ErrCodeInvalidLimits,
				fmt.Sprintf("%s limits inverted: min %v > max %v", p.name, p.min, p.max))
		}
	}
	if l.MaxVelocity < 0 || l.MaxAcceleration < 0 {
		return models.NewCommandError(models.ErrCodeInvalidLimits, "velocity/acceleration limits must be non-negative")
	}
	return nil
}

// axisBounds returns the configured min/max for a position axis.
func (l Limits) axisBounds(axis string) (float64, float64, bool) {
	switch axis {
	case "x":
		return l.MinX, l.MaxX, true
	case "y":
		return l.MinY, l.MaxY, true
	case "z":
		return l.MinZ, l.MaxZ, true
	}
	return 0, 0, false
}

// zoneMaxTemp returns the temperature ceiling for a heater zone name.
func (l Limits) zoneMaxTemp(zone string) float64 {
	switch {
	case containsFold(zone, "bed"):
		return l.MaxBedTemp
	case containsFold(zone, "chamber"):
		return l.MaxChamberTemp
	default:
		return l.MaxExtruderTemp
	}
}
