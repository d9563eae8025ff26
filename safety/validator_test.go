package safety

import (
	"testing"

	"pnp-bridge/models"
)

func TestCheckPosition(t *testing.T) {
	l := DefaultLimits()

	if err := CheckPosition("x", 150, l); err != nil {
		t.Errorf("in-bounds position rejected: %v", err)
	}
	if err := CheckPosition("x", 301, l); err == nil {
		t.Error("out-of-bounds position accepted")
	} else if err.Code != models.ErrCodePositionOutOfBounds {
		t.Errorf("expected POSITION_OUT_OF_BOUNDS, got %s", err.Code)
	}
	if err := CheckPosition("z", -0.1, l); err == nil {
		t.Error("negative z accepted")
	}
	if err := CheckPosition("w", 0, l); err == nil {
		t.Error("unknown axis accepted")
	} else if err.Code != models.ErrCodeInvalidParameter {
		t.Errorf("expected INVALID_PARAMETER, got %s", err.Code)
	}
}

func TestBoundsAreInclusive(t *testing.T) {
	l := DefaultLimits()
	if err := CheckPosition("x", 300, l); err != nil {
		t.Errorf("value exactly at the limit must pass: %v", err)
	}
	if err := CheckPosition("x", 0, l); err != nil {
		t.Errorf("value exactly at the minimum must pass: %v", err)
	}
	if err := CheckPWM(1.0, l); err != nil {
		t.Errorf("pwm at the ceiling must pass: %v", err)
	}
}

func TestCheckFeedrate(t *testing.T) {
	l := DefaultLimits()
	if err := CheckFeedrate(1500, l); err != nil {
		t.Errorf("in-bounds feedrate rejected: %v", err)
	}
	if err := CheckFeedrate(0.5, l); err == nil {
		t.Error("feedrate below minimum accepted")
	}
	if err := CheckFeedrate(30001, l); err == nil {
		t.Error("feedrate above maximum accepted")
	}
}

func TestCheckTemperature(t *testing.T) {
	l := DefaultLimits()
	if err := CheckTemperature("extruder", 200, l); err != nil {
		t.Errorf("in-bounds temperature rejected: %v", err)
	}
	if err := CheckTemperature("heater_bed", 130, l); err == nil {
		t.Error("bed temperature above ceiling accepted")
	}
	if err := CheckTemperature("chamber_sensor", 61, l); err == nil {
		t.Error("chamber temperature above ceiling accepted")
	}
}

func TestValidateCommand(t *testing.T) {
	l := DefaultLimits()

	cases := []struct {
		name     string
		cmd      *models.Command
		wantCode models.ErrorCode
	}{
		{
			name: "valid move",
			cmd:  models.NewCommand("1", models.OpMove, models.Params{"x": 10.0, "y": 10.0}, 0),
		},
		{
			name:     "move without axes",
			cmd:      models.NewCommand("2", models.OpMove, models.Params{}, 0),
			wantCode: models.ErrCodeMissingParameter,
		},
		{
			name:     "move out of bounds",
			cmd:      models.NewCommand("3", models.OpMove, models.Params{"x": 999.0}, 0),
			wantCode: models.ErrCodePositionOutOfBounds,
		},
		{
			name:     "move bad feedrate",
			cmd:      models.NewCommand("4", models.OpMove, models.Params{"x": 1.0, "feedrate": 50000.0}, 0),
			wantCode: models.ErrCodeFeedrateOutOfBounds,
		},
		{
			name: "valid pick and place",
			cmd: models.NewCommand("5", models.OpPickAndPlace, models.Params{
				"x": 10.0, "y": 10.0, "place_x": 50.0, "place_y": 50.0,
				"pick_height": 1.0, "place_height": 1.0,
			}, 0),
		},
		{
			name: "pick and place target out of bounds",
			cmd: models.NewCommand("6", models.OpPickAndPlace, models.Params{
				"x": 10.0, "y": 10.0, "place_x": 400.0, "place_y": 50.0,
			}, 0),
			wantCode: models.ErrCodePositionOutOfBounds,
		},
		{
			name:     "fan speed missing",
			cmd:      models.NewCommand("7", models.OpFanSet, models.Params{}, 0),
			wantCode: models.ErrCodeMissingParameter,
		},
		{
			name:     "fan speed out of range",
			cmd:      models.NewCommand("8", models.OpFanSet, models.Params{"speed": 1.5}, 0),
			wantCode: models.ErrCodeFanSpeedOutOfBounds,
		},
		{
			name:     "pwm out of range",
			cmd:      models.NewCommand("9", models.OpPWMSet, models.Params{"pin": "p1", "value": 2.0}, 0),
			wantCode: models.ErrCodePWMOutOfBounds,
		},
		{
			name:     "pwm missing pin",
			cmd:      models.NewCommand("10", models.OpPWMSet, models.Params{"value": 0.5}, 0),
			wantCode: models.ErrCodeMissingParameter,
		},
		{
			name:     "vacuum power out of range",
			cmd:      models.NewCommand("11", models.OpVacuumSet, models.Params{"power": 300.0}, 0),
			wantCode: models.ErrCodePWMOutOfBounds,
		},
		{
			name:     "cancel missing id",
			cmd:      models.NewCommand("12", models.OpCancel, models.Params{}, 0),
			wantCode: models.ErrCodeMissingParameter,
		},
		{
			name: "gpio read has no bounds",
			cmd:  models.NewCommand("13", models.OpGPIORead, models.Params{"pin": "led"}, 0),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCommand(tc.cmd, l)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected rejection: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected %s, got nil", tc.wantCode)
			}
			if err.Code != tc.wantCode {
				t.Errorf("expected %s, got %s", tc.wantCode, err.Code)
			}
		})
	}
}
