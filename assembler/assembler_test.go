package assembler

import (
	"errors"
	"log/slog"
	"testing"

	"pnp-bridge/models"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestPickAndPlaceSequence(t *testing.T) {
	a := New(testLogger())

	seq, err := a.Assemble(models.OpPickAndPlace, models.Params{
		"x": 10.0, "y": 20.0,
		"place_x": 100.0, "place_y": 120.0,
		"pick_height": 1.5, "place_height": 2.0,
	})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	expected := models.InstructionSequence{
		"G0 Z10 F1500",
		"G0 X10 Y20 F1500",
		"G0 Z1.5 F1500",
		"M106 S255",
		"G0 Z10 F1500",
		"G0 X100 Y120 F1500",
		"G0 Z2 F1500",
		"M107",
		"G0 Z10 F1500",
	}
	if len(seq) != len(expected) {
		t.Fatalf("expected %d instructions, got %d: %v", len(expected), len(seq), seq)
	}
	for i := range expected {
		if seq[i] != expected[i] {
			t.Errorf("step %d: expected %q, got %q", i+1, expected[i], seq[i])
		}
	}
}

func TestPickAndPlaceCustomDefaults(t *testing.T) {
	a := New(testLogger())

	seq, err := a.Assemble(models.OpPickAndPlace, models.Params{
		"safe_height": 25.0, "vacuum_power": 128.0, "feedrate": 3000.0,
	})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if seq[0] != "G0 Z25 F3000" {
		t.Errorf("safe height leg not honored: %q", seq[0])
	}
	if seq[3] != "M106 S128" {
		t.Errorf("vacuum power not honored: %q", seq[3])
	}
}

func TestMoveTemplate(t *testing.T) {
	a := New(testLogger())

	t.Run("single axis", func(t *testing.T) {
		seq, err := a.Assemble(models.OpMove, models.Params{"z": 5.0})
		if err != nil {
			t.Fatalf("assemble failed: %v", err)
		}
		if len(seq) != 1 || seq[0] != "G0 Z5 F1500" {
			t.Errorf("unexpected sequence: %v", seq)
		}
	})

	t.Run("all axes with feedrate", func(t *testing.T) {
		seq, err := a.Assemble(models.OpMove, models.Params{
			"x": 1.0, "y": 2.0, "z": 3.0, "feedrate": 600.0,
		})
		if err != nil {
			t.Fatalf("assemble failed: %v", err)
		}
		if seq[0] != "G0 X1 Y2 Z3 F600" {
			t.Errorf("unexpected instruction: %q", seq[0])
		}
	})

	t.Run("no axes", func(t *testing.T) {
		_, err := a.Assemble(models.OpMove, models.Params{"feedrate": 600.0})
		if err == nil {
			t.Fatal("expected an error for a move without axes")
		}
		ce := models.AsCommandError(err)
		if ce.Code != models.ErrCodeMissingParameter {
			t.Errorf("expected MISSING_PARAMETER, got %s", ce.Code)
		}
	})
}

func TestRelativeMoveRestoresAbsoluteMode(t *testing.T) {
	a := New(testLogger())
	seq, err := a.Assemble(models.OpMoveRelative, models.Params{"x": -5.0})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if seq[0] != "G91" || seq[len(seq)-1] != "G90" {
		t.Errorf("relative move must be bracketed by G91/G90: %v", seq)
	}
}

func TestHomeTemplate(t *testing.T) {
	a := New(testLogger())

	seq, err := a.Assemble(models.OpHome, models.Params{})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if seq[0] != "G28" {
		t.Errorf("expected bare G28, got %q", seq[0])
	}

	seq, err = a.Assemble(models.OpHome, models.Params{"axes": "xy"})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if seq[0] != "G28 xy" {
		t.Errorf("expected G28 xy, got %q", seq[0])
	}
}

func TestMissingTemplate(t *testing.T) {
	a := New(testLogger())
	_, err := a.Assemble(models.OperationType("fold_laundry"), models.Params{})
	if err == nil {
		t.Fatal("expected an error for an unknown operation")
	}
	ce := models.AsCommandError(err)
	if ce.Code != models.ErrCodeTemplateNotFound {
		t.Errorf("expected TEMPLATE_NOT_FOUND, got %s", ce.Code)
	}
}

func TestCustomTemplateOverride(t *testing.T) {
	a := New(testLogger())
	a.AddTemplate(string(models.OpHome), func(p models.Params) (models.InstructionSequence, error) {
		return models.InstructionSequence{"G28 Z", "G28 X Y"}, nil
	})

	seq, err := a.Assemble(models.OpHome, models.Params{})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if len(seq) != 2 || seq[0] != "G28 Z" {
		t.Errorf("override not used: %v", seq)
	}
}

func TestValidatorRejection(t *testing.T) {
	a := New(testLogger())

	t.Run("default power range", func(t *testing.T) {
		_, err := a.Assemble(models.OpVacuumOn, models.Params{"power": 400.0})
		if err == nil {
			t.Fatal("expected power validator to reject 400")
		}
		ce := models.AsCommandError(err)
		if ce.Code != models.ErrCodeValidatorFailed {
			t.Errorf("expected VALIDATOR_FAILED, got %s", ce.Code)
		}
		if ce.Parameter != "power" {
			t.Errorf("expected rejected parameter to be reported, got %q", ce.Parameter)
		}
	})

	t.Run("custom validator", func(t *testing.T) {
		a.AddValidator("feedrate", func(value interface{}) error {
			return errors.New("always rejected")
		})
		_, err := a.Assemble(models.OpMove, models.Params{"x": 1.0, "feedrate": 100.0})
		if err == nil {
			t.Fatal("expected custom validator to apply")
		}
	})

	t.Run("non-numeric coordinate", func(t *testing.T) {
		_, err := a.Assemble(models.OpMove, models.Params{"x": "fast"})
		if err == nil {
			t.Fatal("expected a type error for string coordinate")
		}
	})
}

func TestFeederTemplates(t *testing.T) {
	a := New(testLogger())

	seq, err := a.Assemble(models.OpFeederAdvance, models.Params{"distance": 4.0, "feedrate": 200.0})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if seq[0] != "G0 E4 F200" {
		t.Errorf("unexpected advance instruction: %q", seq[0])
	}

	seq, err = a.Assemble(models.OpFeederRetract, models.Params{"distance": 4.0, "feedrate": 200.0})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if seq[0] != "G0 E-4 F200" {
		t.Errorf("unexpected retract instruction: %q", seq[0])
	}
}
