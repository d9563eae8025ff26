package assembler

import (
	"fmt"
	"log/slog"
	"sync"

	"pnp-bridge/models"
)

// Template renders an operation's parameters into an ordered instruction
// sequence. Templates must fail rather than emit a partial sequence.
type Template func(p models.Params) (models.InstructionSequence, error)

// ParamValidator checks a single named parameter before substitution.
type ParamValidator func(value interface{}) error

// Assembler resolves named templates and runs per-parameter validators.
// Custom templates and validators registered by name override the defaults;
// last registration wins.
type Assembler struct {
	mu         sync.RWMutex
	templates  map[string]Template
	validators map[string]ParamValidator
	logger     *slog.Logger
}

// New creates an assembler preloaded with the built-in templates and the
// default numeric validators.
func New(logger *slog.Logger) *Assembler {
	a := &Assembler{
		templates:  make(map[string]Template),
		validators: make(map[string]ParamValidator),
		logger:     logger.With("component", "assembler"),
	}
	registerDefaultTemplates(a)
	registerDefaultValidators(a)
	return a
}

// AddTemplate registers a template under a name, replacing any previous one.
func (a *Assembler) AddTemplate(name string, t Template) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.templates[name]; exists {
		a.logger.Debug("template overridden", "name", name)
	}
	a.templates[name] = t
}

// AddValidator registers a validator for a parameter name, replacing any
// previous one.
func (a *Assembler) AddValidator(param string, v ParamValidator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validators[param] = v
}

// Assemble resolves the template for an operation and renders it. Any
// failure (missing template, failed validator) is a translation-level error
// raised before anything reaches the backend.
func (a *Assembler) Assemble(op models.OperationType, p models.Params) (models.InstructionSequence, error) {
	a.mu.RLock()
	tmpl, ok := a.templates[string(op)]
	validators := make(map[string]ParamValidator, len(a.validators))
	for name, v := range a.validators {
		validators[name] = v
	}
	a.mu.RUnlock()

	if !ok {
		return nil, models.NewCommandError(models.ErrCodeTemplateNotFound,
			fmt.Sprintf("no instruction template for operation %q", op))
	}

	for name, value := range p {
		validator, ok := validators[name]
		if !ok {
			continue
		}
		if err := validator(value); err != nil {
			ce := models.WrapCommandError(models.ErrCodeValidatorFailed,
				fmt.Sprintf("parameter %q rejected: %v", name, err), err)
			ce.Parameter = name
			ce.Actual = fmt.Sprintf("%v", value)
			return nil, ce
		}
	}

	seq, err := tmpl(p)
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, models.NewCommandError(models.ErrCodeTemplateNotFound,
			fmt.Sprintf("template for %q produced no instructions", op))
	}
	return seq, nil
}

// NumericRangeValidator builds a validator accepting numbers in [min, max].
func NumericRangeValidator(min, max float64) ParamValidator {
	return func(value interface{}) error {
		f, ok := asFloat(value)
		if !ok {
			return fmt.Errorf("expected a number, got %T", value)
		}
		if f < min || f > max {
			return fmt.Errorf("%v outside [%v, %v]", f, min, max)
		}
		return nil
	}
}

// numericValidator accepts any numeric value.
func numericValidator(value interface{}) error {
	if _, ok := asFloat(value); !ok {
		return fmt.Errorf("expected a number, got %T", value)
	}
	return nil
}

func registerDefaultValidators(a *Assembler) {
	for _, param := range []string{
		"x", "y", "z", "place_x", "place_y",
		"pick_height", "place_height", "safe_height", "travel_height",
		"feedrate", "distance",
	} {
		a.validators[param] = numericValidator
	}
	a.validators["vacuum_power"] = NumericRangeValidator(0, 255)
	a.validators["power"] = NumericRangeValidator(0, 255)
}

func asFloat(v interface{}) (float64, bool) {
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
