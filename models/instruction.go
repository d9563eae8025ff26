package models

import "strings"

// Instruction is one low-level operation in the motion backend's command
// language (G-code dialect).
type Instruction string

// InstructionSequence is an ordered list of instructions submitted atomically
// to the backend. Order is a correctness contract for composite operations.
type InstructionSequence []Instruction

// Script renders the sequence as a newline-joined script for submission.
func (s InstructionSequence) Script() string {
	parts := make([]string, len(s))
	for i, ins := range s {
		parts[i] = string(ins)
	}
	return strings.Join(parts, "\n")
}

// DerivedState is the translator's convenience projection over cache reads:
// last known position, vacuum flag, fan speed, and actuator values. It is
// never a source of truth on its own.
type DerivedState struct {
	Position         map[string]float64 `json:"position"`
	VacuumEnabled    bool               `json:"vacuum_enabled"`
	FanSpeed         float64            `json:"fan_speed"`
	Actuators        map[string]float64 `json:"actuators"`
	BackendConnected bool               `json:"backend_connected"`
}

// NewDerivedState returns an empty projection at the machine origin.
func NewDerivedState() *DerivedState {
	return &DerivedState{
		Position:  map[string]float64{"x": 0, "y": 0, "z": 0},
		Actuators: map[string]float64{},
	}
}
