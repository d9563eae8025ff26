package models

import (
	"fmt"
	"time"
)

// OperationType identifies what a Command requests. The set is closed;
// unknown strings are rejected at parse time.
type OperationType string

const (
	// Motion
	OpMove         OperationType = "move"
	OpMoveAbsolute OperationType = "move_absolute"
	OpMoveRelative OperationType = "move_relative"
	OpHome         OperationType = "home"

	// Pick and place
	OpPick         OperationType = "pick"
	OpPlace        OperationType = "place"
	OpPickAndPlace OperationType = "pick_and_place"

	// Actuators
	OpActuate    OperationType = "actuate"
	OpActuateOn  OperationType = "actuate_on"
	OpActuateOff OperationType = "actuate_off"

	// Vacuum
	OpVacuumOn  OperationType = "vacuum_on"
	OpVacuumOff OperationType = "vacuum_off"
	OpVacuumSet OperationType = "vacuum_set"

	// Fans
	OpFanOn  OperationType = "fan_on"
	OpFanOff OperationType = "fan_off"
	OpFanSet OperationType = "fan_set"

	// PWM
	OpPWMSet  OperationType = "pwm_set"
	OpPWMRamp OperationType = "pwm_ramp"

	// GPIO
	OpGPIORead  OperationType = "gpio_read"
	OpGPIOWrite OperationType = "gpio_write"

	// Sensors
	OpSensorRead    OperationType = "sensor_read"
	OpSensorReadAll OperationType = "sensor_read_all"

	// Feeders
	OpFeederAdvance OperationType = "feeder_advance"
	OpFeederRetract OperationType = "feeder_retract"

	// Status queries
	OpStatusGet       OperationType = "get_status"
	OpPositionGet     OperationType = "get_position"
	OpPrinterStateGet OperationType = "get_printer_state"

	// Queue and system control
	OpQueueStatus OperationType = "queue_status"
	OpQueueClear  OperationType = "queue_clear"
	OpCancel      OperationType = "cancel"
	OpPause       OperationType = "pause"
	OpResume      OperationType = "resume"
	OpReset       OperationType = "reset"
)

var validOperations = map[OperationType]struct{}{
	OpMove: {}, OpMoveAbsolute: {}, OpMoveRelative: {}, OpHome: {},
	OpPick: {}, OpPlace: {}, OpPickAndPlace: {},
	OpActuate: {}, OpActuateOn: {}, OpActuateOff: {},
	OpVacuumOn: {}, OpVacuumOff: {}, OpVacuumSet: {},
	OpFanOn: {}, OpFanOff: {}, OpFanSet: {},
	OpPWMSet: {}, OpPWMRamp: {},
	OpGPIORead: {}, OpGPIOWrite: {},
	OpSensorRead: {}, OpSensorReadAll: {},
	OpFeederAdvance: {}, OpFeederRetract: {},
	OpStatusGet: {}, OpPositionGet: {}, OpPrinterStateGet: {},
	OpQueueStatus: {}, OpQueueClear: {},
	OpCancel: {}, OpPause: {}, OpResume: {}, OpReset: {},
}

// ParseOperationType validates an operation name coming from a caller.
func ParseOperationType(s string) (OperationType, error) {
	op := OperationType(s)
	if _, ok := validOperations[op]; !ok {
		return "", fmt.Errorf("unknown operation type: %q", s)
	}
	return op, nil
}

// CommandStatus tracks the lifecycle of a submitted command.
type CommandStatus string

const (
	StatusPending   CommandStatus = "pending"
	StatusExecuting CommandStatus = "executing"
	StatusSucceeded CommandStatus = "succeeded"
	StatusFailed    CommandStatus = "failed"
	StatusTimedOut  CommandStatus = "timed_out"
	StatusCancelled CommandStatus = "cancelled"
)

// Command is a semantic operation submitted by a caller. It is immutable
// after creation except for Status, which the queue consumer owns.
type Command struct {
	ID          string        `json:"id"`
	Type        OperationType `json:"type"`
	Parameters  Params        `json:"parameters"`
	Priority    int           `json:"priority"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Status      CommandStatus `json:"status"`
}

// NewCommand builds a pending command. The caller supplies the id so that
// generation stays in one place (utils.NewCommandID).
func NewCommand(id string, op OperationType, params Params, priority int) *Command {
	if params == nil {
		params = Params{}
	}
	return &Command{
		ID:          id,
		Type:        op,
		Parameters:  params,
		Priority:    priority,
		SubmittedAt: time.Now(),
		Status:      StatusPending,
	}
}
