package translator

import (
	"pnp-bridge/models"
)

// Strategy is the dispatch path chosen for an operation type.
type Strategy string

const (
	// StrategyDirect serves the command from the state cache or a direct
	// backend query/mutation.
	StrategyDirect Strategy = "direct"
	// StrategySequence renders an instruction sequence and submits it
	// atomically to the backend.
	StrategySequence Strategy = "sequence"
	// StrategyHybrid aggregates a backend query with locally tracked
	// derived state.
	StrategyHybrid Strategy = "hybrid"
)

// strategyTable is fixed per operation type; it is not input-dependent.
var strategyTable = map[models.OperationType]Strategy{
	// Direct state reads and direct control.
	models.OpGPIORead:      StrategyDirect,
	models.OpSensorRead:    StrategyDirect,
	models.OpSensorReadAll: StrategyDirect,
	models.OpFanSet:        StrategyDirect,
	models.OpPWMSet:        StrategyDirect,
	models.OpPWMRamp:       StrategyDirect,
	models.OpQueueStatus:   StrategyDirect,
	models.OpQueueClear:    StrategyDirect,
	models.OpCancel:        StrategyDirect,
	models.OpPause:         StrategyDirect,
	models.OpResume:        StrategyDirect,
	models.OpReset:         StrategyDirect,

	// Assembled instruction sequences.
	models.OpMove:          StrategySequence,
	models.OpMoveAbsolute:  StrategySequence,
	models.OpMoveRelative:  StrategySequence,
	models.OpHome:          StrategySequence,
	models.OpPick:          StrategySequence,
	models.OpPlace:         StrategySequence,
	models.OpPickAndPlace:  StrategySequence,
	models.OpActuate:       StrategySequence,
	models.OpActuateOn:     StrategySequence,
	models.OpActuateOff:    StrategySequence,
	models.OpVacuumOn:      StrategySequence,
	models.OpVacuumOff:     StrategySequence,
	models.OpVacuumSet:     StrategySequence,
	models.OpFanOn:         StrategySequence,
	models.OpFanOff:        StrategySequence,
	models.OpGPIOWrite:     StrategySequence,
	models.OpFeederAdvance: StrategySequence,
	models.OpFeederRetract: StrategySequence,

	// Aggregated status queries.
	models.OpStatusGet:       StrategyHybrid,
	models.OpPositionGet:     StrategyHybrid,
	models.OpPrinterStateGet: StrategyHybrid,
}

// StrategyFor resolves the dispatch path for an operation type.
func StrategyFor(op models.OperationType) (Strategy, bool) {
	s, ok := strategyTable[op]
	return s, ok
}
