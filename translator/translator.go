package translator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pnp-bridge/assembler"
	"pnp-bridge/backend"
	"pnp-bridge/cache"
	"pnp-bridge/models"
	"pnp-bridge/queue"
	"pnp-bridge/safety"
	"pnp-bridge/utils"
)

// StateMirror pushes the derived-state projection to an external store.
type StateMirror interface {
	SaveState(ctx context.Context, state *models.DerivedState) error
}

// ExecutionStore persists finished executions for offline inspection.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, cmd *models.Command, resp *models.Response) error
}

// MetricsRecorder counts executions for the monitoring endpoint.
type MetricsRecorder interface {
	ObserveCommand(op string, status string, duration time.Duration)
}

// Options wires the translator's collaborators. Mirror, Store and Metrics
// are optional.
type Options struct {
	Backend   backend.MotionBackend
	Cache     *cache.StateCache
	Safety    *safety.Manager
	Assembler *assembler.Assembler
	Queue     *queue.CommandQueue
	History   *queue.ExecutionHistory

	Mirror  StateMirror
	Store   ExecutionStore
	Metrics MetricsRecorder

	DefaultTimeout time.Duration
	Logger         *slog.Logger
}

// Translator turns semantic commands into backend instruction sequences and
// runs the full pipeline for each: safety gate, validation, strategy
// dispatch, response normalization, history.
type Translator struct {
	backend backend.MotionBackend
	cache   *cache.StateCache
	safety  *safety.Manager
	asm     *assembler.Assembler
	queue   *queue.CommandQueue
	history *queue.ExecutionHistory

	mirror  StateMirror
	store   ExecutionStore
	metrics MetricsRecorder

	defaultTimeout time.Duration
	paused         atomic.Bool

	homedMu   sync.Mutex
	homedAxes map[string]bool

	logger *slog.Logger
}

// New creates a translator. The queue consumer is started separately via
// RunConsumer.
func New(opts Options) *Translator {
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Translator{
		backend:        opts.Backend,
		cache:          opts.Cache,
		safety:         opts.Safety,
		asm:            opts.Assembler,
		queue:          opts.Queue,
		history:        opts.History,
		mirror:         opts.Mirror,
		store:          opts.Store,
		metrics:        opts.Metrics,
		defaultTimeout: timeout,
		homedAxes:      make(map[string]bool),
		logger:         opts.Logger.With("component", "translator"),
	}
}

// TranslateAndExecute runs one command through the full pipeline and blocks
// until it finishes. Every outcome, success or failure, is recorded in the
// execution history.
func (t *Translator) TranslateAndExecute(ctx context.Context, cmd *models.Command) *models.Response {
	start := time.Now()
	cmd.Status = models.StatusExecuting

	resp := t.execute(ctx, cmd)
	resp.ExecutionTime = time.Since(start)

	switch resp.Status {
	case models.ResponseSuccess:
		cmd.Status = models.StatusSucceeded
	case models.ResponseTimeout:
		cmd.Status = models.StatusTimedOut
	case models.ResponseCancelled:
		cmd.Status = models.StatusCancelled
	default:
		cmd.Status = models.StatusFailed
	}

	t.history.Record(cmd, resp)
	t.afterExecute(ctx, cmd, resp)

	if resp.Failed() {
		t.logger.Warn("command failed",
			"command_id", cmd.ID, "type", cmd.Type,
			"error_code", resp.ErrorCode, "error", resp.ErrorMessage,
			"duration", resp.ExecutionTime)
	} else {
		t.logger.Info("command executed",
			"command_id", cmd.ID, "type", cmd.Type, "duration", resp.ExecutionTime)
	}
	return resp
}

// execute is the dispatch pipeline without bookkeeping.
func (t *Translator) execute(ctx context.Context, cmd *models.Command) *models.Response {
	// Reset is the only operation allowed through while the machine is
	// stopped; it is how the operator recovers.
	if t.safety.EmergencyActive() && cmd.Type != models.OpReset {
		return models.NewErrorResponse(cmd, models.NewCommandError(
			models.ErrCodeEmergencyStopActive, "emergency stop active, command rejected"))
	}

	strategy, ok := StrategyFor(cmd.Type)
	if !ok {
		return models.NewErrorResponse(cmd, models.NewCommandError(
			models.ErrCodeUnknownStrategy, "no strategy for operation "+string(cmd.Type)))
	}

	// Validation happens before any backend traffic; an invalid command
	// must never reach the machine.
	if ce := t.safety.ValidateWithCurrent(cmd); ce != nil {
		t.safety.NoteViolation(safety.EventBoundsViolation, "translator", ce.Message,
			map[string]interface{}{"command_id": cmd.ID, "type": string(cmd.Type)})
		return models.NewErrorResponse(cmd, ce)
	}

	execCtx, cancel := context.WithTimeout(ctx, t.defaultTimeout)
	defer cancel()

	var resp *models.Response
	switch strategy {
	case StrategySequence:
		resp = t.executeSequence(execCtx, cmd)
	case StrategyDirect:
		resp = t.executeDirect(execCtx, cmd)
	case StrategyHybrid:
		resp = t.executeHybrid(execCtx, cmd)
	default:
		resp = models.NewErrorResponse(cmd, models.NewCommandError(
			models.ErrCodeUnknownStrategy, "unhandled strategy "+string(strategy)))
	}
	return resp
}

// afterExecute runs the optional side channels. Failures there never change
// the response already produced.
func (t *Translator) afterExecute(ctx context.Context, cmd *models.Command, resp *models.Response) {
	if t.metrics != nil {
		t.metrics.ObserveCommand(string(cmd.Type), string(resp.Status), resp.ExecutionTime)
	}
	if t.store != nil {
		if err := t.store.SaveExecution(ctx, cmd, resp); err != nil {
			t.logger.Warn("execution record not persisted", "command_id", cmd.ID, "error", err)
		}
	}
	if t.mirror != nil && resp.Status == models.ResponseSuccess {
		if err := t.mirror.SaveState(ctx, t.projectState()); err != nil {
			t.logger.Warn("state mirror update failed", "error", err)
		}
	}
}

// BatchResult carries per-command responses plus aggregate counts, so a
// mixed batch never collapses to a single pass/fail.
type BatchResult struct {
	Responses    []*models.Response
	Succeeded    int
	Failed       int
	NotAttempted int
}

// Partial reports whether the batch contains a mix of outcomes.
func (r *BatchResult) Partial() bool {
	return r.Failed > 0 && (r.Succeeded > 0 || r.NotAttempted > 0)
}

// ExecuteBatch runs commands sequentially in submission order. With
// stopOnError the batch stops at the first failure and the remaining
// commands are never attempted; they stay pending and are counted in
// NotAttempted.
func (t *Translator) ExecuteBatch(ctx context.Context, cmds []*models.Command, stopOnError bool) *BatchResult {
	result := &BatchResult{Responses: make([]*models.Response, 0, len(cmds))}
	for _, cmd := range cmds {
		resp := t.TranslateAndExecute(ctx, cmd)
		result.Responses = append(result.Responses, resp)
		if resp.Failed() {
			result.Failed++
			if stopOnError {
				break
			}
		} else {
			result.Succeeded++
		}
	}
	result.NotAttempted = len(cmds) - len(result.Responses)
	t.logger.Info("batch finished",
		"total", len(cmds), "succeeded", result.Succeeded,
		"failed", result.Failed, "not_attempted", result.NotAttempted,
		"stop_on_error", stopOnError)
	return result
}

// EnqueueCommand validates a command and adds it to the queue for the
// consumer. Validation failures are reported immediately, before the
// command ever occupies a queue slot.
func (t *Translator) EnqueueCommand(cmd *models.Command) (string, error) {
	if t.safety.EmergencyActive() {
		return "", models.NewCommandError(
			models.ErrCodeEmergencyStopActive, "emergency stop active, command rejected")
	}
	if _, ok := StrategyFor(cmd.Type); !ok {
		return "", models.NewCommandError(
			models.ErrCodeUnknownStrategy, "no strategy for operation "+string(cmd.Type))
	}
	if ce := t.safety.ValidateWithCurrent(cmd); ce != nil {
		return "", ce
	}
	if cmd.ID == "" {
		cmd.ID = utils.NewCommandID()
	}
	if err := t.queue.Enqueue(cmd); err != nil {
		return "", err
	}
	t.logger.Debug("command enqueued", "command_id", cmd.ID, "type", cmd.Type, "priority", cmd.Priority)
	return cmd.ID, nil
}

// CancelCommand removes a pending command from the queue. A command already
// dispatched cannot be cancelled.
func (t *Translator) CancelCommand(id string) error {
	return t.queue.Cancel(id)
}

// ProcessQueue drains the queue synchronously, highest priority first, and
// returns the responses in execution order. With stopOnError, processing
// stops after the first failure and the rest stay queued.
func (t *Translator) ProcessQueue(ctx context.Context, stopOnError bool) []*models.Response {
	var responses []*models.Response
	for {
		if t.safety.EmergencyActive() {
			break
		}
		entry := t.queue.TryDequeue()
		if entry == nil {
			break
		}
		resp := t.TranslateAndExecute(ctx, entry.Command)
		responses = append(responses, resp)
		if stopOnError && resp.Failed() {
			break
		}
	}
	return responses
}

// RunConsumer is the single queue consumer loop. It blocks on the queue,
// honors pause and the safety gate, and exits when the context is done.
// Exactly one RunConsumer must be active per translator.
func (t *Translator) RunConsumer(ctx context.Context) {
	t.logger.Info("queue consumer started")
	for {
		entry, err := t.queue.Dequeue(ctx)
		if err != nil {
			t.logger.Info("queue consumer stopped", "reason", err)
			return
		}
		if !t.waitWhilePaused(ctx) {
			return
		}
		if t.safety.EmergencyActive() {
			// Entries pulled between the stop and the queue clear are
			// cancelled, not executed.
			cmd := entry.Command
			cmd.Status = models.StatusCancelled
			resp := models.NewCancelledResponse(cmd, "emergency stop active")
			t.history.Record(cmd, resp)
			continue
		}
		t.TranslateAndExecute(ctx, entry.Command)
	}
}

// waitWhilePaused blocks while consumption is paused. Returns false if the
// context ended while waiting.
func (t *Translator) waitWhilePaused(ctx context.Context) bool {
	for t.paused.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return true
}

// Paused reports whether queue consumption is currently suspended.
func (t *Translator) Paused() bool {
	return t.paused.Load()
}

// EmergencyStop triggers the safety manager's stop, then drains the queue.
// The level goes to Emergency before the clear so EnqueueCommand cannot
// slip a command in behind the drain. Returns how many pending commands
// were discarded.
func (t *Translator) EmergencyStop(ctx context.Context, reason string) (int, error) {
	err := t.safety.EmergencyStop(ctx, reason)
	cleared := t.queue.Clear()
	t.logger.Warn("emergency stop", "reason", reason, "queue_cleared", cleared)
	return cleared, err
}

// ResetEmergency returns the system to normal operation. The queue must be
// empty first so no stale pre-stop command runs on a freshly reset machine.
func (t *Translator) ResetEmergency() error {
	if t.queue.Size() > 0 {
		return models.NewCommandError(models.ErrCodeQueueNotDrained,
			"queue must be drained or cleared before reset")
	}
	t.safety.Reset()
	t.ResetState()
	return nil
}

// AddCustomTemplate registers or overrides an instruction template at
// runtime.
func (t *Translator) AddCustomTemplate(name string, tmpl assembler.Template) {
	t.asm.AddTemplate(name, tmpl)
	t.logger.Info("custom template registered", "operation", name)
}

// AddCustomValidator registers or overrides a parameter validator at
// runtime.
func (t *Translator) AddCustomValidator(param string, v assembler.ParamValidator) {
	t.asm.AddValidator(param, v)
	t.logger.Info("custom validator registered", "parameter", param)
}

// GetState returns the derived-state projection. It is rebuilt from cache
// reads on every call; the cache stays the single source of truth.
func (t *Translator) GetState(ctx context.Context) *models.DerivedState {
	state := t.projectState()
	if pos, err := t.cache.Get(ctx, "position", cache.CategoryPosition); err == nil {
		if m := positionMap(pos); m != nil {
			state.Position = m
		}
		state.BackendConnected = true
	}
	return state
}

// projectState builds the projection from live cache entries only, without
// any backend fetch.
func (t *Translator) projectState() *models.DerivedState {
	state := models.NewDerivedState()
	if entry, ok := t.cache.Peek("position"); ok {
		if m := positionMap(entry.Value); m != nil {
			state.Position = m
		}
	}
	if entry, ok := t.cache.Peek("vacuum"); ok {
		if power, ok := toFloat(entry.Value); ok {
			state.VacuumEnabled = power > 0
		}
	}
	if entry, ok := t.cache.Peek("fan"); ok {
		if speed, ok := toFloat(entry.Value); ok {
			state.FanSpeed = speed
		}
	}
	for _, key := range t.cache.Keys() {
		pin, found := strings.CutPrefix(key, "actuator:")
		if !found {
			continue
		}
		if entry, ok := t.cache.Peek(key); ok {
			if v, ok := toFloat(entry.Value); ok {
				state.Actuators[pin] = v
			}
		}
	}
	return state
}

// ResetState clears the projection-backing cache entries and the homed-axis
// tracking. The next reads refetch from the backend.
func (t *Translator) ResetState() {
	t.cache.Invalidate("position")
	t.cache.Invalidate("vacuum")
	t.cache.Invalidate("fan")
	if _, err := t.cache.InvalidatePattern("actuator:*"); err != nil {
		t.logger.Warn("actuator invalidation failed", "error", err)
	}
	t.homedMu.Lock()
	t.homedAxes = make(map[string]bool)
	t.homedMu.Unlock()
	t.logger.Info("derived state reset")
}

// markHomed records which axes a homing command covered. An empty axes
// parameter homes all three.
func (t *Translator) markHomed(p models.Params) {
	axes := p.StringOr("axes", "xyz")
	t.homedMu.Lock()
	defer t.homedMu.Unlock()
	for _, axis := range strings.Split(strings.ToLower(axes), "") {
		if axis == "x" || axis == "y" || axis == "z" {
			t.homedAxes[axis] = true
		}
	}
}

// unhomedAxes returns the motion axes a command touches that have not been
// homed since startup or the last reset.
func (t *Translator) unhomedAxes(cmd *models.Command) []string {
	candidates := []string{"x", "y", "z"}
	switch cmd.Type {
	case models.OpPick, models.OpPlace:
		candidates = []string{"z"}
	case models.OpPickAndPlace:
		// all three
	case models.OpMove, models.OpMoveAbsolute, models.OpMoveRelative:
		var used []string
		for _, axis := range candidates {
			if cmd.Parameters.Has(axis) {
				used = append(used, axis)
			}
		}
		candidates = used
	default:
		return nil
	}
	t.homedMu.Lock()
	defer t.homedMu.Unlock()
	var missing []string
	for _, axis := range candidates {
		if !t.homedAxes[axis] {
			missing = append(missing, axis)
		}
	}
	return missing
}

// timeoutOr maps a context deadline error to a timeout response and wraps
// everything else as an execution error.
func timeoutOr(ctx context.Context, cmd *models.Command, err error) *models.Response {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewTimeoutResponse(cmd)
	}
	return models.NewErrorResponse(cmd, err)
}

func positionMap(value interface{}) map[string]float64 {
	switch v := value.(type) {
	case map[string]float64:
		out := make(map[string]float64, len(v))
		for k, f := range v {
			out[k] = f
		}
		return out
	case map[string]interface{}:
		// Backend snapshots nest position under the toolhead object.
		if inner, ok := v["toolhead"].(map[string]interface{}); ok {
			return positionMap(inner)
		}
		if inner, ok := v["position"]; ok && len(v) > 0 {
			if m := positionMap(inner); m != nil {
				return m
			}
		}
		out := make(map[string]float64)
		for k, raw := range v {
			if f, ok := toFloat(raw); ok {
				out[k] = f
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []interface{}:
		axes := []string{"x", "y", "z", "e"}
		out := make(map[string]float64)
		for i, raw := range v {
			if i >= len(axes) {
				break
			}
			if f, ok := toFloat(raw); ok {
				out[axes[i]] = f
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
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
	case uint64:
		return float64(n), true
	}
	return 0, false
}
