// Package engine applies operations to the settlement state one at a
// time. Every operation is executed under a snapshot: if any check fails
// part-way, all state changes attempted by the operation are discarded.
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/events"
)

// ErrNotInitialized is returned when an operation arrives before
// Initialize has completed.
var ErrNotInitialized = errors.New("engine not initialized")

// Context is passed to every Handler and provides access to the state,
// the triggering operation, the execution timestamp, and the event emitter.
type Context struct {
	State   core.State
	Op      *core.Operation
	Now     int64 // unix seconds; stake start times and listing times use this
	Emitter *events.Emitter
}

// Engine verifies and executes operations using the global Handler
// registry. All mutating calls are serialized on an internal mutex, so
// no two operations ever interleave and no partial effects are visible.
type Engine struct {
	mu      sync.Mutex
	state   core.State
	emitter *events.Emitter
	log     zerolog.Logger

	// Now supplies the execution timestamp. Tests may replace it.
	Now func() int64
}

// New creates an Engine with the given state and event emitter.
func New(state core.State, emitter *events.Emitter, logger zerolog.Logger) *Engine {
	return &Engine{
		state:   state,
		emitter: emitter,
		log:     logger,
		Now:     func() int64 { return time.Now().Unix() },
	}
}

// State returns the underlying state for read-only queries.
func (e *Engine) State() core.State {
	return e.state
}

// View runs fn under the engine lock so it never observes an operation
// mid-flight. fn must not call Execute.
func (e *Engine) View(fn func(core.State) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.state)
}

// StateRoot returns the deterministic root of the current state.
func (e *Engine) StateRoot() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ComputeRoot()
}

// Execute verifies and applies a single operation with snapshot/rollback,
// then commits the write buffer. It returns the handler's error on
// failure, with no state change.
func (e *Engine) Execute(op *core.Operation) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	meta, err := e.state.GetMeta()
	if err != nil {
		return fmt.Errorf("get meta: %w", err)
	}
	if !meta.Initialized {
		return ErrNotInitialized
	}
	if op.EngineID != meta.EngineID {
		return fmt.Errorf("engine id mismatch: op targets %q, this engine is %q", op.EngineID, meta.EngineID)
	}
	if err := op.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if err := e.apply(op); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after op failure: %w (revert: %v)", err, revertErr)
		}
		e.log.Debug().Str("op", string(op.Type)).Str("from", op.From).Err(err).Msg("operation rejected")
		return err
	}

	if err := e.state.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	e.emitter.Emit(events.Event{
		Type:      events.EventOpExecuted,
		OpID:      op.ID,
		Timestamp: e.Now(),
		Data:      map[string]any{"type": string(op.Type), "from": op.From},
	})
	e.log.Info().Str("op", string(op.Type)).Str("from", op.From).Str("id", op.ID).Msg("operation executed")
	return nil
}

// apply advances the nonce then dispatches to the registered handler.
func (e *Engine) apply(op *core.Operation) error {
	acc, err := e.state.GetAccount(op.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != op.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, op.Nonce)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", op.From)
	}
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}

	ctx := &Context{
		State:   e.state,
		Op:      op,
		Now:     e.Now(),
		Emitter: e.emitter,
	}
	return globalRegistry.Execute(op.Type, ctx, op.Payload)
}
