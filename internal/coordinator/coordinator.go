// Package coordinator sequences the dependent asynchronous loads of a
// geodatabase service (root → definition → derived configuration → starting
// element) and orchestrates trace queries whose results fan out across
// network-source groups. It owns all of its state; the UI layer only reads
// via accessors.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vk/tracegridgo/internal/ctxlog"
	"github.com/vk/tracegridgo/internal/metrics"
	"github.com/vk/tracegridgo/internal/network"
)

// Options configure a coordinator for one network.
type Options struct {
	// Start locates the default starting element via the
	// source → group → type → identifier lookup chain.
	Start network.Locator
	// Flags are the named booleans folded into the derived configuration
	// (e.g. "include_isolated").
	Flags map[string]bool
	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics
}

// Coordinator drives the load chain and query operations against a Provider.
// A single mutex protects every state field; call volume is low enough that
// finer locking buys nothing.
type Coordinator struct {
	provider Provider
	opts     Options

	mu     sync.Mutex
	state  State
	status OperationStatus
	epoch  uint64

	root  RootHandle
	def   *network.Definition
	cfg   network.Configuration
	start network.Element
}

// New creates a coordinator in the Idle state. Start must be called before
// any query can run.
func New(p Provider, opts Options) *Coordinator {
	c := &Coordinator{provider: p, opts: opts, state: Idle}
	c.status = OperationStatus{Message: "not started", At: time.Now()}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the most recent status line.
func (c *Coordinator) Status() OperationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsReady reports whether a query may run right now.
func (c *Coordinator) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Ready
}

// Definition returns the loaded network definition, nil before Ready.
func (c *Coordinator) Definition() *network.Definition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.def
}

// StartingElement returns the resolved default starting element. Only valid
// once Ready.
func (c *Coordinator) StartingElement() network.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start
}

// Start runs the load chain: root service, network definition, derived
// configuration and starting-element resolution. It blocks until the chain
// reaches Ready or Failed. A Start while any operation is in flight returns
// ErrBusy. A Start after Failed (or Ready) begins a fresh epoch; results of
// the abandoned attempt, should they still arrive, are discarded.
func (c *Coordinator) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	c.mu.Lock()
	switch c.state {
	case LoadingRoot, LoadingDefinition, Resolving, Querying:
		c.mu.Unlock()
		return ErrBusy
	}
	c.epoch++
	epoch := c.epoch
	c.root = nil
	c.def = nil
	c.cfg = network.Configuration{}
	c.start = network.Element{}
	c.transitionLocked(LoadingRoot, "loading service")
	c.mu.Unlock()

	logger.Info("▶️ Loading root service", "epoch", epoch)
	root, err := awaitCtx(ctx, func() (RootHandle, error) { return c.provider.LoadRoot(ctx) })
	if err != nil {
		return c.failLoad(logger, epoch, StageRoot, err)
	}
	if !c.commit(epoch, func() {
		c.root = root
		c.transitionLocked(LoadingDefinition, "loading network definition")
	}) {
		return ErrSuperseded
	}

	logger.Info("▶️ Loading network definition", "epoch", epoch)
	def, err := awaitCtx(ctx, func() (*network.Definition, error) { return c.provider.LoadDefinition(ctx, root) })
	if err != nil {
		return c.failLoad(logger, epoch, StageDefinition, err)
	}
	if !c.commit(epoch, func() {
		c.def = def
		c.transitionLocked(Resolving, "resolving starting element")
	}) {
		return ErrSuperseded
	}

	// Resolution is a pure lookup chain over the loaded definition plus one
	// provider call for the entity handle. The definition is an
	// immutable-after-load snapshot, so no lock is needed to walk it.
	elem, cfg, err := c.resolve(def)
	if err != nil {
		c.opts.Metrics.LoadFailed(metrics.StageResolve)
		logger.Error("Resolution failed.", "epoch", epoch, "error", err)
		if !c.commit(epoch, func() {
			c.transitionLocked(Failed, "resolution failed")
			c.closeEpochLocked()
		}) {
			return ErrSuperseded
		}
		return err
	}

	if !c.commit(epoch, func() {
		c.start = elem
		c.cfg = cfg
		c.transitionLocked(Ready, fmt.Sprintf("network %q ready", def.Name))
	}) {
		return ErrSuperseded
	}
	c.opts.Metrics.LoadSucceeded()
	logger.Info("✅ Network ready", "network", def.Name, "epoch", epoch)
	return nil
}

// resolve derives the trace configuration and walks the lookup chain for the
// starting element.
func (c *Coordinator) resolve(def *network.Definition) (network.Element, network.Configuration, error) {
	loc := c.opts.Start

	src, ok := def.LookupSource(loc.Source)
	if !ok {
		return network.Element{}, network.Configuration{}, &ResolutionError{Link: "source", Name: loc.Source}
	}
	grp, ok := src.LookupGroup(loc.Group)
	if !ok {
		return network.Element{}, network.Configuration{}, &ResolutionError{Link: "group", Name: loc.Group}
	}
	typ, ok := grp.LookupType(loc.Type)
	if !ok {
		return network.Element{}, network.Configuration{}, &ResolutionError{Link: "type", Name: loc.Type}
	}
	handle, err := c.provider.MakeElement(typ, loc.Identifier)
	if err != nil {
		return network.Element{}, network.Configuration{}, &ResolutionError{Link: "element", Name: loc.Identifier.String()}
	}

	elem := network.Element{
		Source:     loc.Source,
		Group:      loc.Group,
		Type:       loc.Type,
		Identifier: loc.Identifier,
		Handle:     handle,
	}
	return elem, network.NewConfiguration(def.Base, c.opts.Flags), nil
}

// failLoad records a terminal load-chain failure for the given epoch.
func (c *Coordinator) failLoad(logger *slog.Logger, epoch uint64, stage LoadStage, err error) error {
	lerr := &LoadError{Stage: stage, Err: err}
	c.opts.Metrics.LoadFailed(metrics.Stage(stage))
	logger.Error("Load chain failed.", "stage", string(stage), "epoch", epoch, "error", err)
	if !c.commit(epoch, func() {
		c.transitionLocked(Failed, lerr.Error())
		c.closeEpochLocked()
	}) {
		return ErrSuperseded
	}
	return lerr
}

// closeEpochLocked marks the current attempt terminal. Provider calls still
// outstanding for this attempt carry the old epoch and can no longer commit
// anything; a subsequent Start begins cleanly. Callers hold the mutex.
func (c *Coordinator) closeEpochLocked() {
	c.epoch++
}

// awaitResult pairs a value with an error for transport over a channel.
type awaitResult[T any] struct {
	val T
	err error
}

// awaitCtx runs fn in its own goroutine and waits for it or for the context,
// whichever finishes first. When the context wins, fn keeps running in the
// background and its eventual result is dropped; the epoch tag makes the
// drop safe against stale commits.
func awaitCtx[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	ch := make(chan awaitResult[T], 1)
	go func() {
		v, err := fn()
		ch <- awaitResult[T]{val: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.val, r.err
	}
}

// commit applies fn under the lock only if the given epoch is still current.
// It returns false when a newer Start has superseded the caller, in which
// case fn is discarded and no state is touched.
func (c *Coordinator) commit(epoch uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	fn()
	return true
}

// transitionLocked sets state and overwrites the status line. Callers hold
// the mutex.
func (c *Coordinator) transitionLocked(s State, msg string) {
	c.state = s
	c.status = OperationStatus{Message: msg, At: time.Now()}
}
