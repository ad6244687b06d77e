// Package rules keeps derived state consistent after entity saves: natco
// applicability rows, automation status and notifications.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/innowave/analytiqa/internal/model"
)

// Event is a domain event raised after an entity is saved.
type Event interface {
	Kind() string
}

type TestCaseSaved struct {
	TestCase model.TestCase
	// Previous is the state before this save, nil on create.
	Previous *model.TestCase
	Actor    string
}

type ScriptIssueSaved struct {
	Issue   model.ScriptIssue
	Created bool
	Actor   string
}

type ScriptSaved struct {
	Script  model.Script
	Created bool
	Actor   string
}

type NatcoRowSaved struct {
	Row   model.NatcoStatus
	Actor string
}

func (TestCaseSaved) Kind() string    { return "testcase.saved" }
func (ScriptIssueSaved) Kind() string { return "scriptissue.saved" }
func (ScriptSaved) Kind() string      { return "script.saved" }
func (NatcoRowSaved) Kind() string    { return "natcorow.saved" }

// Handler reacts to one event.
type Handler func(ctx context.Context, ev Event) error

type namedHandler struct {
	name string
	fn   Handler
}

// maxDepth bounds nested dispatches raised by handlers.
const maxDepth = 8

type depthKey struct{}

// Dispatcher runs the handlers registered for an event kind one after
// another. A failing or panicking handler is logged and does not stop
// the others.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]namedHandler), logger: logger}
}

// On registers fn under name for events of kind.
func (d *Dispatcher) On(kind, name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], namedHandler{name: name, fn: fn})
}

// Subscribe registers a typed handler for events of type E.
func Subscribe[E Event](d *Dispatcher, name string, fn func(context.Context, E) error) {
	var zero E
	d.On(zero.Kind(), name, func(ctx context.Context, ev Event) error {
		e, ok := ev.(E)
		if !ok {
			return fmt.Errorf("unexpected event %T", ev)
		}
		return fn(ctx, e)
	})
}

// Dispatch delivers ev to every handler of its kind.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= maxDepth {
		d.logger.Error("event dropped, dispatch too deep", "event", ev.Kind(), "depth", depth)
		return
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)

	d.mu.RLock()
	hs := append([]namedHandler(nil), d.handlers[ev.Kind()]...)
	d.mu.RUnlock()

	for _, h := range hs {
		d.run(ctx, h, ev)
	}
}

func (d *Dispatcher) run(ctx context.Context, h namedHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("rule panicked", "rule", h.name, "event", ev.Kind(), "panic", r)
		}
	}()
	if err := h.fn(ctx, ev); err != nil {
		d.logger.Error("rule failed", "rule", h.name, "event", ev.Kind(), "error", err)
	}
}
