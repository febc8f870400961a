package guest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/dynbridge/errors"
)

// Root is a backend-issued pin on one guest value: the value cannot be
// collected or moved out from under the native side while the root is
// live.
type Root uint32

// Backend is what a concrete guest runtime provides. All methods are
// called with a live Context; the Runtime guarantees a single context
// at a time (cooperative scheduling), so implementations need no
// internal locking against each other.
type Backend interface {
	Name() string

	// Root pins a raw guest value and returns a stable root for it.
	Root(c *Context, raw uint64) (Root, error)

	// Unroot releases a root, letting the guest collector reclaim the
	// value.
	Unroot(c *Context, root Root) error

	// Resolve recovers the current raw value behind a root.
	Resolve(c *Context, root Root) (uint64, error)

	// Invoke calls the guest closure behind fn. The guest may re-enter
	// native code through registered host functions before returning.
	Invoke(c *Context, fn Root, args []uint64) ([]uint64, error)

	// Lower marshals a native value into its guest representation word.
	Lower(c *Context, v any) (uint64, error)

	// Lift unmarshals a guest representation word into *R.
	Lift(c *Context, word uint64, into any) error
}

// Runtime owns one guest runtime instance and the single execution
// context for it. Only one native goroutine holds the context at a
// time; every boundary crossing goes through Enter.
type Runtime struct {
	backend Backend

	mu sync.Mutex // the execution context

	defMu    sync.Mutex
	deferred []Root
}

// NewRuntime wraps a backend.
func NewRuntime(b Backend) *Runtime {
	return &Runtime{backend: b}
}

// Backend returns the underlying guest backend.
func (r *Runtime) Backend() Backend { return r.backend }

// Context is the thread-bound token proving the guest runtime is
// currently reachable: it exists only inside Enter, and every operation
// that dereferences a guest value takes one. A Context must not be
// retained past the Enter call that produced it.
type Context struct {
	rt   *Runtime
	ctx  context.Context
	live bool
}

// Context returns the Go context the boundary was entered with.
func (c *Context) Context() context.Context { return c.ctx }

// Runtime returns the owning runtime.
func (c *Context) Runtime() *Runtime { return c.rt }

func (c *Context) check(rt *Runtime, op string) error {
	if c == nil || !c.live {
		return errors.ContextRequired(op)
	}
	if c.rt != rt {
		return errors.New(errors.PhaseGuest, errors.KindInvalidInput).
			Detail("%s: context belongs to a different guest runtime", op).
			Build()
	}
	return nil
}

// Enter acquires the guest execution context, drains any releases that
// were deferred for lack of one, and runs fn. Calls are serialized;
// entering again from inside fn deadlocks, since re-entrant crossings
// already run under the live context.
func (r *Runtime) Enter(ctx context.Context, fn func(*Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Context{rt: r, ctx: ctx, live: true}
	defer func() { c.live = false }()

	r.drainDeferred(c)
	return fn(c)
}

// deferRelease queues a root whose last native owner was dropped
// outside a live context. The root is released on the next Enter.
func (r *Runtime) deferRelease(root Root) {
	r.defMu.Lock()
	r.deferred = append(r.deferred, root)
	n := len(r.deferred)
	r.defMu.Unlock()

	Logger().Warn("guest value release deferred until next context entry",
		zap.String("backend", r.backend.Name()),
		zap.Uint32("root", uint32(root)),
		zap.Int("queued", n))
}

func (r *Runtime) drainDeferred(c *Context) {
	r.defMu.Lock()
	pending := r.deferred
	r.deferred = nil
	r.defMu.Unlock()

	for _, root := range pending {
		if err := r.backend.Unroot(c, root); err != nil {
			Logger().Error("deferred unroot failed",
				zap.Uint32("root", uint32(root)),
				zap.Error(err))
		}
	}
}

// PendingReleases reports how many roots await a context to be
// released under. Diagnostic only.
func (r *Runtime) PendingReleases() int {
	r.defMu.Lock()
	defer r.defMu.Unlock()
	return len(r.deferred)
}
