package guest

import (
	"sync/atomic"

	"github.com/wippyai/dynbridge/dynbox"
	"github.com/wippyai/dynbridge/errors"
	"github.com/wippyai/dynbridge/registry"
)

// shared is the reference-counted pin on one guest value. Cloning a Box
// is safe from any thread without a context; everything that actually
// touches the guest value requires one.
type shared struct {
	rt   *Runtime
	root Root
	refs atomic.Int64
}

// Box owns one reference to a pinned guest value. It is movable across
// native threads; the pinned value itself can only be observed or
// released under a live execution context for the runtime that owns it.
type Box struct {
	shared   *shared
	released bool
}

// NewBox pins a raw guest value for the native side. The returned box
// keeps the value alive until its last reference is released.
func NewBox(c *Context, raw uint64) (*Box, error) {
	if c == nil {
		return nil, errors.ContextRequired("NewBox")
	}
	if err := c.check(c.rt, "NewBox"); err != nil {
		return nil, err
	}
	root, err := c.rt.backend.Root(c, raw)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindInvalidInput, err, "root guest value")
	}
	s := &shared{rt: c.rt, root: root}
	s.refs.Store(1)
	return &Box{shared: s}, nil
}

// Value recovers the raw guest value. Valid only under a live context
// for the owning runtime.
func (b *Box) Value(c *Context) (uint64, error) {
	if b.released {
		return 0, errors.Released(errors.PhaseGuest, "guest box")
	}
	if err := c.check(b.shared.rt, "Value"); err != nil {
		return 0, err
	}
	return b.shared.rt.backend.Resolve(c, b.shared.root)
}

// Clone adds a reference. No context needed: the root is just a
// pointer-sized pin, and the count is atomic.
func (b *Box) Clone() *Box {
	if b.released {
		panic(errors.Released(errors.PhaseGuest, "guest box (Clone)"))
	}
	b.shared.refs.Add(1)
	return &Box{shared: b.shared}
}

// Refs returns the current native reference count.
func (b *Box) Refs() int64 { return b.shared.refs.Load() }

// Release drops this reference. The underlying root is released when
// the count reaches zero; that must happen under a live context, so a
// last release with a nil context is deferred to the runtime's next
// Enter rather than touching the guest collector off-context.
func (b *Box) Release(c *Context) {
	if b.released {
		panic(errors.Released(errors.PhaseGuest, "guest box (Release)"))
	}
	b.released = true

	if b.shared.refs.Add(-1) > 0 {
		return
	}

	rt := b.shared.rt
	if c == nil || c.check(rt, "Release") != nil {
		rt.deferRelease(b.shared.root)
		return
	}
	if err := rt.backend.Unroot(c, b.shared.root); err != nil {
		panic(errors.Wrap(errors.PhaseGuest, errors.KindInvalidInput, err, "unroot guest value"))
	}
}

// RequireTransferable verifies that a native handle is allowed to cross
// threads: its concrete type must carry the Transferable marker. The
// guest boundary forwards what the registry proved about the wrapped
// value; it never grants the capability itself.
func RequireTransferable(b *dynbox.Box) error {
	if !b.Caps().Markers.Contains(registry.Transferable) {
		return errors.New(errors.PhaseGuest, errors.KindCapabilityNotRegistered).
			Type(b.Type().Name()).
			Capability(registry.Transferable.String()).
			Detail("value may not move across threads").
			Build()
	}
	return nil
}
