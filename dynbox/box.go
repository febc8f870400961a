package dynbox

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/wippyai/dynbridge/errors"
	"github.com/wippyai/dynbridge/registry"
)

// Dropper is optionally implemented by concrete values that need
// cleanup when the last handle sharing them is released.
type Dropper interface {
	Drop()
}

// cell is the single shared allocation behind every handle and view of
// one concrete value. The reference count is the only mutable shared
// state in steady operation; it is atomic so that handles dropped from
// either side of the runtime boundary stay consistent regardless of
// drop order.
type cell struct {
	value any // *T
	typ   *registry.Type
	refs  atomic.Int64
	mu    sync.RWMutex
}

// Box is a type-erased owning handle to exactly one concrete value,
// carrying the capability combination currently proven about it. All
// handles and views derived from one value share a single cell; the
// value is never duplicated.
//
// Each Box owns exactly one reference. Clone to share, Release when
// done. A Box is not safe for concurrent use by itself; the cell it
// points to is.
type Box struct {
	cell     *cell
	caps     registry.Caps
	reg      *registry.Registry
	readOnly bool
	released bool
}

// FromConcrete moves a concrete value into erased, reference-counted
// storage. The attached capability set is exactly the type's full
// declared set; an unregistered type is a configuration error. The
// resulting handle permits mutation through BorrowMut.
func FromConcrete[T any](v *T) (*Box, error) {
	return FromConcreteIn(registry.Default(), v)
}

// FromConcreteShared is FromConcrete for values that will be shared:
// every view derived from the handle is read-only, enforced at
// construction rather than checked at each access.
func FromConcreteShared[T any](v *T) (*Box, error) {
	b, err := FromConcreteIn(registry.Default(), v)
	if err != nil {
		return nil, err
	}
	b.readOnly = true
	return b, nil
}

// FromConcreteSharedIn is FromConcreteShared against an explicit
// registry.
func FromConcreteSharedIn[T any](reg *registry.Registry, v *T) (*Box, error) {
	b, err := FromConcreteIn(reg, v)
	if err != nil {
		return nil, err
	}
	b.readOnly = true
	return b, nil
}

// FromConcreteIn is FromConcrete against an explicit registry.
func FromConcreteIn[T any](reg *registry.Registry, v *T) (*Box, error) {
	typ, ok := reg.IdentityOf(v)
	if !ok {
		return nil, errors.New(errors.PhaseCast, errors.KindCapabilityNotRegistered).
			Type(typeNameOf(v)).
			Detail("concrete type was never registered").
			Build()
	}
	c := &cell{value: v, typ: typ}
	c.refs.Store(1)
	return &Box{cell: c, caps: typ.Caps(), reg: reg}, nil
}

// Caps returns the capability combination currently proven about the
// handle.
func (b *Box) Caps() registry.Caps { return b.caps }

// Type returns the concrete type record carried by the erased value.
// This is the identity used for downcasting.
func (b *Box) Type() *registry.Type { return b.cell.typ }

// ReadOnly reports whether the handle is a shared, read-only view.
func (b *Box) ReadOnly() bool { return b.readOnly }

// Refs returns the current reference count of the underlying
// allocation.
func (b *Box) Refs() int64 { return b.cell.refs.Load() }

// Clone returns a new handle sharing the same allocation. The reference
// count is incremented, the value is not copied.
func (b *Box) Clone() *Box {
	b.mustLive("Clone")
	b.cell.refs.Add(1)
	return &Box{cell: b.cell, caps: b.caps, reg: b.reg, readOnly: b.readOnly}
}

// Release drops this handle's reference. The underlying value is
// dropped exactly once, when the last handle or view sharing it is
// released, regardless of drop order. Releasing the same handle twice
// is a broken invariant and panics.
func (b *Box) Release() {
	b.mustLive("Release")
	b.released = true

	n := b.cell.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic(errors.Released(errors.PhaseBorrow, "allocation"))
	}

	b.cell.mu.Lock()
	v := b.cell.value
	b.cell.value = nil
	b.cell.mu.Unlock()

	if d, ok := v.(Dropper); ok {
		d.Drop()
	}
}

func (b *Box) mustLive(op string) {
	if b.released {
		panic(errors.Released(errors.PhaseBorrow, "handle ("+op+")"))
	}
}

func typeNameOf(v any) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
