package dynbox

import (
	"reflect"

	"github.com/wippyai/dynbridge/errors"
	"github.com/wippyai/dynbridge/registry"
)

// Upcast widens a handle to a sub-combination it already satisfies.
// Pure view change: no registry lookup, the cell is shared and
// retained. Widening to a combination the handle does not prove is a
// programming error reported as invalid input.
func Upcast(b *Box, want registry.Caps) (*Box, error) {
	b.mustLive("Upcast")
	if !b.caps.Contains(want) {
		return nil, errors.New(errors.PhaseCast, errors.KindInvalidInput).
			Type(b.cell.typ.Name()).
			Capability(want.Key()).
			Detail("upcast target is not a subset of the proven combination %s", b.caps.Key()).
			Build()
	}
	nb := b.Clone()
	nb.caps = want
	return nb, nil
}

// Downcast narrows a handle back to the concrete type T by strict
// identity: the erased value's type tag must be exactly T, never a
// compatible or wider type. Success returns a handle carrying T's full
// declared capability set; failure is expected control flow.
func Downcast[T any](b *Box) (*Box, error) {
	b.mustLive("Downcast")
	want := reflect.TypeOf((*T)(nil)).Elem()
	if b.cell.typ.GoType() != want {
		return nil, errors.TypeMismatch(want.String(), b.cell.typ.Name())
	}
	nb := b.Clone()
	nb.caps = b.cell.typ.Caps()
	return nb, nil
}

// View is a dynamically-dispatched handle exposing exactly one
// requested capability combination, backed by the same shared
// allocation as the handle it was coerced from.
type View[I any] struct {
	box   *Box
	iface I
}

// Coerce produces a dynamic view of the handle through trait interface
// I under the requested combination. This is the only operation that
// consults the capability registry at runtime; the combination must
// have been materialized, and I must be one of its traits.
func Coerce[I any](b *Box, want registry.Caps) (*View[I], error) {
	b.mustLive("Coerce")

	entry, err := b.reg.Resolve(b.cell.typ.GoType(), want)
	if err != nil {
		return nil, err
	}

	iface := reflect.TypeOf((*I)(nil)).Elem()
	cast, ok := entry.CastTo(b.cell.value, iface)
	if !ok {
		return nil, errors.New(errors.PhaseCast, errors.KindCapabilityNotRegistered).
			Type(b.cell.typ.Name()).
			Capability(want.Key()).
			Detail("interface %s is not a trait of the requested combination", iface.String()).
			Build()
	}

	nb := b.Clone()
	nb.caps = want
	return &View[I]{box: nb, iface: cast.(I)}, nil
}

// Use runs fn with the dispatched interface value under a shared
// borrow. fn must not retain the value past its return.
func (v *View[I]) Use(fn func(I)) {
	v.box.mustLive("Use")
	v.box.cell.mu.RLock()
	defer v.box.cell.mu.RUnlock()
	fn(v.iface)
}

// UseMut runs fn under an exclusive borrow. Mutation through a
// read-only view is a uniqueness violation: a broken invariant, not
// expected input.
func (v *View[I]) UseMut(fn func(I)) error {
	v.box.mustLive("UseMut")
	if v.box.readOnly {
		return errors.UniquenessViolation(v.box.cell.typ.Name(),
			"mutable borrow through a shared view")
	}
	v.box.cell.mu.Lock()
	defer v.box.cell.mu.Unlock()
	fn(v.iface)
	return nil
}

// Box returns the view's underlying handle. The handle stays owned by
// the view; Clone it to keep it past the view's release.
func (v *View[I]) Box() *Box { return v.box }

// Release drops the view's reference to the shared allocation.
func (v *View[I]) Release() {
	v.box.Release()
}
