// Package dynbox provides the type-erased owning handle at the center
// of dynbridge: a reference-counted Box wrapping exactly one concrete
// native value, safely shareable between the native side and a guest
// runtime that only ever holds opaque handles to it.
//
// A Box is parameterized at runtime by the capability combination
// currently proven about the value. Widening (Upcast) is a pure view
// change; narrowing back to a concrete type (Downcast) is a strict
// identity check; producing a dynamically-dispatched view (Coerce) is
// the single operation that consults the capability registry.
//
//	sheep := &Sheep{Name: "dolly"}
//	box, err := dynbox.FromConcrete(sheep)
//	view, err := dynbox.Coerce[Animal](box, registry.NewCaps(registry.Shareable, animalTrait))
//	view.Use(func(a Animal) { a.Talk() })
//	view.Release()
//	box.Release()
//
// All handles and views of one value share a single cell with an atomic
// reference count; the value is dropped exactly once, when the last
// owner on either side releases it. Borrows are closure-scoped under
// the cell's RWMutex, so a mutable borrow is never observable
// concurrently with any other live borrow. Handles created with
// FromConcreteShared are read-only: mutation through them fails with a
// uniqueness violation, decided when the view is constructed rather
// than checked dynamically at each access.
package dynbox
