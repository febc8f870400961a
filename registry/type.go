package registry

import (
	"reflect"
)

// Type is the concrete type record: a single canonical identity for one
// native type, its declared marker capabilities, and the behavioral
// capabilities it supports. A Type is registered at most once per
// registry; conflicting re-registration aborts startup.
type Type struct {
	rtype   reflect.Type
	fqName  string
	markers Marker
	traits  []*Trait
}

// NewType declares a concrete type record for T. Every trait must be
// implemented by *T; a mismatch is a programming error and panics at
// declaration time rather than surfacing later as a bad conversion.
func NewType[T any](markers Marker, traits ...*Trait) *Type {
	rtype := reflect.TypeOf((*T)(nil)).Elem()
	ptr := reflect.PointerTo(rtype)
	for _, tr := range traits {
		if !ptr.Implements(tr.iface) {
			panic("registry: " + fqNameOf(rtype) + " does not implement " + tr.fqName)
		}
	}
	return &Type{
		rtype:   rtype,
		fqName:  fqNameOf(rtype),
		markers: markers,
		traits:  traits,
	}
}

// GoType returns the reflect identity of the concrete type.
func (t *Type) GoType() reflect.Type { return t.rtype }

// Name returns the fully qualified type name.
func (t *Type) Name() string { return t.fqName }

// Markers returns the declared marker capability set.
func (t *Type) Markers() Marker { return t.markers }

// Traits returns the declared behavioral capabilities.
func (t *Type) Traits() []*Trait { return t.traits }

// Caps returns the type's full declared capability combination. This is
// the set attached to a DynBox constructed from a T value.
func (t *Type) Caps() Caps {
	return NewCaps(t.markers, t.traits...)
}

// same reports whether two records declare the identical capability set
// for the identical Go type. Identical re-registration is a no-op;
// anything else is a duplicate-registration abort.
func (t *Type) same(o *Type) bool {
	if t.rtype != o.rtype || t.markers != o.markers || len(t.traits) != len(o.traits) {
		return false
	}
	for _, tr := range t.traits {
		found := false
		for _, otr := range o.traits {
			if tr.iface == otr.iface {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Entry is one materialized conversion entry: the value stored in the
// registry for a (concrete type, capability combination) key. Cast
// converts the erased concrete value (*T as any) into a value assertable
// to any trait interface of the combination.
type Entry struct {
	Type *Type
	Caps Caps

	casts map[reflect.Type]func(any) any
}

// CastTo converts an erased concrete value to the given trait interface
// of the entry's combination. The bool result is false when iface is not
// part of the combination.
func (e *Entry) CastTo(v any, iface reflect.Type) (any, bool) {
	cast, ok := e.casts[iface]
	if !ok {
		return nil, false
	}
	return cast(v), true
}
