package registry

import (
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/dynbridge/errors"
)

type entryKey struct {
	rtype reflect.Type
	caps  string
}

// Registry maps (concrete type, capability combination) keys to
// materialized conversion entries. Registration happens during an
// explicit build phase; the first resolution freezes the registry and
// the read path is lock-free from then on.
type Registry struct {
	mu     sync.Mutex
	frozen atomic.Bool

	types   map[reflect.Type]*Type
	traits  map[reflect.Type]*Trait
	entries map[entryKey]*Entry
}

// New creates an empty, unfrozen registry.
func New() *Registry {
	return &Registry{
		types:   make(map[reflect.Type]*Type),
		traits:  make(map[reflect.Type]*Trait),
		entries: make(map[entryKey]*Entry),
	}
}

// RegisterTrait declares a behavioral capability. Registering the same
// interface with the same marker bound twice is a no-op; a conflicting
// bound aborts, since two linked modules disagree about the trait.
func (r *Registry) RegisterTrait(tr *Trait) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		panic(errors.InvalidInput(errors.PhaseRegister, "registry is frozen"))
	}
	if prev, ok := r.traits[tr.iface]; ok {
		if prev.markers == tr.markers {
			return
		}
		panic(errors.DuplicateRegistration(tr.fqName,
			"trait re-registered with different marker bound"))
	}
	r.traits[tr.iface] = tr
	Logger().Debug("registered trait",
		zap.String("trait", tr.fqName),
		zap.Stringer("markers", tr.markers))
}

// RegisterType declares a concrete type record. Identical duplicate
// registration is a no-op; a conflicting capability set aborts.
func (r *Registry) RegisterType(t *Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		panic(errors.InvalidInput(errors.PhaseRegister, "registry is frozen"))
	}
	if prev, ok := r.types[t.rtype]; ok {
		if prev.same(t) {
			return
		}
		panic(errors.DuplicateRegistration(t.fqName,
			"type re-registered with different capability set"))
	}
	r.types[t.rtype] = t
	Logger().Debug("registered type",
		zap.String("type", t.fqName),
		zap.Stringer("markers", t.markers),
		zap.Int("traits", len(t.traits)))
}

// Freeze materializes all conversion entries and makes the registry
// read-only. Resolution requests freeze lazily; calling Freeze directly
// is only needed when registration problems should surface eagerly.
// Freezing twice is a no-op.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freezeLocked()
}

func (r *Registry) freezeLocked() {
	if r.frozen.Load() {
		return
	}
	for _, t := range r.types {
		r.materialize(t)
	}
	r.frozen.Store(true)
	Logger().Debug("registry frozen",
		zap.Int("types", len(r.types)),
		zap.Int("traits", len(r.traits)),
		zap.Int("entries", len(r.entries)))
}

// materialize builds the conversion entries for one concrete type:
// every subset of its declared markers crossed with every combination
// of its declared traits whose marker bounds admit that subset.
// Marker-only combinations are materialized too, so that marker checks
// resolve through the same table. Declared trait counts stay in the
// single digits, so the power set is affordable.
func (r *Registry) materialize(t *Type) {
	resolved := make([]*Trait, 0, len(t.traits))
	for _, tr := range t.traits {
		reg, ok := r.traits[tr.iface]
		if !ok {
			panic(errors.New(errors.PhaseRegister, errors.KindCapabilityNotRegistered).
				Type(t.fqName).
				Capability(tr.fqName).
				Detail("type declares a trait that no module registered").
				Build())
		}
		resolved = append(resolved, reg)
	}

	for _, subset := range t.markers.subsets() {
		compat := make([]*Trait, 0, len(resolved))
		for _, tr := range resolved {
			if tr.markers.Contains(subset) {
				compat = append(compat, tr)
			}
		}
		for mask := 0; mask < 1<<len(compat); mask++ {
			combo := make([]*Trait, 0, len(compat))
			for i, tr := range compat {
				if mask&(1<<i) != 0 {
					combo = append(combo, tr)
				}
			}
			r.addEntry(t, NewCaps(subset, combo...))
		}
	}
}

func (r *Registry) addEntry(t *Type, caps Caps) {
	casts := make(map[reflect.Type]func(any) any, len(caps.traits))
	for _, tr := range caps.traits {
		// *T implements the interface (checked in NewType); the erased
		// value's representation is unchanged, the entry's existence is
		// what proves the conversion was declared.
		casts[tr.iface] = func(v any) any { return v }
	}
	r.entries[entryKey{t.rtype, caps.Key()}] = &Entry{
		Type:  t,
		Caps:  caps,
		casts: casts,
	}
}

// Resolve returns the conversion entry for the exact (type, combination)
// key. A missing entry is a configuration error: the call site requests
// a combination no registration declared. It is never a data-dependent
// runtime condition.
func (r *Registry) Resolve(rtype reflect.Type, caps Caps) (*Entry, error) {
	if !r.frozen.Load() {
		r.Freeze()
	}
	e, ok := r.entries[entryKey{rtype, caps.Key()}]
	if !ok {
		name := rtype.String()
		if t, found := r.types[rtype]; found {
			name = t.fqName
		}
		return nil, errors.CapabilityNotRegistered(name, caps.Key())
	}
	return e, nil
}

// TypeFor returns the concrete type record for a Go type.
func (r *Registry) TypeFor(rtype reflect.Type) (*Type, bool) {
	if !r.frozen.Load() {
		r.Freeze()
	}
	t, ok := r.types[rtype]
	return t, ok
}

// IdentityOf returns the concrete type record carried by an erased
// value. Pointer values identify as their element type.
func (r *Registry) IdentityOf(v any) (*Type, bool) {
	rtype := reflect.TypeOf(v)
	if rtype == nil {
		return nil, false
	}
	if rtype.Kind() == reflect.Pointer {
		rtype = rtype.Elem()
	}
	return r.TypeFor(rtype)
}

// Types returns all registered concrete type records. Order is
// unspecified. Used by diagnostic surfaces, not the conversion path.
func (r *Registry) Types() []*Type {
	if !r.frozen.Load() {
		r.Freeze()
	}
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	return out
}

// Entries returns all materialized conversion entries for a type.
func (r *Registry) Entries(rtype reflect.Type) []*Entry {
	if !r.frozen.Load() {
		r.Freeze()
	}
	out := make([]*Entry, 0, 8)
	for k, e := range r.entries {
		if k.rtype == rtype {
			out = append(out, e)
		}
	}
	return out
}
