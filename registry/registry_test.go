package registry

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	dberrors "github.com/wippyai/dynbridge/errors"
)

type note struct {
	text string
}

func (n *note) Text() string { return n.text }

type counter struct {
	n int
}

func (c *counter) Text() string { return "counter" }
func (c *counter) Bump()        { c.n++ }

type Texter interface {
	Text() string
}

type Bumper interface {
	Bump()
}

var (
	noteType    = reflect.TypeOf(note{})
	counterType = reflect.TypeOf(counter{})
)

func newTestRegistry() (*Registry, *Trait, *Trait) {
	r := New()
	texter := NewTrait[Texter](Shareable | Transferable)
	bumper := NewTrait[Bumper](Transferable)
	r.RegisterTrait(texter)
	r.RegisterTrait(bumper)
	r.RegisterType(NewType[note](Shareable|Transferable, texter))
	r.RegisterType(NewType[counter](Shareable|Transferable, texter, bumper))
	return r, texter, bumper
}

func TestResolve_DeclaredCombinations(t *testing.T) {
	r, texter, bumper := newTestRegistry()

	combos := []Caps{
		NewCaps(0),
		NewCaps(Shareable),
		NewCaps(Transferable),
		NewCaps(Shareable | Transferable),
		NewCaps(0, texter),
		NewCaps(Shareable, texter),
		NewCaps(Shareable|Transferable, texter),
	}
	for _, caps := range combos {
		if _, err := r.Resolve(noteType, caps); err != nil {
			t.Errorf("Resolve(note, %s) failed: %v", caps, err)
		}
	}

	// bumper multiplies with Transferable only
	if _, err := r.Resolve(counterType, NewCaps(Transferable, bumper)); err != nil {
		t.Errorf("Resolve(counter, transferable|Bumper) failed: %v", err)
	}
	if _, err := r.Resolve(counterType, NewCaps(0, bumper)); err != nil {
		t.Errorf("Resolve(counter, none|Bumper) failed: %v", err)
	}
}

type gauge struct {
	n int
}

func (g *gauge) Text() string { return "gauge" }
func (g *gauge) Bump()        { g.n++ }
func (g *gauge) Reset()       { g.n = 0 }

type Resetter interface {
	Reset()
}

// A view may ask for any combination of the declared traits, not only
// single traits or the full declared set.
func TestResolve_IntermediateTraitSubsets(t *testing.T) {
	r := New()
	texter := NewTrait[Texter](Shareable | Transferable)
	bumper := NewTrait[Bumper](Shareable | Transferable)
	resetter := NewTrait[Resetter](Shareable | Transferable)
	r.RegisterTrait(texter)
	r.RegisterTrait(bumper)
	r.RegisterTrait(resetter)
	r.RegisterType(NewType[gauge](Shareable|Transferable, texter, bumper, resetter))

	gaugeType := reflect.TypeOf(gauge{})
	pairs := []Caps{
		NewCaps(Shareable, texter, bumper),
		NewCaps(Shareable, texter, resetter),
		NewCaps(Shareable, bumper, resetter),
		NewCaps(Transferable, texter, resetter),
	}
	for _, caps := range pairs {
		if _, err := r.Resolve(gaugeType, caps); err != nil {
			t.Errorf("Resolve(gauge, %s) failed: %v", caps, err)
		}
	}
}

func TestResolve_UnregisteredCombination(t *testing.T) {
	r, texter, bumper := newTestRegistry()

	cases := []struct {
		name  string
		rtype reflect.Type
		caps  Caps
	}{
		{"trait not declared for type", noteType, NewCaps(0, bumper)},
		{"marker outside trait bound", counterType, NewCaps(Shareable, bumper)},
		{"type never registered", reflect.TypeOf(struct{ x int }{}), NewCaps(0, texter)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(tc.rtype, tc.caps)
			if err == nil {
				t.Fatal("expected a configuration error")
			}
			var derr *dberrors.Error
			if !errors.As(err, &derr) {
				t.Fatalf("expected *errors.Error, got %T", err)
			}
			if derr.Kind != dberrors.KindCapabilityNotRegistered {
				t.Fatalf("expected capability_not_registered, got %s", derr.Kind)
			}
			if !derr.IsConfiguration() {
				t.Error("missing entry must be reported as a configuration error")
			}
		})
	}
}

func TestResolve_EntryCast(t *testing.T) {
	r, texter, _ := newTestRegistry()

	e, err := r.Resolve(noteType, NewCaps(Shareable, texter))
	if err != nil {
		t.Fatal(err)
	}

	v := &note{text: "hi"}
	cast, ok := e.CastTo(v, texter.Interface())
	if !ok {
		t.Fatal("CastTo refused a trait that is part of the combination")
	}
	if got := cast.(Texter).Text(); got != "hi" {
		t.Fatalf("cast view returned %q", got)
	}

	// Not part of this combination.
	if _, ok := e.CastTo(v, reflect.TypeOf((*Bumper)(nil)).Elem()); ok {
		t.Fatal("CastTo accepted a trait outside the combination")
	}
}

func TestIdentityOf(t *testing.T) {
	r, _, _ := newTestRegistry()

	rec, ok := r.IdentityOf(&note{})
	if !ok {
		t.Fatal("IdentityOf failed for registered type")
	}
	if rec.GoType() != noteType {
		t.Fatalf("wrong identity: %v", rec.GoType())
	}
	if rec.Name() == "" {
		t.Fatal("empty canonical name")
	}

	if _, ok := r.IdentityOf(struct{ y int }{}); ok {
		t.Fatal("IdentityOf succeeded for unregistered type")
	}
}

func TestRegisterType_DuplicateIdentical(t *testing.T) {
	r := New()
	texter := NewTrait[Texter](Shareable)
	r.RegisterTrait(texter)
	r.RegisterType(NewType[note](Shareable, texter))
	// Identical re-registration from another module is a no-op.
	r.RegisterType(NewType[note](Shareable, texter))
}

func TestRegisterType_DuplicateConflicting(t *testing.T) {
	r := New()
	texter := NewTrait[Texter](Shareable)
	r.RegisterTrait(texter)
	r.RegisterType(NewType[note](Shareable, texter))

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("conflicting re-registration must abort")
		}
		err, ok := rec.(*dberrors.Error)
		if !ok || err.Kind != dberrors.KindDuplicateRegistration {
			t.Fatalf("expected duplicate_registration panic, got %v", rec)
		}
	}()
	r.RegisterType(NewType[note](Shareable | Transferable))
}

func TestRegisterTrait_ConflictingBound(t *testing.T) {
	r := New()
	r.RegisterTrait(NewTrait[Texter](Shareable))

	defer func() {
		if recover() == nil {
			t.Fatal("conflicting trait bound must abort")
		}
	}()
	r.RegisterTrait(NewTrait[Texter](Transferable))
}

func TestFreeze_UnregisteredTraitAborts(t *testing.T) {
	r := New()
	// Type declares Texter but no module registered the trait.
	r.RegisterType(NewType[note](Shareable, NewTrait[Texter](Shareable)))

	defer func() {
		if recover() == nil {
			t.Fatal("freezing with an undeclared trait must abort")
		}
	}()
	r.Freeze()
}

func TestRegisterAfterFreeze(t *testing.T) {
	r, _, _ := newTestRegistry()
	r.Freeze()

	defer func() {
		if recover() == nil {
			t.Fatal("registration after freeze must abort")
		}
	}()
	r.RegisterType(NewType[note](Shareable))
}

// Registrations must be commutative: applying the same entries in any
// order yields the same materialized table.
func TestRegistration_Commutative(t *testing.T) {
	texter := NewTrait[Texter](Shareable | Transferable)
	bumper := NewTrait[Bumper](Transferable)

	entries := []func(*Registry){
		func(r *Registry) { r.RegisterTrait(texter) },
		func(r *Registry) { r.RegisterTrait(bumper) },
		func(r *Registry) { r.RegisterType(NewType[note](Shareable|Transferable, texter)) },
		func(r *Registry) { r.RegisterType(NewType[counter](Shareable|Transferable, texter, bumper)) },
	}

	keys := func(r *Registry) map[entryKey]bool {
		r.Freeze()
		out := make(map[entryKey]bool, len(r.entries))
		for k := range r.entries {
			out[k] = true
		}
		return out
	}

	rng := rand.New(rand.NewSource(42))
	baseline := keys(func() *Registry {
		r := New()
		for _, e := range entries {
			e(r)
		}
		return r
	}())

	for i := 0; i < 10; i++ {
		shuffled := make([]func(*Registry), len(entries))
		copy(shuffled, entries)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		r := New()
		for _, e := range shuffled {
			e(r)
		}
		got := keys(r)

		if len(got) != len(baseline) {
			t.Fatalf("iteration %d: %d entries, baseline %d", i, len(got), len(baseline))
		}
		for k := range baseline {
			if !got[k] {
				t.Fatalf("iteration %d: missing entry %v", i, k)
			}
		}
	}
}

func TestCaps_Contains(t *testing.T) {
	texter := NewTrait[Texter](Shareable)
	bumper := NewTrait[Bumper](Shareable)

	full := NewCaps(Shareable|Transferable, texter, bumper)
	sub := NewCaps(Shareable, texter)

	if !full.Contains(sub) {
		t.Error("full set should contain its subset")
	}
	if sub.Contains(full) {
		t.Error("subset must not contain the full set")
	}
	if !full.Contains(NewCaps(0)) {
		t.Error("every set contains the empty combination")
	}
}

func TestCaps_KeyCanonical(t *testing.T) {
	texter := NewTrait[Texter](Shareable)
	bumper := NewTrait[Bumper](Shareable)

	a := NewCaps(Shareable, texter, bumper)
	b := NewCaps(Shareable, bumper, texter)
	if a.Key() != b.Key() {
		t.Fatalf("key depends on declaration order: %q vs %q", a.Key(), b.Key())
	}
}

func TestNewTrait_RejectsNonInterface(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewTrait must reject non-interface types")
		}
	}()
	NewTrait[note](Shareable)
}

func TestNewType_RejectsUnimplementedTrait(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewType must reject traits the type does not implement")
		}
	}()
	NewType[note](Shareable, NewTrait[Bumper](Shareable))
}
