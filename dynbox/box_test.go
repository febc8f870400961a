package dynbox

import (
	"errors"
	"sync"
	"testing"

	dberrors "github.com/wippyai/dynbridge/errors"
	"github.com/wippyai/dynbridge/registry"
)

type gadget struct {
	label   string
	powered bool
	drops   *int
}

func (g *gadget) Label() string { return g.label }
func (g *gadget) PowerOn()      { g.powered = true }

func (g *gadget) Drop() {
	if g.drops != nil {
		*g.drops++
	}
}

type widget struct {
	label string
}

func (w *widget) Label() string { return w.label }

type Labeled interface {
	Label() string
}

type Powered interface {
	PowerOn()
}

var (
	labeledTrait = registry.NewTrait[Labeled](registry.Shareable | registry.Transferable)
	poweredTrait = registry.NewTrait[Powered](registry.Shareable | registry.Transferable)
)

func newTestRegistry() *registry.Registry {
	r := registry.New()
	r.RegisterTrait(labeledTrait)
	r.RegisterTrait(poweredTrait)
	r.RegisterType(registry.NewType[gadget](
		registry.Shareable|registry.Transferable, labeledTrait, poweredTrait))
	r.RegisterType(registry.NewType[widget](
		registry.Shareable|registry.Transferable, labeledTrait))
	return r
}

func mustBox[T any](t *testing.T, r *registry.Registry, v *T) *Box {
	t.Helper()
	b, err := FromConcreteIn(r, v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestFromConcrete_UnregisteredType(t *testing.T) {
	r := newTestRegistry()
	type stranger struct{ x int }
	_, err := FromConcreteIn(r, &stranger{})
	if err == nil {
		t.Fatal("expected configuration error for unregistered type")
	}
	var derr *dberrors.Error
	if !errors.As(err, &derr) || derr.Kind != dberrors.KindCapabilityNotRegistered {
		t.Fatalf("expected capability_not_registered, got %v", err)
	}
}

func TestDowncast_Identity(t *testing.T) {
	r := newTestRegistry()
	g := &gadget{label: "g1"}
	b := mustBox(t, r, g)
	defer b.Release()

	d, err := Downcast[gadget](b)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Release()

	// Observably identical by identity, not copy.
	if err := Borrow(d, func(got *gadget) {
		if got != g {
			t.Error("downcast returned a different allocation")
		}
	}); err != nil {
		t.Fatal(err)
	}
}

func TestDowncast_WrongType(t *testing.T) {
	r := newTestRegistry()
	b := mustBox(t, r, &gadget{label: "g"})
	defer b.Release()

	_, err := Downcast[widget](b)
	if err == nil {
		t.Fatal("downcast to the wrong concrete type must fail")
	}
	var derr *dberrors.Error
	if !errors.As(err, &derr) || derr.Kind != dberrors.KindTypeMismatch {
		t.Fatalf("expected type_mismatch, got %v", err)
	}
	if derr.IsConfiguration() {
		t.Error("identity mismatch is recoverable, not configuration")
	}
}

func TestUpcastThenDowncast_IsIdentity(t *testing.T) {
	r := newTestRegistry()
	g := &gadget{label: "g"}
	b := mustBox(t, r, g)
	defer b.Release()

	up, err := Upcast(b, registry.NewCaps(registry.Shareable, labeledTrait))
	if err != nil {
		t.Fatal(err)
	}
	defer up.Release()

	down, err := Downcast[gadget](up)
	if err != nil {
		t.Fatalf("downcast after upcast must succeed: %v", err)
	}
	defer down.Release()

	if !down.Caps().Contains(b.Caps()) || !b.Caps().Contains(down.Caps()) {
		t.Error("downcast did not restore the full declared capability set")
	}
	if err := Borrow(down, func(got *gadget) {
		if got != g {
			t.Error("round trip lost identity")
		}
	}); err != nil {
		t.Fatal(err)
	}
}

func TestUpcast_NotASubset(t *testing.T) {
	r := newTestRegistry()
	b := mustBox(t, r, &gadget{})
	defer b.Release()

	narrow, err := Upcast(b, registry.NewCaps(registry.Shareable, labeledTrait))
	if err != nil {
		t.Fatal(err)
	}
	defer narrow.Release()

	// Widening back to a combination the view no longer proves.
	if _, err := Upcast(narrow, registry.NewCaps(registry.Shareable, labeledTrait, poweredTrait)); err == nil {
		t.Fatal("upcast must reject a non-subset target")
	}
}

func TestRefcount_ReleasedExactlyOnce(t *testing.T) {
	r := newTestRegistry()

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}}
	for _, order := range orders {
		drops := 0
		g := &gadget{label: "g", drops: &drops}
		b := mustBox(t, r, g)

		c1 := b.Clone()
		up, err := Upcast(b, registry.NewCaps(registry.Shareable, labeledTrait))
		if err != nil {
			t.Fatal(err)
		}
		handles := []*Box{b, c1, up}

		if got := b.Refs(); got != 3 {
			t.Fatalf("expected 3 refs, got %d", got)
		}
		for _, i := range order {
			handles[i].Release()
		}
		if drops != 1 {
			t.Fatalf("drop order %v: value dropped %d times", order, drops)
		}
	}
}

func TestRelease_TwicePanics(t *testing.T) {
	r := newTestRegistry()
	b := mustBox(t, r, &gadget{})
	b.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("double release must panic")
		}
	}()
	b.Release()
}

func TestCoerce_SharedAllocation(t *testing.T) {
	r := newTestRegistry()
	g := &gadget{label: "dolly"}
	b := mustBox(t, r, g)

	view, err := Coerce[Labeled](b, registry.NewCaps(registry.Shareable, labeledTrait))
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Refs(); got != 2 {
		t.Fatalf("coerce must retain, refcount = %d", got)
	}

	// The view observes mutations through the original handle: one
	// allocation, two views.
	if err := BorrowMut(b, func(g *gadget) { g.label = "molly" }); err != nil {
		t.Fatal(err)
	}
	view.Use(func(l Labeled) {
		if l.Label() != "molly" {
			t.Errorf("view did not observe mutation: %q", l.Label())
		}
	})

	view.Release()
	if got := b.Refs(); got != 1 {
		t.Fatalf("view release must drop one ref, refcount = %d", got)
	}
	b.Release()
}

func TestCoerce_UnmaterializedCombination(t *testing.T) {
	r := newTestRegistry()
	b := mustBox(t, r, &widget{label: "w"})
	defer b.Release()

	// widget never declared Powered.
	_, err := Coerce[Powered](b, registry.NewCaps(registry.Shareable, poweredTrait))
	if err == nil {
		t.Fatal("expected configuration error")
	}
	var derr *dberrors.Error
	if !errors.As(err, &derr) || !derr.IsConfiguration() {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBorrowMut_ReadOnlyHandle(t *testing.T) {
	r := newTestRegistry()
	g := &gadget{label: "g"}
	b, err := FromConcreteSharedIn(r, g)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	err = BorrowMut(b, func(g *gadget) { g.powered = true })
	if err == nil {
		t.Fatal("mutable borrow through a shared handle must fail")
	}
	var derr *dberrors.Error
	if !errors.As(err, &derr) || derr.Kind != dberrors.KindUniquenessViolation {
		t.Fatalf("expected uniqueness_violation, got %v", err)
	}
	if g.powered {
		t.Error("mutation leaked through a rejected borrow")
	}

	view, err := Coerce[Powered](b, registry.NewCaps(registry.Shareable, poweredTrait))
	if err != nil {
		t.Fatal(err)
	}
	defer view.Release()
	if err := view.UseMut(func(p Powered) { p.PowerOn() }); err == nil {
		t.Fatal("UseMut through a read-only view must fail")
	}
}

// A mutable borrow is never observable concurrently with any other live
// borrow of the same allocation.
func TestBorrowMut_Exclusive(t *testing.T) {
	r := newTestRegistry()
	b := mustBox(t, r, &gadget{label: "g"})
	defer b.Release()

	const workers = 8
	const rounds = 200
	var wg sync.WaitGroup
	var inMut int32

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if w%2 == 0 {
					_ = BorrowMut(b, func(g *gadget) {
						inMut++
						if inMut != 1 {
							t.Error("concurrent borrow observed during mutable borrow")
						}
						g.powered = !g.powered
						inMut--
					})
				} else {
					_ = Borrow(b, func(g *gadget) {
						if inMut != 0 {
							t.Error("shared borrow observed during mutable borrow")
						}
					})
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestBorrow_WrongConcreteType(t *testing.T) {
	r := newTestRegistry()
	b := mustBox(t, r, &gadget{})
	defer b.Release()

	if err := Borrow(b, func(*widget) {}); err == nil {
		t.Fatal("borrow with the wrong concrete type must fail")
	}
	if err := BorrowMut(b, func(*widget) {}); err == nil {
		t.Fatal("mutable borrow with the wrong concrete type must fail")
	}
}
