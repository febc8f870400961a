package bind

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/wippyai/dynbridge/errors"
	"github.com/wippyai/dynbridge/guest"
	"github.com/wippyai/dynbridge/registry"
)

func noop(_ *guest.Context, _ []uint64) ([]uint64, error) { return nil, nil }

func TestModule_Validate(t *testing.T) {
	m := &Module{
		Name: "farm",
		Funcs: []Func{
			{Path: "farm/feed", Sig: "func(amount: u32)", Impl: noop},
			{Path: "farm/count", Sig: "func() -> u64", Impl: noop},
		},
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestModule_DuplicatePath(t *testing.T) {
	m := &Module{
		Name: "farm",
		Funcs: []Func{
			{Path: "farm/feed", Impl: noop},
			{Path: "farm/feed", Impl: noop},
		},
	}
	err := m.Validate()
	if err == nil {
		t.Fatal("duplicate path must not validate")
	}
	var derr *errors.Error
	if !stderrors.As(err, &derr) || derr.Kind != errors.KindDuplicateRegistration {
		t.Fatalf("expected duplicate_registration, got %v", err)
	}
	if !derr.IsConfiguration() {
		t.Error("duplicate declaration must be a configuration error")
	}
}

func TestModule_BadSignature(t *testing.T) {
	m := &Module{
		Name:  "farm",
		Funcs: []Func{{Path: "farm/feed", Sig: "feed(u32)", Impl: noop}},
	}
	if err := m.Validate(); err == nil {
		t.Fatal("malformed signature must not validate")
	}
}

func TestParseSignature(t *testing.T) {
	tests := []struct {
		sig      string
		nParams  int
		nResults int
	}{
		{"func()", 0, 0},
		{"func(a: u32)", 1, 0},
		{"func(a: u32, b: string) -> u64", 2, 1},
		{"func() -> (u32, u32)", 0, 2},
		{"func(x: f64) -> ()", 1, 0},
	}
	for _, tt := range tests {
		sig, err := ParseSignature(tt.sig)
		if err != nil {
			t.Fatalf("%q: %v", tt.sig, err)
		}
		if len(sig.Params) != tt.nParams {
			t.Errorf("%q: expected %d params, got %d", tt.sig, tt.nParams, len(sig.Params))
		}
		if len(sig.Results) != tt.nResults {
			t.Errorf("%q: expected %d results, got %d", tt.sig, tt.nResults, len(sig.Results))
		}
	}
}

func TestParseSignature_BadType(t *testing.T) {
	if _, err := ParseSignature("func(a: no-such-type)"); err == nil {
		t.Fatal("unknown type must not parse")
	}
}

func TestDeclID(t *testing.T) {
	a := DeclID("animals/sheep.shear")
	b := DeclID("animals/sheep.shear")
	c := DeclID("animals/wolf.howl")
	if a != b {
		t.Error("same path must derive the same id")
	}
	if a == c {
		t.Error("different paths must derive different ids")
	}
	if a == 0 {
		t.Error("id must be nonzero for nonempty path")
	}
}

type barn struct{ doors int }

type Openable interface{ Open() }

func (b *barn) Open() { b.doors++ }

func TestTagsFor(t *testing.T) {
	r := registry.New()
	openable := registry.NewTrait[Openable](registry.Shareable | registry.Transferable)
	r.RegisterTrait(openable)
	r.RegisterType(registry.NewType[barn](registry.Shareable|registry.Transferable, openable))

	rtype := reflect.TypeOf(barn{})
	tags := TagsFor(r, rtype)
	if len(tags) == 0 {
		t.Fatal("registered type must have tags")
	}

	// Wide registration answers to narrower combinations too.
	want := map[string]bool{}
	for _, tag := range tags {
		want[tag] = true
	}
	caps := registry.NewCaps(registry.Shareable, openable)
	if !want[caps.Key()] {
		t.Errorf("missing narrower combination %q in %v", caps.Key(), tags)
	}

	sorted := true
	for i := 1; i < len(tags); i++ {
		if tags[i-1] > tags[i] {
			sorted = false
		}
	}
	if !sorted {
		t.Errorf("tags not sorted: %v", tags)
	}
}

func TestCheckWIT(t *testing.T) {
	witText := `
		export feed: func(amount: u32);
		count: func() -> u64;
	`
	m := &Module{
		Name: "farm",
		Funcs: []Func{
			{Path: "feed", Sig: "func(amount: u32)", Impl: noop},
			{Path: "count", Sig: "func() -> u64", Impl: noop},
		},
	}
	if err := CheckWIT(witText, m, nil); err != nil {
		t.Fatal(err)
	}
}

func TestCheckWIT_Missing(t *testing.T) {
	m := &Module{
		Name:  "farm",
		Funcs: []Func{{Path: "shear", Sig: "func()", Impl: noop}},
	}
	err := CheckWIT("feed: func(amount: u32);", m, nil)
	if err == nil {
		t.Fatal("undeclared wit function must fail the check")
	}
	var derr *errors.Error
	if !stderrors.As(err, &derr) || derr.Kind != errors.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCheckWIT_ArityMismatch(t *testing.T) {
	m := &Module{
		Name:  "farm",
		Funcs: []Func{{Path: "feed", Sig: "func(a: u32, b: u32)", Impl: noop}},
	}
	err := CheckWIT("feed: func(amount: u32);", m, nil)
	if err == nil {
		t.Fatal("arity mismatch must fail the check")
	}
	var derr *errors.Error
	if !stderrors.As(err, &derr) || derr.Kind != errors.KindTypeMismatch {
		t.Fatalf("expected type_mismatch, got %v", err)
	}
}

func TestPathNamer(t *testing.T) {
	var n Namer = PathNamer{}
	if got := n.GuestName("farm/feed"); got != "farm/feed" {
		t.Errorf("identity namer altered the path: %q", got)
	}
}
