package bind

import (
	"hash/fnv"
	"reflect"
	"sort"

	"github.com/wippyai/dynbridge/errors"
	"github.com/wippyai/dynbridge/guest"
	"github.com/wippyai/dynbridge/registry"
)

// Namer translates declaration paths into the names the guest sees.
// Naming policy lives with the embedder; the bridge only carries paths.
type Namer interface {
	// GuestName returns the guest-facing name for a declaration path.
	GuestName(path string) string
}

// PathNamer is the identity Namer: guests see declaration paths as-is.
type PathNamer struct{}

func (PathNamer) GuestName(path string) string { return path }

// Func declares one native function exposed to the guest.
type Func struct {
	// Path is the fully qualified declaration path, e.g.
	// "animals/sheep.shear". Paths are unique within a Module.
	Path string

	// Sig is the WIT-style signature text, e.g.
	// "func(handle: u32) -> string".
	Sig string

	// Impl is the native handler. The embedder binds it to a guest
	// through engine.Guest.BindCallback; the declaration only carries
	// it.
	Impl func(c *guest.Context, args []uint64) ([]uint64, error)
}

// Object declares one host type exposed to the guest, with the
// methods guests may call on its handles.
type Object struct {
	Path    string
	Type    reflect.Type
	Methods []Func
}

// Module is a named set of declarations offered to a guest.
type Module struct {
	Name    string
	Funcs   []Func
	Objects []Object
}

// DeclID derives a stable 64-bit identifier from a declaration path.
func DeclID(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

// Validate checks a module for duplicate paths and unparsable
// signatures. Declaration errors are configuration errors: they name
// a mistake in code, not in input.
func (m *Module) Validate() error {
	seen := make(map[string]bool)

	check := func(f *Func) error {
		if f.Path == "" {
			return errors.InvalidInput(errors.PhaseBind, "declaration path cannot be empty")
		}
		if seen[f.Path] {
			return errors.New(errors.PhaseBind, errors.KindDuplicateRegistration).
				Path(m.Name, f.Path).
				Detail("declaration path already used").
				Build()
		}
		seen[f.Path] = true
		if f.Sig != "" {
			if _, err := ParseSignature(f.Sig); err != nil {
				return err
			}
		}
		return nil
	}

	for i := range m.Funcs {
		if err := check(&m.Funcs[i]); err != nil {
			return err
		}
	}
	for oi := range m.Objects {
		o := &m.Objects[oi]
		if o.Path == "" {
			return errors.InvalidInput(errors.PhaseBind, "object path cannot be empty")
		}
		if seen[o.Path] {
			return errors.New(errors.PhaseBind, errors.KindDuplicateRegistration).
				Path(m.Name, o.Path).
				Detail("declaration path already used").
				Build()
		}
		seen[o.Path] = true
		for i := range o.Methods {
			if err := check(&o.Methods[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// TagsFor returns every capability combination key a registered type
// satisfies, sorted. A value registered with wide capabilities also
// answers to every narrower combination, so the tag set is the full
// materialized fan-out for the type.
func TagsFor(reg *registry.Registry, rtype reflect.Type) []string {
	entries := reg.Entries(rtype)
	tags := make([]string, 0, len(entries))
	for _, e := range entries {
		tags = append(tags, e.Caps.Key())
	}
	sort.Strings(tags)
	return tags
}
