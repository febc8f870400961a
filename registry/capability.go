package registry

import (
	"reflect"
	"sort"
	"strings"
)

// Marker is a bitmask of marker capabilities: orthogonal cross-cutting
// properties of a concrete type that do not change its representation.
type Marker uint8

const (
	// Shareable marks a type as safe to share across threads.
	Shareable Marker = 1 << iota
	// Transferable marks a type as safe to move across threads.
	Transferable
)

const allMarkers = Shareable | Transferable

// Contains reports whether every bit of other is set in m.
func (m Marker) Contains(other Marker) bool {
	return m&other == other
}

func (m Marker) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m&Shareable != 0 {
		parts = append(parts, "shareable")
	}
	if m&Transferable != 0 {
		parts = append(parts, "transferable")
	}
	return strings.Join(parts, "+")
}

// subsets returns every subset of the markers set in m, including the
// empty set and m itself.
func (m Marker) subsets() []Marker {
	var bits []Marker
	for b := Marker(1); b <= allMarkers; b <<= 1 {
		if m&b != 0 {
			bits = append(bits, b)
		}
	}
	out := make([]Marker, 0, 1<<len(bits))
	for i := 0; i < 1<<len(bits); i++ {
		var s Marker
		for j, b := range bits {
			if i&(1<<j) != 0 {
				s |= b
			}
		}
		out = append(out, s)
	}
	return out
}

// Trait is a behavioral capability: an object-safe interface a concrete
// type may be dynamically viewed through, together with the marker
// combinations it may be multiplied with.
type Trait struct {
	iface   reflect.Type
	fqName  string
	markers Marker
}

// NewTrait declares a behavioral capability from interface type I.
// markers bounds which marker combinations conversion entries are
// materialized for.
func NewTrait[I any](markers Marker) *Trait {
	iface := reflect.TypeOf((*I)(nil)).Elem()
	if iface.Kind() != reflect.Interface {
		panic("registry: NewTrait requires an interface type, got " + iface.String())
	}
	return &Trait{
		iface:   iface,
		fqName:  fqNameOf(iface),
		markers: markers,
	}
}

// Interface returns the reflect type of the trait's interface.
func (t *Trait) Interface() reflect.Type { return t.iface }

// Name returns the trait's fully qualified name.
func (t *Trait) Name() string { return t.fqName }

// Markers returns the marker combinations the trait multiplies with.
func (t *Trait) Markers() Marker { return t.markers }

// Caps is one capability combination: a marker set plus a set of
// behavioral capabilities. The zero value is the empty combination.
type Caps struct {
	Markers Marker
	traits  []*Trait
}

// NewCaps builds a combination from a marker set and traits.
// Traits are kept sorted by name so combinations compare canonically.
func NewCaps(markers Marker, traits ...*Trait) Caps {
	c := Caps{Markers: markers}
	c.traits = append(c.traits, traits...)
	sort.Slice(c.traits, func(i, j int) bool {
		return c.traits[i].fqName < c.traits[j].fqName
	})
	return c
}

// Traits returns the behavioral capabilities in the combination.
func (c Caps) Traits() []*Trait { return c.traits }

// Key returns the canonical map key for the combination.
func (c Caps) Key() string {
	var b strings.Builder
	b.WriteString(c.Markers.String())
	for _, t := range c.traits {
		b.WriteByte('|')
		b.WriteString(t.fqName)
	}
	return b.String()
}

func (c Caps) String() string { return c.Key() }

// Contains reports whether other is a sub-combination of c: every marker
// and every trait of other is already proven by c. This is the widening
// ("upcast") relation and never consults the registry.
func (c Caps) Contains(other Caps) bool {
	if !c.Markers.Contains(other.Markers) {
		return false
	}
	for _, ot := range other.traits {
		found := false
		for _, t := range c.traits {
			if t.iface == ot.iface {
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

// trait returns the member trait with the given interface type, if any.
func (c Caps) trait(iface reflect.Type) (*Trait, bool) {
	for _, t := range c.traits {
		if t.iface == iface {
			return t, true
		}
	}
	return nil, false
}

// fqNameOf derives the canonical fully qualified name for a type.
func fqNameOf(t reflect.Type) string {
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
