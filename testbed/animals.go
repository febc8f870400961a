// Package testbed is the exercise domain used across the bridge's
// integration tests: a small animal hierarchy registered with the
// process-wide registry.
package testbed

import (
	"fmt"

	"github.com/wippyai/dynbridge/registry"
)

// Animal is the shared behavior of every testbed species.
type Animal interface {
	Name() string
	Noise() string
	Talk() string
}

// AnimalTrait is the registered capability for Animal.
var AnimalTrait = registry.NewTrait[Animal](registry.Shareable | registry.Transferable)

// Sheep starts woolly and can be sheared once.
type Sheep struct {
	name  string
	naked bool
}

func NewSheep(name string) *Sheep {
	return &Sheep{name: name}
}

func (s *Sheep) Name() string { return s.name }

func (s *Sheep) IsNaked() bool { return s.naked }

func (s *Sheep) Noise() string {
	if s.naked {
		return "baaaaah?"
	}
	return "baaaaah!"
}

func (s *Sheep) Talk() string {
	return fmt.Sprintf("%s pauses briefly... %s", s.name, s.Noise())
}

// Shear removes the wool. Shearing an already naked sheep reports it.
func (s *Sheep) Shear() string {
	if s.naked {
		return fmt.Sprintf("%s is already naked...", s.name)
	}
	s.naked = true
	return fmt.Sprintf("%s gets a haircut!", s.name)
}

// Wolf only howls.
type Wolf struct {
	name string
}

func NewWolf(name string) *Wolf {
	return &Wolf{name: name}
}

func (w *Wolf) Name() string { return w.name }

// Rename gives the wolf a new name.
func (w *Wolf) Rename(name string) { w.name = name }

func (w *Wolf) Noise() string { return "rrrrrr!" }

func (w *Wolf) Talk() string {
	return fmt.Sprintf("%s says %s", w.name, w.Noise())
}

// Register adds the testbed species to a registry. Each species is
// registered with full capabilities so tests can exercise every
// combination.
func Register(r *registry.Registry) {
	r.RegisterTrait(AnimalTrait)
	r.RegisterType(registry.NewType[Sheep](registry.Shareable|registry.Transferable, AnimalTrait))
	r.RegisterType(registry.NewType[Wolf](registry.Shareable|registry.Transferable, AnimalTrait))
}

func init() {
	registry.Provide(Register)
}
