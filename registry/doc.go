// Package registry implements the process-wide capability registry: the
// table that maps a concrete native type plus a requested capability
// combination to a materialized conversion entry.
//
// A concrete type is declared once with its marker capabilities
// (Shareable, Transferable) and the behavioral capabilities (object-safe
// interfaces) it supports:
//
//	var animalTrait = registry.NewTrait[Animal](registry.Shareable | registry.Transferable)
//
//	registry.Provide(func(r *registry.Registry) {
//		r.RegisterTrait(animalTrait)
//		r.RegisterType(registry.NewType[Sheep](
//			registry.Shareable|registry.Transferable, animalTrait))
//	})
//
// Registration entries are collected from any number of independent
// packages and applied once, before first use. Freezing materializes one
// conversion entry per combination in the Cartesian product of declared
// traits and marker subsets; resolving a combination outside that
// product is a configuration error, never a data-dependent one.
//
// After the freeze the registry is immutable and the resolve path takes
// no locks.
package registry
