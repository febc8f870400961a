// Package arena implements the native-side handle table that gives a
// guest runtime opaque, index-based access to reference-counted native
// objects.
//
// The guest never sees a pointer. Each live handle owns one reference
// to its DynBox; the guest's clone and drop operations map to Dup and
// Drop here, so the two collectors can release in any order without
// corrupting each other. Handles are reused through a free list, and
// handle 0 is always invalid.
package arena
