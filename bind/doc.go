// Package bind describes what a host offers to a guest: named
// function and object declarations grouped into modules.
//
// Declarations are plain data. The embedder validates a Module,
// derives stable ids with DeclID, and binds the implementations to a
// loaded guest. Guest-facing names are produced by a Namer supplied
// by the embedder; the bridge has no naming policy of its own.
package bind
