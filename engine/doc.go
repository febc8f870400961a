// Package engine runs guest modules on wazero and bridges them to
// native heap objects.
//
// An Engine owns one wazero runtime; guests loaded through it share a
// "dynbridge" host module exposing object-dup, object-drop, and
// host-invoke. Each Guest keeps an arena.Table of the host objects it
// holds, implements guest.Backend, and expects the guest binary to
// export bridge-root, bridge-unroot, bridge-get, bridge-invoke,
// bridge-alloc, and bridge-free plus a linear memory. Loading fails
// with a MissingExportsError when any of these are absent.
//
// Values cross the boundary as 64-bit words: primitives directly,
// host objects as arena handles, strings through guest memory.
package engine
