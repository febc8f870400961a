package registry

import (
	"sync"

	"github.com/wippyai/dynbridge/errors"
)

// The process-wide registry is populated by decentralized registration
// entries: any number of independent packages submit an entry from
// init(), and the entries are applied once, before first use. Entries
// must be commutative - each one only writes its own type and trait
// keys, and identical duplicates are no-ops - so collection order does
// not matter.

var (
	pluginMu    sync.Mutex
	plugins     []func(*Registry)
	global      = New()
	initialized bool
	initOnce    sync.Once
)

// Provide submits a registration entry to the process-wide registry.
// Call it from init() in the package that owns the types being
// registered. Submitting after the registry initialized is a
// configuration error.
func Provide(fn func(*Registry)) {
	pluginMu.Lock()
	defer pluginMu.Unlock()
	if initialized {
		panic(errors.InvalidInput(errors.PhaseRegister,
			"registration entry submitted after registry initialization"))
	}
	plugins = append(plugins, fn)
}

// Initialize applies all submitted registration entries to the
// process-wide registry and freezes it. Safe to call from multiple
// goroutines; only the first call does work. The registry also
// initializes itself lazily on first resolution.
func Initialize() {
	initOnce.Do(func() {
		pluginMu.Lock()
		initialized = true
		entries := plugins
		pluginMu.Unlock()

		for _, fn := range entries {
			fn(global)
		}
		global.Freeze()
	})
}

// Default returns the process-wide registry, initializing it if needed.
// It lives for the process lifetime; there is no teardown.
func Default() *Registry {
	Initialize()
	return global
}
