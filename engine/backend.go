package engine

import (
	"context"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/dynbridge/arena"
	"github.com/wippyai/dynbridge/dynbox"
	"github.com/wippyai/dynbridge/errors"
	"github.com/wippyai/dynbridge/guest"
)

// Exports every guest module must provide for the bridge to operate.
const (
	exportRoot   = "bridge-root"
	exportUnroot = "bridge-unroot"
	exportGet    = "bridge-get"
	exportInvoke = "bridge-invoke"
	exportAlloc  = "bridge-alloc"
	exportFree   = "bridge-free"
)

var requiredExports = []string{
	exportRoot, exportUnroot, exportGet, exportInvoke, exportAlloc, exportFree,
}

// Callback is a native function the guest can reach through
// host-invoke. Arguments and results travel as raw words.
type Callback func(c *guest.Context, args []uint64) ([]uint64, error)

// GuestConfig holds configuration for guest instantiation.
type GuestConfig struct {
	// Name labels the module instance. Empty means anonymous, which
	// allows parallel instantiation of the same binary.
	Name string
}

// Guest is an instantiated guest module. It implements guest.Backend:
// wrap it in a guest.Runtime and use Runtime.Enter to talk to it.
type Guest struct {
	engine *Engine
	mod    api.Module
	table  *arena.Table
	name   string

	fnRoot   api.Function
	fnUnroot api.Function
	fnGet    api.Function
	fnInvoke api.Function
	fnAlloc  api.Function
	fnFree   api.Function

	cbMu      sync.RWMutex
	callbacks map[uint32]Callback
	nextCB    uint32
}

// LoadGuest compiles and instantiates a guest module, validating the
// bridge exports up front so a bad binary fails at load time.
func (e *Engine) LoadGuest(ctx context.Context, wasmBytes []byte, cfg *GuestConfig) (*Guest, error) {
	if err := e.initHostModule(ctx); err != nil {
		return nil, err
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "compile guest module")
	}

	modConfig := wazero.NewModuleConfig()
	name := ""
	if cfg != nil {
		name = cfg.Name
	}
	modConfig = modConfig.WithName(name)

	mod, err := e.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "instantiate guest module")
	}

	exports := mod.ExportedFunctionDefinitions()
	var missing []string
	for _, want := range requiredExports {
		if _, ok := exports[want]; !ok {
			missing = append(missing, want)
		}
	}
	if mod.Memory() == nil {
		missing = append(missing, "memory")
	}
	if len(missing) > 0 {
		mod.Close(ctx)
		return nil, errors.NewMissingExportsError(missing)
	}

	return &Guest{
		engine:    e,
		mod:       mod,
		table:     arena.NewTable(),
		name:      name,
		fnRoot:    mod.ExportedFunction(exportRoot),
		fnUnroot:  mod.ExportedFunction(exportUnroot),
		fnGet:     mod.ExportedFunction(exportGet),
		fnInvoke:  mod.ExportedFunction(exportInvoke),
		fnAlloc:   mod.ExportedFunction(exportAlloc),
		fnFree:    mod.ExportedFunction(exportFree),
		callbacks: make(map[uint32]Callback),
	}, nil
}

// Name implements guest.Backend.
func (g *Guest) Name() string {
	if g.name != "" {
		return g.name
	}
	return "wazero"
}

// Table exposes the host object handles this guest holds.
func (g *Guest) Table() *arena.Table { return g.table }

// Close tears down the guest instance and releases every host object
// the guest still holds.
func (g *Guest) Close(ctx context.Context) error {
	err := g.table.Close()
	if g.mod != nil {
		if cerr := g.mod.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
		g.mod = nil
	}
	return err
}

// BindCallback registers a native callback and returns the id the
// guest passes to host-invoke.
func (g *Guest) BindCallback(cb Callback) uint32 {
	g.cbMu.Lock()
	defer g.cbMu.Unlock()
	g.nextCB++
	g.callbacks[g.nextCB] = cb
	return g.nextCB
}

// UnbindCallback removes a previously bound callback.
func (g *Guest) UnbindCallback(id uint32) {
	g.cbMu.Lock()
	defer g.cbMu.Unlock()
	delete(g.callbacks, id)
}

func (g *Guest) callback(id uint32) (Callback, bool) {
	g.cbMu.RLock()
	defer g.cbMu.RUnlock()
	cb, ok := g.callbacks[id]
	return cb, ok
}

// callKey carries the live bridge call through host function dispatch
// so re-entrant host-invoke can recover the guest and its context.
type callKey struct{}

type callState struct {
	g *Guest
	c *guest.Context
}

func (g *Guest) callCtx(c *guest.Context) context.Context {
	return context.WithValue(c.Context(), callKey{}, &callState{g: g, c: c})
}

func guestFrom(ctx context.Context) *Guest {
	if cs, ok := ctx.Value(callKey{}).(*callState); ok {
		return cs.g
	}
	return nil
}

func callFrom(ctx context.Context) (*Guest, *guest.Context) {
	if cs, ok := ctx.Value(callKey{}).(*callState); ok {
		return cs.g, cs.c
	}
	return nil, nil
}

// Root implements guest.Backend.
func (g *Guest) Root(c *guest.Context, raw uint64) (guest.Root, error) {
	res, err := g.fnRoot.Call(g.callCtx(c), raw)
	if err != nil {
		return 0, errors.CallFailure(exportRoot, err)
	}
	return guest.Root(uint32(res[0])), nil
}

// Unroot implements guest.Backend.
func (g *Guest) Unroot(c *guest.Context, root guest.Root) error {
	if _, err := g.fnUnroot.Call(g.callCtx(c), uint64(root)); err != nil {
		return errors.CallFailure(exportUnroot, err)
	}
	return nil
}

// Resolve implements guest.Backend.
func (g *Guest) Resolve(c *guest.Context, root guest.Root) (uint64, error) {
	res, err := g.fnGet.Call(g.callCtx(c), uint64(root))
	if err != nil {
		return 0, errors.CallFailure(exportGet, err)
	}
	return res[0], nil
}

// Invoke implements guest.Backend. Arguments travel through guest
// memory; the guest writes results back the same way.
func (g *Guest) Invoke(c *guest.Context, fn guest.Root, args []uint64) ([]uint64, error) {
	ctx := g.callCtx(c)

	argsPtr, err := g.alloc(ctx, uint32(len(args))*8)
	if err != nil {
		return nil, err
	}
	defer g.free(ctx, argsPtr, uint32(len(args))*8)

	retPtr, err := g.alloc(ctx, maxResultWords*8)
	if err != nil {
		return nil, err
	}
	defer g.free(ctx, retPtr, maxResultWords*8)

	mem := g.mod.Memory()
	for i, word := range args {
		if !mem.WriteUint64Le(argsPtr+uint32(i)*8, word) {
			return nil, errors.InvalidInput(errors.PhaseGuest, "argument area out of bounds")
		}
	}

	res, err := g.fnInvoke.Call(ctx,
		uint64(fn), uint64(argsPtr), uint64(len(args)), uint64(retPtr))
	if err != nil {
		return nil, err
	}

	n, err := checkResultCount(res[0])
	if err != nil {
		return nil, err
	}

	results := make([]uint64, n)
	for i := range results {
		word, ok := mem.ReadUint64Le(retPtr + uint32(i)*8)
		if !ok {
			return nil, errors.InvalidInput(errors.PhaseGuest, "result area out of bounds")
		}
		results[i] = word
	}
	return results, nil
}

// checkResultCount validates the word bridge-invoke returned: negative
// means the guest function trapped, and the host only reserved
// maxResultWords at retPtr, so a larger count would read unrelated
// guest memory as results.
func checkResultCount(word uint64) (int32, error) {
	n := int32(uint32(word))
	if n < 0 {
		return 0, errors.InvalidInput(errors.PhaseGuest, "guest function trapped")
	}
	if n > maxResultWords {
		return 0, errors.InvalidInput(errors.PhaseGuest, "guest returned too many result words")
	}
	return n, nil
}

func (g *Guest) alloc(ctx context.Context, size uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	res, err := g.fnAlloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, errors.CallFailure(exportAlloc, err)
	}
	return uint32(res[0]), nil
}

func (g *Guest) free(ctx context.Context, ptr, size uint32) {
	if ptr == 0 {
		return
	}
	if _, err := g.fnFree.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		Logger().Warn("guest free failed", zap.String("guest", g.Name()), zap.Error(err))
	}
}

// Lower implements guest.Backend. Host objects cross as arena handles;
// primitives cross as raw words; strings are copied into guest memory
// and packed as ptr<<32|len.
func (g *Guest) Lower(c *guest.Context, v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case int64:
		return uint64(x), nil
	case int:
		return uint64(int64(x)), nil
	case uint32:
		return uint64(x), nil
	case int32:
		return uint64(int64(x)), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case float64:
		return math.Float64bits(x), nil
	case arena.Handle:
		return uint64(x), nil
	case *dynbox.Box:
		if err := guest.RequireTransferable(x); err != nil {
			return 0, err
		}
		h := g.table.Insert(x.Clone())
		if h == 0 {
			return 0, errors.Released(errors.PhaseGuest, "handle table")
		}
		return uint64(h), nil
	case string:
		return g.lowerString(c, x)
	}
	return 0, errors.InvalidInput(errors.PhaseGuest, "cannot lower value of unsupported type")
}

func (g *Guest) lowerString(c *guest.Context, s string) (uint64, error) {
	if len(s) > math.MaxUint32 {
		return 0, errors.InvalidInput(errors.PhaseGuest, "string too large")
	}
	ctx := g.callCtx(c)
	ptr, err := g.alloc(ctx, uint32(len(s)))
	if err != nil {
		return 0, err
	}
	if len(s) > 0 && !g.mod.Memory().Write(ptr, []byte(s)) {
		g.free(ctx, ptr, uint32(len(s)))
		return 0, errors.InvalidInput(errors.PhaseGuest, "string area out of bounds")
	}
	return uint64(ptr)<<32 | uint64(uint32(len(s))), nil
}

// Lift implements guest.Backend.
func (g *Guest) Lift(c *guest.Context, word uint64, into any) error {
	switch p := into.(type) {
	case *uint64:
		*p = word
	case *int64:
		*p = int64(word)
	case *int:
		*p = int(int64(word))
	case *uint32:
		*p = uint32(word)
	case *int32:
		*p = int32(uint32(word))
	case *bool:
		*p = word != 0
	case *float64:
		*p = math.Float64frombits(word)
	case *arena.Handle:
		*p = handleOf(word)
	case **dynbox.Box:
		box, ok := g.table.Get(handleOf(word))
		if !ok {
			return errors.NotFound(errors.PhaseGuest, "handle", "")
		}
		*p = box.Clone()
	case *string:
		ptr := uint32(word >> 32)
		length := uint32(word)
		data, ok := g.mod.Memory().Read(ptr, length)
		if !ok {
			return errors.InvalidInput(errors.PhaseGuest, "string area out of bounds")
		}
		*p = string(data)
		g.free(g.callCtx(c), ptr, length)
	default:
		return errors.InvalidInput(errors.PhaseGuest, "cannot lift into unsupported type")
	}
	return nil
}

func handleOf(word uint64) arena.Handle {
	return arena.Handle(uint32(word))
}

var _ guest.Backend = (*Guest)(nil)
