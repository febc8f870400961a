package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/dynbridge/errors"
)

// HostModule is the import namespace guests use to reach host objects.
const HostModule = "dynbridge"

// Engine owns a wazero runtime shared by all guests loaded through it.
type Engine struct {
	runtime    wazero.Runtime
	hostInitMu sync.Mutex
	hostInit   atomic.Bool
}

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages caps guest linear memory in 64KB pages.
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// New creates a wazero-based engine with default configuration.
func New(ctx context.Context) (*Engine, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// Close tears down the underlying runtime and every module it hosts.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// initHostModule instantiates the "dynbridge" host module singleton.
// Safe for concurrent calls from multiple guests sharing the engine.
func (e *Engine) initHostModule(ctx context.Context) error {
	if e.hostInit.Load() {
		return nil
	}

	e.hostInitMu.Lock()
	defer e.hostInitMu.Unlock()

	if e.hostInit.Load() {
		return nil
	}
	if e.runtime.Module(HostModule) != nil {
		e.hostInit.Store(true)
		return nil
	}

	builder := e.runtime.NewHostModuleBuilder(HostModule)

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostObjectDup),
			[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("object-dup")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostObjectDrop),
			[]api.ValueType{api.ValueTypeI32}, nil).
		Export("object-drop")

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostInvoke),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
			[]api.ValueType{api.ValueTypeI32}).
		Export("host-invoke")

	if _, err := builder.Instantiate(ctx); err != nil {
		// Another path may have instantiated the host module
		// concurrently in the same runtime.
		if e.runtime.Module(HostModule) == nil {
			return errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "instantiate host module")
		}
	}

	e.hostInit.Store(true)
	return nil
}

// hostObjectDup duplicates a host object handle on behalf of the guest.
// Returns 0 for unknown handles or when called outside a bridge call.
func hostObjectDup(ctx context.Context, _ api.Module, stack []uint64) {
	g := guestFrom(ctx)
	if g == nil {
		stack[0] = 0
		return
	}
	stack[0] = uint64(g.table.Dup(handleOf(stack[0])))
}

// hostObjectDrop releases the guest's reference to a host object.
func hostObjectDrop(ctx context.Context, _ api.Module, stack []uint64) {
	g := guestFrom(ctx)
	if g == nil {
		return
	}
	if !g.table.Drop(handleOf(stack[0])) {
		Logger().Warn("guest dropped unknown handle",
			zap.String("guest", g.name),
			zap.Uint64("handle", stack[0]))
	}
}

// hostInvoke calls back into a registered native callback. The guest
// passes argument words through its linear memory and receives result
// words the same way. Stack layout: id, argsPtr, argsLen, retPtr.
// Returns the number of result words, or -1 on failure.
func hostInvoke(ctx context.Context, mod api.Module, stack []uint64) {
	g, c := callFrom(ctx)
	if g == nil || c == nil {
		stack[0] = negResult
		return
	}

	id := uint32(stack[0])
	argsPtr := uint32(stack[1])
	argsLen := uint32(stack[2])
	retPtr := uint32(stack[3])

	cb, ok := g.callback(id)
	if !ok {
		Logger().Warn("guest invoked unknown callback",
			zap.String("guest", g.name), zap.Uint32("id", id))
		stack[0] = negResult
		return
	}

	mem := mod.Memory()
	args := make([]uint64, argsLen)
	for i := range args {
		word, ok := mem.ReadUint64Le(argsPtr + uint32(i)*8)
		if !ok {
			stack[0] = negResult
			return
		}
		args[i] = word
	}

	results, err := cb(c, args)
	if err != nil {
		Logger().Warn("native callback failed",
			zap.String("guest", g.name), zap.Uint32("id", id), zap.Error(err))
		stack[0] = negResult
		return
	}
	if len(results) > maxResultWords {
		stack[0] = negResult
		return
	}

	for i, word := range results {
		if !mem.WriteUint64Le(retPtr+uint32(i)*8, word) {
			stack[0] = negResult
			return
		}
	}
	stack[0] = uint64(len(results))
}

// negResult is -1 as an i32 on the wasm stack.
const negResult = uint64(uint32(0xFFFFFFFF))

// maxResultWords bounds the result area the guest must reserve for
// host-invoke return values.
const maxResultWords = 8
