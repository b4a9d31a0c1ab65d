package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// unitParams is the fixed parameter contract of every execution unit.
const unitParams = "module, exports, require, __filename, __dirname, dynamicImport, importMeta"

// Runtime wraps a goja VM for one load session. Sessions are single threaded;
// the watchdog goroutine is the only other writer and touches the VM solely
// through Interrupt.
type Runtime struct {
	vm     *goja.Runtime
	config Config
	host   Host
	log    *zap.Logger

	interrupt chan struct{}
}

// New creates a sandboxed runtime bound to a host.
func New(config Config, host Host, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		vm:        goja.New(),
		config:    config,
		host:      host,
		log:       log,
		interrupt: make(chan struct{}),
	}
}

// VM exposes the underlying goja runtime so the session can construct module
// and exports values with the right object identities.
func (r *Runtime) VM() *goja.Runtime { return r.vm }

// Watch interrupts the VM when ctx is cancelled or the configured timeout
// elapses. The returned stop function must be called once execution finishes.
func (r *Runtime) Watch(ctx context.Context) func() {
	timeout := r.config.Timeout
	if timeout <= 0 {
		timeout = time.Duration(1<<63 - 1)
	}
	timer := time.NewTimer(timeout)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			r.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-r.interrupt:
		}
	}()
	return func() {
		close(r.interrupt)
		r.interrupt = make(chan struct{})
	}
}

// Run compiles unit.Source as the body of a callable with the fixed parameter
// contract and invokes it with the injected bindings. The returned value is
// the unit function's own return value; CommonJS exports are read off the
// module object by the caller.
func (r *Runtime) Run(unit Unit) (goja.Value, error) {
	keyword := "function"
	if r.config.Async {
		keyword = "async function"
	}
	wrapped := fmt.Sprintf("(%s(%s) {\n%s\n})", keyword, unitParams, unit.Source)

	prog, err := goja.Compile(unit.Path, wrapped, false)
	if err != nil {
		return nil, &ExecutionError{Path: unit.Path, Err: err}
	}

	val, err := r.vm.RunProgram(prog)
	if err != nil {
		return nil, &ExecutionError{Path: unit.Path, Err: err}
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, &ExecutionError{Path: unit.Path, Err: fmt.Errorf("unit did not compile to a function")}
	}

	dir := filepath.Dir(unit.Path)
	result, err := fn(goja.Undefined(),
		unit.Module,
		unit.Exports,
		r.requireFor(unit.Path),
		r.vm.ToValue(unit.Path),
		r.vm.ToValue(dir),
		r.dynamicImportFor(unit.Path),
		r.importMetaFor(unit.Path, dir),
	)
	if err != nil {
		return nil, &ExecutionError{Path: unit.Path, Err: err}
	}
	return result, nil
}

// requireFor builds the require parameter: a closure bound to the requesting
// file, with the resolution-only resolve capability attached.
func (r *Runtime) requireFor(fromFile string) goja.Value {
	req := func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		exports, err := r.host.Require(fromFile, specifier)
		if err != nil {
			panic(r.vm.NewGoError(fmt.Errorf("require %q: %w", specifier, err)))
		}
		return exports
	}
	obj := r.vm.ToValue(req).(*goja.Object)
	obj.Set("resolve", func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		path, err := r.host.Resolve(fromFile, specifier)
		if err != nil {
			panic(r.vm.NewGoError(fmt.Errorf("resolve %q: %w", specifier, err)))
		}
		return r.vm.ToValue(path)
	})
	return obj
}

// dynamicImportFor builds the dynamicImport parameter. Dynamic import is
// always asynchronous, so the call returns a settled promise in both modes;
// its then-callbacks run when the outermost call unwinds and the job queue
// drains. The now property answers eagerly with the namespace itself and
// backs hoisted import declarations in synchronous mode, where nothing else
// can make progress while a load is in flight.
func (r *Runtime) dynamicImportFor(fromFile string) goja.Value {
	imp := func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		ns, err := r.host.Import(fromFile, specifier)
		promise, resolve, reject := r.vm.NewPromise()
		if err != nil {
			reject(r.vm.NewGoError(fmt.Errorf("import %q: %w", specifier, err)))
		} else {
			resolve(ns)
		}
		return r.vm.ToValue(promise)
	}
	obj := r.vm.ToValue(imp).(*goja.Object)
	obj.Set("now", func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		ns, err := r.host.Import(fromFile, specifier)
		if err != nil {
			panic(r.vm.NewGoError(fmt.Errorf("import %q: %w", specifier, err)))
		}
		return ns
	})
	return obj
}

// importMetaFor builds the import.meta placeholder injected into the unit.
func (r *Runtime) importMetaFor(path, dir string) goja.Value {
	meta := r.vm.NewObject()
	meta.Set("filename", path)
	meta.Set("dirname", dir)
	meta.Set("url", "file://"+filepath.ToSlash(path))
	meta.Set("resolve", func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		resolved, err := r.host.Resolve(path, specifier)
		if err != nil {
			panic(r.vm.NewGoError(fmt.Errorf("resolve %q: %w", specifier, err)))
		}
		return r.vm.ToValue("file://" + filepath.ToSlash(resolved))
	})
	return meta
}
