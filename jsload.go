package jsload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/jsload/jsload/builtins"
	"github.com/jsload/jsload/interop"
	"github.com/jsload/jsload/registry"
	"github.com/jsload/jsload/resolve"
	"github.com/jsload/jsload/sandbox"
)

// InstrumentFunc rewrites a module's source before compilation. Returning a
// nil slice leaves the source unchanged; returning an error aborts the load.
type InstrumentFunc func(src []byte, absolutePath string) ([]byte, error)

// Options controls one load session.
type Options struct {
	// Instrument is applied to every source module after the interop
	// transform and before compilation.
	Instrument InstrumentFunc
	// Async runs execution units as async functions, so module bodies may
	// await. Dynamic import is promise-valued in both modes.
	Async bool
	// SubPath selects a named entry inside the target package.
	SubPath string
	// ReturnSourceFiles populates Result.SourceFiles.
	ReturnSourceFiles bool
	// Timeout interrupts execution when it elapses; zero disables it.
	Timeout time.Duration
	// Logger receives structured session logs; defaults to a no-op logger.
	Logger *zap.Logger
}

// Result is the outcome of a load session.
type Result struct {
	// Exports is the entry module's exports: the module.exports object for
	// CommonJS targets, the namespace object for ECMAScript modules, the
	// parsed value for JSON.
	Exports goja.Value
	// SourceFiles lists every source file executed during the session, in
	// completion order: dependencies precede their requesters, each path
	// once. Populated only when requested.
	SourceFiles []string
	// Duration is the wall-clock load time.
	Duration time.Duration
}

// LoadModule resolves, compiles, links and executes the module named by path
// and returns its exports. All session state (module cache, loading set,
// VM) lives and dies with this one call.
func LoadModule(path string, opts Options) (*Result, error) {
	return LoadModuleContext(context.Background(), path, opts)
}

// LoadModuleContext is LoadModule with interrupt support: cancelling ctx
// aborts module execution.
func LoadModuleContext(ctx context.Context, path string, opts Options) (*Result, error) {
	start := time.Now()
	s := newSession(opts)

	stop := s.runtime.Watch(ctx)
	defer stop()

	exports, err := s.loadEntry(path, opts.SubPath)
	if err != nil {
		return nil, err
	}
	if opts.Async {
		// The outermost call has unwound, so every awaited chain has been
		// drained; surface the first rejection.
		if err := s.checkSettled(); err != nil {
			return nil, err
		}
	}

	res := &Result{Exports: exports, Duration: time.Since(start)}
	if opts.ReturnSourceFiles {
		res.SourceFiles = s.registry.SourceFiles()
	}
	s.log.Debug("load session finished",
		zap.String("entry", path),
		zap.Duration("duration", res.Duration),
		zap.Int("modules", len(s.registry.SourceFiles())))
	return res, nil
}

// pendingUnit tracks an async execution unit whose settlement is verified
// after the session's awaited chain drains.
type pendingUnit struct {
	path  string
	value goja.Value
}

// session owns all state for one top-level load: the VM, the registry, the
// resolver and the builtins routing. It implements sandbox.Host, so module
// bodies reach back into it through their injected require and dynamicImport
// parameters; the registry's loading set is shared down that whole call
// chain and never crosses sessions.
type session struct {
	opts     Options
	log      *zap.Logger
	vm       *goja.Runtime
	runtime  *sandbox.Runtime
	resolver *resolve.Resolver
	registry *registry.Session
	builtins *builtins.Builtins
	pending  []pendingUnit
}

func newSession(opts Options) *session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &session{
		opts:     opts,
		resolver: resolve.New(log),
		registry: registry.NewSession(log),
	}
	s.log = log.With(zap.String("session", s.registry.ID()))
	s.runtime = sandbox.New(sandbox.Config{Async: opts.Async, Timeout: opts.Timeout}, s, s.log)
	s.vm = s.runtime.VM()
	s.builtins = builtins.Enable(s.vm, s.log)
	return s
}

// loadEntry resolves the entry specifier against the working directory and
// loads it.
func (s *session) loadEntry(spec, subPath string) (goja.Value, error) {
	anchor := spec
	if !filepath.IsAbs(anchor) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		anchor = filepath.Join(cwd, "__entry__")
	}
	target, err := s.resolver.Resolve(anchor, spec, subPath)
	if err != nil {
		return nil, err
	}
	return s.load(target)
}

// Require implements sandbox.Host.
func (s *session) Require(fromFile, specifier string) (goja.Value, error) {
	target, err := s.resolver.Resolve(fromFile, specifier, "")
	if err != nil {
		return nil, err
	}
	return s.load(target)
}

// Import implements sandbox.Host: like Require, but the result is shaped as
// a namespace object with a populated default slot.
func (s *session) Import(fromFile, specifier string) (goja.Value, error) {
	target, err := s.resolver.Resolve(fromFile, specifier, "")
	if err != nil {
		return nil, err
	}
	exports, err := s.load(target)
	if err != nil {
		return nil, err
	}
	return s.namespaceFor(target, exports), nil
}

// Resolve implements sandbox.Host. Resolution-only: it never loads,
// executes, or touches the registry.
func (s *session) Resolve(fromFile, specifier string) (string, error) {
	target, err := s.resolver.Resolve(fromFile, specifier, "")
	if err != nil {
		return "", err
	}
	return target.Path, nil
}

// load dispatches a resolved target to the right loading strategy and runs
// it through the registry so every path executes at most once per session.
func (s *session) load(target resolve.Target) (goja.Value, error) {
	switch target.Kind {
	case resolve.KindInternal:
		return s.builtins.Require(target.Path)
	case resolve.KindJSON:
		return s.registry.Load(target.Path, func(rec *registry.Record) (goja.Value, error) {
			return s.loadJSON(target.Path, rec)
		})
	default:
		return s.registry.Load(target.Path, func(rec *registry.Record) (goja.Value, error) {
			return s.execModule(target, rec)
		})
	}
}

// loadJSON parses a JSON module once; the registry keeps the parsed value so
// repeat requires observe the identical instance.
func (s *session) loadJSON(path string, rec *registry.Record) (goja.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var parsed any
	if err := sonic.Unmarshal(data, &parsed); err != nil {
		return nil, &interop.ParseError{Path: path, Err: err}
	}
	val := s.vm.ToValue(parsed)
	rec.Publish(val)
	return val, nil
}

// execModule reads, transforms, instruments, compiles and runs one source
// module. The exports object is published to the record before the body runs
// so circular requesters observe the partially populated object.
func (s *session) execModule(target resolve.Target, rec *registry.Record) (goja.Value, error) {
	data, err := os.ReadFile(target.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target.Path, err)
	}
	src := string(data)

	esm := target.Kind == resolve.KindESM || interop.DetectModule(src)
	if esm {
		src, err = interop.Transform(src, target.Path, s.opts.Async)
		if err != nil {
			return nil, err
		}
	} else {
		src = interop.RewriteImportExpressions(src)
	}

	if s.opts.Instrument != nil {
		out, err := s.opts.Instrument([]byte(src), target.Path)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", target.Path, err)
		}
		if out != nil {
			src = string(out)
		}
	}

	module := s.vm.NewObject()
	module.Set("id", target.Path)
	module.Set("filename", target.Path)

	var exportsParam, published goja.Value
	if esm {
		ns := s.vm.NewObject()
		exportsParam = s.vm.NewArray(ns, goja.Undefined())
		published = ns
		rec.MarkNamespace()
	} else {
		exportsParam = s.vm.NewObject()
		published = exportsParam
	}
	module.Set("exports", exportsParam)
	rec.Publish(published)

	ret, err := s.runtime.Run(sandbox.Unit{
		Path:    target.Path,
		Source:  src,
		Module:  module,
		Exports: exportsParam,
	})
	if err != nil {
		return nil, err
	}
	if s.opts.Async {
		// Async wrappers turn a throwing body into a rejection instead of a
		// call error; settlement is verified after the session drains.
		s.pending = append(s.pending, pendingUnit{path: target.Path, value: ret})
	}

	if esm {
		return published, nil
	}
	// CommonJS bodies may reassign module.exports wholesale.
	return module.Get("exports"), nil
}

// namespaceFor shapes a loaded module's exports as a namespace object.
// Modules that executed as ECMAScript modules already published one, whether
// by extension or by syntax detection; CommonJS and JSON values get a default
// slot pointing at the exports themselves.
func (s *session) namespaceFor(target resolve.Target, exports goja.Value) goja.Value {
	if target.Kind == resolve.KindESM {
		return exports
	}
	if rec, ok := s.registry.Lookup(target.Path); ok && rec.Namespace() {
		return exports
	}
	obj, ok := exports.(*goja.Object)
	if !ok {
		ns := s.vm.NewObject()
		ns.Set("default", exports)
		return ns
	}
	if obj.Get("default") == nil {
		_ = obj.DefineDataProperty("default", obj, goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	}
	return obj
}

// checkSettled verifies every async execution unit's promise after the
// session drains, surfacing the first rejection as an ExecutionError.
func (s *session) checkSettled() error {
	for _, p := range s.pending {
		promise, ok := p.value.Export().(*goja.Promise)
		if !ok {
			continue
		}
		switch promise.State() {
		case goja.PromiseStateRejected:
			return &sandbox.ExecutionError{Path: p.path, Err: fmt.Errorf("%s", promise.Result().String())}
		case goja.PromiseStatePending:
			return &sandbox.ExecutionError{Path: p.path, Err: fmt.Errorf("module body did not settle")}
		}
	}
	return nil
}
