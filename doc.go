/*
Package jsload loads, links and executes JavaScript packages inside an
isolated goja runtime, without the host platform's own module loader.

# Overview

jsload exists so third-party code can be loaded, instrumented and re-executed
repeatedly and deterministically for testing and analysis. Every call to
LoadModule is a self-contained session with full control over resolution,
caching and binding semantics:

  - Node-compatible specifier resolution (relative paths, bare names with
    node_modules ascent, package.json main and exports fields, conditional
    and subpath exports)
  - a per-session module registry that caches loaded modules and breaks
    circular-dependency cycles by exposing partially populated exports
  - an interop transform that gives ECMAScript-module sources CommonJS
    calling conventions while preserving live-binding export semantics and
    declaration-order imports

# Usage

	res, err := jsload.LoadModule("./pkg/index.js", jsload.Options{
		ReturnSourceFiles: true,
		Instrument: func(src []byte, path string) ([]byte, error) {
			return rewrite(src), nil
		},
	})
	if err != nil {
		return err
	}
	exports := res.Exports

# Circular dependencies

Two modules requiring each other do not deadlock: the second request observes
the first module's in-progress exports object. Properties assigned later in
its body appear on that same object once execution proceeds; properties not
yet assigned are absent. That is the documented CommonJS cycle semantics, not
an error.

# Failure semantics

A module that fails to resolve, parse or execute propagates a typed error
(resolve.NotFoundError, resolve.InvalidModuleError,
resolve.SubpathNotExportedError, interop.ParseError,
sandbox.ExecutionError) carrying the originating path, and is left uncached
so a later load retries from scratch.
*/
package jsload
