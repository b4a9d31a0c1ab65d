/*
Package sandbox compiles module bodies into execution units and runs them
inside an isolated goja VM.

# Overview

Every module body, CommonJS or transformed ECMAScript, is wrapped as the body
of a function with a fixed parameter contract:

	module, exports, require, __filename, __dirname, dynamicImport, importMeta

The unit is compiled with goja.Compile and invoked with bindings supplied by
the session. Code inside the unit has no access to the engine's own lexical
scope; everything it can reach is explicitly injected.

# Host boundary

The sandbox never resolves or caches modules itself. The injected require and
dynamicImport closures delegate to a Host implemented by the session
orchestrator, which keeps this package free of resolver and registry imports
and makes units easy to exercise in tests with a stub host.

# Interruption

Watch starts a watchdog that interrupts the VM on context cancellation or
when the configured timeout elapses. The engine imposes no default timeout; a
caller wanting a time bound supplies one.
*/
package sandbox
