package sandbox

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// Config defines runtime configuration for one load session.
type Config struct {
	Async   bool          // async execution units and promise-valued dynamic import
	Timeout time.Duration // 0 disables the execution watchdog
}

// Host answers the module requests an execution unit makes through its
// injected require and dynamicImport parameters. It is implemented by the
// session orchestrator so the sandbox stays free of resolver and registry
// imports.
type Host interface {
	// Require performs a synchronous load and returns the target's exports.
	Require(fromFile, specifier string) (goja.Value, error)
	// Import performs a load and returns the target's namespace object.
	Import(fromFile, specifier string) (goja.Value, error)
	// Resolve returns the would-be absolute path without loading or
	// executing anything.
	Resolve(fromFile, specifier string) (string, error)
}

// Unit is one module body prepared for execution: the (possibly transformed
// and instrumented) source plus the values injected as its module and exports
// parameters.
type Unit struct {
	Path    string
	Source  string
	Module  *goja.Object
	Exports goja.Value
}

// ExecutionError reports a module body that raised during execution. It
// carries the absolute path so failures stay traceable through nested
// require chains.
type ExecutionError struct {
	Path string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of %s failed: %v", e.Path, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// DefaultConfig returns the synchronous, unwatched configuration.
func DefaultConfig() Config {
	return Config{}
}
