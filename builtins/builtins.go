// Package builtins hands internal-module specifiers to the host's own
// implementations. The engine never reimplements built-ins; goja_nodejs
// supplies them and this package only routes names through its registry.
package builtins

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/process"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	// Self-registering core modules.
	_ "github.com/dop251/goja_nodejs/buffer"
	_ "github.com/dop251/goja_nodejs/url"
	_ "github.com/dop251/goja_nodejs/util"
)

// Builtins resolves internal module names against the host registry for one
// VM.
type Builtins struct {
	rm  *require.RequireModule
	log *zap.Logger
}

// Enable wires the host built-ins into a VM: core modules become requirable
// and the console global reports through the session logger.
func Enable(vm *goja.Runtime, log *zap.Logger) *Builtins {
	if log == nil {
		log = zap.NewNop()
	}
	reg := require.NewRegistry()
	reg.RegisterNativeModule("console", console.RequireWithPrinter(printer{log: log}))
	rm := reg.Enable(vm)

	process.Enable(vm)
	if c, err := rm.Require("console"); err == nil {
		vm.Set("console", c)
	}
	return &Builtins{rm: rm, log: log}
}

// Require returns the host's implementation of an internal module, unchanged.
// Core modules may be registered under their "node:"-prefixed name, so both
// spellings are tried.
func (b *Builtins) Require(name string) (goja.Value, error) {
	v, err := b.rm.Require(name)
	if err != nil {
		if v, err2 := b.rm.Require("node:" + name); err2 == nil {
			return v, nil
		}
		return nil, fmt.Errorf("builtin %q: %w", name, err)
	}
	return v, nil
}

// printer adapts console output to zap.
type printer struct {
	log *zap.Logger
}

func (p printer) Log(msg string)  { p.log.Info(msg, zap.String("source", "console")) }
func (p printer) Warn(msg string) { p.log.Warn(msg, zap.String("source", "console")) }
func (p printer) Error(msg string) { p.log.Error(msg, zap.String("source", "console")) }
