package resolve

import "strings"

// builtinModules lists the host's built-in module names. Specifiers naming
// one of these (optionally with the "node:" prefix) resolve to KindInternal
// and are handed to the host's own module facility unchanged.
var builtinModules = map[string]bool{
	"assert":         true,
	"buffer":         true,
	"console":        true,
	"crypto":         true,
	"events":         true,
	"fs":             true,
	"http":           true,
	"https":          true,
	"net":            true,
	"os":             true,
	"path":           true,
	"process":        true,
	"querystring":    true,
	"stream":         true,
	"string_decoder": true,
	"timers":         true,
	"tty":            true,
	"url":            true,
	"util":           true,
	"zlib":           true,
}

// IsBuiltin reports whether a specifier names a host built-in module. The
// "node:" prefix and subpaths like "fs/promises" are handled.
func IsBuiltin(specifier string) bool {
	name := strings.TrimPrefix(specifier, "node:")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[:i]
	}
	return builtinModules[name]
}

// BuiltinName canonicalizes a built-in specifier by stripping the "node:"
// prefix.
func BuiltinName(specifier string) string {
	return strings.TrimPrefix(specifier, "node:")
}
