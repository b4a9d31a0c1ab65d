package resolve

import "fmt"

// NotFoundError reports that resolution exhausted every candidate for a
// specifier. It carries the requesting file so nested require chains stay
// traceable.
type NotFoundError struct {
	Specifier string
	From      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("module not found: %q (required from %s)", e.Specifier, e.From)
}

// InvalidModuleError reports a candidate package directory whose manifest is
// missing or unreadable.
type InvalidModuleError struct {
	Dir string
	Err error
}

func (e *InvalidModuleError) Error() string {
	return fmt.Sprintf("invalid module at %s: %v", e.Dir, e.Err)
}

func (e *InvalidModuleError) Unwrap() error { return e.Err }

// SubpathNotExportedError reports an exports map that does not expose the
// requested subpath.
type SubpathNotExportedError struct {
	SubPath string
	Dir     string
}

func (e *SubpathNotExportedError) Error() string {
	return fmt.Sprintf("subpath %q is not exported by package at %s", e.SubPath, e.Dir)
}
