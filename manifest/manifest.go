// Package manifest reads package.json files and exposes the fields the
// resolver cares about in a normalized shape.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// FileName is the manifest file looked up in every package directory.
const FileName = "package.json"

// ErrNoManifest is returned when a directory has no package.json.
var ErrNoManifest = errors.New("no package manifest")

// Descriptor is the normalized view of a package manifest.
//
// Exports mirrors the raw "exports" field: a string, an array, or a
// map[string]any, depending on what the manifest declared. Callers apply the
// conditional-exports rule themselves.
type Descriptor struct {
	Main    string `json:"main"`
	Exports any    `json:"exports"`
	Type    string `json:"type"` // "module", "commonjs", or empty
}

// HasExports reports whether the manifest declared an exports field.
func (d *Descriptor) HasExports() bool {
	return d.Exports != nil
}

// IsModule reports whether the package declares "type": "module", which makes
// bare .js files inside it ECMAScript modules.
func (d *Descriptor) IsModule() bool {
	return d.Type == "module"
}

// Read parses the manifest in dir. It returns ErrNoManifest when the file is
// absent and a parse error when the file exists but is not valid JSON.
func Read(dir string) (*Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoManifest
		}
		return nil, fmt.Errorf("read manifest in %s: %w", dir, err)
	}

	var d Descriptor
	if err := sonic.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse manifest in %s: %w", dir, err)
	}
	return &d, nil
}
