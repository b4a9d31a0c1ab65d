// Package resolve maps (requesting file, specifier) pairs to absolute file
// paths, implementing the Node-compatible lookup algorithm: extension and
// index probing, node_modules ascent for bare specifiers, and package
// manifest entry points including conditional and subpath exports.
package resolve

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jsload/jsload/manifest"
)

// Kind tags a resolved target with how it must be loaded.
type Kind uint8

const (
	// KindCommonJS is a .js or .cjs file executed with CommonJS semantics.
	KindCommonJS Kind = iota
	// KindESM is a .mjs file, or a .js file inside a "type": "module"
	// package, run through the interop transform.
	KindESM
	// KindJSON is a .json file parsed and returned as a value.
	KindJSON
	// KindInternal is a host built-in module, returned unchanged.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindCommonJS:
		return "commonjs"
	case KindESM:
		return "esm"
	case KindJSON:
		return "json"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Target is an immutable resolution result. Path is an absolute file path,
// except for KindInternal where it is the built-in module name.
type Target struct {
	Path string
	Kind Kind
}

// sourceExts is the probing order for extensionless specifiers.
var sourceExts = []string{".js", ".cjs", ".mjs"}

// Resolver implements the lookup algorithm. It holds a per-session manifest
// cache; sessions are single-threaded so no locking is needed.
type Resolver struct {
	log       *zap.Logger
	manifests map[string]*manifest.Descriptor
}

// New creates a resolver. A nil logger defaults to a no-op logger.
func New(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		log:       log,
		manifests: make(map[string]*manifest.Descriptor),
	}
}

// Resolve maps a specifier written in fromFile to a target. subPath names an
// entry inside the target package when the specifier resolves to a package
// directory; bare-specifier rest segments take precedence over it.
func (r *Resolver) Resolve(fromFile, specifier, subPath string) (Target, error) {
	if IsBuiltin(specifier) {
		return Target{Path: BuiltinName(specifier), Kind: KindInternal}, nil
	}

	fromDir := filepath.Dir(fromFile)
	t, err := r.resolve(fromDir, specifier, subPath)
	if err != nil {
		return Target{}, err
	}
	r.log.Debug("resolved specifier",
		zap.String("specifier", specifier),
		zap.String("from", fromFile),
		zap.String("path", t.Path),
		zap.String("kind", t.Kind.String()))
	return t, nil
}

func (r *Resolver) resolve(fromDir, specifier, subPath string) (Target, error) {
	// Literal .json targets bypass probing entirely.
	if strings.HasSuffix(specifier, ".json") {
		path := specifier
		if !filepath.IsAbs(path) {
			path = filepath.Join(fromDir, specifier)
		}
		if !fileExists(path) {
			return Target{}, &NotFoundError{Specifier: specifier, From: fromDir}
		}
		return Target{Path: path, Kind: KindJSON}, nil
	}

	// A specifier that already names an existing source file is the target
	// directly, before the relative/bare split.
	if hasSourceExt(specifier) {
		path := specifier
		if !filepath.IsAbs(path) {
			path = filepath.Join(fromDir, specifier)
		}
		if fileExists(path) {
			return r.fileTarget(path), nil
		}
	}

	if isRelative(specifier) || filepath.IsAbs(specifier) {
		base := specifier
		if !filepath.IsAbs(base) {
			base = filepath.Join(fromDir, specifier)
		}
		if path, ok := r.probe(base); ok {
			return r.fileTarget(path), nil
		}
		if dirExists(base) {
			return r.resolveDir(base, subPath)
		}
		return Target{}, &NotFoundError{Specifier: specifier, From: fromDir}
	}

	return r.resolveBare(fromDir, specifier, subPath)
}

// probe implements the extension and index probing order for a candidate
// base path: exact source-extension hit, then .js/.cjs/.mjs, then the
// directory index files.
func (r *Resolver) probe(base string) (string, bool) {
	if hasSourceExt(base) && fileExists(base) {
		return base, true
	}
	for _, ext := range sourceExts {
		if p := base + ext; fileExists(p) {
			return p, true
		}
	}
	for _, ext := range sourceExts {
		if p := filepath.Join(base, "index"+ext); fileExists(p) {
			return p, true
		}
	}
	return "", false
}

// resolveBare ascends from fromDir toward the filesystem root looking for
// node_modules/<package>, then walks the remaining specifier segments.
func (r *Resolver) resolveBare(fromDir, specifier, subPath string) (Target, error) {
	parts := strings.Split(specifier, "/")
	pkgName := parts[0]
	// Scoped packages occupy two segments.
	if strings.HasPrefix(pkgName, "@") && len(parts) > 1 {
		pkgName = parts[0] + "/" + parts[1]
		parts = parts[1:]
	}
	rest := parts[1:]

	pkgDir := ""
	for dir := fromDir; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, "node_modules", pkgName)
		if dirExists(candidate) {
			pkgDir = candidate
			break
		}
		if dir == filepath.Dir(dir) {
			return Target{}, &NotFoundError{Specifier: specifier, From: fromDir}
		}
	}

	return r.walkSegments(pkgDir, rest, subPath, specifier, fromDir)
}

// walkSegments descends rest one segment at a time from pkgDir, preferring an
// existing subdirectory, then <segment>.js, then <segment>.cjs. A file match
// must consume the last segment. A directory that carries its own manifest
// mid-walk becomes a new resolution root for the remaining segments.
func (r *Resolver) walkSegments(pkgDir string, rest []string, subPath, specifier, fromDir string) (Target, error) {
	dir := pkgDir
	for i, seg := range rest {
		next := filepath.Join(dir, seg)
		if dirExists(next) {
			if next != pkgDir && fileExists(filepath.Join(next, manifest.FileName)) {
				return r.walkSegments(next, rest[i+1:], subPath, specifier, fromDir)
			}
			dir = next
			continue
		}
		if p := next + ".js"; fileExists(p) {
			if i != len(rest)-1 {
				return Target{}, &NotFoundError{Specifier: specifier, From: fromDir}
			}
			return r.fileTarget(p), nil
		}
		if p := next + ".cjs"; fileExists(p) {
			if i != len(rest)-1 {
				return Target{}, &NotFoundError{Specifier: specifier, From: fromDir}
			}
			return r.fileTarget(p), nil
		}
		// Unresolved trailing segments become the subpath for directory
		// resolution below.
		return r.resolveDir(dir, strings.Join(rest[i:], "/"))
	}
	return r.resolveDir(dir, subPath)
}

// resolveDir resolves a package directory to its entry file, consulting the
// manifest's exports and main fields.
func (r *Resolver) resolveDir(dir, subPath string) (Target, error) {
	desc, err := r.descriptor(dir)
	if err != nil {
		if err == manifest.ErrNoManifest {
			// A bare directory still resolves through its index files.
			if subPath == "" {
				if p, ok := r.probe(filepath.Join(dir, "index")); ok {
					return r.fileTarget(p), nil
				}
				return Target{}, &NotFoundError{Specifier: dir, From: dir}
			}
			return r.resolveUnder(dir, subPath)
		}
		return Target{}, &InvalidModuleError{Dir: dir, Err: err}
	}

	if subPath != "" {
		if !desc.HasExports() {
			return r.resolveUnder(dir, subPath)
		}
		return r.resolveExportedSubpath(dir, desc.Exports, subPath)
	}

	// No subpath: exports (string or "." entry) wins over main, which wins
	// over index.js.
	switch exp := desc.Exports.(type) {
	case nil:
	case string:
		return r.entryTarget(dir, exp)
	default:
		if m, ok := exp.(map[string]any); ok {
			spec := any(m)
			if dot, ok := m["."]; ok {
				spec = dot
			}
			return r.resolveConditional(dir, spec, ".")
		}
		return r.resolveConditional(dir, exp, ".")
	}

	entry := desc.Main
	if entry == "" {
		entry = "index.js"
	}
	return r.entryTarget(dir, entry)
}

// resolveUnder resolves subPath as a plain relative path below dir, with the
// usual probing.
func (r *Resolver) resolveUnder(dir, subPath string) (Target, error) {
	base := filepath.Join(dir, subPath)
	if strings.HasSuffix(subPath, ".json") {
		if fileExists(base) {
			return Target{Path: base, Kind: KindJSON}, nil
		}
		return Target{}, &NotFoundError{Specifier: subPath, From: dir}
	}
	if p, ok := r.probe(base); ok {
		return r.fileTarget(p), nil
	}
	return Target{}, &NotFoundError{Specifier: subPath, From: dir}
}

// resolveExportedSubpath looks the subpath up in the exports map under its
// "./"-prefixed key and resolves the value through the conditional rule.
func (r *Resolver) resolveExportedSubpath(dir string, exports any, subPath string) (Target, error) {
	m, ok := exports.(map[string]any)
	if !ok {
		return Target{}, &SubpathNotExportedError{SubPath: subPath, Dir: dir}
	}
	key := subPath
	if !strings.HasPrefix(key, "./") {
		key = "./" + key
	}
	spec, ok := m[key]
	if !ok {
		return Target{}, &SubpathNotExportedError{SubPath: subPath, Dir: dir}
	}
	return r.resolveConditional(dir, spec, subPath)
}

// resolveConditional applies the conditional-exports rule to a spec value:
// strings are real subpaths, objects prefer require > default > import with
// one level of nested default, arrays take the first element whose resolved
// path exists on disk.
func (r *Resolver) resolveConditional(dir string, spec any, subPath string) (Target, error) {
	switch v := spec.(type) {
	case string:
		return r.entryTarget(dir, v)
	case map[string]any:
		chosen, ok := pickCondition(v)
		if !ok {
			return Target{}, &SubpathNotExportedError{SubPath: subPath, Dir: dir}
		}
		if nested, isMap := chosen.(map[string]any); isMap {
			chosen, ok = nested["default"]
			if !ok {
				return Target{}, &SubpathNotExportedError{SubPath: subPath, Dir: dir}
			}
		}
		s, isStr := chosen.(string)
		if !isStr {
			return Target{}, &SubpathNotExportedError{SubPath: subPath, Dir: dir}
		}
		return r.entryTarget(dir, s)
	case []any:
		for _, elem := range v {
			t, err := r.resolveConditional(dir, elem, subPath)
			if err == nil {
				return t, nil
			}
		}
		return Target{}, &SubpathNotExportedError{SubPath: subPath, Dir: dir}
	}
	return Target{}, &SubpathNotExportedError{SubPath: subPath, Dir: dir}
}

// pickCondition selects the export condition for a CommonJS-style consumer.
func pickCondition(m map[string]any) (any, bool) {
	for _, key := range []string{"require", "default", "import"} {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// entryTarget resolves a manifest-declared entry name relative to dir,
// probing extensions when the name lacks one.
func (r *Resolver) entryTarget(dir, entry string) (Target, error) {
	base := filepath.Join(dir, entry)
	if strings.HasSuffix(entry, ".json") {
		if fileExists(base) {
			return Target{Path: base, Kind: KindJSON}, nil
		}
		return Target{}, &NotFoundError{Specifier: entry, From: dir}
	}
	if p, ok := r.probe(base); ok {
		return r.fileTarget(p), nil
	}
	return Target{}, &NotFoundError{Specifier: entry, From: dir}
}

// fileTarget classifies an existing source file. Bare .js files take their
// module kind from the nearest enclosing manifest's type field.
func (r *Resolver) fileTarget(path string) Target {
	switch filepath.Ext(path) {
	case ".mjs":
		return Target{Path: path, Kind: KindESM}
	case ".cjs":
		return Target{Path: path, Kind: KindCommonJS}
	case ".json":
		return Target{Path: path, Kind: KindJSON}
	}
	if desc := r.nearestDescriptor(filepath.Dir(path)); desc != nil && desc.IsModule() {
		return Target{Path: path, Kind: KindESM}
	}
	return Target{Path: path, Kind: KindCommonJS}
}

// descriptor reads a directory's manifest through the per-session cache.
func (r *Resolver) descriptor(dir string) (*manifest.Descriptor, error) {
	if d, ok := r.manifests[dir]; ok {
		if d == nil {
			return nil, manifest.ErrNoManifest
		}
		return d, nil
	}
	d, err := manifest.Read(dir)
	if err == manifest.ErrNoManifest {
		r.manifests[dir] = nil
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	r.manifests[dir] = d
	return d, nil
}

// nearestDescriptor walks from dir toward the root until a manifest is found.
func (r *Resolver) nearestDescriptor(dir string) *manifest.Descriptor {
	for {
		if d, err := r.descriptor(dir); err == nil {
			return d
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func isRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") ||
		specifier == "." || specifier == ".."
}

func hasSourceExt(path string) bool {
	switch filepath.Ext(path) {
	case ".js", ".cjs", ".mjs":
		return true
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
