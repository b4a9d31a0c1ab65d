package resolve

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jsload/jsload/internal/testutil"
)

func TestResolveRelative(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"app.js":        "",
		"lib/util.js":   "",
		"lib/extra.cjs": "",
		"lib/modern.mjs": "",
		"dir/index.js":  "",
		"data.json":     "{}",
	})
	from := filepath.Join(root, "app.js")
	r := New(nil)

	tests := []struct {
		name      string
		specifier string
		wantPath  string
		wantKind  Kind
	}{
		{"exact extension", "./lib/util.js", "lib/util.js", KindCommonJS},
		{"probe js", "./lib/util", "lib/util.js", KindCommonJS},
		{"probe cjs", "./lib/extra", "lib/extra.cjs", KindCommonJS},
		{"probe mjs", "./lib/modern", "lib/modern.mjs", KindESM},
		{"directory index", "./dir", "dir/index.js", KindCommonJS},
		{"json literal", "./data.json", "data.json", KindJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := r.Resolve(from, tt.specifier, "")
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.specifier, err)
			}
			want := filepath.Join(root, filepath.FromSlash(tt.wantPath))
			if target.Path != want {
				t.Errorf("Path = %q, want %q", target.Path, want)
			}
			if target.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", target.Kind, tt.wantKind)
			}
		})
	}
}

func TestResolveExtensionedSpecifierDirect(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"app.js":         "",
		"util2.js":       "",
		"sub/helper.cjs": "",
	})
	r := New(nil)
	from := filepath.Join(root, "app.js")

	// A specifier already naming an existing source file is the target
	// directly, even without a ./ prefix.
	tests := []struct {
		specifier string
		wantPath  string
	}{
		{"util2.js", "util2.js"},
		{"sub/helper.cjs", "sub/helper.cjs"},
	}
	for _, tt := range tests {
		target, err := r.Resolve(from, tt.specifier, "")
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tt.specifier, err)
		}
		want := filepath.Join(root, filepath.FromSlash(tt.wantPath))
		if target.Path != want {
			t.Errorf("Resolve(%q) Path = %q, want %q", tt.specifier, target.Path, want)
		}
	}

	// A non-existing one still takes the bare-specifier path and fails there.
	_, err := r.Resolve(from, "ghost.js", "")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve(ghost.js) error = %v, want NotFoundError", err)
	}
}

func TestResolveNotFound(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{"app.js": ""})
	r := New(nil)

	_, err := r.Resolve(filepath.Join(root, "app.js"), "./missing", "")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Specifier != "./missing" {
		t.Errorf("Specifier = %q, want ./missing", nf.Specifier)
	}
}

func TestResolveBuiltins(t *testing.T) {
	r := New(nil)
	tests := []struct {
		specifier string
		wantName  string
	}{
		{"path", "path"},
		{"node:path", "path"},
		{"fs/promises", "fs/promises"},
		{"node:fs/promises", "fs/promises"},
	}
	for _, tt := range tests {
		target, err := r.Resolve("/any/file.js", tt.specifier, "")
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tt.specifier, err)
		}
		if target.Kind != KindInternal {
			t.Errorf("Resolve(%q) Kind = %v, want KindInternal", tt.specifier, target.Kind)
		}
		if target.Path != tt.wantName {
			t.Errorf("Resolve(%q) Path = %q, want %q", tt.specifier, target.Path, tt.wantName)
		}
	}
}

func TestResolveBareAscent(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"node_modules/dep/package.json":      `{"main": "lib/entry.js"}`,
		"node_modules/dep/lib/entry.js":      "",
		"a/b/c/deep.js":                      "",
		"a/node_modules/closer/index.js":     "",
		"a/b/node_modules/@scope/pkg/main.js": "",
		"a/b/node_modules/@scope/pkg/package.json": `{"main": "main.js"}`,
	})
	r := New(nil)
	from := filepath.Join(root, "a", "b", "c", "deep.js")

	t.Run("ascends three levels", func(t *testing.T) {
		target, err := r.Resolve(from, "dep", "")
		if err != nil {
			t.Fatalf("Resolve error = %v", err)
		}
		want := filepath.Join(root, "node_modules", "dep", "lib", "entry.js")
		if target.Path != want {
			t.Errorf("Path = %q, want %q", target.Path, want)
		}
	})

	t.Run("nearest wins", func(t *testing.T) {
		target, err := r.Resolve(from, "closer", "")
		if err != nil {
			t.Fatalf("Resolve error = %v", err)
		}
		want := filepath.Join(root, "a", "node_modules", "closer", "index.js")
		if target.Path != want {
			t.Errorf("Path = %q, want %q", target.Path, want)
		}
	})

	t.Run("scoped package", func(t *testing.T) {
		target, err := r.Resolve(from, "@scope/pkg", "")
		if err != nil {
			t.Fatalf("Resolve error = %v", err)
		}
		want := filepath.Join(root, "a", "b", "node_modules", "@scope", "pkg", "main.js")
		if target.Path != want {
			t.Errorf("Path = %q, want %q", target.Path, want)
		}
	})

	t.Run("missing package", func(t *testing.T) {
		_, err := r.Resolve(from, "nonexistent-pkg", "")
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}

func TestResolveBareSegments(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"node_modules/pkg/package.json":        `{"main": "index.js"}`,
		"node_modules/pkg/index.js":            "",
		"node_modules/pkg/lib/helper.js":       "",
		"node_modules/pkg/nested/package.json": `{"main": "inner.js"}`,
		"node_modules/pkg/nested/inner.js":     "",
		"app.js":                               "",
	})
	r := New(nil)
	from := filepath.Join(root, "app.js")

	t.Run("file segment", func(t *testing.T) {
		target, err := r.Resolve(from, "pkg/lib/helper", "")
		if err != nil {
			t.Fatalf("Resolve error = %v", err)
		}
		want := filepath.Join(root, "node_modules", "pkg", "lib", "helper.js")
		if target.Path != want {
			t.Errorf("Path = %q, want %q", target.Path, want)
		}
	})

	t.Run("nested manifest becomes resolution root", func(t *testing.T) {
		target, err := r.Resolve(from, "pkg/nested", "")
		if err != nil {
			t.Fatalf("Resolve error = %v", err)
		}
		want := filepath.Join(root, "node_modules", "pkg", "nested", "inner.js")
		if target.Path != want {
			t.Errorf("Path = %q, want %q", target.Path, want)
		}
	})

	t.Run("file segment must be last", func(t *testing.T) {
		_, err := r.Resolve(from, "pkg/lib/helper/extra", "")
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}

func TestResolveExports(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"node_modules/exp/package.json": `{
			"main": "ignored.js",
			"exports": {
				".": "./root.js",
				"./feature": "./lib/feature.js",
				"./cond": {"require": "./lib/cond.cjs", "import": "./lib/cond.mjs"},
				"./deep": {"require": {"default": "./lib/deep.js"}},
				"./arr": [{"import": "./missing.mjs"}, "./lib/arr.js"]
			}
		}`,
		"node_modules/exp/root.js":      "",
		"node_modules/exp/ignored.js":   "",
		"node_modules/exp/lib/feature.js": "",
		"node_modules/exp/lib/cond.cjs": "",
		"node_modules/exp/lib/cond.mjs": "",
		"node_modules/exp/lib/deep.js":  "",
		"node_modules/exp/lib/arr.js":   "",
		"node_modules/str/package.json": `{"exports": "./only.js"}`,
		"node_modules/str/only.js":      "",
		"node_modules/plain/package.json": `{"main": "main.js"}`,
		"node_modules/plain/main.js":    "",
		"node_modules/plain/extra.js":   "",
		"app.js":                        "",
	})
	r := New(nil)
	from := filepath.Join(root, "app.js")

	tests := []struct {
		name      string
		specifier string
		subPath   string
		wantPath  string
	}{
		{"dot entry beats main", "exp", "", "node_modules/exp/root.js"},
		{"subpath export", "exp", "feature", "node_modules/exp/lib/feature.js"},
		{"require beats import", "exp", "cond", "node_modules/exp/lib/cond.cjs"},
		{"nested default", "exp", "deep", "node_modules/exp/lib/deep.js"},
		{"fallback array", "exp", "arr", "node_modules/exp/lib/arr.js"},
		{"string exports", "str", "", "node_modules/str/only.js"},
		{"no exports map falls back to files", "plain", "extra", "node_modules/plain/extra.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := r.Resolve(from, tt.specifier, tt.subPath)
			if err != nil {
				t.Fatalf("Resolve error = %v", err)
			}
			want := filepath.Join(root, filepath.FromSlash(tt.wantPath))
			if target.Path != want {
				t.Errorf("Path = %q, want %q", target.Path, want)
			}
		})
	}

	t.Run("unexported subpath", func(t *testing.T) {
		_, err := r.Resolve(from, "exp", "hidden")
		var se *SubpathNotExportedError
		if !errors.As(err, &se) {
			t.Fatalf("expected SubpathNotExportedError, got %v", err)
		}
		if se.SubPath != "hidden" {
			t.Errorf("SubPath = %q, want hidden", se.SubPath)
		}
	})
}

func TestResolveModuleKind(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"node_modules/esmpkg/package.json": `{"main": "index.js", "type": "module"}`,
		"node_modules/esmpkg/index.js":     "",
		"node_modules/cjspkg/package.json": `{"main": "index.js"}`,
		"node_modules/cjspkg/index.js":     "",
		"app.js":                           "",
	})
	r := New(nil)
	from := filepath.Join(root, "app.js")

	target, err := r.Resolve(from, "esmpkg", "")
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if target.Kind != KindESM {
		t.Errorf("type module package Kind = %v, want KindESM", target.Kind)
	}

	target, err = r.Resolve(from, "cjspkg", "")
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if target.Kind != KindCommonJS {
		t.Errorf("default package Kind = %v, want KindCommonJS", target.Kind)
	}
}

func TestResolveCorruptManifest(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"node_modules/bad/package.json": `{"main":`,
		"app.js":                        "",
	})
	r := New(nil)

	_, err := r.Resolve(filepath.Join(root, "app.js"), "bad", "")
	var ie *InvalidModuleError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidModuleError, got %v", err)
	}
}

func TestIsBuiltin(t *testing.T) {
	tests := []struct {
		specifier string
		want      bool
	}{
		{"path", true},
		{"node:path", true},
		{"fs/promises", true},
		{"http", true},
		{"left-pad", false},
		{"./path", false},
		{"node:left-pad", false},
	}
	for _, tt := range tests {
		if got := IsBuiltin(tt.specifier); got != tt.want {
			t.Errorf("IsBuiltin(%q) = %v, want %v", tt.specifier, got, tt.want)
		}
	}
}
