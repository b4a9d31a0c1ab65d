package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return dir
}

func TestRead(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantMain string
		wantType string
		exports  bool
	}{
		{
			name:     "main only",
			content:  `{"main": "lib/index.js"}`,
			wantMain: "lib/index.js",
		},
		{
			name:     "type module",
			content:  `{"main": "src/index.js", "type": "module"}`,
			wantMain: "src/index.js",
			wantType: "module",
		},
		{
			name:    "string exports",
			content: `{"exports": "./entry.js"}`,
			exports: true,
		},
		{
			name:    "map exports",
			content: `{"exports": {"./helpers": "./lib/helpers.js"}}`,
			exports: true,
		},
		{
			name:    "empty manifest",
			content: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeManifest(t, tt.content)
			d, err := Read(dir)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if d.Main != tt.wantMain {
				t.Errorf("Main = %q, want %q", d.Main, tt.wantMain)
			}
			if d.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", d.Type, tt.wantType)
			}
			if d.HasExports() != tt.exports {
				t.Errorf("HasExports() = %v, want %v", d.HasExports(), tt.exports)
			}
		})
	}
}

func TestReadMissing(t *testing.T) {
	if _, err := Read(t.TempDir()); err != ErrNoManifest {
		t.Fatalf("expected ErrNoManifest, got %v", err)
	}
}

func TestReadCorrupt(t *testing.T) {
	dir := writeManifest(t, `{"main":`)
	if _, err := Read(dir); err == nil {
		t.Fatal("expected parse error for corrupt manifest")
	}
}

func TestIsModule(t *testing.T) {
	d := &Descriptor{Type: "module"}
	if !d.IsModule() {
		t.Error("IsModule() = false for type module")
	}
	if (&Descriptor{Type: "commonjs"}).IsModule() {
		t.Error("IsModule() = true for type commonjs")
	}
}
