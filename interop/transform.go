// Package interop rewrites ECMAScript module sources into CommonJS-shaped
// execution units while preserving live bindings, default and namespace
// semantics, and declaration-order import evaluation.
//
// The parser facility is tdewolff/parse, whose module-aware parser shares one
// binding record between a declaration and every reference that resolves to
// it. Import bindings are redirected by renaming that shared record to a
// namespace member access, so shadowing inner bindings keep their own records
// and are never rewritten. Exported names stay declared in their original
// lexical position; live-binding visibility comes from accessor properties
// installed on the namespace object rather than from mirrored writes.
package interop

import (
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// ParseError reports a source that could not be parsed as a module.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// prelude defines the export helpers prepended to every transformed unit.
// Accessor properties keep importers reading the exporter's current binding
// values instead of a snapshot taken at declaration time.
const prelude = `var __liveExport = (target, all) => { for (var name in all) Object.defineProperty(target, name, { get: all[name], enumerable: true, configurable: true }); };
var __reExport = (target, from) => { for (var name of Object.keys(from)) if (name !== "default" && !Object.prototype.hasOwnProperty.call(target, name)) Object.defineProperty(target, name, { get: () => from[name], enumerable: true, configurable: true }); };`

// Transform rewrites an ECMAScript module source into an execution-unit body
// with the CommonJS parameter contract. In async mode each hoisted import is
// awaited; in sync mode hoisted imports read the eager now surface, while
// dynamic import expressions stay promise-valued in both modes.
func Transform(src, path string, async bool) (string, error) {
	src = RewriteImportExpressions(src)
	ast, err := js.Parse(parse.NewInputString(src), js.Options{})
	if err != nil {
		return "", &ParseError{Path: path, Err: err}
	}

	t := &transformer{ast: ast, async: async, renames: make(map[string]string)}
	return t.run(), nil
}

// getter pairs an exported name with the expression its accessor evaluates.
type getter struct {
	name string
	expr string
}

type transformer struct {
	ast     *js.AST
	async   bool
	imports []string // hoisted module specifiers, in declaration order
	getters []getter
	reMods  []int // module indexes re-exported via export *
	hasDflt bool
	dflt    []string // synthesized default-assignment statements
	body    []string
	renames map[string]string // local name -> replacement expression
}

func (t *transformer) run() string {
	// First pass wires import bindings so later statement rendering sees the
	// renamed records regardless of where the import appears in the source.
	for _, stmt := range t.ast.List {
		switch s := stmt.(type) {
		case *js.ImportStmt:
			t.hoistImport(s)
		case *js.ExportStmt:
			if s.Module != nil {
				t.hoistReExport(s)
			}
		}
	}

	// Second pass renders the module body in source order, stripping export
	// keywords while leaving the declarations in place.
	for _, stmt := range t.ast.List {
		switch s := stmt.(type) {
		case *js.ImportStmt:
			// already hoisted
		case *js.ExportStmt:
			if s.Module == nil {
				t.rewriteExport(s)
			}
		default:
			t.body = append(t.body, renderStmt(stmt))
		}
	}

	var sb strings.Builder
	sb.WriteString("\"use strict\";\n")
	sb.WriteString(prelude)
	sb.WriteString("\n")
	for i, mod := range t.imports {
		if t.async {
			fmt.Fprintf(&sb, "const __mod%d = await dynamicImport(%s);\n", i, mod)
		} else {
			fmt.Fprintf(&sb, "const __mod%d = dynamicImport.now(%s);\n", i, mod)
		}
	}
	if len(t.getters) > 0 {
		sb.WriteString("__liveExport(exports[0], { ")
		for i, g := range t.getters {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%q: () => %s", g.name, g.expr)
		}
		sb.WriteString(" });\n")
	}
	if t.hasDflt {
		sb.WriteString("Object.defineProperty(exports[0], \"default\", { get: () => exports[1], enumerable: true, configurable: true });\n")
	}
	for _, idx := range t.reMods {
		fmt.Fprintf(&sb, "__reExport(exports[0], __mod%d);\n", idx)
	}
	for _, stmt := range t.body {
		sb.WriteString(stmt)
		sb.WriteString("\n")
	}
	for _, stmt := range t.dflt {
		sb.WriteString(stmt)
		sb.WriteString("\n")
	}
	return sb.String()
}

// hoist allocates the next __modN slot for a module specifier. The specifier
// bytes keep their original quotes.
func (t *transformer) hoist(module []byte) int {
	t.imports = append(t.imports, string(module))
	return len(t.imports) - 1
}

func (t *transformer) hoistImport(s *js.ImportStmt) {
	idx := t.hoist(s.Module)
	if len(s.Default) > 0 {
		t.rename(string(s.Default), fmt.Sprintf("__mod%d.default", idx))
	}
	for _, a := range s.List {
		local := string(a.Binding)
		if local == "" {
			continue
		}
		if string(a.Name) == "*" {
			t.rename(local, fmt.Sprintf("__mod%d", idx))
			continue
		}
		source := local
		if len(a.Name) > 0 {
			source = string(a.Name)
		}
		t.rename(local, fmt.Sprintf("__mod%d.%s", idx, source))
	}
}

func (t *transformer) hoistReExport(s *js.ExportStmt) {
	idx := t.hoist(s.Module)
	if len(s.List) == 0 {
		t.reMods = append(t.reMods, idx)
		return
	}
	for _, a := range s.List {
		if string(a.Name) == "*" {
			if len(a.Binding) == 0 {
				t.reMods = append(t.reMods, idx)
			} else {
				t.addGetter(string(a.Binding), fmt.Sprintf("__mod%d", idx))
			}
			continue
		}
		source := string(a.Binding)
		if len(a.Name) > 0 {
			source = string(a.Name)
		}
		exported := string(a.Binding)
		t.addGetter(exported, fmt.Sprintf("__mod%d.%s", idx, source))
	}
}

func (t *transformer) rewriteExport(s *js.ExportStmt) {
	if s.Default {
		t.hasDflt = true
		switch d := s.Decl.(type) {
		case *js.FuncDecl:
			if d.Name != nil {
				t.body = append(t.body, renderStmt(d))
				t.dflt = append(t.dflt, fmt.Sprintf("exports[1] = %s;", string(d.Name.Data)))
				return
			}
		case *js.ClassDecl:
			if d.Name != nil {
				t.body = append(t.body, renderStmt(d))
				t.dflt = append(t.dflt, fmt.Sprintf("exports[1] = %s;", string(d.Name.Data)))
				return
			}
		}
		t.body = append(t.body, fmt.Sprintf("exports[1] = (%s);", render(s.Decl)))
		return
	}

	if s.Decl != nil {
		for _, name := range declaredNames(s.Decl) {
			t.addGetter(name, name)
		}
		t.body = append(t.body, renderStmt(s.Decl))
		return
	}

	// export { a, b as c }
	for _, a := range s.List {
		local := string(a.Binding)
		exported := local
		if len(a.Name) > 0 {
			local = string(a.Name)
		}
		t.addGetter(exported, local)
	}
}

// addGetter registers an accessor for an exported name. Locals that were
// import bindings read through the renamed namespace access.
func (t *transformer) addGetter(name, expr string) {
	if renamed, ok := t.renames[expr]; ok {
		expr = renamed
	}
	t.getters = append(t.getters, getter{name: name, expr: expr})
}

// rename redirects every reference sharing the top-level binding record for
// name to the replacement expression. Inner shadowing declarations own
// distinct records and keep their spelling.
func (t *transformer) rename(name, replacement string) {
	t.renames[name] = replacement
	for _, v := range t.ast.Scope.Declared {
		if string(v.Data) == name {
			v.Data = []byte(replacement)
			return
		}
	}
	for _, v := range t.ast.Scope.Undeclared {
		if string(v.Data) == name {
			v.Data = []byte(replacement)
			return
		}
	}
}

// declaredNames collects the names bound by an exported declaration.
func declaredNames(decl js.IExpr) []string {
	var names []string
	switch d := decl.(type) {
	case *js.VarDecl:
		for _, item := range d.List {
			bindingNames(item.Binding, &names)
		}
	case *js.FuncDecl:
		if d.Name != nil {
			names = append(names, string(d.Name.Data))
		}
	case *js.ClassDecl:
		if d.Name != nil {
			names = append(names, string(d.Name.Data))
		}
	}
	return names
}

// bindingNames walks a binding pattern and appends every bound name.
func bindingNames(b js.IBinding, out *[]string) {
	switch v := b.(type) {
	case *js.Var:
		*out = append(*out, string(v.Data))
	case *js.BindingArray:
		for _, item := range v.List {
			if item.Binding != nil {
				bindingNames(item.Binding, out)
			}
		}
		if v.Rest != nil {
			bindingNames(v.Rest, out)
		}
	case *js.BindingObject:
		for _, item := range v.List {
			if item.Value.Binding != nil {
				bindingNames(item.Value.Binding, out)
			}
		}
		if v.Rest != nil {
			*out = append(*out, string(v.Rest.Data))
		}
	}
}

type jsWriter interface {
	JS(io.Writer)
}

func render(n jsWriter) string {
	var sb strings.Builder
	n.JS(&sb)
	return sb.String()
}

// renderStmt renders a statement with a terminating semicolon; redundant
// semicolons are harmless.
func renderStmt(n jsWriter) string {
	s := render(n)
	if !strings.HasSuffix(s, ";") && !strings.HasSuffix(s, "}") {
		s += ";"
	}
	return s
}
