package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sorbet-go/checker/internal/cfg"
	"github.com/sorbet-go/checker/internal/infer"
	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/names"
	"github.com/sorbet-go/checker/internal/parse"
	"github.com/sorbet-go/checker/internal/symbols"
)

// methodWork pairs a parsed method with the FileRef it came from, for the
// CLI's flat work-list.
type methodWork struct {
	File   loc.FileRef
	Method parse.Method
}

// loadMethods walks root for source files, enters each into files, and
// parses them with the stub front end (internal/parse.Stub), returning a
// flat list of methods ready for checkMethod.
func loadMethods(root string, files *loc.Table) ([]methodWork, error) {
	var out []methodWork
	var parser parse.Parser = parse.Stub{}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		ref := files.Enter(loc.File{Path: path, Source: string(content)})
		parsed, err := parser.Parse(path, string(content))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		for _, m := range parsed.Methods {
			out = append(out, methodWork{File: ref, Method: m})
		}
		return nil
	})
	return out, err
}

// checkMethod runs the fixed pipeline (C1 name table -> C3 CFG -> C4
// analyses -> C5 inference) over one method and returns rendered error
// lines. Error-message formatting/localization is out of scope (spec §1);
// these are deliberately bare, not the real product's templated messages.
func checkMethod(w methodWork) (diagnostics []string, edits []string) {
	nt := &names.Table{}
	symTab := symbols.NewTable()
	nameRef, _ := nt.EnterName(names.Source, w.Method.Name)
	methodSym, _ := symTab.EnterSymbol(symbols.Root, nameRef, symbols.Method)
	for i, argName := range w.Method.ArgNames {
		argRef, _ := nt.EnterName(names.Source, argName)
		_ = symTab.AddArgument(methodSym, symbols.Argument{Name: argRef, Block: i == len(w.Method.ArgNames)-1})
	}
	_ = symTab.FinalizeArguments(methodSym, func() names.Ref {
		r, _ := nt.EnterName(names.Source, "<block>")
		return r
	}())
	nt.Freeze()
	symTab.Freeze()

	g := cfg.Build(nt, w.File, w.Method.ArgNames, w.Method.Body)
	g.Simplify()
	g.Dealias()
	g.AnalyzeReadsWrites()
	stats := g.ComputeLoopStats()
	g.SynthesizeBlockArgs(stats)
	g.EliminateDeadStores(false)

	env := infer.Environment{Symbols: symTab, SelfClass: symbols.Root}
	result := infer.Infer(g, env)
	for _, d := range result.UntypedDispatches {
		diagnostics = append(diagnostics, fmt.Sprintf("%s: untyped dispatch to %q", w.Method.Name, d.Fun))
	}
	return diagnostics, edits
}
