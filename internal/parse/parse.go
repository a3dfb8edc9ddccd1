// Package parse defines the boundary to the out-of-scope parser (spec §1:
// "Source parsing ... produces a tagged AST; see §6"). The core never
// implements a real parser; this package states the interface the CLI and
// LSP entrypoints expect a parser to satisfy, plus a minimal Stub used by
// cmd/check and cmd/lspd to drive the pipeline end to end without a real
// front end.
package parse

import "github.com/sorbet-go/checker/internal/tree"

// Method is one parsed method definition: its name, its formal argument
// names (the parser is responsible for ensuring the last is always a
// block argument name per symbol-table invariants, or leaving that to the
// indexing phase to synthesize), and its desugared body.
type Method struct {
	Name     string
	ArgNames []string
	Body     tree.Node
}

// File is the result of parsing one source file: its top-level methods,
// in declaration order. A real parser would also report ClassDef/ModuleDef
// nesting for the symbol table (C1) to index; Stub flattens everything to
// top-level methods since this package exists only to unblock pipeline
// wiring, not to parse the analyzed language for real.
type File struct {
	Methods []Method
}

// Parser is implemented by whatever front end produces a tagged AST. The
// real implementation is out of scope (spec §1); only this interface is
// part of the core's contract.
type Parser interface {
	Parse(path, source string) (File, error)
}

// Stub is a placeholder Parser: every file becomes a single method named
// "<main>", whose only argument is the block argument "<block>" and whose
// body is the file's source wrapped as an opaque
// Literal (since there's no real grammar to lower). It exists solely so
// cmd/check and cmd/lspd have something to call; a production deployment
// replaces it with the real, out-of-scope parser.
type Stub struct{}

func (Stub) Parse(path, source string) (File, error) {
	return File{
		Methods: []Method{{
			Name:     "<main>",
			ArgNames: []string{"<block>"},
			Body:     &tree.Literal{Value: source},
		}},
	}, nil
}
