package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/sorbet-go/checker/internal/cfg"
	"github.com/sorbet-go/checker/internal/errqueue"
	"github.com/sorbet-go/checker/internal/infer"
	"github.com/sorbet-go/checker/internal/lsp"
	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/names"
	"github.com/sorbet-go/checker/internal/parse"
	"github.com/sorbet-go/checker/internal/symbols"
)

// pipelineChecker implements lsp.Checker by driving the same fixed
// names/symbols/CFG/infer pipeline cmd/check uses, one file at a time so
// it can observe ctx cancellation between files (spec §4.5.2's slow-path
// cancellation point).
type pipelineChecker struct {
	files  *loc.Table
	errs   *errqueue.Queue
	parser parse.Parser
}

func newPipelineChecker(files *loc.Table, errs *errqueue.Queue) *pipelineChecker {
	return &pipelineChecker{files: files, errs: errs, parser: parse.Stub{}}
}

func (c *pipelineChecker) CheckFiles(ctx context.Context, updates []lsp.FileUpdate) (map[string]lsp.FileSummary, map[string]bool, error) {
	summaries := map[string]lsp.FileSummary{}
	hasErrors := map[string]bool{}

	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return summaries, hasErrors, err
		}

		ref, ok := c.files.Lookup(u.Path)
		if !ok {
			ref = c.files.Enter(loc.File{Path: u.Path, Source: u.Content})
		}

		parsed, err := c.parser.Parse(u.Path, u.Content)
		if err != nil {
			return summaries, hasErrors, fmt.Errorf("parsing %s: %w", u.Path, err)
		}

		methodHashes := map[string]string{}
		fileErrored := false

		for _, m := range parsed.Methods {
			nt := &names.Table{}
			symTab := symbols.NewTable()
			nameRef, _ := nt.EnterName(names.Source, m.Name)
			methodSym, _ := symTab.EnterSymbol(symbols.Root, nameRef, symbols.Method)
			for i, argName := range m.ArgNames {
				argRef, _ := nt.EnterName(names.Source, argName)
				_ = symTab.AddArgument(methodSym, symbols.Argument{Name: argRef, Block: i == len(m.ArgNames)-1})
			}
			_ = symTab.FinalizeArguments(methodSym, func() names.Ref {
				r, _ := nt.EnterName(names.Source, "<block>")
				return r
			}())
			nt.Freeze()
			symTab.Freeze()

			g := cfg.Build(nt, ref, m.ArgNames, m.Body)
			g.Simplify()
			g.Dealias()
			g.AnalyzeReadsWrites()
			stats := g.ComputeLoopStats()
			g.SynthesizeBlockArgs(stats)
			g.EliminateDeadStores(false)

			env := infer.Environment{Symbols: symTab, SelfClass: symbols.Root}
			result := infer.Infer(g, env)
			for _, d := range result.UntypedDispatches {
				c.errs.Push(ref, fmt.Sprintf("%s: untyped dispatch to %q", m.Name, d.Fun), false, false)
				fileErrored = true
			}

			methodHashes[m.Name] = hashMethodBody(u.Path, m.Name, m.Body)
		}
		c.errs.MarkFileForFlushing(ref)

		summaries[u.Path] = lsp.FileSummary{
			DefHash:          hashString(u.Path + "#defs"),
			MethodBodyHashes: methodHashes,
		}
		hasErrors[u.Path] = fileErrored
	}

	return summaries, hasErrors, nil
}

// Summarize computes each file's FileSummary from a cheap parse, without
// building a CFG or running inference, so the preprocessor can call
// DecideFastPath before committing to a slow-path typecheck.
func (c *pipelineChecker) Summarize(updates []lsp.FileUpdate) map[string]lsp.FileSummary {
	out := make(map[string]lsp.FileSummary, len(updates))
	for _, u := range updates {
		parsed, err := c.parser.Parse(u.Path, u.Content)
		if err != nil {
			continue
		}
		methodHashes := make(map[string]string, len(parsed.Methods))
		for _, m := range parsed.Methods {
			methodHashes[m.Name] = hashMethodBody(u.Path, m.Name, m.Body)
		}
		out[u.Path] = lsp.FileSummary{
			DefHash:          hashString(u.Path + "#defs"),
			MethodBodyHashes: methodHashes,
		}
	}
	return out
}

func hashMethodBody(path, name string, body interface{}) string {
	return hashString(fmt.Sprintf("%s:%s:%v", path, name, body))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
