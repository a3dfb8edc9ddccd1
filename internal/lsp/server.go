package lsp

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sorbet-go/checker/internal/config"
	"github.com/sorbet-go/checker/internal/errqueue"
	"github.com/sorbet-go/checker/internal/loc"
)

// Checker is whatever runs the fixed names/symbols/CFG/infer pipeline over
// one file's worth of methods and pushes diagnostics onto the error queue.
// cmd/lspd supplies the concrete implementation so this package stays free
// of a dependency on internal/parse, internal/cfg, internal/infer — the
// same boundary spec §1 draws around the parser, drawn here one layer up
// so the LSP concurrency core never has to know about tree.Node.
type Checker interface {
	// CheckFiles runs the fixed pipeline over the given paths, returns a
	// FileSummary per path (for DecideFastPath) and a file-scoped view of
	// whether each path has outstanding errors, and pushes diagnostics
	// onto queue. ctx may be canceled while the run is in progress;
	// implementations must check ctx.Err() between files (slow-path
	// cancellation, spec §4.5.2).
	CheckFiles(ctx context.Context, files []FileUpdate) (summaries map[string]FileSummary, hasErrors map[string]bool, err error)

	// Summarize computes each file's FileSummary (definition hash, method
	// body hashes) cheaply, without running the full CFG/infer pipeline,
	// so the preprocessor can call DecideFastPath before committing to a
	// slow-path typecheck (spec §4.5.4).
	Summarize(files []FileUpdate) map[string]FileSummary
}

// Server is the long-lived language server: it owns the JSON-RPC
// connection, the single-threaded coordinator, and every LSP-core
// collaborator (spec §8's C8/C9 wiring). One Server serves one client
// connection over its lifetime, matching the original's one-process-per-
// client LSPLoop model.
type Server struct {
	log     zerolog.Logger
	cfg     config.Config
	checker Checker

	w      io.Writer
	wmu    sync.Mutex
	hashes *HashCache
	queue  *TaskQueue
	epoch  *EpochManager
	pre    *PreemptionManager
	pool   *WorkerPool
	coord  *Coordinator
	prep   *Preprocessor
	counters *Counters
	errs   *errqueue.Queue
	files  *loc.Table

	slowMu     sync.Mutex
	slowCancel context.CancelFunc

	summaries map[string]FileSummary
}

// NewServer wires every C8/C9 collaborator per spec §4.5; checker drives
// the actual names/CFG/infer pipeline and is supplied by the caller so
// this package never imports internal/cfg or internal/infer directly.
// files and errs are shared with checker so the FileRefs checker enters
// and the diagnostics it pushes line up with what Server looks up and
// drains when publishing.
func NewServer(cfg config.Config, log zerolog.Logger, w io.Writer, checker Checker, files *loc.Table, errs *errqueue.Queue) *Server {
	epoch := NewEpochManager()
	pre := NewPreemptionManager(epoch)
	pool := NewWorkerPool(cfg.NumWorkers)
	queue := NewTaskQueue()
	counters := NewCounters()

	s := &Server{
		log:       log,
		cfg:       cfg,
		checker:   checker,
		w:         w,
		hashes:    NewHashCache(),
		queue:     queue,
		epoch:     epoch,
		pre:       pre,
		pool:      pool,
		prep:      NewPreprocessor(queue, counters),
		counters:  counters,
		errs:      errs,
		files:     files,
		summaries: map[string]FileSummary{},
	}
	s.coord = NewCoordinator(queue, epoch, pre, pool, s)
	return s
}

// Run drives the read loop until reading from r fails (io.EOF returns
// nil); an "exit" message terminates the task queue, but the read loop
// keeps going until then. The coordinator's RunLoop runs on its own
// goroutine (spec §5: "one typechecker thread", kept distinct from the
// goroutine that reads and dispatches incoming messages).
func (s *Server) Run(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	coordErrCh := make(chan error, 1)
	go func() { coordErrCh <- s.coord.RunLoop(ctx) }()

	reader := NewReader(r)
	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			s.queue.Terminate()
			<-coordErrCh
			if err == io.EOF {
				return nil
			}
			return err
		}
		var req RequestMessage
		if err := json.Unmarshal(msg, &req); err != nil {
			s.log.Warn().Err(err).Msg("lsp: malformed message, dropped")
			continue
		}
		s.dispatch(ctx, req)
	}
}

func (s *Server) dispatch(ctx context.Context, req RequestMessage) {
	switch req.Method {
	case "initialize":
		s.reply(req.ID, InitializeResult{
			Capabilities: ServerCapabilities{TextDocumentSync: 1},
			ServerInfo:   ServerInfo{Name: "checkerd", Version: serverVersion},
		}, nil)
	case "initialized":
		// no-op acknowledgment
	case "shutdown":
		s.reply(req.ID, nil, nil)
	case "exit":
		s.queue.Terminate()
	case "textDocument/didOpen":
		var p DidOpenParams
		if s.unmarshalParams(req, &p) {
			s.prep.OpenDocument(string(p.TextDocument.URI))
			s.handleEdit(string(p.TextDocument.URI), p.TextDocument.Text)
		}
	case "textDocument/didChange":
		var p DidChangeParams
		if s.unmarshalParams(req, &p) && len(p.ContentChanges) > 0 {
			s.handleEdit(string(p.TextDocument.URI), p.ContentChanges[len(p.ContentChanges)-1].Text)
		}
	case "textDocument/didClose":
		var p DidCloseParams
		if s.unmarshalParams(req, &p) {
			s.prep.CloseDocument(string(p.TextDocument.URI))
		}
	default:
		if req.ID != nil {
			s.reply(req.ID, nil, &ResponseError{Code: -32601, Message: "method not found: " + req.Method})
		}
	}
}

func (s *Server) unmarshalParams(req RequestMessage, out interface{}) bool {
	if err := json.Unmarshal(req.Params, out); err != nil {
		s.log.Warn().Err(err).Str("method", req.Method).Msg("lsp: bad params")
		return false
	}
	return true
}

// IngestEdit merges a full-text change for path into the preprocessor,
// the same path a textDocument/didChange notification takes. Exposed so
// a watchman.Listener (which reports changed paths, not their content)
// can re-read the file from disk and feed it through the same merge/fast-
// path/slow-path machinery as an LSP-originated edit (spec §6).
func (s *Server) IngestEdit(path, content string) {
	s.handleEdit(path, content)
}

// handleEdit merges one file's full-text change into the preprocessor and
// flushes it into a WorkspaceEditTask. It flushes after every single edit,
// so each edit becomes its own task and no two edits are merged.
func (s *Server) handleEdit(uri, text string) {
	if last, ok := s.hashes.Last(uri); ok && last == s.hashes.Hash(uri, text) {
		return // identical resend (e.g. a redundant didChange); nothing to merge
	}
	s.prep.MergeEdit(PendingEdit{Path: uri, Content: text})
	s.prep.Flush(func(merged []FileUpdate) *WorkspaceEditTask {
		epoch := s.prep.AllocateEpoch()

		next := s.checker.Summarize(merged)
		prev := make(map[string]FileSummary, len(merged))
		for _, f := range merged {
			if sum, ok := s.summaries[f.Path]; ok {
				prev[f.Path] = sum
			}
		}

		updates := FileUpdates{
			Epoch:           epoch,
			Files:           merged,
			CanTakeFastPath: DecideFastPath(prev, next),
		}
		return NewWorkspaceEditTask(updates, len(merged),
			func(u FileUpdates) error { return s.runFastPath(u, next) },
			func(u FileUpdates) (bool, error) { return s.runSlowPath(u) })
	})
}

// runFastPath handles updates whose definition hashes are unchanged, so
// only method bodies may differ (spec §4.5.4). It records the new
// summaries through a non-cancelable TryCommitEpoch, which neither reruns
// the pipeline nor advances the last committed epoch.
func (s *Server) runFastPath(u FileUpdates, next map[string]FileSummary) error {
	s.cancelRunningSlowPath()
	s.epoch.TryCommitEpoch(u.Epoch, false, func() {
		for path, sum := range next {
			s.summaries[path] = sum
		}
	})
	return nil
}

// runSlowPath reruns the fixed pipeline over every updated file and
// commits the epoch through a cancelable TryCommitEpoch. The context
// passed to checker.CheckFiles is canceled by cancelRunningSlowPath, which
// the next fast or slow path calls when it starts; the coordinator runs
// tasks one at a time, so that call comes after this run has returned and
// a newer edit does not stop a run that is in progress.
func (s *Server) runSlowPath(u FileUpdates) (committed bool, err error) {
	s.cancelRunningSlowPath()
	s.epoch.StartCommitEpoch(u.Epoch)

	ctx, cancel := context.WithCancel(context.Background())
	s.slowMu.Lock()
	s.slowCancel = cancel
	s.slowMu.Unlock()
	defer func() {
		s.slowMu.Lock()
		if s.slowCancel != nil {
			s.slowCancel = nil
		}
		s.slowMu.Unlock()
		cancel()
	}()

	summaries, hasErrors, err := s.checker.CheckFiles(ctx, u.Files)
	if err != nil {
		return false, err
	}

	ok := s.epoch.TryCommitEpoch(u.Epoch, true, func() {
		for path, sum := range summaries {
			s.summaries[path] = sum
		}
		drained := s.errs.DrainFlushed()
		diags := errqueue.Flush(drained)
		s.publishByFile(u.Epoch, diags, hasErrors)
	})
	return ok, nil
}

// cancelRunningSlowPath cancels the context of a currently-running slow
// path, if any, so it observes cancellation the next time it checks ctx
// between files instead of racing the new edit to completion.
func (s *Server) cancelRunningSlowPath() {
	s.slowMu.Lock()
	cancel := s.slowCancel
	s.slowMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Server) publishByFile(epoch Epoch, diags []errqueue.Diagnostic, hasErrors map[string]bool) {
	byFile := map[loc.FileRef][]errqueue.Diagnostic{}
	for _, d := range diags {
		byFile[d.File] = append(byFile[d.File], d)
	}
	for path, errored := range hasErrors {
		ref, ok := s.files.Lookup(path)
		if !ok {
			continue
		}
		if !s.prep.ShouldPublish(path, epoch, errored) {
			continue
		}
		var wire []Diagnostic
		for _, d := range byFile[ref] {
			sev := 2
			if d.Critical {
				sev = 1
			}
			wire = append(wire, Diagnostic{Severity: sev, Message: d.Text})
		}
		s.notify("textDocument/publishDiagnostics", PublishDiagnosticsParams{
			URI:         DocumentURI(path),
			Diagnostics: wire,
		})
		s.prep.RecordPublished(path, epoch, errored, true)
	}
}

func (s *Server) reply(id json.RawMessage, result interface{}, respErr *ResponseError) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := WriteMessage(s.w, ResponseMessage{JSONRPC: "2.0", ID: id, Result: result, Error: respErr}); err != nil {
		s.log.Error().Err(err).Msg("lsp: write response failed")
	}
}

func (s *Server) notify(method string, params interface{}) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := WriteMessage(s.w, NotificationMessage{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
		s.log.Error().Err(err).Msg("lsp: write notification failed")
	}
}

// CounterValues exposes the preprocessor's metric counters for a periodic
// statsd flush driven by the caller (spec §6, §8 S6).
func (s *Server) CounterValues() map[string]int64 {
	vals := map[string]int64{}
	for _, name := range []string{"lsp.messages.processed/sorbet.mergedEdits"} {
		vals[name] = s.counters.Get(name)
	}
	return vals
}
