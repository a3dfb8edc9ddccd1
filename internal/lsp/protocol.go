package lsp

import "encoding/json"

// DocumentURI is a file identified the way the LSP client names it
// ("file:///..."), kept distinct from config.RelPath so the two are never
// accidentally interchanged at a call site (spec §6 SUPPLEMENTED FEATURES
// item 5, following original_source/main/lsp/LSPPathType.h's split between
// URI-addressed and project-relative-path-addressed files).
type DocumentURI string

// RequestMessage is the JSON-RPC 2.0 envelope for a client request (has an
// ID the server must echo in its response) or notification (no ID).
type RequestMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ResponseMessage is the JSON-RPC 2.0 envelope for a server reply.
type ResponseMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// NotificationMessage is a JSON-RPC 2.0 message with no ID: either a
// request the client doesn't expect a reply to, or a server push such as
// textDocument/publishDiagnostics.
type NotificationMessage struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// ResponseError is the JSON-RPC 2.0 error object.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TextDocumentItem is the open-document payload of didOpen.
type TextDocumentItem struct {
	URI  DocumentURI `json:"uri"`
	Text string      `json:"text"`
}

// DidOpenParams mirrors textDocument/didOpen's params shape.
type DidOpenParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// VersionedTextDocumentIdentifier identifies a document by URI for
// didChange/didClose; the version field is accepted but not interpreted,
// since this server always takes the full text of each change (spec §6
// doesn't specify incremental sync).
type VersionedTextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// TextDocumentContentChangeEvent is one element of didChange's
// contentChanges array. Only whole-document sync (Text with no Range) is
// supported; a range-qualified change is out of scope the same way
// incremental wire sync is (spec §1 defers parsing, so there's no partial
// re-parse path to feed a range-qualified edit into).
type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// DidChangeParams mirrors textDocument/didChange's params shape.
type DidChangeParams struct {
	TextDocument   VersionedTextDocumentIdentifier   `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidCloseParams mirrors textDocument/didClose's params shape.
type DidCloseParams struct {
	TextDocument VersionedTextDocumentIdentifier `json:"textDocument"`
}

// Diagnostic is the wire shape of one published diagnostic; Range is left
// as a raw object because this server's internal loc.Loc isn't itself
// LSP-range-shaped (spec §4 query responses carry loc.Loc, translated here
// at the wire boundary rather than threading LSP types through the core).
type Diagnostic struct {
	Range    interface{} `json:"range"`
	Severity int         `json:"severity"`
	Message  string      `json:"message"`
}

// PublishDiagnosticsParams is the payload of a
// textDocument/publishDiagnostics notification.
type PublishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// InitializeResult is the minimal server response to `initialize`: just
// enough capability advertisement (full document sync, no completion/hover)
// to let a client proceed to send didOpen/didChange.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

type ServerCapabilities struct {
	TextDocumentSync int `json:"textDocumentSync"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
