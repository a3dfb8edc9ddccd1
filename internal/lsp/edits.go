package lsp

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sorbet-go/checker/internal/loc"
)

// FileUpdate is one file's new content as part of a change set.
type FileUpdate struct {
	File    loc.FileRef
	Path    string
	Content string
}

// FileUpdates is an LSPFileUpdates (spec §3): a change set tagged with the
// epoch it will commit as, the per-file new contents, and their hashes.
type FileUpdates struct {
	Epoch Epoch
	Files []FileUpdate

	// Hashes holds each updated file's content hash, keyed by path.
	// Server.handleEdit leaves it empty; content hashes are kept in
	// HashCache instead.
	Hashes map[string]string

	// CanTakeFastPath is decided by the fast/slow comparison of §4.5.4
	// (DecideFastPath over each file's previous and new FileSummary).
	CanTakeFastPath bool

	// CanceledSlowPath records whether this update's own slow-path
	// typecheck (if it required one) was canceled before committing.
	CanceledSlowPath bool
}

// HashCache computes and memoizes per-file content hashes, collapsing
// concurrent requests for the same file's hash into one computation via
// singleflight.Group — grounded in
// _examples/golang-china-golangdoc.translations' translated singleflight
// package doc, since the LSP preprocessor and a background indexing worker
// can both ask for the same just-edited file's hash at once.
type HashCache struct {
	group singleflight.Group

	mu     sync.Mutex
	hashes map[string]string // path -> last computed hash
}

// NewHashCache returns an empty cache.
func NewHashCache() *HashCache { return &HashCache{hashes: map[string]string{}} }

// Hash returns content's hash, computing it at most once per distinct
// (path, content) pair observed concurrently.
func (c *HashCache) Hash(path, content string) string {
	v, _, _ := c.group.Do(path+"\x00"+content, func() (interface{}, error) {
		sum := sha256.Sum256([]byte(content))
		h := hex.EncodeToString(sum[:])
		c.mu.Lock()
		c.hashes[path] = h
		c.mu.Unlock()
		return h, nil
	})
	return v.(string)
}

// Last returns the most recently computed hash for path, if any.
func (c *HashCache) Last(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[path]
	return h, ok
}

// FileSummary is the per-file "definition hash" / "method-body hashes"
// pair the fast/slow decision of spec §4.5.4 compares against the
// previously indexed version. DefHash changes whenever a file introduces
// new constants, methods, sigs, or changes a method's arity/flags;
// MethodBodyHashes is keyed by method name and changes whenever only that
// method's body text changed.
type FileSummary struct {
	DefHash          string
	MethodBodyHashes map[string]string
}

// DecideFastPath implements spec §4.5.4: fast path iff every updated file's
// new summary has the same DefHash as its previous summary (only method
// bodies changed); slow path otherwise, including for any file with no
// previous summary at all (first time it's been seen).
func DecideFastPath(prev, next map[string]FileSummary) bool {
	for path, n := range next {
		p, ok := prev[path]
		if !ok {
			return false
		}
		if p.DefHash != n.DefHash {
			return false
		}
	}
	return true
}

// ChangedMethodBodies returns the method names, per path, whose body hash
// differs between prev and next — the fast path's scope of re-inference.
func ChangedMethodBodies(prev, next map[string]FileSummary) map[string][]string {
	out := map[string][]string{}
	for path, n := range next {
		p := prev[path]
		for method, h := range n.MethodBodyHashes {
			if p.MethodBodyHashes[method] != h {
				out[path] = append(out[path], method)
			}
		}
	}
	return out
}
