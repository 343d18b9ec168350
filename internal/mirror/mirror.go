// Package mirror implements the one-way replication of a remote Drive
// folder tree to local disk. Traversal is depth-first, single-threaded, and
// deterministic within a run; each remote call is wrapped in a bounded
// retry policy, and a node that still fails is logged and skipped so one
// bad item never aborts the whole run.
package mirror

import (
	"context"
	"io"
	"time"

	"github.com/drivemirror/drivemirror/internal/drive"
	"github.com/drivemirror/drivemirror/internal/retry"
)

// RemoteClient is the subset of the Drive client the walker needs.
// Defined at the consumer per Go convention "accept interfaces, return structs".
type RemoteClient interface {
	GetItem(ctx context.Context, itemID string) (*drive.Item, error)
	ListChildren(ctx context.Context, folderID string) ([]drive.Item, error)
	Download(ctx context.Context, itemID string, w io.Writer) (int64, error)
	Export(ctx context.Context, itemID, mimeType string, w io.Writer) (int64, error)
}

// Default walker tuning.
const (
	// DefaultModTimeTolerance absorbs filesystem mtime granularity and
	// small clock skew: a local file counts as fresh unless the remote
	// copy is more than this much newer.
	DefaultModTimeTolerance = time.Second

	// DefaultMaxLocalFailures is how many consecutive local write
	// failures are tolerated before the run aborts as pervasively broken
	// (disk full, destination unwritable).
	DefaultMaxLocalFailures = 5
)

// Config tunes a Walker.
type Config struct {
	// Retry wraps every remote call (list, download, export).
	Retry retry.Policy

	// ModTimeTolerance is the freshness slack for the skip check.
	// Zero means DefaultModTimeTolerance.
	ModTimeTolerance time.Duration

	// MaxLocalFailures aborts the run after this many consecutive local
	// write failures. Zero means DefaultMaxLocalFailures.
	MaxLocalFailures int
}

// Stats counts what a run did. Logged at completion.
type Stats struct {
	Folders     int
	Files       int
	Synced      int
	Skipped     int
	Failed      int
	BytesCopied int64
}

// NodeFailure records a node that could not be mirrored, with enough
// context for manual remediation on re-run.
type NodeFailure struct {
	ID        string
	Name      string
	LocalPath string
	Err       error
}

// Result is the outcome of a run. Failures is non-empty when at least one
// node was skipped after retry exhaustion or a permanent error.
type Result struct {
	Stats    Stats
	Failures []NodeFailure
}
