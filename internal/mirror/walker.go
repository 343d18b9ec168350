package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/drivemirror/drivemirror/internal/drive"
	"github.com/drivemirror/drivemirror/internal/export"
)

// dirPerms is the mode for directories created under the destination.
const dirPerms = 0o755

// ErrLocalFailures aborts a run after too many consecutive local write
// failures — the destination is pervasively broken (disk full, unwritable).
var ErrLocalFailures = errors.New("mirror: aborting after consecutive local write failures")

// ErrCycle marks a folder that appeared twice during traversal. The remote
// tree is expected to be acyclic; a cycle is upstream data damage, so the
// affected branch fails instead of looping.
var ErrCycle = errors.New("mirror: folder cycle detected")

// localWriteError tags failures of local filesystem operations so the
// walker can track them separately from remote failures. Local writes are
// never retried.
type localWriteError struct {
	err error
}

func (e *localWriteError) Error() string { return e.err.Error() }
func (e *localWriteError) Unwrap() error { return e.err }

// Walker mirrors a remote folder tree to local disk.
// Single-use: create one per run.
type Walker struct {
	client RemoteClient
	rules  export.Table
	cfg    Config
	logger *slog.Logger

	stats       Stats
	failures    []NodeFailure
	visited     map[string]bool
	localStreak int
}

// NewWalker creates a Walker. Zero Config fields get defaults.
func NewWalker(client RemoteClient, rules export.Table, cfg Config, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ModTimeTolerance == 0 {
		cfg.ModTimeTolerance = DefaultModTimeTolerance
	}

	if cfg.MaxLocalFailures == 0 {
		cfg.MaxLocalFailures = DefaultMaxLocalFailures
	}

	// Local write errors must never consume retry budget, whatever
	// predicate the caller configured.
	if orig := cfg.Retry.Retryable; orig != nil {
		cfg.Retry.Retryable = func(err error) bool {
			var lwe *localWriteError
			if errors.As(err, &lwe) {
				return false
			}

			return orig(err)
		}
	}

	return &Walker{
		client:  client,
		rules:   rules,
		cfg:     cfg,
		logger:  logger,
		visited: make(map[string]bool),
	}
}

// Run mirrors the remote tree rooted at rootID into dest, creating dest if
// needed. The returned Result lists per-node failures; the error is non-nil
// only for run-fatal conditions (root unresolvable, destination unusable,
// context canceled, pervasive local write failures).
func (w *Walker) Run(ctx context.Context, rootID, dest string) (*Result, error) {
	root, err := w.getWithRetry(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("mirror: resolving root folder %s: %w", rootID, err)
	}

	if !root.IsFolder {
		return nil, fmt.Errorf("mirror: root %s (%q) is not a folder", rootID, root.Name)
	}

	if err := os.MkdirAll(dest, dirPerms); err != nil {
		return nil, fmt.Errorf("mirror: creating destination %s: %w", dest, err)
	}

	w.logger.Info("mirror run starting",
		slog.String("root_id", rootID),
		slog.String("root_name", root.Name),
		slog.String("dest", dest),
	)

	err = w.walkFolder(ctx, rootID, dest)

	w.logger.Info("mirror run finished",
		slog.Int("folders", w.stats.Folders),
		slog.Int("files", w.stats.Files),
		slog.Int("synced", w.stats.Synced),
		slog.Int("skipped", w.stats.Skipped),
		slog.Int("failed", w.stats.Failed),
		slog.Int64("bytes_copied", w.stats.BytesCopied),
	)

	return &Result{Stats: w.stats, Failures: w.failures}, err
}

// walkFolder lists one remote folder and materializes its children under
// dir, recursing into subfolders. Returns an error only for run-fatal
// conditions; per-node failures are recorded and traversal continues.
func (w *Walker) walkFolder(ctx context.Context, folderID, dir string) error {
	if w.visited[folderID] {
		w.recordFailure(folderID, "", dir, fmt.Errorf("%w: folder %s revisited", ErrCycle, folderID))
		return nil
	}

	w.visited[folderID] = true
	w.stats.Folders++

	children, err := w.listWithRetry(ctx, folderID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		// Whole branch is unreadable; skip it and continue with siblings.
		w.recordFailure(folderID, "", dir, err)

		return nil
	}

	for _, ln := range assignLocalNames(children, w.rules) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if ln.item.IsFolder {
			if err := w.enterFolder(ctx, ln, dir); err != nil {
				return err
			}

			continue
		}

		if err := w.processFile(ctx, ln, dir); err != nil {
			return err
		}
	}

	return nil
}

// enterFolder creates the local directory for a remote folder and recurses.
func (w *Walker) enterFolder(ctx context.Context, ln localName, dir string) error {
	path := filepath.Join(dir, ln.name)

	// MkdirAll is idempotent — re-running never errors on "already exists".
	if err := os.MkdirAll(path, dirPerms); err != nil {
		return w.handleNodeError(ln, path, &localWriteError{err})
	}

	w.localStreak = 0

	return w.walkFolder(ctx, ln.item.ID, path)
}

// processFile materializes one remote file under dir, unless the local copy
// is already fresh. Download and export failures become per-node failures.
func (w *Walker) processFile(ctx context.Context, ln localName, dir string) error {
	w.stats.Files++

	path := filepath.Join(dir, ln.name)
	remote := ln.item.ModifiedAt

	if info, err := os.Stat(path); err == nil && !w.needsDownload(info.ModTime(), remote) {
		w.logger.Debug("file is fresh, skipping",
			slog.String("path", path),
			slog.Time("local_mtime", info.ModTime()),
			slog.Time("remote_mtime", remote),
		)
		w.stats.Skipped++

		return nil
	}

	w.logger.Info("syncing file",
		slog.String("path", path),
		slog.String("item_id", ln.item.ID),
		slog.String("mime_type", ln.item.MimeType),
		slog.Int64("size", ln.item.Size),
		slog.Bool("exported", ln.exported),
	)

	n, err := w.fetchFile(ctx, ln, dir, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return w.handleNodeError(ln, path, err)
	}

	w.localStreak = 0
	w.stats.Synced++
	w.stats.BytesCopied += n

	return nil
}

// fetchFile downloads or exports a remote file into a temp file in the
// target directory, then renames it into place and stamps the remote
// modification time so the next run's freshness check skips it.
func (w *Walker) fetchFile(ctx context.Context, ln localName, dir, path string) (int64, error) {
	tmp, err := os.CreateTemp(dir, ".drivemirror-*.tmp")
	if err != nil {
		return 0, &localWriteError{fmt.Errorf("creating temp file: %w", err)}
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	var written int64

	op := fmt.Sprintf("fetch %s", ln.item.ID)
	err = w.cfg.Retry.Do(ctx, w.logger, op, func(ctx context.Context) error {
		// Each attempt restarts the stream from scratch.
		if _, seekErr := tmp.Seek(0, 0); seekErr != nil {
			return &localWriteError{fmt.Errorf("rewinding temp file: %w", seekErr)}
		}

		if truncErr := tmp.Truncate(0); truncErr != nil {
			return &localWriteError{fmt.Errorf("truncating temp file: %w", truncErr)}
		}

		var fetchErr error
		if ln.exported {
			written, fetchErr = w.client.Export(ctx, ln.item.ID, ln.rule.MimeType, tmp)
		} else {
			written, fetchErr = w.client.Download(ctx, ln.item.ID, tmp)
		}

		// A failed write to the temp file surfaces from the client's copy
		// loop; tag it so it is never retried and counts toward the
		// consecutive local failure abort.
		if fetchErr != nil && errors.Is(fetchErr, drive.ErrLocalWrite) {
			return &localWriteError{fetchErr}
		}

		return fetchErr
	})
	if err != nil {
		return 0, err
	}

	if err := tmp.Close(); err != nil {
		return 0, &localWriteError{fmt.Errorf("closing temp file: %w", err)}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, &localWriteError{fmt.Errorf("renaming into place: %w", err)}
	}

	success = true

	if err := os.Chtimes(path, ln.item.ModifiedAt, ln.item.ModifiedAt); err != nil {
		return written, &localWriteError{fmt.Errorf("setting modification time: %w", err)}
	}

	return written, nil
}

// getWithRetry wraps GetItem in the retry policy. Used to validate the root
// folder before the walk starts, so a bad root fails fast instead of
// producing an empty mirror.
func (w *Walker) getWithRetry(ctx context.Context, itemID string) (*drive.Item, error) {
	var item *drive.Item

	err := w.cfg.Retry.Do(ctx, w.logger, "get "+itemID, func(ctx context.Context) error {
		got, getErr := w.client.GetItem(ctx, itemID)
		if getErr != nil {
			return getErr
		}

		item = got

		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// listWithRetry wraps ListChildren in the retry policy.
func (w *Walker) listWithRetry(ctx context.Context, folderID string) ([]drive.Item, error) {
	var children []drive.Item

	err := w.cfg.Retry.Do(ctx, w.logger, "list "+folderID, func(ctx context.Context) error {
		items, listErr := w.client.ListChildren(ctx, folderID)
		if listErr != nil {
			return listErr
		}

		children = items

		return nil
	})
	if err != nil {
		return nil, err
	}

	return children, nil
}

// needsDownload is the freshness policy: the local copy is fresh when its
// mtime plus the tolerance is at least the remote modification time. Both
// sides are compared at whole-second precision because Chtimes stamps the
// remote time exactly but some filesystems truncate sub-second parts.
func (w *Walker) needsDownload(localMtime, remoteMtime time.Time) bool {
	local := localMtime.Truncate(time.Second).Add(w.cfg.ModTimeTolerance)
	return local.Before(remoteMtime.Truncate(time.Second))
}

// handleNodeError records a per-node failure and decides whether the run
// can continue. Consecutive local write failures abort the run; everything
// else is skip-and-log.
func (w *Walker) handleNodeError(ln localName, path string, err error) error {
	w.recordFailure(ln.item.ID, ln.item.Name, path, err)

	var lwe *localWriteError
	if !errors.As(err, &lwe) {
		return nil
	}

	w.localStreak++
	if w.localStreak >= w.cfg.MaxLocalFailures {
		return fmt.Errorf("%w: %d in a row, last: %v", ErrLocalFailures, w.localStreak, err)
	}

	return nil
}

// recordFailure logs a failed node with enough context for manual
// remediation and adds it to the run result.
func (w *Walker) recordFailure(id, name, path string, err error) {
	w.stats.Failed++
	w.failures = append(w.failures, NodeFailure{ID: id, Name: name, LocalPath: path, Err: err})

	w.logger.Error("node failed, continuing with siblings",
		slog.String("item_id", id),
		slog.String("name", name),
		slog.String("local_path", path),
		slog.String("error", err.Error()),
	)
}
