package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drivemirror/drivemirror/internal/auth"
	"github.com/drivemirror/drivemirror/internal/config"
	"github.com/drivemirror/drivemirror/internal/drive"
	"github.com/drivemirror/drivemirror/internal/export"
	"github.com/drivemirror/drivemirror/internal/mirror"
	"github.com/drivemirror/drivemirror/internal/retry"
)

// errNodesFailed signals that the run completed but at least one node could
// not be mirrored. main() maps it to a non-zero exit code without the
// generic error banner since the per-node details were already logged.
var errNodesFailed = errors.New("some nodes failed")

var (
	flagRootFolder string
	flagDest       string
)

func newMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror [destination]",
		Short: "Mirror the remote folder tree to local disk",
		Long: `Mirror a Google Drive folder tree to a local directory. Native Google
documents are exported to office formats (docx, xlsx, pptx, svg); everything
else is downloaded raw. Files whose local copy is at least as new as the
remote one are skipped, so re-running only fetches what changed. Local files
are never deleted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMirror,
	}

	cmd.Flags().StringVar(&flagRootFolder, "root", "", "remote folder ID to mirror (default: account root)")
	cmd.Flags().StringVar(&flagDest, "dest", "", "local destination directory")

	return cmd
}

func runMirror(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	// Flags already flowed into resolvedCfg via the override chain; only
	// the positional destination outranks it.
	dest := resolvedCfg.Destination
	if len(args) == 1 {
		dest = args[0]
	}

	rootID := resolvedCfg.RootFolderID

	oauthCfg, err := auth.LoadSecrets(resolvedCfg.CredentialsPath)
	if err != nil {
		return err
	}

	src, err := auth.TokenSource(ctx, oauthCfg, resolvedCfg.TokenPath, logger)
	if err != nil {
		return err
	}

	client, err := newDriveClient(ctx, src)
	if err != nil {
		return err
	}

	if rootID == "" {
		rootID, err = client.RootID(ctx)
		if err != nil {
			return fmt.Errorf("resolving account root: %w", err)
		}
	}

	walker := mirror.NewWalker(client, export.DefaultTable(), walkerConfig(resolvedCfg), logger)

	res, err := walker.Run(ctx, rootID, dest)
	if err != nil {
		return err
	}

	printSummary(res)

	if len(res.Failures) > 0 {
		return fmt.Errorf("%w: %d of %d nodes", errNodesFailed, len(res.Failures), res.Stats.Folders+res.Stats.Files)
	}

	return nil
}

// walkerConfig translates the resolved configuration into walker tuning.
// Retryability is classified by the drive package because only it knows
// which API failures are transient.
func walkerConfig(cfg *config.Config) mirror.Config {
	return mirror.Config{
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Value(),
			MaxDelay:    cfg.Retry.MaxDelay.Value(),
			Retryable:   drive.IsRetryable,
		},
		ModTimeTolerance: cfg.Mirror.ModTimeTolerance.Value(),
		MaxLocalFailures: cfg.Mirror.MaxLocalFailures,
	}
}

// printSummary writes the human-readable run summary to stderr.
func printSummary(res *mirror.Result) {
	statusf("Mirrored %d folders, %d files: %d synced (%s), %d skipped, %d failed\n",
		res.Stats.Folders,
		res.Stats.Files,
		res.Stats.Synced,
		formatSize(res.Stats.BytesCopied),
		res.Stats.Skipped,
		res.Stats.Failed,
	)

	for _, f := range res.Failures {
		statusf("  failed: %s (%s): %v\n", f.LocalPath, f.ID, f.Err)
	}
}
