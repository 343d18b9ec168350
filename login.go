package main

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/drivemirror/drivemirror/internal/auth"
	"github.com/drivemirror/drivemirror/internal/drive"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize access to your Google Drive",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached credentials",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated account",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	oauthCfg, err := auth.LoadSecrets(resolvedCfg.CredentialsPath)
	if err != nil {
		return err
	}

	src, err := auth.Login(ctx, oauthCfg, resolvedCfg.TokenPath, openBrowser, logger)
	if err != nil {
		return err
	}

	// Cache the account email so whoami works offline. Best-effort: the
	// login itself already succeeded.
	client, err := newDriveClient(ctx, src)
	if err == nil {
		if email, aboutErr := client.About(ctx); aboutErr == nil {
			if saveErr := auth.SaveAccount(resolvedCfg.TokenPath, email); saveErr != nil {
				logger.Warn("could not cache account email", "error", saveErr.Error())
			}

			statusf("Logged in as %s\n", email)

			return nil
		}
	}

	statusf("Logged in\n")

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := auth.Logout(resolvedCfg.TokenPath, logger); err != nil {
		return err
	}

	statusf("Logged out\n")

	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	account, err := auth.Account(resolvedCfg.TokenPath)
	if err != nil {
		return err
	}

	if account != "" {
		fmt.Fprintln(cmd.OutOrStdout(), account)
		return nil
	}

	// Older token files have no cached email; ask the API.
	ctx := cmd.Context()
	logger := buildLogger()

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

	email, err := client.About(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), email)

	return nil
}

// newDriveClient builds the Drive API client from an authenticated token source.
func newDriveClient(ctx context.Context, src oauth2.TokenSource) (*drive.Client, error) {
	svc, err := drivev3.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}

	return drive.NewClient(svc, buildLogger()), nil
}

// openBrowser launches the platform's default browser at the given URL.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
