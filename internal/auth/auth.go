// Package auth implements the OAuth2 authorization code + PKCE flow against
// Google, with a localhost callback server, and manages the cached token.
// The app's client id/secret come from an operator-provided credentials.json
// read via golang.org/x/oauth2/google; the token is cached by tokenfile and
// silently refreshed for the lifetime of a run.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drivev3 "google.golang.org/api/drive/v3"

	"github.com/drivemirror/drivemirror/internal/tokenfile"
)

// ErrNotLoggedIn is returned when no cached token exists. Fatal before
// traversal starts: run `drivemirror login` first.
var ErrNotLoggedIn = errors.New("auth: not logged in (run 'drivemirror login')")

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// LoadSecrets reads the operator-provided app secrets file and builds the
// OAuth2 config with the read-only Drive scope. The mirror never writes
// remotely, so the narrower scope is the safe default.
func LoadSecrets(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: reading app secrets %s: %w", path, err)
	}

	cfg, err := google.ConfigFromJSON(data, drivev3.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("auth: parsing app secrets %s: %w", path, err)
	}

	return cfg, nil
}

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// Login performs the authorization code + PKCE flow:
//  1. Binds a localhost HTTP server on a random port
//  2. Opens the browser to Google's authorization endpoint
//  3. Receives the callback with the authorization code
//  4. Exchanges the code for tokens using PKCE
//  5. Saves the token to disk at tokenPath
//
// openURL is called with the authorization URL; the CLI uses it to launch
// the default browser. If openURL returns an error, the URL is printed to
// stderr so the user can open it manually.
func Login(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath string,
	openURL func(string) error,
	logger *slog.Logger,
) (oauth2.TokenSource, error) {
	logger.Info("starting browser auth flow (authorization code + PKCE)",
		slog.String("token_path", tokenPath),
	)

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, logger)

	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/callback", port)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("auth: generating state token: %w", err)
	}

	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, state, resultCh)
	})

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	logger.Info("received authorization code, exchanging for token")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("auth: token exchange failed: %w", err)
	}

	if saveErr := tokenfile.Save(tokenPath, tok, ""); saveErr != nil {
		return nil, fmt.Errorf("auth: saving token: %w", saveErr)
	}

	logger.Info("login successful",
		slog.String("token_path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return newPersistingSource(cfg.TokenSource(ctx, tok), tok, tokenPath, "", logger), nil
}

// TokenSource loads the cached token and returns a source with silent
// refresh; refreshed tokens are written back to tokenPath so the next run
// starts from the newest refresh token. Returns ErrNotLoggedIn when no
// token file exists.
func TokenSource(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath string,
	logger *slog.Logger,
) (oauth2.TokenSource, error) {
	tok, account, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token",
		slog.String("token_path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	return newPersistingSource(cfg.TokenSource(ctx, tok), tok, tokenPath, account, logger), nil
}

// Account returns the cached account email from the token file, or "".
func Account(tokenPath string) (string, error) {
	_, account, err := tokenfile.Load(tokenPath)
	return account, err
}

// SaveAccount rewrites the token file with the given account email cached
// alongside the current token.
func SaveAccount(tokenPath, account string) error {
	tok, _, err := tokenfile.Load(tokenPath)
	if err != nil {
		return err
	}

	if tok == nil {
		return ErrNotLoggedIn
	}

	return tokenfile.Save(tokenPath, tok, account)
}

// Logout removes the cached token. Returns nil if no token file exists.
func Logout(tokenPath string, logger *slog.Logger) error {
	if err := tokenfile.Remove(tokenPath); err != nil {
		return fmt.Errorf("auth: removing token file: %w", err)
	}

	logger.Info("logged out", slog.String("token_path", tokenPath))

	return nil
}

// persistingSource wraps an oauth2.TokenSource and writes the token file
// whenever the library hands back a refreshed token, so refresh tokens
// rotated by the server are never lost between runs.
type persistingSource struct {
	mu        sync.Mutex
	src       oauth2.TokenSource
	last      string // last persisted access token
	tokenPath string
	account   string
	logger    *slog.Logger
}

func newPersistingSource(src oauth2.TokenSource, tok *oauth2.Token, tokenPath, account string, logger *slog.Logger) *persistingSource {
	return &persistingSource{
		src:       src,
		last:      tok.AccessToken,
		tokenPath: tokenPath,
		account:   account,
		logger:    logger,
	}
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		p.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("auth: obtaining token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken != p.last {
		p.logger.Info("token refreshed, persisting",
			slog.String("token_path", p.tokenPath),
			slog.Time("new_expiry", tok.Expiry),
		)

		if saveErr := tokenfile.Save(p.tokenPath, tok, p.account); saveErr != nil {
			// The refreshed token still works for this run; losing the
			// write means re-auth next run at worst.
			p.logger.Warn("failed to persist refreshed token",
				slog.String("token_path", p.tokenPath),
				slog.String("error", saveErr.Error()),
			)
		} else {
			p.last = tok.AccessToken
		}
	}

	return tok, nil
}

// startCallbackServer binds to 127.0.0.1:0 and starts an HTTP server with
// the given mux. Returns the server and the bound port.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("auth: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("auth: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("auth: callback server error: %w", serveErr)}
		}
	}()

	return srv, port, nil
}

// handleCallback validates the state, extracts the code, and sends the result.
func handleCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	// Validate state to prevent CSRF.
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("auth: OAuth2 state mismatch (possible CSRF)")}

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("auth: authorization failed: %s: %s", errParam, desc)}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("auth: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

// waitForCallback blocks until the callback fires or the context is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("auth: browser auth canceled: %w", ctx.Err())
	}
}

// shutdownCallbackServer gracefully shuts down the callback HTTP server.
func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Best-effort — we're in a defer and the token is already saved.
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// generateState produces a cryptographically random hex string for the
// OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
