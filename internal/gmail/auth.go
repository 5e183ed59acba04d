package gmail

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tonimelisma/gmail-go/internal/tokenfile"
)

// GmailModifyScope grants read/write access to the mailbox without the
// ability to permanently delete messages or change account settings.
// Changing scopes invalidates saved credentials — re-login is required.
const GmailModifyScope = "https://www.googleapis.com/auth/gmail.modify"

// revokeEndpoint is Google's OAuth2 token revocation endpoint (RFC 7009).
const revokeEndpoint = "https://oauth2.googleapis.com/revoke"

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath is the HTTP path the OAuth2 redirect hits on the local
// server. Google's loopback redirect allows any port on localhost.
const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// Credentials is the OAuth client registration from the Google Cloud
// Console, supplied by the user via `gmail-go config`.
type Credentials struct {
	ClientID     string
	ClientSecret string
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
//  6. Returns a TokenSource for use with Client
//
// openURL is called with the authorization URL; the CLI uses it to launch
// the default browser. If openURL returns an error, the URL is printed to
// stderr so the user can open it manually.
//
// Consent denial and callback timeouts surface as errors; the caller
// bounds the wait by passing a ctx with a deadline.
//
// The caller is responsible for computing tokenPath (via config.TokenPath).
// This decouples gmail/ from config/ — gmail/ has no config import.
func Login(
	ctx context.Context,
	creds Credentials,
	tokenPath string,
	openURL func(string) error,
	logger *slog.Logger,
) (TokenSource, error) {
	cfg := oauthConfig(creds, tokenPath, logger)

	return doLogin(ctx, tokenPath, cfg, openURL, logger)
}

// doLogin implements the authorization code + PKCE flow. Accepts a
// pre-built oauth2.Config so tests can inject a mock endpoint.
func doLogin(
	ctx context.Context,
	tokenPath string,
	cfg *oauth2.Config,
	openURL func(string) error,
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("starting browser auth flow (authorization code + PKCE)",
		slog.String("path", tokenPath),
	)

	// Start the localhost callback server.
	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, logger)

	// Configure the loopback redirect with the actual port. Google treats
	// http://localhost with any port as a valid loopback redirect URI.
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", port)

	// Generate PKCE verifier and random state, build auth URL.
	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("gmail: generating state token: %w", err)
	}

	// Register the callback handler now that we know the state.
	registerCallbackHandler(mux, state, resultCh)

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	// Open the browser and wait for callback.
	launchBrowser(authURL, openURL, logger)

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	// Exchange and save.
	return exchangeAndSave(ctx, cfg, tokenPath, code, verifier, logger)
}

// startCallbackServer binds to 127.0.0.1:0 and starts an HTTP server with the
// given mux. Returns the server, the port, and any error.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("gmail: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("gmail: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("gmail: callback server error: %w", serveErr)}
		}
	}()

	return srv, port, nil
}

// registerCallbackHandler adds the callback route to the mux.
// Must be called before the browser redirects back.
func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	// Validate state to prevent CSRF.
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("gmail: OAuth2 state mismatch (possible CSRF)")}

		return
	}

	// Check for error from the authorization server. Consent denial
	// arrives here as error=access_denied.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("gmail: authorization failed: %s: %s", errParam, desc)}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("gmail: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

// shutdownCallbackServer gracefully shuts down the callback HTTP server.
func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Best-effort shutdown — log but don't propagate since we're in a defer.
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL. If it fails, prints the URL
// to stderr as a fallback so the user can copy-paste it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
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
		return "", fmt.Errorf("gmail: browser auth canceled: %w", ctx.Err())
	}
}

// exchangeAndSave exchanges the auth code for a token and persists it.
func exchangeAndSave(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath, code, verifier string,
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("received authorization code, exchanging for token")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("gmail: token exchange failed: %w", err)
	}

	logger.Info("token exchange successful", slog.Time("expiry", tok.Expiry))

	if saveErr := tokenfile.Save(tokenPath, tok); saveErr != nil {
		return nil, fmt.Errorf("gmail: saving token: %w", saveErr)
	}

	logger.Info("login successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	src := cfg.TokenSource(ctx, tok)

	return &tokenBridge{src: src, logger: logger}, nil
}

// generateState produces a cryptographically random hex string for the OAuth2
// state parameter. Using crypto/rand prevents CSRF attacks.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// TokenSourceFromPath loads a saved token from the given path and returns a
// TokenSource with auto-refresh and auto-persistence via OnTokenChange.
// Returns ErrNotLoggedIn if no token file exists at the path — detected
// before any network I/O.
//
// The returned TokenSource binds ctx to the underlying oauth2 token source.
// ctx must outlive the TokenSource — if ctx is canceled, silent token refresh
// will fail.
func TokenSourceFromPath(
	ctx context.Context,
	creds Credentials,
	tokenPath string,
	logger *slog.Logger,
) (TokenSource, error) {
	cfg := oauthConfig(creds, tokenPath, logger)

	return tokenSourceFromFile(ctx, cfg, tokenPath, logger)
}

// tokenSourceFromFile implements TokenSourceFromPath. Accepts a pre-built
// oauth2.Config so tests can inject a mock token endpoint.
func tokenSourceFromFile(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath string,
	logger *slog.Logger,
) (TokenSource, error) {
	tok, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	src := cfg.TokenSource(ctx, tok)

	return &tokenBridge{src: src, logger: logger}, nil
}

// Logout revokes the stored credential at Google and removes the token
// file. Idempotent — a missing token file is a no-op, not an error.
// Revocation is best-effort: a revoke failure (offline, already revoked)
// is logged and the local file is still deleted.
func Logout(ctx context.Context, tokenPath string, logger *slog.Logger) error {
	return doLogout(ctx, tokenPath, revokeEndpoint, http.DefaultClient, logger)
}

// doLogout implements Logout. Accepts the revoke URL and HTTP client so
// tests can inject a mock revocation endpoint.
func doLogout(
	ctx context.Context,
	tokenPath, revokeURL string,
	httpClient *http.Client,
	logger *slog.Logger,
) error {
	tok, err := tokenfile.Load(tokenPath)
	if err != nil {
		return err
	}

	if tok == nil {
		logger.Info("logout: no token file to remove (already logged out)",
			slog.String("path", tokenPath),
		)

		return nil
	}

	if revokeErr := revokeToken(ctx, httpClient, revokeURL, tok, logger); revokeErr != nil {
		logger.Warn("token revocation failed, deleting local credential anyway",
			slog.String("error", revokeErr.Error()),
		)
	}

	if err := tokenfile.Remove(tokenPath); err != nil {
		return err
	}

	logger.Info("logout: removed token file",
		slog.String("path", tokenPath),
	)

	return nil
}

// revokeToken revokes the credential at Google's revocation endpoint.
// Revoking the refresh token also invalidates derived access tokens.
func revokeToken(
	ctx context.Context,
	httpClient *http.Client,
	revokeURL string,
	tok *oauth2.Token,
	logger *slog.Logger,
) error {
	target := tok.RefreshToken
	if target == "" {
		target = tok.AccessToken
	}

	form := url.Values{"token": {target}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("gmail: building revoke request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail: revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail: revoke endpoint returned HTTP %d", resp.StatusCode)
	}

	logger.Info("credential revoked at authorization server")

	return nil
}

// oauthConfig builds an oauth2.Config for Google with OnTokenChange wired
// to persist refreshed tokens.
func oauthConfig(creds Credentials, tokenPath string, logger *slog.Logger) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       []string{GmailModifyScope},
		Endpoint:     google.Endpoint,
		// Called by ReuseTokenSource after each silent refresh, outside its mutex.
		OnTokenChange: persistOnChange(tokenPath, logger),
	}
}

// persistOnChange returns the OnTokenChange callback that rewrites the
// credential file after each silent refresh.
func persistOnChange(tokenPath string, logger *slog.Logger) func(*oauth2.Token) {
	return func(tok *oauth2.Token) {
		logger.Info("token refreshed by oauth2 library",
			slog.String("path", tokenPath),
			slog.Time("new_expiry", tok.Expiry),
		)

		if err := tokenfile.Save(tokenPath, tok); err != nil {
			logger.Warn("failed to persist refreshed token",
				slog.String("path", tokenPath),
				slog.String("error", err.Error()),
			)

			return
		}

		logger.Info("persisted refreshed token to disk",
			slog.String("path", tokenPath),
		)
	}
}

// tokenBridge adapts oauth2.TokenSource to gmail.TokenSource and
// classifies refresh failures. A refresh rejected with invalid_grant
// means the refresh token was revoked or expired — that is surfaced as
// ErrReauthRequired so commands can tell the user to log in again
// instead of printing a generic network error.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))

		if refreshRejected(err) {
			return "", fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}

		return "", fmt.Errorf("gmail: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}

// refreshRejected reports whether err is the authorization server
// rejecting the grant itself, as opposed to a transient failure.
func refreshRejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}

	switch re.ErrorCode {
	case "invalid_grant", "unauthorized_client":
		return true
	}

	return false
}
