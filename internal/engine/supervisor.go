package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/drivesync/internal/config"
	"github.com/tonimelisma/drivesync/internal/driveapi"
	"github.com/tonimelisma/drivesync/internal/versionlog"
)

// Options configures a Supervisor run. Zero values select spec.md's
// documented defaults.
type Options struct {
	ConfigDir        string
	HTTPClient       *http.Client
	PollInterval     time.Duration
	DebounceInterval time.Duration
	Logger           *slog.Logger
}

// Supervisor loads credentials and configuration, constructs the shared
// remote client and version log, and runs the remote and local daemons
// until one of them fails or ctx is canceled.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	sessionMu sync.Mutex
	session   config.Session

	tokenSource *driveapi.SessionTokenSource
	client      *driveapi.Client

	lock *flock.Flock
}

// NewSupervisor constructs a Supervisor. Callers should call Run exactly
// once.
func NewSupervisor(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{opts: opts, logger: logger}
}

// Run loads state, resolves the remote root, and joins the remote and
// local daemons, returning the first error either one produces.
func (s *Supervisor) Run(ctx context.Context) error {
	cfg, err := config.LoadConfig(config.ConfigPath(s.opts.ConfigDir))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if info, err := os.Stat(cfg.LocalDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrLocalDirMissing, cfg.LocalDir)
	}

	creds, err := config.LoadCreds(config.CredsPath(s.opts.ConfigDir))
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	session, err := config.LoadSession(config.SessionPath(s.opts.ConfigDir))
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	s.session = session

	s.lock = flock.New(config.LockPath(s.opts.ConfigDir))

	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring instance lock: %w", err)
	}

	if !locked {
		return ErrAlreadyRunning
	}

	defer s.lock.Unlock() //nolint:errcheck // best-effort release on exit

	oauthCfg := driveapi.NewOAuthConfig(creds.ClientID, creds.ClientSecret, creds.RedirectURI)
	s.tokenSource = driveapi.NewSessionTokenSource(ctx, oauthCfg, session.RefreshToken, s.persistSession)

	if session.RefreshToken != "" {
		// Proactively refresh on startup: a long-sleeping daemon's cached
		// access token has almost certainly expired.
		if _, err := s.tokenSource.Token(); err != nil {
			return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		}
	}

	httpClient := s.opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	s.client = driveapi.NewClient(driveapi.DefaultBaseURL, driveapi.DefaultUploadBaseURL, httpClient, s.tokenSource, s.logger)

	rootID, err := s.resolveRoot(ctx, cfg.Drive.Dir)
	if err != nil {
		return err
	}

	logPath := config.VersionsPath(s.opts.ConfigDir)
	log := versionlog.New(logPath, s.logger)

	logGuard := NewGuard(log)
	clientGuard := NewGuard[RemoteClient](s.client)

	refresher := &tokenRefresher{owner: s}

	remote := NewRemoteDaemon(logGuard, clientGuard, refresher, rootID, cfg.LocalDir, s.opts.PollInterval, s.logger)
	local := NewLocalDaemon(logGuard, clientGuard, refresher, rootID, cfg.LocalDir, s.opts.DebounceInterval, s.logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return remote.Run(groupCtx) })
	group.Go(func() error { return local.Run(groupCtx) })

	return group.Wait()
}

// resolveRoot looks up the remote folder named dirName and returns its id,
// requiring exactly one non-trashed folder match.
func (s *Supervisor) resolveRoot(ctx context.Context, dirName string) (string, error) {
	q := fmt.Sprintf(
		"mimeType = '%s' and name = '%s' and trashed = false",
		driveapi.FolderMimeType,
		driveapi.EscapeQueryLiteral(dirName),
	)

	matches, err := s.client.ListFiles(ctx, q)
	if err != nil {
		return "", fmt.Errorf("resolving remote root %q: %w", dirName, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrRootNotFound, dirName)
	case 1:
		return matches[0].ID, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrRootAmbiguous, dirName)
	}
}

// persistSession is the SessionTokenSource.OnRefresh callback: it updates
// the in-memory session and writes it to session.toml every time a new
// access token is minted.
func (s *Supervisor) persistSession(accessToken, refreshToken string) error {
	s.sessionMu.Lock()
	s.session.AccessToken = accessToken

	if refreshToken != "" {
		s.session.RefreshToken = refreshToken
	}

	session := s.session
	s.sessionMu.Unlock()

	return config.SaveSession(config.SessionPath(s.opts.ConfigDir), session)
}

// currentRefreshToken returns the refresh token in effect, safe for
// concurrent use by both daemons' TokenRefresher calls.
func (s *Supervisor) currentRefreshToken() string {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	return s.session.RefreshToken
}

// tokenRefresher adapts Supervisor into the TokenRefresher interface the
// daemons call after an Unauthorized response.
type tokenRefresher struct {
	owner *Supervisor
}

func (r *tokenRefresher) Refresh(ctx context.Context) error {
	_, err := r.owner.tokenSource.ForceRefresh(r.owner.currentRefreshToken())
	return err
}
