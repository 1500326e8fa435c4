package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivesync/internal/config"
	"github.com/tonimelisma/drivesync/internal/driveapi"
	"github.com/tonimelisma/drivesync/internal/engine"
)

// newRootCmd builds the drivesync command tree: setup, auth, and run.
func newRootCmd() *cobra.Command {
	var (
		configDir string
		logLevel  string
	)

	root := &cobra.Command{
		Use:           "drivesync",
		Short:         "Bidirectional sync between a local directory and a hosted-drive folder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultConfigDir(), "directory holding config.toml, creds.toml, session.toml")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")

	root.AddCommand(newSetupCmd(&configDir))
	root.AddCommand(newAuthCmd(&configDir))
	root.AddCommand(newRunCmd(&configDir, &logLevel))

	return root
}

func newSetupCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Write a starter config.toml and creds.toml in the config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(*configDir)
		},
	}
}

func runSetup(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	configPath := config.ConfigPath(dir)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		stub := "local_dir = \"\"\n\n[drive]\ndir = \"\"\n"
		if err := os.WriteFile(configPath, []byte(stub), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", configPath, err)
		}
	}

	credsPath := config.CredsPath(dir)
	if _, err := os.Stat(credsPath); os.IsNotExist(err) {
		stub := "client_id = \"\"\nclient_secret = \"\"\nredirect_uri = \"urn:ietf:wg:oauth:2.0:oob\"\n"
		if err := os.WriteFile(credsPath, []byte(stub), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", credsPath, err)
		}
	}

	fmt.Printf("wrote %s and %s — fill them in, then run `drivesync auth`\n", configPath, credsPath)

	return nil
}

func newAuthCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Exchange an authorization code for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuth(cmd.Context(), *configDir)
		},
	}
}

// runAuth implements the non-interactive half of OAuth2: it prints the
// consent URL and reads back a pasted authorization code. The interactive
// loopback-redirect listener the hosted drive's typical SDKs use is out of
// scope for this daemon.
func runAuth(ctx context.Context, dir string) error {
	creds, err := config.LoadCreds(config.CredsPath(dir))
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	oauthCfg := driveapi.NewOAuthConfig(creds.ClientID, creds.ClientSecret, creds.RedirectURI)

	fmt.Println("Visit this URL, authorize access, then paste the resulting code below:")
	fmt.Println(oauthCfg.AuthCodeURL("drivesync"))
	fmt.Print("Code: ")

	reader := bufio.NewReader(os.Stdin)

	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}

	for len(code) > 0 && (code[len(code)-1] == '\n' || code[len(code)-1] == '\r') {
		code = code[:len(code)-1]
	}

	accessToken, refreshToken, err := driveapi.AuthorizeWithCode(ctx, oauthCfg, code)
	if err != nil {
		return err
	}

	if err := config.SaveSession(config.SessionPath(dir), config.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	fmt.Println("authorized")

	return nil
}

func newRunCmd(configDir, logLevel *string) *cobra.Command {
	var (
		pollInterval     time.Duration
		debounceInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemons until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := parseLogLevel(*logLevel)
			logger := buildLogger(level, os.Stdout)

			sup := engine.NewSupervisor(engine.Options{
				ConfigDir:        *configDir,
				PollInterval:     pollInterval,
				DebounceInterval: debounceInterval,
				Logger:           logger,
			})

			return sup.Run(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&pollInterval, "poll-interval", engine.DefaultPollInterval, "remote tree poll interval")
	cmd.Flags().DurationVar(&debounceInterval, "debounce-interval", engine.DefaultDebounceInterval, "local filesystem debounce window")

	return cmd
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// exitGuidance maps a fatal engine error to operator-facing guidance text.
func exitGuidance(err error) string {
	switch {
	case errors.Is(err, engine.ErrRefreshFailed):
		return "run `drivesync auth` to re-authorize"
	case errors.Is(err, engine.ErrRootNotFound), errors.Is(err, engine.ErrRootAmbiguous):
		return "check drive.dir in config.toml"
	case errors.Is(err, engine.ErrLocalDirMissing):
		return "check local_dir in config.toml"
	case errors.Is(err, engine.ErrAlreadyRunning):
		return "another drivesync instance is already running against this config directory"
	default:
		return ""
	}
}
