package cli

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/edge-console/internal/config"
)

const version = "0.1.0"

// globals are the persistent flags. A flag the operator did not set leaves
// the environment value in place.
type globals struct {
	baseURL   string
	diagURL   string
	token     string
	tokenFile string
	dataDir   string
	timeout   time.Duration
}

func NewRoot(logger *slog.Logger) *cobra.Command {
	if logger == nil {
		logger = slog.Default()
	}
	flags := &globals{}
	root := &cobra.Command{
		Use:          "edge-console",
		Short:        "Edge Console is a terminal console for an API gateway admin backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, flags)
		},
	}

	// cmd.Print* defaults to stderr; command output belongs on stdout.
	root.SetOut(os.Stdout)

	persistent := root.PersistentFlags()
	persistent.StringVar(&flags.baseURL, "base-url", "", "admin backend base url (EDGE_CONSOLE_BASE_URL)")
	persistent.StringVar(&flags.diagURL, "diag-url", "", "separate diagnostics url (EDGE_CONSOLE_DIAG_URL)")
	persistent.StringVar(&flags.token, "token", "", "bearer token or a pasted Cookie header (EDGE_CONSOLE_TOKEN)")
	persistent.StringVar(&flags.tokenFile, "token-file", "", "file holding the bearer token, reloaded on change (EDGE_CONSOLE_TOKEN_FILE)")
	persistent.StringVar(&flags.dataDir, "data-dir", "", "directory for the local database and log (EDGE_CONSOLE_DATA_DIR)")
	persistent.DurationVar(&flags.timeout, "timeout", 0, "per-request timeout (EDGE_CONSOLE_REQUEST_TIMEOUT)")

	root.AddCommand(newConsoleCommand(flags))
	root.AddCommand(newRunCommand(logger, flags))
	root.AddCommand(newSnapshotCommand(flags))
	root.AddCommand(newApplyCommand(logger, flags))
	root.AddCommand(newDeleteCommand(logger, flags))
	root.AddCommand(newAuthCommand(flags))
	root.AddCommand(newLogLevelCommand(logger, flags))
	root.AddCommand(newClusterIDCommand(flags))
	root.AddCommand(newHostsCommand(logger, flags))
	root.AddCommand(newOpenAPICommand(flags))
	root.AddCommand(newHistoryCommand(flags))
	root.AddCommand(newVersionCommand())

	return root
}

// config reads the environment and applies the flags set on the command
// line.
func (g *globals) config() config.Config {
	cfg := config.FromEnv()
	if g.baseURL != "" {
		cfg.BaseURL = g.baseURL
	}
	if g.diagURL != "" {
		cfg.DiagURL = g.diagURL
	}
	if g.tokenFile != "" {
		cfg.TokenFile = g.tokenFile
	}
	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
		cfg.DBPath = filepath.Join(g.dataDir, "console.sqlite")
		cfg.LogFile = filepath.Join(g.dataDir, "edge-console.log")
	}
	if g.timeout > 0 {
		cfg.RequestTimeout = g.timeout
	}
	return cfg
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
