// Package cli implements the schedctl command line client. It talks to
// a running schedd over the REST API; nothing here touches the kernel
// directly.
package cli

import (
	"log/slog"
	"os"

	"github.com/me/gosched/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking SCHEDCTL_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("SCHEDCTL_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for schedctl.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "schedctl",
		Short: "schedctl controls a running schedd scheduler",
		Long:  "schedctl inspects and controls processes, threads, and CPUs on a schedd instance.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "schedd server URL (or SCHEDCTL_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newPsCmd(),
		newThreadsCmd(),
		newSpawnCmd(),
		newKillCmd(),
		newNiceCmd(),
		newStatsCmd(),
		newCPUsCmd(),
		newTickCmd(),
	)

	return root
}
