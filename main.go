package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type serveOptions struct {
	configFile string
	port       int
}

func newRootCmd() *cobra.Command {
	var opts serveOptions

	root := &cobra.Command{
		Use:   "form-backend",
		Short: "HTTP API for authentication and form submissions",
		Long: `form-backend serves the /api/auth and /api/form route groups and the
/uploads directory, with CORS, signed session cookies and MongoDB storage.

Configuration comes from a .env file, an optional YAML file and the
environment (PORT, CORS_ORIGIN, SESSION_SECRET, NODE_ENV, MONGODB_URI, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML configuration file")
	root.PersistentFlags().IntVar(&opts.port, "port", 0, "listening port, overrides PORT")

	root.AddCommand(serveCmd(&opts), versionCmd())
	return root
}

func serveCmd(opts *serveOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*opts)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "form-backend %s (%s) %s\n", version, commit, runtime.Version())
		},
	}
}
