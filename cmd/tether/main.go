package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"sutext.github.io/tether/xlog"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "tether",
		Short: "Keep one piece of server state live on many clients",
		Long: `tether runs both ends of a synchronized counter.

serve hosts the authoritative counter over websocket and gRPC.
watch connects to it, prints every state it receives and reads
inc, dec, set N, reconnect and quit from stdin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides the config file)")

	rootCmd.AddCommand(
		watchCmd(flags),
		serveCmd(flags),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// load reads the config file and applies the global flags on top.
func (f *globalFlags) load() (*config, error) {
	cfg, err := readConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	xlog.SetDefault(cfg.Logger())
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tether %s (%s)\n", version, commit)
		},
	}
}
