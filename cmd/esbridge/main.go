package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jward/esbridge"
	"github.com/jward/esbridge/internal/config"
)

// version is set at link time.
var version = "dev"

var (
	flagConfig  string
	flagVerbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "esbridge",
	Short:         "Incremental build and typing bridge for ES-dialect projects",
	Long:          "esbridge runs output plugins over a project's compilation units, bundles embedded assets and writes public-API declaration files.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: esbridge.{yaml,json,toml} in the workspace)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	config.RegisterFlags(buildCmd.Flags())
	config.RegisterFlags(bundleCmd.Flags())
	config.RegisterFlags(manifestCmd.Flags())
	manifestCmd.Flags().StringVar(&flagScope, "scope", "", "package scope recorded in the manifest")
	manifestCmd.Flags().StringVar(&flagManifestOut, "out", "", "write the manifest to this file instead of stdout")

	rootCmd.AddCommand(buildCmd, bundleCmd, manifestCmd, versionCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build [entry...]",
	Short: "Build the project",
	Long:  "Runs every plugin over the entries' dependency closure, builds newly referenced assets and writes declaration files. With --watch it keeps rebuilding on change.",
	RunE:  runBuild,
}

var bundleCmd = &cobra.Command{
	Use:   "bundle [entry...]",
	Short: "Bundle the entries and write declarations importing the bundle",
	RunE:  runBundle,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "esbridge", version)
	},
}

func newLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: config.AppName})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	return logger
}

// signalContext is cancelled on interrupt or termination.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig, cmd.Flags())
	if err != nil {
		return err
	}
	entries := append(cfg.Entries, args...)
	logger := newLogger(flagVerbose)

	out := cmd.OutOrStdout()
	engine, err := newEngine(cfg, logger, esbridge.WithReportHandler(func(r *esbridge.Report) {
		r.Print(out)
	}))
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Watch {
		if err := engine.Watch(ctx, entries); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
	report, err := engine.Build(ctx, entries)
	if err != nil {
		return err
	}
	report.Print(out)
	return nil
}

func runBundle(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig, cmd.Flags())
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, newLogger(flagVerbose))
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := engine.Bundle(ctx, append(cfg.Entries, args...))
	if err != nil {
		return err
	}
	report.Print(cmd.OutOrStdout())
	return nil
}
