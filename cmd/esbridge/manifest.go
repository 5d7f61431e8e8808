package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/esbridge/internal/config"
)

var (
	flagScope       string
	flagManifestOut string
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the type manifest of the last build",
	Long:  "Reads the build ledger and prints which declaration file declares each type, as JSON.",
	Args:  cobra.NoArgs,
	RunE:  runManifest,
}

func runManifest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig, cmd.Flags())
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Ledger); err != nil {
		return fmt.Errorf("no build ledger at %s; run esbridge build first", cfg.Ledger)
	}
	engine, err := newEngine(cfg, newLogger(flagVerbose))
	if err != nil {
		return err
	}
	defer engine.Close()

	m, err := engine.Manifest(flagScope)
	if err != nil {
		return err
	}
	data, err := m.JSON()
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	data = append(data, '\n')
	if flagManifestOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(flagManifestOut, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Manifest: %s\n", flagManifestOut)
	return nil
}
