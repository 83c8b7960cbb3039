package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpwatch/gateway/internal/config"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset mcpwatch to a clean state",
	Long: `Reset mcpwatch by removing its persistent state: the upstream registry
(registry.json) and the capture store (mcpwatch.db).

On next start, mcpwatch will boot with a clean registry — either re-seeded
from your YAML config's registry.upstreams (if present) or empty — and an
empty capture history.

Examples:
  # Reset with interactive confirmation
  mcpwatch reset

  # Reset without prompting
  mcpwatch reset --force`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigForReset()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	type target struct {
		path string
		desc string
	}
	targets := []target{
		{cfg.Registry.Path, "registry"},
		{cfg.Registry.Path + ".bak", "registry backup"},
		{cfg.Storage.Path, "capture store"},
		{cfg.Storage.Path + "-wal", "capture store WAL"},
		{cfg.Storage.Path + "-shm", "capture store shared memory"},
	}

	var existing []target
	for _, t := range targets {
		if _, err := os.Stat(t.path); err == nil {
			existing = append(existing, t)
		}
	}

	if len(existing) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to reset — no state files found.")
		return nil
	}

	fmt.Fprintln(os.Stderr, "The following will be removed:")
	for _, t := range existing {
		fmt.Fprintf(os.Stderr, "  - %s (%s)\n", t.path, t.desc)
	}

	if !resetForce {
		fmt.Fprint(os.Stderr, "\nProceed? [y/N] ")
		var answer string
		fmt.Scanln(&answer) //nolint:errcheck // interactive prompt, error irrelevant
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	var errs int
	for _, t := range existing {
		if err := os.Remove(t.path); err != nil {
			fmt.Fprintf(os.Stderr, "  ERROR removing %s: %v\n", t.path, err)
			errs++
		} else {
			fmt.Fprintf(os.Stderr, "  Removed %s\n", t.path)
		}
	}

	if errs > 0 {
		return fmt.Errorf("%d file(s) could not be removed", errs)
	}

	fmt.Fprintln(os.Stderr, "\nReset complete. mcpwatch will start fresh on next launch.")
	return nil
}

// loadConfigForReset resolves the registry/storage paths reset acts on,
// applying the same defaults serve would.
func loadConfigForReset() (*config.GatewayConfig, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return &config.GatewayConfig{}, err
	}
	return cfg, nil
}
