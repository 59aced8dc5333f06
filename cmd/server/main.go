package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clinical-intake/internal/config"
	"clinical-intake/internal/intake"
)

var catalogFile string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Clinical history intake service",
	Long: `server runs the clinical history intake API: complaint selection, the
5C question flow, grouped records and narrative generation.

Without a subcommand it behaves like "server serve".`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), config.Load())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "YAML catalog overlay (default $CATALOG_FILE)")
	rootCmd.AddCommand(serveCmd, catalogCmd, compileCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadCatalog returns the built-in catalog, overlaid with path when set.
func loadCatalog(path string) (*intake.Catalog, error) {
	if path == "" {
		return intake.DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	overlay, err := intake.LoadCatalog(f)
	if err != nil {
		return nil, err
	}
	return intake.DefaultCatalog().Merge(overlay), nil
}

func catalogPath(cfg config.Config) string {
	if catalogFile != "" {
		return catalogFile
	}
	return cfg.CatalogFile
}
