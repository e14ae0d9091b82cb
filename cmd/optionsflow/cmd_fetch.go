package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"optionsflow/logger"
)

// fetchCmd downloads one remote snapshot to a local file
var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a remote option-chain snapshot",
	Long: `Fetch an http, https or s3 snapshot through the configured fetcher
(rate limited, with retries) and save it locally.

Examples:
  optionsflow fetch https://example.com/spy_eod_202301.txt
  optionsflow fetch s3://bucket/chains/2023-03-01.csv --out data/2023-03-01.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var fetchOut string

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "Destination file (default: base name of the URL)")
}

// fetchDestination is out, or the last path element of rawURL.
func fetchDestination(rawURL, out string) (string, error) {
	if out != "" {
		return out, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("cannot derive a file name from %s; use --out", rawURL)
	}
	return name, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rawURL := args[0]
	dest, err := fetchDestination(rawURL, fetchOut)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := configureLogger(cfg)
	if err != nil {
		return err
	}

	cl, err := newClients(ctx, cfg, []string{rawURL})
	if err != nil {
		return err
	}

	start := time.Now()
	data, err := cl.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	entry := log.WithComponent("fetch").WithFields(logger.Fields{"destination": dest})
	logger.LogPerformanceEntry(entry, "fetch", "download", time.Since(start), logger.Fields{"bytes": len(data)})

	fmt.Fprintf(cmd.OutOrStdout(), "saved %d bytes to %s\n", len(data), dest)
	return nil
}
