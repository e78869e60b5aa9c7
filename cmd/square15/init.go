package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/defaults"
)

func newInitCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter config into a working directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(stdout, dir)
		},
	}
}

// runInit creates a Square15 working directory with the example config
// and system prompt. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Square15 in %s\n", dir)

	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	files := []struct {
		name    string
		content []byte
	}{
		{"config.yaml", defaults.ConfigYAML},
		{"system-prompt.md", defaults.SystemPromptMD},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		written, err := writeIfMissing(path, f.content)
		if err != nil {
			return err
		}
		if written {
			fmt.Fprintf(w, "  wrote %s\n", path)
		} else {
			fmt.Fprintf(w, "  kept  %s (exists)\n", path)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Set SQUARE15_JWT_SECRET (or edit config.yaml), then run: square15 migrate")
	return nil
}

// writeIfMissing writes content to path unless the file already exists.
func writeIfMissing(path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
