package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prasenjit/go-replay/internal/bundle"
	"github.com/prasenjit/go-replay/internal/config"
	"github.com/prasenjit/go-replay/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config, rules bundle and data directories",
	Long: `Writes config.yaml (file storage under ./data), rules.yaml holding the
default classification and global defaults in bundle form, and the
data/policies and data/exchanges directories. Edit rules.yaml and load it
with "go-replay import rules.yaml".

Existing files are kept unless --force is given.`,
	RunE: runInit,
}

var (
	initForce bool
	initPath  string
)

const configHeader = `# go-replay configuration
# Any key can be overridden from the environment with the GOREPLAY_ prefix,
# for example GOREPLAY_SERVER_PORT=9090 or GOREPLAY_STORAGE_TYPE=redis

`

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "Directory to initialize")
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(initPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	out := cmd.OutOrStdout()

	dataDir := filepath.Join(root, "data")
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "policies"), filepath.Join(dataDir, "exchanges")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	fmt.Fprintf(out, "Data directory: %s\n", dataDir)

	cfg := config.Default()
	cfg.Storage.Type = "file"
	cfg.Storage.Path = "./data"
	if err := writeStarter(out, filepath.Join(root, "config.yaml"), func(w io.Writer) error {
		if _, err := io.WriteString(w, configHeader); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return enc.Encode(cfg)
	}); err != nil {
		return err
	}

	// An empty store exports the built-in classification and defaults
	rules, err := bundle.Export(storage.NewMemoryStorage())
	if err != nil {
		return err
	}
	if err := writeStarter(out, filepath.Join(root, "rules.yaml"), func(w io.Writer) error {
		return bundle.Encode(w, rules, bundle.FormatYAML)
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nStart the server with:\n\n  cd %s\n  go-replay serve\n", root)
	return nil
}

// writeStarter creates path with the output of write unless it already
// exists and --force was not given.
func writeStarter(out io.Writer, path string, write func(io.Writer) error) error {
	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Fprintf(out, "Kept existing %s\n", path)
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}
