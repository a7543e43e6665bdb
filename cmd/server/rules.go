package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prasenjit/go-replay/internal/bundle"
	"github.com/prasenjit/go-replay/internal/classify"
	"github.com/prasenjit/go-replay/internal/logging"
	"github.com/prasenjit/go-replay/internal/models"
	"github.com/prasenjit/go-replay/internal/resolve"
	"github.com/prasenjit/go-replay/internal/storage"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <path>",
	Short: "Classify a path and show the policies that apply to it",
	Long: `Classifies a request path with the stored classification rules and
prints its type, its tags and the effective replay and recording policies
for the given method.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export classification, defaults and policies as a bundle",
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a bundle of classification, defaults and policies",
	Long: `Imports a YAML or JSON bundle produced by export. Policies are upserted
by ID; with --replace all existing policies are removed first. Records that
cannot be decoded or validated are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	classifyMethod string
	exportFormat   string
	exportOutput   string
	importFormat   string
	importReplace  bool
)

func init() {
	classifyCmd.Flags().StringVarP(&classifyMethod, "method", "m", "GET", "Request method used to resolve policies")

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "yaml", "Bundle format (yaml or json)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	importCmd.Flags().StringVarP(&importFormat, "format", "f", "", "Bundle format (default: detected from content)")
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Remove existing policies before importing")
}

// openRules opens the configured store for an offline command. Logs go to
// stderr so command output stays parseable.
func openRules() (storage.Storage, logrus.FieldLogger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(os.Stderr)

	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, logger, nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	store, logger, err := openRules()
	if err != nil {
		return err
	}
	defer store.Close()

	cfg, err := store.GetClassification()
	if err != nil {
		return err
	}
	policies, err := store.GetAllPolicies()
	if err != nil {
		return err
	}
	defaults, err := store.GetDefaults()
	if err != nil {
		return err
	}

	classifier := classify.Compile(cfg)
	resolver := resolve.Compile(policies, defaults)
	ruleErrs := append([]models.ConfigError{}, classifier.Errors()...)
	for _, e := range append(ruleErrs, resolver.Errors()...) {
		logger.WithFields(logrus.Fields{"kind": e.Kind, "rule": e.Rule}).WithError(e.Err).Warn("rule disabled")
	}

	path := args[0]
	method := strings.ToUpper(classifyMethod)
	result := struct {
		Path           string                `json:"path"`
		Method         string                `json:"method"`
		Classification models.Classification `json:"classification"`
		Replay         models.MatchingPolicy `json:"replay"`
		Recording      models.MatchingPolicy `json:"recording"`
	}{
		Path:           path,
		Method:         method,
		Classification: classifier.Classify(path),
		Replay:         resolver.Resolve(path, method, models.ModeReplay),
		Recording:      resolver.Resolve(path, method, models.ModeRecording),
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := bundle.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	store, _, err := openRules()
	if err != nil {
		return err
	}
	defer store.Close()

	b, err := bundle.Export(store)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		defer f.Close()
		out = f
	}

	return bundle.Encode(out, b, format)
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}

	format := bundle.DetectFormat(data)
	if importFormat != "" {
		if format, err = bundle.ParseFormat(importFormat); err != nil {
			return err
		}
	}

	b, skipped, err := bundle.Decode(data, format)
	if err != nil {
		return err
	}

	store, logger, err := openRules()
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := bundle.Import(store, b, importReplace)
	if err != nil {
		return err
	}

	for _, e := range append(skipped, result.Errors...) {
		logger.WithFields(logrus.Fields{"kind": e.Kind, "rule": e.Rule}).WithError(e.Err).Warn("record skipped")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d created, %d updated, %d deleted, %d skipped\n",
		args[0], result.Created, result.Updated, result.Deleted, len(skipped)+len(result.Errors))
	return nil
}
