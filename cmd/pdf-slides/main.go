// Package main provides the pdf-slides CLI entrypoint.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical/pdf-slides/internal/config"
	"github.com/spherical/pdf-slides/internal/observability"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	cfgFile string
	noColor bool
	verbose bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "pdf-slides",
	Short: "Convert PDF documents and scans into editable slide decks",
	Long: `pdf-slides turns each page of a PDF or image into a slide: the page as a
background picture with its text laid over it as editable text boxes.

Modes:
  native      use the document's own text layer, kept invisible
  ocr         recognise text with Tesseract, kept invisible
  image       background only
  overlay     recognised text drawn over cover rectangles
  ai-overlay  recognised text drawn over an AI-cleaned background`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // Ignore error if .env doesn't exist

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logCfg := cfg.Logger()
		if verbose {
			logCfg.Level = "debug"
		}
		logger = observability.NewLogger(logCfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("PDFSLIDES_CONFIG"), "config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newModelCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if msg := exitMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}

// reportedError marks a failure the command already showed to the user.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// exitMessage is what main prints for err, empty when it was already shown.
func exitMessage(err error) string {
	var reported reportedError
	if errors.As(err, &reported) {
		return ""
	}
	return "Error: " + err.Error()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pdf-slides version %s\n", version)
		},
	}
}
