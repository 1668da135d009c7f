package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/examdesk/gradebook/internal/llm/prompts"
)

func main() {
	// A missing .env file is fine; the environment and flags still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gradebook",
		Short: "Exam result aggregation service",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), gradeCmd(), exportCmd(), rollupCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `gradebook --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// commonFlags registers the flags every command understands.
func commonFlags(f *pflag.FlagSet) {
	f.String("db", "gradebook.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Language of reports and exports (en, fr)")
	f.String("bands", "", `Band scheme as "label:min,..." from highest to lowest (default "excellent:80,pass:50,fail:0")`)
	f.String("bands-file", "", "TOML file with the band scheme (overrides --bands)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

// providerFlags registers the grading provider flags.
func providerFlags(f *pflag.FlagSet) {
	f.String("source", "", "Default grading source (api, llm, synthetic); api when --grading-url is set, synthetic otherwise")
	f.String("grading-url", "", "Base URL of the OCR grading service")
	f.Duration("grading-timeout", 0, "Timeout of a grading service request (default 5m)")
	f.Int("fetch-attempts", 3, "Download attempts per submission file")
	f.String("llm-url", "", "OpenAI-compatible API base URL; enables the llm source")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Bool("fallback-synthetic", false, "Use synthetic results when the grading provider fails")
	f.Uint64("synthetic-seed", 0, "Seed of the synthetic grader (0 = random)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP results server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.Bool("llm-ping", true, "Check the LLM endpoint at startup when --llm-url is set")
	f.Int("recent-limit", 5, "Number of recent evaluations in analytics")
	commonFlags(f)
	providerFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import exams and their submissions from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	commonFlags(cmd.Flags())
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Run a grading pass for one exam and cache its results",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.String("exam-id", "", "Exam to grade (required)")
	f.String("response", "", "Raw grading response file to aggregate instead of calling a provider")
	commonFlags(f)
	providerFlags(f)
	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the cached results of an exam",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("exam-id", "", "Exam to export (required)")
	f.StringP("format", "f", "json", "Output format (json, csv, xlsx)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	commonFlags(f)
	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func rollupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Print the cross-exam analytics as JSON",
		RunE:  runRollup,
	}
	f := cmd.Flags()
	f.Int("recent-limit", 5, "Number of recent evaluations")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	commonFlags(f)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("GRADEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("gradebook")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/gradebook")
	v.AddConfigPath("/etc/gradebook")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openOutput returns stdout for "" or "-", otherwise a created file.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
