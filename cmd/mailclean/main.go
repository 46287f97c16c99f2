// Command mailclean cleans the email columns of one CSV or XLSX file.
//
//	mailclean -in contacts.xlsx -out cleaned.xlsx -reports ./reports \
//	    [-columns "Email,Work Email"] [-threshold 0.9] [-keep-roles]
//
// It writes the cleaned workbook, one file per report, and prints a summary
// table. Flags override the environment configuration. Exit status is 1 on
// fatal errors and 130 when interrupted; an interrupted run still writes the
// entries it finished.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/mailclean/internal/config"
	"github.com/JonMunkholm/mailclean/internal/core"
	"github.com/JonMunkholm/mailclean/internal/logging"
	"github.com/JonMunkholm/mailclean/internal/report"
	"github.com/JonMunkholm/mailclean/internal/tabular"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	in           string
	out          string
	reports      string
	reportFormat string
	columns      string
	threshold    float64
	keepRoles    bool
}

func parseFlags(args []string, stderr io.Writer) (options, map[string]bool, error) {
	var o options
	fs := flag.NewFlagSet("mailclean", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.in, "in", "", "input file (.csv or .xlsx)")
	fs.StringVar(&o.out, "out", "", "cleaned output file, same format as the input (default: <in>_cleaned.<ext>)")
	fs.StringVar(&o.reports, "reports", ".", "directory for the report files")
	fs.StringVar(&o.reportFormat, "report-format", "csv", "report format: csv, json or xlsx (one workbook)")
	fs.StringVar(&o.columns, "columns", "", "comma separated email column names (default: detect)")
	fs.Float64Var(&o.threshold, "threshold", 0, "confidence threshold for automatic fixes and removals")
	fs.BoolVar(&o.keepRoles, "keep-roles", false, "keep role accounts such as admin@")

	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	if o.in == "" {
		fs.Usage()
		return o, nil, errors.New("-in is required")
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, set, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, "mailclean:", err)
		return exitUsage
	}

	// A missing .env is normal for the CLI.
	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "mailclean:", err)
		return exitFatal
	}
	applyFlags(cfg, opts, set)

	// Logs go to stderr so stdout carries only the summary.
	logging.SetupWriter(stderr, cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()

	if opts.out == "" {
		opts.out = defaultOutput(opts.in)
	}
	if err := checkFormats(opts); err != nil {
		fmt.Fprintln(stderr, "mailclean:", core.FormatUserError(err))
		return exitFatal
	}

	data, err := os.ReadFile(opts.in)
	if err != nil {
		fmt.Fprintln(stderr, "mailclean:", err)
		return exitFatal
	}

	proc, closeClassifier, err := core.NewProcessorFromConfig(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, "mailclean:", core.FormatUserError(err))
		logger.Error("initialize engine", "error", err)
		return exitFatal
	}
	defer closeClassifier()

	result, err := proc.Run(ctx, core.Input{
		FileName: filepath.Base(opts.in),
		Data:     data,
		Columns:  cfg.Engine.EmailColumns,
	}, func(p core.RunProgress) {
		logger.Debug("progress", "phase", p.Phase, "percent", p.Percent())
	})

	interrupted := errors.Is(err, core.ErrRunCancelled)
	if err != nil && !interrupted {
		fmt.Fprintln(stderr, "mailclean:", core.FormatUserError(err))
		logger.Error("run failed", "file", opts.in, "error", err)
		return exitFatal
	}

	if err := writeOutputs(result, opts); err != nil {
		fmt.Fprintln(stderr, "mailclean:", err)
		return exitFatal
	}
	if err := report.WriteSummary(stdout, result.Counters, result.Columns); err != nil {
		fmt.Fprintln(stderr, "mailclean:", err)
		return exitFatal
	}

	if interrupted {
		fmt.Fprintf(stderr, "mailclean: interrupted, %d entries left unprocessed\n", result.Counters.Unprocessed)
		return exitInterrupted
	}
	return exitOK
}

// applyFlags lets explicitly set flags override the environment.
func applyFlags(cfg *config.Config, o options, set map[string]bool) {
	if set["threshold"] {
		cfg.Engine.ConfidenceThreshold = o.threshold
	}
	if set["keep-roles"] {
		cfg.Engine.ExcludeRoleAccounts = !o.keepRoles
	}
	if set["columns"] {
		var cols []string
		for _, c := range strings.Split(o.columns, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		cfg.Engine.EmailColumns = cols
	}
}

func defaultOutput(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "_cleaned" + ext
}

// checkFormats fails before any work when the output cannot mirror the input.
func checkFormats(o options) error {
	inFormat, err := tabular.FormatOf(o.in)
	if err != nil {
		return err
	}
	outFormat, err := tabular.FormatOf(o.out)
	if err != nil {
		return err
	}
	if inFormat != outFormat {
		return fmt.Errorf("output %s must use the input's format (%s)", o.out, inFormat)
	}
	switch o.reportFormat {
	case "csv", "json", "xlsx":
		return nil
	default:
		return fmt.Errorf("unknown report format %q", o.reportFormat)
	}
}

func writeOutputs(result *core.RunResult, o options) error {
	if err := writeFile(o.out, func(w io.Writer) error {
		return tabular.Write(w, result.Output)
	}); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if err := os.MkdirAll(o.reports, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	if o.reportFormat == "xlsx" {
		return writeFile(filepath.Join(o.reports, "reports.xlsx"), func(w io.Writer) error {
			return report.WriteXLSX(w, result.Reports)
		})
	}

	for _, kind := range report.Kinds {
		path := filepath.Join(o.reports, kind.FileName(o.reportFormat))
		err := writeFile(path, func(w io.Writer) error {
			if o.reportFormat == "json" {
				return report.WriteJSON(w, kind, result.Reports)
			}
			return report.WriteCSV(w, kind, result.Reports)
		})
		if err != nil {
			return fmt.Errorf("write %s report: %w", kind, err)
		}
	}
	return nil
}

// writeFile writes through a temporary file so a failed write never leaves a
// truncated file at path.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mailclean-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
