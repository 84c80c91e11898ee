package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/livebind/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// dispatchList collects repeated -dispatch flags.
type dispatchList []app.Dispatch

func (d *dispatchList) String() string {
	parts := make([]string, len(*d))
	for i, x := range *d {
		parts[i] = x.String()
	}
	return strings.Join(parts, ",")
}

func (d *dispatchList) Set(s string) error {
	x, err := app.ParseDispatch(s)
	if err != nil {
		return err
	}
	*d = append(*d, x)
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Values from a -config file apply first; flags set explicitly win.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("livebind", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
livebind - binds HTML documents to reactive context declarations.

Usage:
  livebind [options] DOCUMENT

Arguments:
  DOCUMENT
    Path to an HTML document.

Options:
`)
		flagSet.PrintDefaults()
	}

	var dispatches dispatchList
	configFlag := flagSet.String("config", "", "Path to a TOML config file.")
	baseURLFlag := flagSet.String("base-url", "", "Base URL for context imports. Defaults to the document's file URL.")
	modulesPathFlag := flagSet.String("modules-path", "", "Directory of .hcl declaration libraries.")
	flagSet.Var(&dispatches, "dispatch", "Dispatch an event after binding, as type@element-id. Repeatable.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", app.DefaultWorkerCount, "Number of workers for parsing and fetching context scripts.")
	settleFlag := flagSet.Duration("settle-timeout", app.DefaultSettleTimeout, "How long to wait for the document to settle.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	set := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := app.Config{
		LogFormat:     *logFormatFlag,
		LogLevel:      *logLevelFlag,
		WorkerCount:   *workersFlag,
		SettleTimeout: *settleFlag,
	}
	if *configFlag != "" {
		fc, err := app.LoadFileConfig(*configFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 1, Message: err.Error()}
		}
		if err := fc.Apply(&cfg); err != nil {
			return nil, false, usageError("%s: %v", *configFlag, err)
		}
		slog.Debug("Config file applied.", "path", *configFlag)
	}

	if flagSet.NArg() > 0 {
		cfg.DocumentPath = flagSet.Arg(0)
	}
	if set["base-url"] {
		cfg.BaseURL = *baseURLFlag
	}
	if set["modules-path"] {
		cfg.ModulesPath = *modulesPathFlag
	}
	if set["dispatch"] {
		cfg.Dispatch = dispatches
	}
	if set["healthcheck-port"] {
		cfg.HealthcheckPort = *healthPortFlag
	}
	if set["log-format"] {
		cfg.LogFormat = *logFormatFlag
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevelFlag
	}
	if set["workers"] {
		cfg.WorkerCount = *workersFlag
	}
	if set["settle-timeout"] {
		cfg.SettleTimeout = *settleFlag
	}

	if cfg.DocumentPath == "" {
		slog.Debug("No document provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	if cfg.WorkerCount < 1 {
		return nil, false, usageError("invalid workers: must be at least 1")
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
