package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/vk/featconf/internal/app"
	"github.com/vk/featconf/internal/version"
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

const usageText = `
FeatConf - build-time capability negotiation for the git engine's native layer.

Usage:
  featconf <command> [options] [paths]

Commands:
  resolve    Probe target descriptors and emit their feature artifacts.
  validate   Audit emitted artifacts against the backend catalog.

Run 'featconf <command> --help' for command options.
`

const resolveUsage = `
Usage:
  featconf resolve [options] DESCRIPTOR...

Arguments:
  DESCRIPTOR
    Path to a target descriptor YAML file. Each descriptor yields one
    artifact.

Options:
`

const validateUsage = `
Usage:
  featconf validate [options] ARTIFACT...

Arguments:
  ARTIFACT
    Path to an emitted feature artifact.

Options:
`

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an
// ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	if len(args) == 0 {
		fmt.Fprint(output, usageText)
		return nil, true, nil
	}

	switch args[0] {
	case "-h", "--help", "help":
		fmt.Fprint(output, usageText)
		return nil, true, nil
	case "-v", "--version", "version":
		fmt.Fprintln(output, version.Info())
		return nil, true, nil
	case "resolve":
		return parseResolve(args[1:], output)
	case "validate":
		return parseValidate(args[1:], output)
	}

	return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q, expected 'resolve' or 'validate'", args[0])}
}

func parseResolve(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := pflag.NewFlagSet("featconf resolve", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, resolveUsage)
		fmt.Fprint(output, flagSet.FlagUsages())
	}

	outputPath := flagSet.StringP("output", "o", "git2_features.h", "Artifact path. Single-descriptor mode only.")
	outputDir := flagSet.String("output-dir", "", "Directory receiving one artifact per descriptor, named by descriptor stem.")
	registryDir := flagSet.String("registry", "", "Directory of catalog files. Defaults to the embedded catalog.")
	cacheDir := flagSet.String("cache-dir", "", "Directory for the resolution cache. Empty disables caching.")
	logFormat := addLogFormatFlag(flagSet)
	logLevel := addLogLevelFlag(flagSet)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if err := checkLogFlags(logFormat, logLevel); err != nil {
		return nil, false, err
	}

	// The default artifact name applies only while --output-dir is not
	// steering emission.
	if *outputDir != "" && !flagSet.Changed("output") {
		*outputPath = ""
	}

	config, err := app.NewConfig(app.Config{
		Command:         app.CommandResolve,
		DescriptorPaths: flagSet.Args(),
		OutputPath:      *outputPath,
		OutputDir:       *outputDir,
		RegistryDir:     *registryDir,
		CacheDir:        *cacheDir,
		LogFormat:       *logFormat,
		LogLevel:        *logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.")
	return config, false, nil
}

func parseValidate(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := pflag.NewFlagSet("featconf validate", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, validateUsage)
		fmt.Fprint(output, flagSet.FlagUsages())
	}

	registryDir := flagSet.String("registry", "", "Directory of catalog files. Defaults to the embedded catalog.")
	logFormat := addLogFormatFlag(flagSet)
	logLevel := addLogLevelFlag(flagSet)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if err := checkLogFlags(logFormat, logLevel); err != nil {
		return nil, false, err
	}

	config, err := app.NewConfig(app.Config{
		Command:       app.CommandValidate,
		ArtifactPaths: flagSet.Args(),
		RegistryDir:   *registryDir,
		LogFormat:     *logFormat,
		LogLevel:      *logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}

func addLogFormatFlag(flagSet *pflag.FlagSet) *string {
	return flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
}

func addLogLevelFlag(flagSet *pflag.FlagSet) *string {
	return flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
}

func checkLogFlags(format, level *string) error {
	*format = strings.ToLower(*format)
	if *format != "text" && *format != "json" {
		return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	*level = strings.ToLower(*level)
	switch *level {
	case "debug", "info", "warn", "error":
	default:
		return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return nil
}
