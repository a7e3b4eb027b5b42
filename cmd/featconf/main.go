package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/vk/featconf/internal/app"
	"github.com/vk/featconf/internal/cli"
	"github.com/vk/featconf/internal/probe"
	"github.com/vk/featconf/internal/registry"
	"github.com/vk/featconf/internal/resolver"
)

// Exit codes. Usage problems are 2; each fatal resolution failure class
// has its own code so build scripts can react without parsing output.
// validate exits with its violation count, capped below the shell's
// reserved range.
const (
	exitInternal   = 1
	exitUsage      = 2
	exitProbe      = 3
	exitRegistry   = 4
	exitUnresolved = 5
	exitConflict   = 6

	maxViolationExit = 125
)

// main is the entrypoint for the featconf binary.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// run encapsulates the main application logic for easier testing and
// error handling.
func run(outW, errW io.Writer, args []string) error {
	config, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app works against a filesystem rooted at /, so every
	// user-supplied path has to be absolute.
	if err := absolutize(config); err != nil {
		return err
	}

	application := app.NewApp(outW, errW, osfs.New("/"), config)
	return application.Run(context.Background())
}

func absolutize(config *app.Config) error {
	paths := []*string{&config.OutputPath, &config.OutputDir, &config.RegistryDir, &config.CacheDir}
	for i := range config.DescriptorPaths {
		paths = append(paths, &config.DescriptorPaths[i])
	}
	for i := range config.ArtifactPaths {
		paths = append(paths, &config.ArtifactPaths[i])
	}

	for _, path := range paths {
		if *path == "" {
			continue
		}
		absolute, err := filepath.Abs(*path)
		if err != nil {
			return fmt.Errorf("resolving path %q: %w", *path, err)
		}
		*path = absolute
	}
	return nil
}

// exitCode maps an error to the process exit code by component type.
func exitCode(err error) int {
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var violations *app.ViolationCountError
	if errors.As(err, &violations) {
		if violations.Count > maxViolationExit {
			return maxViolationExit
		}
		return violations.Count
	}

	var probeErr *probe.Error
	if errors.As(err, &probeErr) {
		return exitProbe
	}
	var registryErr *registry.Error
	if errors.As(err, &registryErr) {
		return exitRegistry
	}
	var unresolved *resolver.UnresolvedError
	if errors.As(err, &unresolved) {
		return exitUnresolved
	}
	var conflict *resolver.ConflictError
	if errors.As(err, &conflict) {
		return exitConflict
	}

	return exitInternal
}
