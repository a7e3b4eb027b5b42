package app

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/vk/featconf/internal/probe"
)

// App encapsulates one invocation's dependencies, configuration, and
// lifecycle.
type App struct {
	outW   io.Writer
	fsys   billy.Filesystem
	logger *slog.Logger
	config *Config
	runner probe.CheckRunner
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger writing to errW.
// Construction never touches the filesystem; all fallible work happens
// in Run.
func NewApp(outW, errW io.Writer, fsys billy.Filesystem, config *Config) *App {
	logger := newLogger(config, errW)
	logger.Debug("Logger configured successfully.")

	return &App{
		outW:   outW,
		fsys:   fsys,
		logger: logger,
		config: config,
		runner: probe.ExecRunner{},
	}
}

// artifactPath names the artifact emitted for a descriptor: OutputPath
// verbatim in single-target mode, otherwise the descriptor's stem under
// OutputDir.
func (a *App) artifactPath(descriptorPath string) string {
	if a.config.OutputDir == "" {
		return a.config.OutputPath
	}
	stem := strings.TrimSuffix(filepath.Base(descriptorPath), filepath.Ext(descriptorPath))
	return a.fsys.Join(a.config.OutputDir, stem+".h")
}
