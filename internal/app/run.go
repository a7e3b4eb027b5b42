package app

import (
	"context"
	"fmt"

	"github.com/vk/featconf/internal/ctxlog"
	"github.com/vk/featconf/internal/registry"
	"github.com/vk/featconf/internal/registry/catalog"
)

// Run executes the configured command. Errors keep their component types
// so the caller can map them to distinct exit codes.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	reg, err := a.loadRegistry(ctx)
	if err != nil {
		return err
	}
	a.logger.Debug("Registry ready.", "version", reg.Version, "subsystems", len(reg.Subsystems))

	switch a.config.Command {
	case CommandResolve:
		return a.resolve(ctx, reg)
	case CommandValidate:
		return a.validate(ctx, reg)
	}
	return fmt.Errorf("unknown command %q", a.config.Command)
}

func (a *App) loadRegistry(ctx context.Context) (*registry.Registry, error) {
	if a.config.RegistryDir != "" {
		return registry.LoadDir(ctx, a.fsys, a.config.RegistryDir)
	}
	return catalog.Default(ctx)
}
