package app

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vk/featconf/internal/audit"
	"github.com/vk/featconf/internal/cache"
	"github.com/vk/featconf/internal/ctxlog"
	"github.com/vk/featconf/internal/features"
	"github.com/vk/featconf/internal/probe"
	"github.com/vk/featconf/internal/record"
	"github.com/vk/featconf/internal/registry"
	"github.com/vk/featconf/internal/resolver"
)

// resolve runs one resolution per descriptor. Targets are independent,
// so they fan out concurrently; the first failure cancels the rest.
func (a *App) resolve(ctx context.Context, reg *registry.Registry) error {
	var store *cache.Store
	if a.config.CacheDir != "" {
		store = cache.New(a.fsys, a.config.CacheDir)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range a.config.DescriptorPaths {
		g.Go(func() error {
			return a.resolveTarget(ctx, reg, store, path)
		})
	}
	return g.Wait()
}

func (a *App) resolveTarget(ctx context.Context, reg *registry.Registry, store *cache.Store, descriptorPath string) error {
	ctx = ctxlog.With(ctx, "descriptor", descriptorPath)
	logger := ctxlog.FromContext(ctx)

	set, descriptor, err := probe.File(ctx, a.fsys, descriptorPath, a.runner)
	if err != nil {
		return err
	}

	identity := record.Identity(reg.Version, reg.SourceHash, set, descriptor.CPU, descriptor.WordWidth())

	var rec *record.Record
	if store != nil {
		if rec = store.Get(ctx, identity); rec != nil {
			logger.Info("Reusing cached resolution.", "identity", identity)
		}
	}
	if rec == nil {
		if rec, err = resolver.Resolve(ctx, reg, set, descriptor); err != nil {
			return err
		}
	}

	// Nothing reaches the sink without passing the same audit validate
	// applies to foreign artifacts.
	payload := features.Marshal(rec, reg)
	if err := selfAudit(payload, reg); err != nil {
		return err
	}

	out := a.artifactPath(descriptorPath)
	if err := features.WriteArtifact(a.fsys, out, payload); err != nil {
		return err
	}
	logger.Info("Artifact written.", "path", out, "identity", rec.Identity)

	if store != nil {
		store.Put(ctx, rec)
	}
	return nil
}

func selfAudit(payload []byte, reg *registry.Registry) error {
	doc, err := features.Parse(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("self-audit of rendered artifact: %w", err)
	}
	for _, violation := range audit.Run(doc, reg) {
		if violation.Severity == audit.SeverityError {
			return fmt.Errorf("self-audit of rendered artifact: %s", violation)
		}
	}
	return nil
}
