package app

import (
	"context"
	"fmt"

	"github.com/vk/featconf/internal/audit"
	"github.com/vk/featconf/internal/features"
	"github.com/vk/featconf/internal/registry"
)

// ViolationCountError reports how many error-severity violations a
// validate run found across all artifacts.
type ViolationCountError struct {
	Count int
}

func (e *ViolationCountError) Error() string {
	return fmt.Sprintf("validation found %d violation(s)", e.Count)
}

// validate audits every artifact and prints each violation. All
// artifacts are processed before the verdict so one run surfaces every
// problem at once; warnings are printed but do not fail the run.
func (a *App) validate(ctx context.Context, reg *registry.Registry) error {
	count := 0
	for _, path := range a.config.ArtifactPaths {
		violations, err := a.auditArtifact(path, reg)
		if err != nil {
			return err
		}

		for _, violation := range violations {
			fmt.Fprintf(a.outW, "%s: %s\n", path, violation)
			if violation.Severity != audit.SeverityWarning {
				count++
			}
		}
		if len(violations) == 0 {
			a.logger.Info("Artifact is consistent.", "path", path)
		}
	}

	if count > 0 {
		return &ViolationCountError{Count: count}
	}
	return nil
}

func (a *App) auditArtifact(path string, reg *registry.Registry) ([]audit.Violation, error) {
	f, err := a.fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	doc, err := features.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return audit.Run(doc, reg), nil
}
