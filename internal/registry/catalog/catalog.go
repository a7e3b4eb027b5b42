// Package catalog carries the built-in backend catalog for the git
// engine's native layer, embedded so the resolver works without any
// external registry files.
package catalog

import (
	"context"

	_ "embed"

	"github.com/vk/featconf/internal/registry"
)

//go:embed git2.hcl
var source []byte

// Default loads and validates the embedded catalog. Each call returns a
// fresh Registry; the result is immutable and safe to share across
// concurrent resolutions.
func Default(ctx context.Context) (*registry.Registry, error) {
	return registry.Load(ctx, []registry.Source{{Name: "git2.hcl", Data: source}})
}
