package app

import "errors"

// Command names accepted by Run.
const (
	CommandResolve  = "resolve"
	CommandValidate = "validate"
)

// Config holds everything an App instance needs for one invocation.
type Config struct {
	Command string

	// resolve inputs. One artifact per descriptor: OutputPath names the
	// artifact for a single descriptor, OutputDir derives one path per
	// descriptor from its file stem.
	DescriptorPaths []string
	OutputPath      string
	OutputDir       string

	// RegistryDir overrides the embedded catalog with a directory of
	// catalog files. Empty selects the embedded catalog.
	RegistryDir string

	// CacheDir enables the resolution cache when non-empty.
	CacheDir string

	// validate inputs.
	ArtifactPaths []string

	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Command {
	case CommandResolve:
		if len(cfg.DescriptorPaths) == 0 {
			return nil, errors.New("resolve requires at least one target descriptor path")
		}
		if cfg.OutputDir == "" && len(cfg.DescriptorPaths) > 1 {
			return nil, errors.New("resolving multiple descriptors requires --output-dir")
		}
		if cfg.OutputDir != "" && cfg.OutputPath != "" {
			return nil, errors.New("--output and --output-dir are mutually exclusive")
		}
		if cfg.OutputDir == "" && cfg.OutputPath == "" {
			return nil, errors.New("resolve requires --output or --output-dir")
		}
	case CommandValidate:
		if len(cfg.ArtifactPaths) == 0 {
			return nil, errors.New("validate requires at least one artifact path")
		}
	default:
		return nil, errors.New("config requires a command")
	}

	return &cfg, nil
}
