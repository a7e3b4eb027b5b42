// Package target defines the target descriptor: the YAML document that
// names the platform a resolution run configures the engine for.
//
// A descriptor is inert data, typically written by packaging tooling for
// each build flavor (one per OS/architecture pair). Decoding is strict:
// unknown keys, unknown operating systems, and library or feature names
// outside the capability fact vocabulary are load errors, because a
// misspelled library name would otherwise select a degraded backend
// without warning.
package target

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vk/featconf/internal/facts"
)

// Word widths per supported architecture name.
var archWidths = map[string]int{
	"amd64": 64,
	"arm64": 64,
	"386":   32,
	"arm":   32,
}

// Operating system names accepted in descriptors. Values are the os
// selector fact raised for that system.
var osNames = map[string]string{
	"linux":   "os.linux",
	"darwin":  "os.darwin",
	"ios":     "os.ios",
	"freebsd": "os.freebsd",
	"windows": "os.windows",
}

// Descriptor describes one build target.
type Descriptor struct {
	// OS is the target operating system: linux, darwin, ios, freebsd,
	// or windows.
	OS string `yaml:"os"`

	// Arch is the target architecture: amd64, arm64, 386, or arm. It
	// determines the word width recorded in the resolution record.
	Arch string `yaml:"arch"`

	// CPU optionally names the concrete CPU for the build-cpu artifact
	// entry (e.g. "apple-m1"). Free-form.
	CPU string `yaml:"cpu,omitempty"`

	// Libraries lists the optional libraries and platform frameworks
	// present on the target, by capability fact member name (zlib,
	// openssl, securetransport, ...).
	Libraries []string `yaml:"libraries,omitempty"`

	// Features overrides system facility facts (sys.*) by member name.
	// Entries not listed here take per-OS defaults in the probe.
	Features map[string]bool `yaml:"features,omitempty"`

	// Debug lists requested engine debug instrumentation (debug.*
	// facts) by member name.
	Debug []string `yaml:"debug,omitempty"`

	// Toolchain optionally enables header detection through the target
	// C compiler.
	Toolchain *Toolchain `yaml:"toolchain,omitempty"`
}

// Toolchain configures probe-time detection steps.
type Toolchain struct {
	// CC is the compiler command used for header checks.
	CC string `yaml:"cc"`

	// Timeout bounds each individual detection step. Defaults to
	// DefaultCheckTimeout when zero.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Detect lists header checks to run. Each check sets its fact to
	// the check outcome, overriding the descriptor's static value.
	Detect []Detect `yaml:"detect,omitempty"`
}

// Detect is a single header detection step.
type Detect struct {
	// Header is the header file whose presence is tested.
	Header string `yaml:"header"`

	// Fact is the full fact name the outcome is bound to (lib.pcre2,
	// sys.regcomp_l, ...).
	Fact string `yaml:"fact"`
}

// DefaultCheckTimeout bounds a single toolchain detection step when the
// descriptor does not set one. A compiler that sits longer than this is
// treated as a probe failure, not waited on.
const DefaultCheckTimeout = 10 * time.Second

// Duration wraps time.Duration with YAML decoding from strings like
// "10s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("duration %q must be positive", raw)
	}
	*d = Duration(parsed)
	return nil
}

// Load decodes and validates a descriptor. Unknown YAML keys are
// rejected.
func Load(r io.Reader) (*Descriptor, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var descriptor Descriptor
	if err := decoder.Decode(&descriptor); err != nil {
		return nil, fmt.Errorf("decoding target descriptor: %w", err)
	}
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

// Validate checks the descriptor against the closed vocabularies: os and
// arch enumerations, library and feature names from the fact domain, and
// well-formed detection steps.
func (d *Descriptor) Validate() error {
	if _, ok := osNames[d.OS]; !ok {
		return fmt.Errorf("unknown target os %q", d.OS)
	}
	if _, ok := archWidths[d.Arch]; !ok {
		return fmt.Errorf("unknown target arch %q", d.Arch)
	}

	for _, library := range d.Libraries {
		if !facts.Known("lib." + library) {
			return fmt.Errorf("unknown library %q in descriptor", library)
		}
	}
	for feature := range d.Features {
		if !facts.Known("sys." + feature) {
			return fmt.Errorf("unknown feature %q in descriptor", feature)
		}
	}
	for _, option := range d.Debug {
		if !facts.Known("debug." + option) {
			return fmt.Errorf("unknown debug option %q in descriptor", option)
		}
	}

	if d.Toolchain != nil {
		if d.Toolchain.CC == "" {
			return fmt.Errorf("toolchain block requires a cc command")
		}
		for _, check := range d.Toolchain.Detect {
			if check.Header == "" {
				return fmt.Errorf("detect step missing header")
			}
			if !facts.Known(check.Fact) {
				return fmt.Errorf("detect step for %q binds unknown fact %q", check.Header, check.Fact)
			}
		}
	}
	return nil
}

// OSFact returns the os selector fact raised by this descriptor.
func (d *Descriptor) OSFact() string {
	return osNames[d.OS]
}

// WordWidth returns the architecture word width in bits.
func (d *Descriptor) WordWidth() int {
	return archWidths[d.Arch]
}

// ArchFact returns the arch selector fact raised by this descriptor.
func (d *Descriptor) ArchFact() string {
	if d.WordWidth() == 64 {
		return "arch.bits64"
	}
	return "arch.bits32"
}

// CheckTimeout returns the per-step detection budget.
func (t *Toolchain) CheckTimeout() time.Duration {
	if t.Timeout > 0 {
		return time.Duration(t.Timeout)
	}
	return DefaultCheckTimeout
}
