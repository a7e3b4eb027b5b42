// Package probe turns a target descriptor into the complete fact set the
// resolver consumes. Most facts are asserted directly by the descriptor;
// the rest come from per-platform defaults and, when a toolchain block is
// present, from running header checks against the target compiler.
package probe

import (
	"context"
	"fmt"

	"github.com/go-git/go-billy/v5"

	"github.com/vk/featconf/internal/ctxlog"
	"github.com/vk/featconf/internal/facts"
	"github.com/vk/featconf/internal/target"
)

// Error is a fatal environment-inspection failure: an unreadable or
// malformed descriptor, or a detection step that could not execute.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// sysDefaults lists the sys facts each platform is assumed to provide.
// A descriptor's features map overrides these in either direction.
var sysDefaults = map[string][]string{
	"linux":   {"futimens", "stat_mtim", "spawn", "getentropy", "qsort_r_gnu", "regcomp"},
	"darwin":  {"futimens", "stat_mtimespec", "spawn", "getentropy", "getloadavg", "qsort_r_bsd", "regcomp", "regcomp_l"},
	"ios":     {"futimens", "stat_mtimespec", "getloadavg", "qsort_r_bsd", "regcomp"},
	"freebsd": {"futimens", "stat_mtim", "spawn", "getentropy", "qsort_r_bsd", "regcomp"},
	"windows": {"qsort_s_msc"},
}

// File reads and validates the descriptor at path, then probes it.
// All failures, including unreadable or malformed descriptor files, are
// reported as *Error.
func File(ctx context.Context, fsys billy.Filesystem, path string, runner CheckRunner) (facts.Set, *target.Descriptor, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return facts.Set{}, nil, &Error{Step: "descriptor", Err: err}
	}
	defer f.Close()

	d, err := target.Load(f)
	if err != nil {
		return facts.Set{}, nil, &Error{Step: "descriptor", Err: err}
	}

	set, err := Run(ctx, d, runner)
	if err != nil {
		return facts.Set{}, nil, err
	}
	return set, d, nil
}

// Run derives the total fact set for a validated descriptor. The selector
// facts come straight from the os and arch fields, library and debug
// entries assert their facts true, and platform defaults fill in the sys
// family before the features map applies its overrides. Detection steps
// run last so a compiler check always wins over a default.
func Run(ctx context.Context, d *target.Descriptor, runner CheckRunner) (facts.Set, error) {
	logger := ctxlog.FromContext(ctx)

	assertions := map[string]bool{
		d.OSFact():   true,
		d.ArchFact(): true,
	}
	for _, library := range d.Libraries {
		assertions["lib."+library] = true
	}
	for _, member := range sysDefaults[d.OS] {
		assertions["sys."+member] = true
	}
	for member, value := range d.Features {
		assertions["sys."+member] = value
	}
	for _, option := range d.Debug {
		assertions["debug."+option] = true
	}

	if d.Toolchain != nil {
		assertions["tool.cc"] = true
		if err := detect(ctx, d.Toolchain, runner, assertions); err != nil {
			return facts.Set{}, err
		}
	}

	set, err := facts.New(assertions)
	if err != nil {
		return facts.Set{}, &Error{Step: "descriptor", Err: err}
	}

	logger.Debug("Probe complete.", "os", d.OS, "arch", d.Arch, "facts", len(set.True()))
	return set, nil
}

// detect runs each header check under its own deadline. A check that
// executes and rejects the header is a clean negative answer; a check
// that cannot execute at all aborts the probe.
func detect(ctx context.Context, tc *target.Toolchain, runner CheckRunner, assertions map[string]bool) error {
	if len(tc.Detect) == 0 {
		return nil
	}
	if runner == nil {
		return &Error{Step: "toolchain", Err: fmt.Errorf("detection requested but no check runner is available")}
	}

	logger := ctxlog.FromContext(ctx)
	for _, check := range tc.Detect {
		checkCtx, cancel := context.WithTimeout(ctx, tc.CheckTimeout())
		present, err := runner.Check(checkCtx, tc.CC, check.Header)
		cancel()
		if err != nil {
			return &Error{Step: fmt.Sprintf("check %q", check.Header), Err: err}
		}
		logger.Debug("Header check finished.", "header", check.Header, "fact", check.Fact, "present", present)
		assertions[check.Fact] = present
	}
	return nil
}
