// Package resolver turns a fact set and a registry into a resolution
// record. Selection runs in two passes: first every subsystem picks its
// variant independently, then the declared conflicts are verified against
// the combined outcome. A conflict is always an error, never a silent
// override of either choice.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/vk/featconf/internal/ctxlog"
	"github.com/vk/featconf/internal/facts"
	"github.com/vk/featconf/internal/record"
	"github.com/vk/featconf/internal/registry"
	"github.com/vk/featconf/internal/target"
)

// UnresolvedError reports a mandatory subsystem no variant can serve on
// this target. Considered lists the consulted facts with their values so
// the operator can see which capability is missing.
type UnresolvedError struct {
	Subsystem  string
	Considered []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("no variant of mandatory subsystem %q applies to this target (consulted: %v)", e.Subsystem, e.Considered)
}

// ConflictError reports two selections that the catalog declares
// incompatible. Both selections were individually valid; the combination
// is refused rather than second-guessed.
type ConflictError struct {
	When    registry.Ref
	Rejects registry.Ref
	Reason  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("selected %s and %s together: %s", e.When, e.Rejects, e.Reason)
}

// Resolve selects a variant for every subsystem in registry order and
// assembles the record, including the build identity. Output depends only
// on registry order, predicate results, and priorities.
func Resolve(ctx context.Context, reg *registry.Registry, set facts.Set, d *target.Descriptor) (*record.Record, error) {
	logger := ctxlog.FromContext(ctx)

	rec := &record.Record{
		RegistryVersion: reg.Version,
		OS:              d.OS,
		Arch:            d.Arch,
		WordWidth:       d.WordWidth(),
		CPU:             d.CPU,
	}

	active := make(map[string]bool)
	for _, s := range reg.Subsystems {
		chosen, err := selectVariant(s, set)
		if err != nil {
			return nil, err
		}

		selection := record.Selection{Subsystem: s.Name}
		if chosen != nil {
			selection.Variant = chosen.Name
			selection.Umbrella = s.Umbrella
			selection.Symbols = append([]string(nil), chosen.Defines...)
			active[s.Name+"."+chosen.Name] = true
			logger.Debug("Subsystem resolved.", "subsystem", s.Name, "variant", chosen.Name)
		} else {
			logger.Debug("Subsystem disabled.", "subsystem", s.Name)
		}
		rec.Selections = append(rec.Selections, selection)
	}

	for _, c := range reg.Conflicts {
		if active[c.When.String()] && active[c.Rejects.String()] {
			return nil, &ConflictError{When: c.When, Rejects: c.Rejects, Reason: c.Reason}
		}
	}

	rec.Identity = record.Identity(reg.Version, reg.SourceHash, set, d.CPU, d.WordWidth())
	return rec, nil
}

// selectVariant picks the applicable variant with the highest priority,
// nil when an optional subsystem has none. Evaluation failures and
// applicable same-priority ties cannot happen on a validated registry, so
// both are reported as corruption rather than resolved arbitrarily.
func selectVariant(s *registry.Subsystem, set facts.Set) (*registry.Variant, error) {
	var applicable []*registry.Variant
	for _, v := range s.Variants {
		ok, err := v.Applies(set)
		if err != nil {
			return nil, fmt.Errorf("subsystem %q variant %q: %w (registry not validated?)", s.Name, v.Name, err)
		}
		if ok {
			applicable = append(applicable, v)
		}
	}

	if len(applicable) == 0 {
		if s.Mandatory {
			return nil, &UnresolvedError{Subsystem: s.Name, Considered: consultedFacts(s, set)}
		}
		return nil, nil
	}

	chosen := applicable[0]
	tied := false
	for _, v := range applicable[1:] {
		switch {
		case v.Priority > chosen.Priority:
			chosen, tied = v, false
		case v.Priority == chosen.Priority:
			tied = true
		}
	}
	if tied {
		return nil, fmt.Errorf("subsystem %q: applicable variants tie at priority %d (registry not validated?)", s.Name, chosen.Priority)
	}
	return chosen, nil
}

// consultedFacts renders every fact the subsystem's predicates read,
// with the value it had, sorted for stable messages.
func consultedFacts(s *registry.Subsystem, set facts.Set) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range s.Variants {
		for _, name := range v.ReferencedFacts() {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name+"="+strconv.FormatBool(set.Value(name)))
		}
	}
	sort.Strings(out)
	return out
}
