package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/vk/featconf/internal/ctxlog"
	"github.com/vk/featconf/internal/facts"
)

// validate checks the whole catalog and reports every defect at once.
// A registry that passes here gives the resolver strong guarantees: each
// predicate is a pure boolean over known facts, each variant is reachable,
// same-priority variants can never both apply, and each symbol identifies
// exactly one variant.
func (r *Registry) validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var defects []string

	owners := make(map[string]string)
	claim := func(symbol, owner string) {
		if prev, taken := owners[symbol]; taken {
			defects = append(defects, fmt.Sprintf("symbol %s is claimed by both %s and %s", symbol, prev, owner))
			return
		}
		owners[symbol] = owner
	}

	for _, s := range r.Subsystems {
		if len(s.Variants) == 0 {
			defects = append(defects, fmt.Sprintf("subsystem '%s': declares no variants", s.Name))
		}
		if s.Umbrella != "" {
			claim(s.Umbrella, fmt.Sprintf("subsystem '%s' (umbrella)", s.Name))
		}

		seen := make(map[string]bool)
		usable := make([]*Variant, 0, len(s.Variants))
		for _, v := range s.Variants {
			if seen[v.Name] {
				defects = append(defects, fmt.Sprintf("subsystem '%s': variant '%s' is declared twice", s.Name, v.Name))
				continue
			}
			seen[v.Name] = true

			if len(v.Defines) == 0 {
				defects = append(defects, fmt.Sprintf("subsystem '%s' variant '%s': defines must not be empty", s.Name, v.Name))
			}
			inVariant := make(map[string]bool)
			for _, symbol := range v.Defines {
				if inVariant[symbol] {
					defects = append(defects, fmt.Sprintf("subsystem '%s' variant '%s': symbol %s listed twice", s.Name, v.Name, symbol))
					continue
				}
				inVariant[symbol] = true
				claim(symbol, fmt.Sprintf("subsystem '%s' variant '%s'", s.Name, v.Name))
			}

			predDefects := predicateDefects(s.Name, v)
			defects = append(defects, predDefects...)
			if len(predDefects) == 0 {
				usable = append(usable, v)
			}
		}

		defects = append(defects, reachabilityDefects(s.Name, usable)...)
		defects = append(defects, disjointnessDefects(s.Name, usable)...)
	}

	if r.Metadata.IdentitySymbol != "" {
		claim(r.Metadata.IdentitySymbol, "metadata (identity_symbol)")
	}
	if r.Metadata.CPUSymbol != "" {
		claim(r.Metadata.CPUSymbol, "metadata (cpu_symbol)")
	}

	defects = append(defects, r.conflictDefects()...)

	if len(defects) > 0 {
		return &Error{Defects: defects}
	}
	logger.Debug("Registry catalog validated.", "subsystems", len(r.Subsystems), "symbols", len(owners))
	return nil
}

// predicateDefects checks a predicate statically: only known facts may be
// referenced, only as family.member attribute access, and no function
// calls. The predicate language is variables, boolean operators,
// comparisons, and parentheses.
func predicateDefects(subsystem string, v *Variant) []string {
	var defects []string
	at := fmt.Sprintf("subsystem '%s' variant '%s'", subsystem, v.Name)

	if syntaxExpr, ok := v.When.(hclsyntax.Expression); ok {
		hclsyntax.VisitAll(syntaxExpr, func(node hclsyntax.Node) hcl.Diagnostics {
			if call, isCall := node.(*hclsyntax.FunctionCallExpr); isCall {
				defects = append(defects, fmt.Sprintf("%s: predicate calls function %q, but predicates may only reference facts", at, call.Name))
			}
			return nil
		})
	}

	for _, traversal := range v.When.Variables() {
		name, err := factName(traversal)
		if err != nil {
			defects = append(defects, fmt.Sprintf("%s: %v", at, err))
			continue
		}
		if !facts.Known(name) {
			defects = append(defects, fmt.Sprintf("%s: predicate references unknown fact %q", at, name))
		}
	}
	return defects
}

// factName reduces a traversal to the family.member fact it references.
func factName(traversal hcl.Traversal) (string, error) {
	if len(traversal) != 2 {
		return "", fmt.Errorf("predicate reference %q is not of the form family.member", traversalString(traversal))
	}
	root, ok := traversal[0].(hcl.TraverseRoot)
	if !ok {
		return "", fmt.Errorf("predicate reference %q is not of the form family.member", traversalString(traversal))
	}
	attr, ok := traversal[1].(hcl.TraverseAttr)
	if !ok {
		return "", fmt.Errorf("predicate reference %q must use attribute access, not indexing", traversalString(traversal))
	}
	return root.Name + "." + attr.Name, nil
}

func traversalString(traversal hcl.Traversal) string {
	var parts []string
	for _, step := range traversal {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			parts = append(parts, s.Name)
		case hcl.TraverseAttr:
			parts = append(parts, s.Name)
		default:
			parts = append(parts, "?")
		}
	}
	return strings.Join(parts, ".")
}

// reachabilityDefects proves each predicate satisfiable by enumerating
// every world-consistent assignment of the facts it references. A variant
// no world can reach is an authoring error, not a harmless dead entry.
func reachabilityDefects(subsystem string, variants []*Variant) []string {
	var defects []string
	for _, v := range variants {
		worlds, err := facts.Worlds(v.ReferencedFacts())
		if err != nil {
			defects = append(defects, fmt.Sprintf("subsystem '%s' variant '%s': %v", subsystem, v.Name, err))
			continue
		}
		if !anyWorld(worlds, v) {
			defects = append(defects, fmt.Sprintf("subsystem '%s' variant '%s': predicate is unsatisfiable", subsystem, v.Name))
		}
	}
	return defects
}

// disjointnessDefects proves that two variants sharing a priority can
// never both apply. Ties between applicable variants would make selection
// order-dependent, so they must be impossible, not merely unlikely.
func disjointnessDefects(subsystem string, variants []*Variant) []string {
	var defects []string
	for i, a := range variants {
		for _, b := range variants[i+1:] {
			if a.Priority != b.Priority {
				continue
			}
			worlds, err := facts.Worlds(append(a.ReferencedFacts(), b.ReferencedFacts()...))
			if err != nil {
				defects = append(defects, fmt.Sprintf("subsystem '%s' variants '%s' and '%s': %v", subsystem, a.Name, b.Name, err))
				continue
			}
			for _, world := range worlds {
				okA, errA := a.Applies(world)
				okB, errB := b.Applies(world)
				if errA != nil || errB != nil {
					defects = append(defects, fmt.Sprintf("subsystem '%s' variants '%s' and '%s': predicate evaluation failed during overlap check", subsystem, a.Name, b.Name))
					break
				}
				if okA && okB {
					defects = append(defects, fmt.Sprintf("subsystem '%s' variants '%s' and '%s': share priority %d but can both apply (e.g. %s)", subsystem, a.Name, b.Name, a.Priority, world))
					break
				}
			}
		}
	}
	return defects
}

func anyWorld(worlds []facts.Set, v *Variant) bool {
	for _, world := range worlds {
		if ok, err := v.Applies(world); err == nil && ok {
			return true
		}
	}
	return false
}

// conflictDefects checks endpoint integrity: both sides must name declared
// variants, span two subsystems, and no directed pair may repeat.
func (r *Registry) conflictDefects() []string {
	var defects []string
	declared := make(map[string]bool)

	for _, c := range r.Conflicts {
		at := fmt.Sprintf("conflict %s rejects %s", c.When, c.Rejects)

		valid := true
		for _, ref := range []Ref{c.When, c.Rejects} {
			s := r.Subsystem(ref.Subsystem)
			if s == nil {
				defects = append(defects, fmt.Sprintf("%s: unknown subsystem '%s'", at, ref.Subsystem))
				valid = false
				continue
			}
			if s.Variant(ref.Variant) == nil {
				defects = append(defects, fmt.Sprintf("%s: subsystem '%s' has no variant '%s'", at, ref.Subsystem, ref.Variant))
				valid = false
			}
		}
		if !valid {
			continue
		}

		if c.When.Subsystem == c.Rejects.Subsystem {
			defects = append(defects, fmt.Sprintf("%s: both endpoints are in subsystem '%s', which excludes itself already", at, c.When.Subsystem))
			continue
		}

		key := c.When.String() + ">" + c.Rejects.String()
		if declared[key] {
			defects = append(defects, fmt.Sprintf("%s: declared twice", at))
			continue
		}
		declared[key] = true
	}
	return defects
}
