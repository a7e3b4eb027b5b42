package registry

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/featconf/internal/facts"
)

// Registry is the loaded, validated catalog. Subsystems and conflicts
// keep their declaration order; emission and resolution both iterate in
// that order so output never depends on map traversal.
type Registry struct {
	Version     string
	HeaderGuard string
	Subsystems  []*Subsystem
	Conflicts   []*Conflict
	Metadata    Metadata

	// SourceHash is the hex SHA-256 of the catalog text the registry was
	// loaded from. It feeds the build identity so edits to the catalog
	// change the emitted artifact even when the selection outcome does not.
	SourceHash string

	byName map[string]*Subsystem
}

// Subsystem is one engine concern and the variants that can provide it.
type Subsystem struct {
	Name      string
	Section   string
	Umbrella  string
	Mandatory bool
	Variants  []*Variant
}

// Variant is one way of providing a subsystem: a predicate over the fact
// vocabulary and the symbol group it activates when selected.
type Variant struct {
	Name     string
	When     hcl.Expression
	Priority int
	Defines  []string
}

// Conflict declares a directed incompatibility between two selections.
type Conflict struct {
	When    Ref
	Rejects Ref
	Reason  string
}

// Ref names a declared subsystem.variant pair.
type Ref struct {
	Subsystem string
	Variant   string
}

func (r Ref) String() string {
	return r.Subsystem + "." + r.Variant
}

// parseRef splits a "subsystem.variant" endpoint string.
func parseRef(s string) (Ref, error) {
	part := strings.Split(s, ".")
	if len(part) != 2 || part[0] == "" || part[1] == "" {
		return Ref{}, fmt.Errorf("endpoint %q is not of the form subsystem.variant", s)
	}
	return Ref{Subsystem: part[0], Variant: part[1]}, nil
}

// Metadata configures the trailing informational section of the artifact.
type Metadata struct {
	Section        string
	CPUSymbol      string
	IdentitySymbol string
}

// Subsystem returns the named subsystem, or nil.
func (r *Registry) Subsystem(name string) *Subsystem {
	return r.byName[name]
}

// Variant returns the named variant, or nil.
func (s *Subsystem) Variant(name string) *Variant {
	for _, v := range s.Variants {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Applies evaluates the variant's predicate against a total fact set.
// Evaluation cannot fail on a validated registry; an error here means the
// registry and the fact vocabulary have drifted apart.
func (v *Variant) Applies(set facts.Set) (bool, error) {
	evalCtx := &hcl.EvalContext{Variables: set.EvalVariables()}
	val, diags := v.When.Value(evalCtx)
	if diags.HasErrors() {
		return false, fmt.Errorf("predicate evaluation: %w", diags)
	}
	if val.IsNull() || val.Type() != cty.Bool {
		return false, fmt.Errorf("predicate evaluated to %s, want bool", val.Type().FriendlyName())
	}
	return val.True(), nil
}

// ReferencedFacts lists the fact names the variant's predicate reads.
func (v *Variant) ReferencedFacts() []string {
	var names []string
	for _, traversal := range v.When.Variables() {
		if name, err := factName(traversal); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// Error reports every defect found while loading or validating a catalog.
type Error struct {
	Defects []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("registry validation failed:\n- %s", strings.Join(e.Defects, "\n- "))
}
