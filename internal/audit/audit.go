// Package audit checks a parsed artifact against the registry's
// invariants. It is the read side of the contract the resolver and
// encoder uphold on the write side: exactly one variant per mandatory
// subsystem, whole symbol groups, consistent umbrellas, no symbols the
// catalog does not know. The auditor never stops at the first finding;
// it reports everything so one run gives the full picture.
package audit

import (
	"fmt"
	"regexp"

	"github.com/vk/featconf/internal/features"
	"github.com/vk/featconf/internal/registry"
)

// Violation codes, one per detectable inconsistency class.
const (
	CodeMandatoryMissing = "mandatory-missing"
	CodeMultipleVariants = "multiple-variants"
	CodePartialGroup     = "partial-group"
	CodeUmbrellaOrphan   = "umbrella-orphan"
	CodeUmbrellaMissing  = "umbrella-missing"
	CodeUnknownSymbol    = "unknown-symbol"
	CodeDuplicateSymbol  = "duplicate-symbol"
	CodeIdentityFormat   = "identity-format"
	CodeIdentityAbsent   = "identity-absent"
	CodeSymbolType       = "symbol-type"
	CodeGuard            = "guard"
)

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Violation is one audit finding. Line is 0 when the finding concerns
// the artifact as a whole rather than a specific line.
type Violation struct {
	Code      string
	Severity  Severity
	Subsystem string
	Line      int
	Message   string
}

func (v Violation) String() string {
	prefix := ""
	if v.Severity == SeverityWarning {
		prefix = "warning: "
	}
	if v.Line > 0 {
		return fmt.Sprintf("%sline %d: [%s] %s", prefix, v.Line, v.Code, v.Message)
	}
	return fmt.Sprintf("%s[%s] %s", prefix, v.Code, v.Message)
}

var identityFormat = regexp.MustCompile(`^[0-9a-f]{64}$`)

// owner locates a symbol in the registry. A nil variant means the symbol
// is a subsystem's umbrella.
type owner struct {
	subsystem *registry.Subsystem
	variant   *registry.Variant
}

// groupState accumulates what the artifact says about one subsystem.
type groupState struct {
	umbrellaActive bool
	// activeSymbols records which of each variant's symbols are active.
	activeSymbols map[string]map[string]bool
}

// Run audits doc against reg and returns every violation found. The
// result order is deterministic: line-anchored findings in input order,
// then per-subsystem findings in registry order, then artifact-level
// findings.
func Run(doc *features.Document, reg *registry.Registry) []Violation {
	var violations []Violation

	owners := make(map[string]owner)
	for _, s := range reg.Subsystems {
		if s.Umbrella != "" {
			owners[s.Umbrella] = owner{subsystem: s}
		}
		for _, v := range s.Variants {
			for _, symbol := range v.Defines {
				owners[symbol] = owner{subsystem: s, variant: v}
			}
		}
	}

	states := make(map[string]*groupState)
	for _, s := range reg.Subsystems {
		states[s.Name] = &groupState{activeSymbols: make(map[string]map[string]bool)}
	}

	seen := make(map[string]int)
	identitySeen := false
	guardOpens, guardArms, guardCloses := 0, 0, 0

	for _, line := range doc.Lines {
		switch line.Kind {
		case features.KindGuardOpen:
			guardOpens++
			continue
		case features.KindGuardArm:
			guardArms++
			continue
		case features.KindGuardClose:
			guardCloses++
			continue
		case features.KindComment:
			continue
		}

		if prev, dup := seen[line.Symbol]; dup {
			violations = append(violations, Violation{
				Code:    CodeDuplicateSymbol,
				Line:    line.Number,
				Message: fmt.Sprintf("symbol %s already appeared on line %d", line.Symbol, prev),
			})
		} else {
			seen[line.Symbol] = line.Number
		}

		switch line.Symbol {
		case reg.Metadata.IdentitySymbol:
			violations = append(violations, auditIdentity(line, &identitySeen)...)
			continue
		case reg.Metadata.CPUSymbol:
			if line.Kind != features.KindString {
				violations = append(violations, Violation{
					Code:    CodeSymbolType,
					Line:    line.Number,
					Message: fmt.Sprintf("%s must be a string define", line.Symbol),
				})
			}
			continue
		}

		who, known := owners[line.Symbol]
		if !known {
			violations = append(violations, Violation{
				Code:    CodeUnknownSymbol,
				Line:    line.Number,
				Message: fmt.Sprintf("symbol %s is not in the catalog", line.Symbol),
			})
			continue
		}

		if line.Kind == features.KindString {
			violations = append(violations, Violation{
				Code:      CodeSymbolType,
				Subsystem: who.subsystem.Name,
				Line:      line.Number,
				Message:   fmt.Sprintf("%s is a numeric symbol but is defined as a string", line.Symbol),
			})
			continue
		}

		state := states[who.subsystem.Name]
		if who.variant == nil {
			state.umbrellaActive = line.Kind == features.KindDefine
			continue
		}
		if line.Kind == features.KindDefine {
			active := state.activeSymbols[who.variant.Name]
			if active == nil {
				active = make(map[string]bool)
				state.activeSymbols[who.variant.Name] = active
			}
			active[line.Symbol] = true
		}
	}

	for _, s := range reg.Subsystems {
		violations = append(violations, auditSubsystem(s, states[s.Name])...)
	}

	violations = append(violations, auditGuard(doc, reg, guardOpens, guardArms, guardCloses)...)

	if !identitySeen {
		violations = append(violations, Violation{
			Code:     CodeIdentityAbsent,
			Severity: SeverityWarning,
			Message:  "artifact carries no build identity",
		})
	}

	return violations
}

func auditIdentity(line features.Line, identitySeen *bool) []Violation {
	if line.Kind != features.KindString {
		return []Violation{{
			Code:    CodeSymbolType,
			Line:    line.Number,
			Message: fmt.Sprintf("%s must be a string define", line.Symbol),
		}}
	}
	*identitySeen = true
	if !identityFormat.MatchString(line.Value) {
		return []Violation{{
			Code:    CodeIdentityFormat,
			Line:    line.Number,
			Message: fmt.Sprintf("build identity %q is not 64 lowercase hex characters", line.Value),
		}}
	}
	return nil
}

// auditSubsystem judges one subsystem's combined state: how many variants
// show activity, whether any group is torn, and whether the umbrella
// agrees with the variants underneath it.
func auditSubsystem(s *registry.Subsystem, state *groupState) []Violation {
	var violations []Violation

	activity := 0
	for _, v := range s.Variants {
		active := len(state.activeSymbols[v.Name])
		if active == 0 {
			continue
		}
		activity++
		if active < len(v.Defines) {
			violations = append(violations, Violation{
				Code:      CodePartialGroup,
				Subsystem: s.Name,
				Message:   fmt.Sprintf("variant '%s' of subsystem '%s' has %d of %d symbols active", v.Name, s.Name, active, len(v.Defines)),
			})
		}
	}

	if activity > 1 {
		violations = append(violations, Violation{
			Code:      CodeMultipleVariants,
			Subsystem: s.Name,
			Message:   fmt.Sprintf("subsystem '%s' has %d variants active, want at most one", s.Name, activity),
		})
	}
	if activity == 0 && s.Mandatory {
		violations = append(violations, Violation{
			Code:      CodeMandatoryMissing,
			Subsystem: s.Name,
			Message:   fmt.Sprintf("mandatory subsystem '%s' has no active variant", s.Name),
		})
	}

	if s.Umbrella != "" {
		switch {
		case state.umbrellaActive && activity == 0:
			violations = append(violations, Violation{
				Code:      CodeUmbrellaOrphan,
				Subsystem: s.Name,
				Message:   fmt.Sprintf("umbrella %s is active but no variant of '%s' is", s.Umbrella, s.Name),
			})
		case !state.umbrellaActive && activity > 0:
			violations = append(violations, Violation{
				Code:      CodeUmbrellaMissing,
				Subsystem: s.Name,
				Message:   fmt.Sprintf("a variant of '%s' is active but umbrella %s is not", s.Name, s.Umbrella),
			})
		}
	}

	return violations
}

func auditGuard(doc *features.Document, reg *registry.Registry, opens, arms, closes int) []Violation {
	var violations []Violation
	guard := func(message string) {
		violations = append(violations, Violation{Code: CodeGuard, Message: message})
	}

	switch {
	case opens == 0:
		guard("artifact has no include guard")
	case opens > 1:
		guard("artifact opens its include guard more than once")
	}
	switch {
	case arms == 0 && opens > 0:
		guard("include guard is never armed")
	case arms > 1:
		guard("artifact arms its include guard more than once")
	}
	if doc.Guard != "" && doc.GuardDefine != "" && doc.Guard != doc.GuardDefine {
		guard(fmt.Sprintf("guard %s is armed as %s", doc.Guard, doc.GuardDefine))
	}
	if doc.Guard != "" && doc.Guard != reg.HeaderGuard {
		guard(fmt.Sprintf("guard %s does not match the catalog's %s", doc.Guard, reg.HeaderGuard))
	}
	switch {
	case closes == 0:
		guard("artifact is not terminated by #endif")
	case closes > 1:
		guard("artifact has more than one #endif")
	}

	return violations
}
