package registry

import (
	"github.com/hashicorp/hcl/v2"
)

// The hcl* structs mirror the catalog surface for gohcl decoding. Variant
// predicates stay as bare expressions here; they are evaluated against
// fact variables during validation and resolution, never at decode time.

type hclRoot struct {
	// version and header_guard are file-level attributes. Each may appear
	// in only one file of a multi-file catalog, which translate enforces,
	// so both are optional at the per-file schema level.
	Version     *string `hcl:"version,optional"`
	HeaderGuard *string `hcl:"header_guard,optional"`

	Subsystems []*hclSubsystem `hcl:"subsystem,block"`
	Conflicts  []*hclConflict  `hcl:"conflict,block"`
	Metadata   *hclMetadata    `hcl:"metadata,block"`
}

type hclSubsystem struct {
	Name      string        `hcl:"name,label"`
	Section   string        `hcl:"section"`
	Umbrella  string        `hcl:"umbrella,optional"`
	Mandatory bool          `hcl:"mandatory,optional"`
	Variants  []*hclVariant `hcl:"variant,block"`
}

type hclVariant struct {
	Name     string         `hcl:"name,label"`
	When     hcl.Expression `hcl:"when"`
	Priority int            `hcl:"priority,optional"`
	Defines  []string       `hcl:"defines"`
}

type hclConflict struct {
	When    string `hcl:"when"`
	Rejects string `hcl:"rejects"`
	Reason  string `hcl:"reason"`
}

type hclMetadata struct {
	Section        string `hcl:"section"`
	CPUSymbol      string `hcl:"cpu_symbol,optional"`
	IdentitySymbol string `hcl:"identity_symbol"`
}

// translate folds the per-file decode results into one model. Structural
// problems that gohcl cannot express (an attribute declared twice across
// files, a missing metadata block, a malformed conflict endpoint) become
// defects; everything else is left for validate.
func translate(files map[string]*hclRoot, order []string) (*Registry, []string) {
	var defects []string
	reg := &Registry{byName: make(map[string]*Subsystem)}

	var versionFile, guardFile, metadataFile string
	for _, name := range order {
		root := files[name]

		if root.Version != nil {
			if versionFile != "" {
				defects = append(defects, "catalog attribute 'version' declared in both "+versionFile+" and "+name)
			} else {
				reg.Version = *root.Version
				versionFile = name
			}
		}
		if root.HeaderGuard != nil {
			if guardFile != "" {
				defects = append(defects, "catalog attribute 'header_guard' declared in both "+guardFile+" and "+name)
			} else {
				reg.HeaderGuard = *root.HeaderGuard
				guardFile = name
			}
		}
		if root.Metadata != nil {
			if metadataFile != "" {
				defects = append(defects, "catalog block 'metadata' declared in both "+metadataFile+" and "+name)
			} else {
				reg.Metadata = Metadata{
					Section:        root.Metadata.Section,
					CPUSymbol:      root.Metadata.CPUSymbol,
					IdentitySymbol: root.Metadata.IdentitySymbol,
				}
				metadataFile = name
			}
		}

		for _, sub := range root.Subsystems {
			s := &Subsystem{
				Name:      sub.Name,
				Section:   sub.Section,
				Umbrella:  sub.Umbrella,
				Mandatory: sub.Mandatory,
			}
			for _, variant := range sub.Variants {
				s.Variants = append(s.Variants, &Variant{
					Name:     variant.Name,
					When:     variant.When,
					Priority: variant.Priority,
					Defines:  variant.Defines,
				})
			}
			reg.Subsystems = append(reg.Subsystems, s)
		}

		for _, conflict := range root.Conflicts {
			c := &Conflict{Reason: conflict.Reason}
			var err error
			if c.When, err = parseRef(conflict.When); err != nil {
				defects = append(defects, "conflict in "+name+": "+err.Error())
				continue
			}
			if c.Rejects, err = parseRef(conflict.Rejects); err != nil {
				defects = append(defects, "conflict in "+name+": "+err.Error())
				continue
			}
			reg.Conflicts = append(reg.Conflicts, c)
		}
	}

	if versionFile == "" {
		defects = append(defects, "catalog declares no 'version' attribute")
	}
	if guardFile == "" {
		defects = append(defects, "catalog declares no 'header_guard' attribute")
	}
	if metadataFile == "" {
		defects = append(defects, "catalog declares no 'metadata' block")
	}

	for _, s := range reg.Subsystems {
		if _, dup := reg.byName[s.Name]; dup {
			defects = append(defects, "subsystem '"+s.Name+"' is declared twice")
			continue
		}
		reg.byName[s.Name] = s
	}

	return reg, defects
}
