// Package facts models capability facts: boolean observations about a
// target platform and toolchain that drive backend variant selection.
//
// Fact names are dotted, family-prefixed identifiers (`os.linux`,
// `lib.zlib`, `sys.futimens`). The set of legal names is closed: the
// domain declared in this package is the single vocabulary shared by
// target descriptors, the capability probe, and registry predicates, so
// a typo in any of them is an error instead of a silently-false fact.
//
// A Set is total over the domain: facts not asserted true are false,
// never absent. That keeps "library genuinely not present" representable
// and makes the canonical encoding (and therefore the build identity
// hash) independent of which facts a descriptor happened to mention.
package facts

import (
	"fmt"
	"sort"
	"strings"
)

// Set is an immutable, total mapping from fact name to boolean presence.
// The zero value is not usable; construct via New.
type Set struct {
	values map[string]bool
}

// New builds a total fact Set from the given assertions. The input must
// assert exactly one os selector and exactly one arch selector; derived
// facts (os.posix) are computed and may not be asserted directly. Free
// facts omitted from the input default to false. Unknown names are an
// error.
func New(values map[string]bool) (Set, error) {
	var osName, archName string

	for name, value := range values {
		family, member, err := splitName(name)
		if err != nil {
			return Set{}, err
		}
		switch family {
		case familyOS:
			if member == osPosix {
				return Set{}, fmt.Errorf("fact %q is derived and cannot be asserted directly", name)
			}
			if !value {
				continue
			}
			if osName != "" {
				return Set{}, fmt.Errorf("conflicting os selector facts: os.%s and os.%s", osName, member)
			}
			osName = member
		case familyArch:
			if !value {
				continue
			}
			if archName != "" {
				return Set{}, fmt.Errorf("conflicting arch selector facts: arch.%s and arch.%s", archName, member)
			}
			archName = member
		}
	}

	if osName == "" {
		return Set{}, fmt.Errorf("no os selector fact asserted")
	}
	if archName == "" {
		return Set{}, fmt.Errorf("no arch selector fact asserted")
	}

	total := newTotal(osName, archName)
	for name, value := range values {
		family, _, _ := splitName(name)
		if family == familyOS || family == familyArch {
			continue
		}
		total.values[name] = value
	}
	return total, nil
}

// newTotal builds a Set with every domain fact present, the given os and
// arch selectors raised, derived facts computed, and all free facts false.
func newTotal(osName, archName string) Set {
	values := make(map[string]bool, domainSize())
	for _, member := range osSelectors {
		values[familyOS+"."+member] = member == osName
	}
	values[familyOS+"."+osPosix] = posixSelectors[osName]
	for _, member := range archSelectors {
		values[familyArch+"."+member] = member == archName
	}
	for family, members := range freeFamilies {
		for _, member := range members {
			values[family+"."+member] = false
		}
	}
	return Set{values: values}
}

// Value reports the value of the named fact. Asking for an unknown name
// is a programming error and panics; callers validate names at their
// input boundary.
func (s Set) Value(name string) bool {
	value, ok := s.values[name]
	if !ok {
		panic(fmt.Sprintf("facts: unknown fact %q", name))
	}
	return value
}

// Names returns every fact name in the domain, sorted.
func (s Set) Names() []string {
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// True returns the sorted names of all facts that are present.
func (s Set) True() []string {
	var names []string
	for name, value := range s.values {
		if value {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Canonical returns the canonical text encoding of the Set: one
// `name=true|false` line per domain fact, sorted by name. Equal Sets
// always encode to identical bytes; this is the hashing input for the
// build identity.
func (s Set) Canonical() []byte {
	var b strings.Builder
	for _, name := range s.Names() {
		b.WriteString(name)
		b.WriteByte('=')
		if s.values[name] {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// String renders the present facts, for error messages and logs.
func (s Set) String() string {
	return strings.Join(s.True(), " ")
}

// splitName splits a dotted fact name and validates it against the
// domain. Returns the family, the member name, or an error for names
// outside the vocabulary.
func splitName(name string) (family, member string, err error) {
	family, member, ok := strings.Cut(name, ".")
	if !ok || family == "" || member == "" {
		return "", "", fmt.Errorf("malformed fact name %q: want family.member", name)
	}
	members, ok := allFamilies()[family]
	if !ok {
		return "", "", fmt.Errorf("unknown fact family %q in %q", family, name)
	}
	for _, m := range members {
		if m == member {
			return family, member, nil
		}
	}
	return "", "", fmt.Errorf("unknown fact %q in family %q", name, family)
}

// Known reports whether name is part of the fact domain, including
// derived facts. Registry predicate validation uses this to reject
// references to facts no probe can ever produce.
func Known(name string) bool {
	_, _, err := splitName(name)
	return err == nil
}
