package facts

import (
	"fmt"
	"sort"
)

// Family prefixes. The os and arch families are selector families: a Set
// raises exactly one member (plus derived facts). The remaining families
// are free booleans.
const (
	familyOS    = "os"
	familyArch  = "arch"
	familyLib   = "lib"
	familySys   = "sys"
	familyTool  = "tool"
	familyDebug = "debug"
)

// osPosix is the derived os-family fact: raised when the selected os is
// any POSIX system.
const osPosix = "posix"

// osSelectors enumerates the supported target operating systems. Exactly
// one is true in any valid Set.
var osSelectors = []string{"linux", "darwin", "ios", "freebsd", "windows"}

// posixSelectors marks which os selectors imply os.posix.
var posixSelectors = map[string]bool{
	"linux":   true,
	"darwin":  true,
	"ios":     true,
	"freebsd": true,
	"windows": false,
}

// archSelectors enumerates word widths. Exactly one is true.
var archSelectors = []string{"bits64", "bits32"}

// freeFamilies enumerates the free boolean facts per family. Member
// lists mirror the optional facilities the consuming engine's build can
// link against or rely on.
var freeFamilies = map[string][]string{
	familyLib: {
		"zlib", "openssl", "openssl_fips", "openssl_dynamic", "mbedtls",
		"securetransport", "schannel", "winhttp", "commoncrypto",
		"pthread", "iconv", "pcre", "pcre2", "libssh2", "llhttp",
		"httpparser", "gssframework", "gssapi", "sspi",
	},
	familySys: {
		"futimens", "stat_mtim", "stat_mtimespec", "stat_mtime_nsec",
		"spawn", "getentropy", "getloadavg",
		"qsort_r_bsd", "qsort_r_gnu", "qsort_s_c11", "qsort_s_msc",
		"regcomp", "regcomp_l",
	},
	familyTool: {"cc"},
	familyDebug: {
		"pool", "strict_alloc", "strict_open", "leakcheck_win32",
	},
}

// allFamilies returns every family with its full member list, derived
// facts included.
func allFamilies() map[string][]string {
	families := make(map[string][]string, len(freeFamilies)+2)
	families[familyOS] = append(append([]string{}, osSelectors...), osPosix)
	families[familyArch] = archSelectors
	for family, members := range freeFamilies {
		families[family] = members
	}
	return families
}

// domainSize returns the total number of facts in the domain.
func domainSize() int {
	n := len(osSelectors) + 1 + len(archSelectors)
	for _, members := range freeFamilies {
		n += len(members)
	}
	return n
}

// maxWorldFreeFacts bounds the number of distinct free facts a world
// enumeration may range over. Predicates in practice reference two or
// three facts; a registry whose predicates force an enumeration wider
// than this is an authoring defect, not a working configuration.
const maxWorldFreeFacts = 12

// Worlds enumerates every world-consistent Set restricted to the given
// referenced fact names: all os selector values crossed with all arch
// selector values crossed with every true/false combination of the
// referenced free facts. Selector and derived facts may appear in
// referenced without widening the enumeration. Registry validation uses
// this to prove predicate satisfiability and pairwise disjointness.
func Worlds(referenced []string) ([]Set, error) {
	free := make([]string, 0, len(referenced))
	seen := make(map[string]bool, len(referenced))
	for _, name := range referenced {
		family, _, err := splitName(name)
		if err != nil {
			return nil, err
		}
		if family == familyOS || family == familyArch || seen[name] {
			continue
		}
		seen[name] = true
		free = append(free, name)
	}
	sort.Strings(free)

	if len(free) > maxWorldFreeFacts {
		return nil, fmt.Errorf("predicates reference %d free facts, enumeration bound is %d", len(free), maxWorldFreeFacts)
	}

	combinations := 1 << len(free)
	worlds := make([]Set, 0, len(osSelectors)*len(archSelectors)*combinations)
	for _, osName := range osSelectors {
		for _, archName := range archSelectors {
			for bits := 0; bits < combinations; bits++ {
				world := newTotal(osName, archName)
				for i, name := range free {
					world.values[name] = bits&(1<<i) != 0
				}
				worlds = append(worlds, world)
			}
		}
	}
	return worlds, nil
}
