package facts

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// EvalVariables converts the Set into HCL evaluation variables: one
// cty object per fact family, keyed by the family prefix, so registry
// predicates read naturally as `os.posix && lib.pthread`.
func (s Set) EvalVariables() map[string]cty.Value {
	members := make(map[string]map[string]cty.Value)
	for name, value := range s.values {
		family, member, _ := strings.Cut(name, ".")
		if members[family] == nil {
			members[family] = make(map[string]cty.Value)
		}
		members[family][member] = cty.BoolVal(value)
	}

	variables := make(map[string]cty.Value, len(members))
	for family, values := range members {
		variables[family] = cty.ObjectVal(values)
	}
	return variables
}
