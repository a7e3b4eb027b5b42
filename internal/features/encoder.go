package features

import (
	"bytes"
	"fmt"

	"github.com/go-git/go-billy/v5"

	"github.com/vk/featconf/internal/record"
	"github.com/vk/featconf/internal/registry"
)

// Marshal renders the artifact for a record resolved against reg. It is
// a pure function of its inputs: subsystems appear in registry order as
// contiguous groups, every known symbol appears exactly once (active or
// as a disabled marker), and a section comment precedes the first group
// of each section run.
func Marshal(rec *record.Record, reg *registry.Registry) []byte {
	selected := make(map[string]record.Selection, len(rec.Selections))
	for _, s := range rec.Selections {
		selected[s.Subsystem] = s
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "#ifndef %s\n", reg.HeaderGuard)
	fmt.Fprintf(&buf, "#define %s\n", reg.HeaderGuard)

	section := ""
	for _, s := range reg.Subsystems {
		buf.WriteByte('\n')
		if s.Section != section {
			section = s.Section
			fmt.Fprintf(&buf, "/* %s */\n", section)
		}
		writeGroup(&buf, s, selected[s.Name])
	}

	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "/* %s */\n", reg.Metadata.Section)
	if reg.Metadata.CPUSymbol != "" && rec.CPU != "" {
		fmt.Fprintf(&buf, "#define %s %q\n", reg.Metadata.CPUSymbol, rec.CPU)
	}
	fmt.Fprintf(&buf, "#define %s %q\n", reg.Metadata.IdentitySymbol, rec.Identity)

	buf.WriteString("\n#endif\n")
	return buf.Bytes()
}

// writeGroup emits one subsystem's contiguous block: the umbrella first,
// then every variant's symbols in declaration order. Symbols of the
// selected variant are active; all others are disabled markers.
func writeGroup(buf *bytes.Buffer, s *registry.Subsystem, sel record.Selection) {
	if s.Umbrella != "" {
		writeSymbol(buf, s.Umbrella, sel.Enabled())
	}
	for _, v := range s.Variants {
		for _, symbol := range v.Defines {
			writeSymbol(buf, symbol, sel.Variant == v.Name)
		}
	}
}

func writeSymbol(buf *bytes.Buffer, symbol string, active bool) {
	if active {
		fmt.Fprintf(buf, "#define %s 1\n", symbol)
	} else {
		fmt.Fprintf(buf, "/* #undef %s */\n", symbol)
	}
}

// WriteArtifact writes a rendered artifact to path. Close errors count
// as write failures. Everything is wrapped in *EmitError so callers can
// tell a sink problem from a resolution one.
func WriteArtifact(fsys billy.Filesystem, path string, payload []byte) (err error) {
	f, err := fsys.Create(path)
	if err != nil {
		return &EmitError{Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &EmitError{Path: path, Err: cerr}
		}
	}()

	if _, werr := f.Write(payload); werr != nil {
		return &EmitError{Path: path, Err: werr}
	}
	return nil
}
