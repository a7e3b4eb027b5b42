package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/featconf/internal/ctxlog"
)

// Source is one catalog file: a name for diagnostics and its raw text.
type Source struct {
	Name string
	Data []byte
}

// Load parses, decodes, and validates a catalog from the given sources.
// Sources are processed in slice order, which fixes subsystem declaration
// order for the whole registry. Any failure, from an HCL syntax error to
// a violated structural invariant, is reported as *Error with every
// defect listed.
func Load(ctx context.Context, sources []Source) (*Registry, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry loading catalog sources...", "count", len(sources))

	if len(sources) == 0 {
		return nil, &Error{Defects: []string{"no catalog sources given"}}
	}

	parser := hclparse.NewParser()
	files := make(map[string]*hclRoot, len(sources))
	order := make([]string, 0, len(sources))
	hash := sha256.New()

	var defects []string
	for _, src := range sources {
		hash.Write(src.Data)

		hclFile, diags := parser.ParseHCL(src.Data, src.Name)
		if diags.HasErrors() {
			defects = append(defects, diagDefects(diags)...)
			continue
		}

		root := &hclRoot{}
		if diags := gohcl.DecodeBody(hclFile.Body, nil, root); diags.HasErrors() {
			defects = append(defects, diagDefects(diags)...)
			continue
		}

		files[src.Name] = root
		order = append(order, src.Name)
		logger.Debug("Decoded catalog file.", "file", src.Name)
	}
	if len(defects) > 0 {
		return nil, &Error{Defects: defects}
	}

	reg, defects := translate(files, order)
	if len(defects) > 0 {
		return nil, &Error{Defects: defects}
	}
	reg.SourceHash = hex.EncodeToString(hash.Sum(nil))

	if err := reg.validate(ctx); err != nil {
		return nil, err
	}

	logger.Info("Registry loaded successfully.", "subsystems", len(reg.Subsystems), "conflicts", len(reg.Conflicts))
	return reg, nil
}

// LoadDir loads every .hcl file directly inside dir, in lexical filename
// order so declaration order is reproducible across filesystems.
func LoadDir(ctx context.Context, fsys billy.Filesystem, dir string) (*Registry, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, &Error{Defects: []string{fmt.Sprintf("reading catalog directory %s: %v", dir, err)}}
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".hcl") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, &Error{Defects: []string{fmt.Sprintf("no .hcl catalog files in %s", dir)}}
	}

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		path := fsys.Join(dir, name)
		data, err := util.ReadFile(fsys, path)
		if err != nil {
			return nil, &Error{Defects: []string{fmt.Sprintf("reading catalog file %s: %v", path, err)}}
		}
		sources = append(sources, Source{Name: name, Data: data})
	}

	return Load(ctx, sources)
}

func diagDefects(diags hcl.Diagnostics) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Error())
	}
	return out
}
