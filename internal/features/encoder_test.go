package features

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/featconf/internal/facts"
	"github.com/vk/featconf/internal/record"
	"github.com/vk/featconf/internal/registry"
	"github.com/vk/featconf/internal/resolver"
	"github.com/vk/featconf/internal/target"
)

// brokenFS refuses every create so sink failures are reproducible.
type brokenFS struct {
	billy.Filesystem
}

func (brokenFS) Create(string) (billy.File, error) {
	return nil, errors.New("disk full")
}

const catalog = `
version      = "test/1"
header_guard = "TEST_features_h__"

subsystem "threads" {
  section  = "Feature enablement"
  umbrella = "T_THREADS"

  variant "pthreads" {
    when     = os.posix && lib.pthread
    priority = 10
    defines  = ["T_THREADS_PTHREADS"]
  }
  variant "win32" {
    when     = os.windows
    priority = 10
    defines  = ["T_THREADS_WIN32"]
  }
}

subsystem "sha1" {
  section   = "Feature enablement"
  mandatory = true

  variant "builtin" {
    when     = true
    priority = 0
    defines  = ["T_SHA1_BUILTIN"]
  }
  variant "openssl" {
    when     = lib.openssl
    priority = 10
    defines  = ["T_SHA1_OPENSSL"]
  }
}

subsystem "io" {
  section   = "Platform details"
  mandatory = true

  variant "posix" {
    when     = os.posix
    priority = 10
    defines  = ["T_IO_POLL", "T_IO_SELECT"]
  }
  variant "win32" {
    when     = os.windows
    priority = 10
    defines  = ["T_IO_WIN32"]
  }
}

metadata {
  section         = "Compile-time information"
  cpu_symbol      = "T_BUILD_CPU"
  identity_symbol = "T_BUILD_IDENTITY"
}
`

func resolveLinux(t *testing.T) (*record.Record, *registry.Registry) {
	t.Helper()

	reg, err := registry.Load(context.Background(), []registry.Source{
		{Name: "test.hcl", Data: []byte(catalog)},
	})
	require.NoError(t, err)

	set, err := facts.New(map[string]bool{
		"os.linux": true, "arch.bits64": true,
		"lib.pthread": true, "lib.openssl": true,
	})
	require.NoError(t, err)

	rec, err := resolver.Resolve(context.Background(), reg, set, &target.Descriptor{
		OS: "linux", Arch: "amd64", CPU: "x86_64",
	})
	require.NoError(t, err)
	return rec, reg
}

func TestMarshal(t *testing.T) {
	t.Parallel()
	rec, reg := resolveLinux(t)

	got := string(Marshal(rec, reg))

	want := fmt.Sprintf(`#ifndef TEST_features_h__
#define TEST_features_h__

/* Feature enablement */
#define T_THREADS 1
#define T_THREADS_PTHREADS 1
/* #undef T_THREADS_WIN32 */

/* #undef T_SHA1_BUILTIN */
#define T_SHA1_OPENSSL 1

/* Platform details */
#define T_IO_POLL 1
#define T_IO_SELECT 1
/* #undef T_IO_WIN32 */

/* Compile-time information */
#define T_BUILD_CPU "x86_64"
#define T_BUILD_IDENTITY %q

#endif
`, rec.Identity)
	assert.Equal(t, want, got)
}

func TestMarshalIsDeterministic(t *testing.T) {
	t.Parallel()
	rec, reg := resolveLinux(t)

	assert.Equal(t, Marshal(rec, reg), Marshal(rec, reg))
}

func TestMarshalOmitsCPUWhenUnset(t *testing.T) {
	t.Parallel()
	rec, reg := resolveLinux(t)
	rec.CPU = ""

	got := string(Marshal(rec, reg))

	assert.NotContains(t, got, "T_BUILD_CPU")
	assert.Contains(t, got, "T_BUILD_IDENTITY")
}

func TestWriteArtifact(t *testing.T) {
	t.Parallel()

	t.Run("writes the rendered artifact", func(t *testing.T) {
		t.Parallel()
		rec, reg := resolveLinux(t)
		fsys := memfs.New()

		payload := Marshal(rec, reg)
		err := WriteArtifact(fsys, "out/features.h", payload)

		require.NoError(t, err)
		data, err := util.ReadFile(fsys, "out/features.h")
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("sink failure is an emit error", func(t *testing.T) {
		t.Parallel()
		rec, reg := resolveLinux(t)

		err := WriteArtifact(brokenFS{memfs.New()}, "features.h", Marshal(rec, reg))

		var emitErr *EmitError
		require.ErrorAs(t, err, &emitErr)
		assert.Equal(t, "features.h", emitErr.Path)
	})
}
