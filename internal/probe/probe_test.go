package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/featconf/internal/target"
)

// fakeRunner answers header checks from a fixed table and records the
// order in which headers were probed.
type fakeRunner struct {
	present map[string]bool
	err     error
	calls   []string
}

func (f *fakeRunner) Check(_ context.Context, _, header string) (bool, error) {
	f.calls = append(f.calls, header)
	if f.err != nil {
		return false, f.err
	}
	return f.present[header], nil
}

func TestRunPlatformDefaults(t *testing.T) {
	t.Parallel()

	d := &target.Descriptor{
		OS:        "ios",
		Arch:      "arm64",
		Libraries: []string{"zlib", "securetransport", "httpparser", "iconv", "pthread", "commoncrypto", "gssframework"},
	}

	set, err := Run(context.Background(), d, nil)
	require.NoError(t, err)

	assert.True(t, set.Value("os.ios"))
	assert.True(t, set.Value("os.posix"))
	assert.False(t, set.Value("os.darwin"))
	assert.True(t, set.Value("arch.bits64"))
	assert.False(t, set.Value("arch.bits32"))

	assert.True(t, set.Value("lib.zlib"))
	assert.True(t, set.Value("lib.securetransport"))
	assert.False(t, set.Value("lib.openssl"))

	// Mobile targets keep the BSD stat layout but lose process spawning.
	assert.True(t, set.Value("sys.stat_mtimespec"))
	assert.True(t, set.Value("sys.getloadavg"))
	assert.True(t, set.Value("sys.qsort_r_bsd"))
	assert.False(t, set.Value("sys.spawn"))
	assert.False(t, set.Value("sys.regcomp_l"))
	assert.False(t, set.Value("tool.cc"))
}

func TestRunFeatureOverrides(t *testing.T) {
	t.Parallel()

	d := &target.Descriptor{
		OS:   "linux",
		Arch: "amd64",
		Features: map[string]bool{
			"getentropy": false,
			"getloadavg": true,
		},
	}

	set, err := Run(context.Background(), d, nil)
	require.NoError(t, err)

	assert.False(t, set.Value("sys.getentropy"), "explicit override must beat the platform default")
	assert.True(t, set.Value("sys.getloadavg"))
	assert.True(t, set.Value("sys.stat_mtim"))
}

func TestRunDetect(t *testing.T) {
	t.Parallel()

	d := &target.Descriptor{
		OS:   "linux",
		Arch: "amd64",
		Toolchain: &target.Toolchain{
			CC: "cc",
			Detect: []target.Detect{
				{Header: "pthread.h", Fact: "lib.pthread"},
				{Header: "iconv.h", Fact: "lib.iconv"},
				{Header: "sys/random.h", Fact: "sys.getentropy"},
			},
		},
	}
	runner := &fakeRunner{present: map[string]bool{"pthread.h": true}}

	set, err := Run(context.Background(), d, runner)
	require.NoError(t, err)

	assert.Equal(t, []string{"pthread.h", "iconv.h", "sys/random.h"}, runner.calls)
	assert.True(t, set.Value("tool.cc"))
	assert.True(t, set.Value("lib.pthread"))
	assert.False(t, set.Value("lib.iconv"))
	assert.False(t, set.Value("sys.getentropy"), "a negative check result must beat the platform default")
}

func TestRunDetectFailure(t *testing.T) {
	t.Parallel()

	d := &target.Descriptor{
		OS:   "linux",
		Arch: "amd64",
		Toolchain: &target.Toolchain{
			CC:     "cc",
			Detect: []target.Detect{{Header: "pthread.h", Fact: "lib.pthread"}},
		},
	}
	runner := &fakeRunner{err: errors.New("exec: \"cc\": executable file not found in $PATH")}

	_, err := Run(context.Background(), d, runner)
	require.Error(t, err)

	var probeErr *Error
	require.ErrorAs(t, err, &probeErr)
	assert.Contains(t, probeErr.Error(), "pthread.h")
}

func TestRunDetectWithoutRunner(t *testing.T) {
	t.Parallel()

	d := &target.Descriptor{
		OS:   "linux",
		Arch: "amd64",
		Toolchain: &target.Toolchain{
			CC:     "cc",
			Detect: []target.Detect{{Header: "pthread.h", Fact: "lib.pthread"}},
		},
	}

	_, err := Run(context.Background(), d, nil)

	var probeErr *Error
	require.ErrorAs(t, err, &probeErr)
	assert.Contains(t, probeErr.Error(), "no check runner")
}

func TestFile(t *testing.T) {
	t.Parallel()

	t.Run("loads and probes a descriptor", func(t *testing.T) {
		t.Parallel()
		fsys := memfs.New()
		descriptor := "os: linux\narch: amd64\nlibraries: [zlib, pcre]\n"
		require.NoError(t, util.WriteFile(fsys, "target.yaml", []byte(descriptor), 0o644))

		set, d, err := File(context.Background(), fsys, "target.yaml", nil)

		require.NoError(t, err)
		assert.Equal(t, "linux", d.OS)
		assert.True(t, set.Value("lib.pcre"))
	})

	t.Run("missing file is a probe error", func(t *testing.T) {
		t.Parallel()
		fsys := memfs.New()

		_, _, err := File(context.Background(), fsys, "absent.yaml", nil)

		var probeErr *Error
		require.ErrorAs(t, err, &probeErr)
	})

	t.Run("malformed descriptor is a probe error", func(t *testing.T) {
		t.Parallel()
		fsys := memfs.New()
		require.NoError(t, util.WriteFile(fsys, "target.yaml", []byte("os: plan9\narch: amd64\n"), 0o644))

		_, _, err := File(context.Background(), fsys, "target.yaml", nil)

		var probeErr *Error
		require.ErrorAs(t, err, &probeErr)
		assert.Contains(t, probeErr.Error(), "plan9")
	})
}
