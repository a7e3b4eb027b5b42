package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/featconf/internal/app"
)

const appleDescriptorYAML = `os: ios
arch: arm64
cpu: arm64
libraries:
  - pthread
  - zlib
  - iconv
  - commoncrypto
  - securetransport
  - gssframework
`

// writeDescriptor drops a descriptor file into a fresh temp dir and
// returns its path alongside the dir.
func writeDescriptor(t *testing.T, yaml string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "target.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path, dir
}

func TestRun_ResolveEmitsArtifact(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	descriptor, dir := writeDescriptor(t, appleDescriptorYAML)
	artifact := filepath.Join(dir, "git2_features.h")
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(out, io.Discard, []string{"resolve", "-o", artifact, descriptor})

	// --- Assert ---
	require.NoError(t, err)

	content, readErr := os.ReadFile(artifact)
	require.NoError(t, readErr)
	text := string(content)
	assert.True(t, strings.HasPrefix(text, "#ifndef INCLUDE_features_h__\n"))
	assert.Contains(t, text, "#define GIT_THREADS_PTHREADS 1\n")
	assert.Contains(t, text, "#define GIT_SHA1_BUILTIN 1\n")
	assert.Contains(t, text, "#define GIT_HTTPS_SECURETRANSPORT 1\n")
	assert.Contains(t, text, "#define GIT_BUILD_IDENTITY \"")
	assert.True(t, strings.HasSuffix(text, "\n#endif\n"))
}

func TestRun_ResolveThenValidate(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	descriptor, dir := writeDescriptor(t, appleDescriptorYAML)
	artifact := filepath.Join(dir, "git2_features.h")
	out := &bytes.Buffer{}
	require.NoError(t, run(out, io.Discard, []string{"resolve", "-o", artifact, descriptor}))

	// --- Act ---
	err := run(out, io.Discard, []string{"validate", artifact})

	// --- Assert ---
	require.NoError(t, err, "a freshly emitted artifact should audit clean")
}

func TestRun_ValidateReportsViolations(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Emit a clean artifact, then hand-activate a second SHA-1 variant.
	descriptor, dir := writeDescriptor(t, appleDescriptorYAML)
	artifact := filepath.Join(dir, "git2_features.h")
	require.NoError(t, run(&bytes.Buffer{}, io.Discard, []string{"resolve", "-o", artifact, descriptor}))

	content, err := os.ReadFile(artifact)
	require.NoError(t, err)
	edited := strings.Replace(string(content), "/* #undef GIT_SHA1_OPENSSL */", "#define GIT_SHA1_OPENSSL 1", 1)
	require.NotEqual(t, string(content), edited)
	require.NoError(t, os.WriteFile(artifact, []byte(edited), 0o600))

	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(out, io.Discard, []string{"validate", artifact})

	// --- Assert ---
	require.Error(t, runErr)

	var violations *app.ViolationCountError
	require.ErrorAs(t, runErr, &violations)
	assert.Equal(t, 1, violations.Count)
	assert.Equal(t, 1, exitCode(runErr))
	assert.Contains(t, out.String(), "[multiple-variants]")
	assert.Contains(t, out.String(), "sha1")
}

func TestRun_ResolveWithCacheDir(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	descriptor, dir := writeDescriptor(t, appleDescriptorYAML)
	artifact := filepath.Join(dir, "git2_features.h")
	cacheDir := filepath.Join(dir, "cache")
	args := []string{"resolve", "-o", artifact, "--cache-dir", cacheDir, descriptor}

	// --- Act ---
	require.NoError(t, run(&bytes.Buffer{}, io.Discard, args))
	first, err := os.ReadFile(artifact)
	require.NoError(t, err)

	require.NoError(t, os.Remove(artifact))
	require.NoError(t, run(&bytes.Buffer{}, io.Discard, args))
	second, err := os.ReadFile(artifact)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, first, second, "cached and fresh resolutions must emit identical artifacts")

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "the cache directory should hold the resolution record")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(out, io.Discard, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(out, io.Discard, []string{"frobnicate"})

	// --- Assert ---
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRun_ExitCodes(t *testing.T) {
	t.Parallel()

	linuxNoTLS := `os: linux
arch: amd64
libraries: [zlib, pthread]
`
	windowsConflict := `os: windows
arch: amd64
libraries: [zlib, winhttp, llhttp, sspi]
`
	unknownOS := `os: plan9
arch: amd64
`

	testCases := []struct {
		name       string
		descriptor string
		wantCode   int
		wantText   string
	}{
		{
			name:       "unresolved mandatory subsystem",
			descriptor: linuxNoTLS,
			wantCode:   5,
			wantText:   "https",
		},
		{
			name:       "conflicting selection",
			descriptor: windowsConflict,
			wantCode:   6,
			wantText:   "WinHTTP parses HTTP messages itself",
		},
		{
			name:       "probe failure",
			descriptor: unknownOS,
			wantCode:   3,
			wantText:   "unknown target os",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			descriptor, dir := writeDescriptor(t, tc.descriptor)
			artifact := filepath.Join(dir, "out.h")

			// --- Act ---
			err := run(&bytes.Buffer{}, io.Discard, []string{"resolve", "-o", artifact, descriptor})

			// --- Assert ---
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, exitCode(err))
			assert.Contains(t, err.Error(), tc.wantText)

			_, statErr := os.Stat(artifact)
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "no artifact may exist after a failed resolution")
		})
	}
}

func TestRun_RegistryErrorExitCode(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	descriptor, dir := writeDescriptor(t, appleDescriptorYAML)
	registryDir := filepath.Join(dir, "catalog")
	require.NoError(t, os.Mkdir(registryDir, 0o755))
	broken := "version = \"v1\"\n" // no header_guard, no metadata
	require.NoError(t, os.WriteFile(filepath.Join(registryDir, "bad.hcl"), []byte(broken), 0o600))

	// --- Act ---
	err := run(&bytes.Buffer{}, io.Discard, []string{
		"resolve", "-o", filepath.Join(dir, "out.h"), "--registry", registryDir, descriptor,
	})

	// --- Assert ---
	require.Error(t, err)
	assert.Equal(t, 4, exitCode(err))
	assert.Contains(t, err.Error(), "registry validation failed")
}

func TestRun_MultiTargetResolve(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	applePath := filepath.Join(dir, "ios-arm64.yaml")
	linuxPath := filepath.Join(dir, "linux-amd64.yaml")
	require.NoError(t, os.WriteFile(applePath, []byte(appleDescriptorYAML), 0o600))
	linuxYAML := `os: linux
arch: amd64
libraries: [zlib, pthread, openssl, llhttp]
`
	require.NoError(t, os.WriteFile(linuxPath, []byte(linuxYAML), 0o600))

	// --- Act ---
	err := run(&bytes.Buffer{}, io.Discard, []string{"resolve", "--output-dir", outDir, applePath, linuxPath})

	// --- Assert ---
	require.NoError(t, err)

	apple, err := os.ReadFile(filepath.Join(outDir, "ios-arm64.h"))
	require.NoError(t, err)
	assert.Contains(t, string(apple), "#define GIT_HTTPS_SECURETRANSPORT 1\n")

	linux, err := os.ReadFile(filepath.Join(outDir, "linux-amd64.h"))
	require.NoError(t, err)
	assert.Contains(t, string(linux), "#define GIT_HTTPS_OPENSSL 1\n")
	assert.Contains(t, string(linux), "#define GIT_HTTPPARSER_LLHTTP 1\n")
}
