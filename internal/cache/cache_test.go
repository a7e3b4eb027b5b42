package cache

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/featconf/internal/record"
)

func testRecord(identity string) *record.Record {
	return &record.Record{
		RegistryVersion: "git2-features/1",
		OS:              "linux",
		Arch:            "bits64",
		WordWidth:       64,
		Identity:        identity,
		Selections: []record.Selection{
			{Subsystem: "threads", Variant: "pthreads", Umbrella: "GIT_THREADS", Symbols: []string{"GIT_THREADS_PTHREADS"}},
			{Subsystem: "ssh"},
		},
	}
}

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	// Arrange
	ctx := context.Background()
	identity := strings.Repeat("ab", 32)
	store := New(memfs.New(), "cache")

	// Act
	store.Put(ctx, testRecord(identity))
	got := store.Get(ctx, identity)

	// Assert
	require.NotNil(t, got)
	assert.Equal(t, testRecord(identity), got)

	_, err := store.fsys.Stat("cache/ab/" + identity)
	assert.NoError(t, err, "entries should fan out by identity prefix")
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	store := New(memfs.New(), "cache")

	assert.Nil(t, store.Get(context.Background(), strings.Repeat("cd", 32)))
}

func TestStoreGetCorruptEntry(t *testing.T) {
	t.Parallel()

	// Arrange
	identity := strings.Repeat("ef", 32)
	store := New(memfs.New(), "cache")
	require.NoError(t, util.WriteFile(store.fsys, store.path(identity), []byte("not a cache entry"), 0o644))

	// Act & Assert
	assert.Nil(t, store.Get(context.Background(), identity))
}

func TestStoreGetForeignFormat(t *testing.T) {
	t.Parallel()

	// Arrange
	identity := strings.Repeat("01", 32)
	store := New(memfs.New(), "cache")

	raw, err := encMode.Marshal(entry{Format: formatVersion + 1, Record: testRecord(identity)})
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(store.fsys, store.path(identity), zstdEncoder.EncodeAll(raw, nil), 0o644))

	// Act & Assert
	assert.Nil(t, store.Get(context.Background(), identity))
}

func TestStoreGetIdentityMismatch(t *testing.T) {
	t.Parallel()

	// Arrange: a valid entry copied under a different identity.
	stored := strings.Repeat("23", 32)
	requested := strings.Repeat("45", 32)
	store := New(memfs.New(), "cache")

	raw, err := encMode.Marshal(entry{Format: formatVersion, Record: testRecord(stored)})
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(store.fsys, store.path(requested), zstdEncoder.EncodeAll(raw, nil), 0o644))

	// Act & Assert
	assert.Nil(t, store.Get(context.Background(), requested))
}

func TestStorePutFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	// Arrange
	ctx := context.Background()
	identity := strings.Repeat("67", 32)
	store := New(readOnlyFS{memfs.New()}, "cache")

	// Act
	store.Put(ctx, testRecord(identity))

	// Assert
	assert.Nil(t, store.Get(ctx, identity))
}

func TestStoreIgnoresShortIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New(memfs.New(), "cache")

	store.Put(ctx, &record.Record{Identity: "a"})
	assert.Nil(t, store.Get(ctx, "a"))
	assert.Nil(t, store.Get(ctx, ""))
}

// readOnlyFS rejects directory creation to exercise the write failure
// path.
type readOnlyFS struct {
	billy.Filesystem
}

func (readOnlyFS) MkdirAll(string, os.FileMode) error {
	return billy.ErrNotSupported
}
