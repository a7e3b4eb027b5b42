// Package cache stores resolution records addressed by build identity.
//
// The cache is strictly an optimization. Every miss path, including
// corrupt or stale entries, returns nothing rather than an error, and a
// failed write is logged and forgotten. Correctness always comes from
// resolving again, never from trusting a cache entry the resolver could
// not reproduce.
package cache

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zstd"

	"github.com/vk/featconf/internal/ctxlog"
	"github.com/vk/featconf/internal/record"
)

// formatVersion is bumped whenever the entry encoding changes; entries
// from other versions read as misses.
const formatVersion = 1

type entry struct {
	Format int            `cbor:"format"`
	Record *record.Record `cbor:"record"`
}

// encMode uses Core Deterministic Encoding so the same record always
// produces identical bytes. decMode accepts standard CBOR.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

// Store is a content-addressed record store under one directory.
type Store struct {
	fsys billy.Filesystem
	dir  string
}

func New(fsys billy.Filesystem, dir string) *Store {
	return &Store{fsys: fsys, dir: dir}
}

// path fans entries out by the first two identity characters so no
// single directory grows unbounded.
func (s *Store) path(identity string) string {
	return s.fsys.Join(s.dir, identity[:2], identity)
}

// Get returns the cached record for an identity, or nil on any miss:
// no entry, unreadable entry, corrupt bytes, a foreign format version,
// or an entry whose record does not carry the requested identity.
func (s *Store) Get(ctx context.Context, identity string) *record.Record {
	logger := ctxlog.FromContext(ctx)
	if len(identity) < 2 {
		return nil
	}

	data, err := util.ReadFile(s.fsys, s.path(identity))
	if err != nil {
		return nil
	}

	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		logger.Debug("Cache entry is not valid zstd, treating as miss.", "identity", identity, "error", err)
		return nil
	}

	var e entry
	if err := decMode.Unmarshal(raw, &e); err != nil {
		logger.Debug("Cache entry is not decodable, treating as miss.", "identity", identity, "error", err)
		return nil
	}
	if e.Format != formatVersion || e.Record == nil || e.Record.Identity != identity {
		logger.Debug("Cache entry is stale, treating as miss.", "identity", identity, "format", e.Format)
		return nil
	}

	logger.Debug("Cache hit.", "identity", identity)
	return e.Record
}

// Put stores the record under its identity. Failures are logged as
// warnings and otherwise ignored.
func (s *Store) Put(ctx context.Context, rec *record.Record) {
	logger := ctxlog.FromContext(ctx)
	if rec == nil || len(rec.Identity) < 2 {
		return
	}

	raw, err := encMode.Marshal(entry{Format: formatVersion, Record: rec})
	if err != nil {
		logger.Warn("Could not encode cache entry.", "identity", rec.Identity, "error", err)
		return
	}

	if err := s.fsys.MkdirAll(s.fsys.Join(s.dir, rec.Identity[:2]), 0o755); err != nil {
		logger.Warn("Could not create cache directory.", "identity", rec.Identity, "error", err)
		return
	}
	if err := util.WriteFile(s.fsys, s.path(rec.Identity), zstdEncoder.EncodeAll(raw, nil), 0o644); err != nil {
		logger.Warn("Could not write cache entry.", "identity", rec.Identity, "error", err)
		return
	}
	logger.Debug("Cache entry written.", "identity", rec.Identity)
}
