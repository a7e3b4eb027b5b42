// Package record models the outcome of one resolution run: which variant
// each subsystem settled on, and the identity hash that makes the run
// reproducible.
package record

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/vk/featconf/internal/facts"
)

// Record is immutable once the resolver returns it. Selections keep
// registry declaration order.
type Record struct {
	RegistryVersion string      `cbor:"registry_version"`
	OS              string      `cbor:"os"`
	Arch            string      `cbor:"arch"`
	WordWidth       int         `cbor:"word_width"`
	CPU             string      `cbor:"cpu,omitempty"`
	Identity        string      `cbor:"identity"`
	Selections      []Selection `cbor:"selections"`
}

// Selection is the outcome for one subsystem. A disabled subsystem has
// an empty Variant and carries no symbols.
type Selection struct {
	Subsystem string   `cbor:"subsystem"`
	Variant   string   `cbor:"variant,omitempty"`
	Umbrella  string   `cbor:"umbrella,omitempty"`
	Symbols   []string `cbor:"symbols,omitempty"`
}

// Enabled reports whether a variant was selected for the subsystem.
func (s Selection) Enabled() bool {
	return s.Variant != ""
}

// inputsDomainKey is the BLAKE3 keyed-hash domain for build identities.
// A fixed constant: changing it changes every identity ever computed.
// The bytes are the ASCII domain name zero-padded to 32, readable in a
// hex dump while still an opaque key to the hash.
var inputsDomainKey = [32]byte{
	'f', 'e', 'a', 't', 'c', 'o', 'n', 'f', '.', 'i', 'n', 'p', 'u', 't', 's',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Identity computes the build identity: a lowercase 64-hex BLAKE3-256
// keyed digest over everything that determines the emitted artifact.
// Fields are length-prefixed so boundaries cannot shift between them.
func Identity(registryVersion, sourceHash string, set facts.Set, cpu string, wordWidth int) string {
	hasher, err := blake3.NewKeyed(inputsDomainKey[:])
	if err != nil {
		panic("record: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	writeField(hasher, []byte(registryVersion))
	writeField(hasher, []byte(sourceHash))
	writeField(hasher, set.Canonical())
	writeField(hasher, []byte(cpu))
	writeField(hasher, []byte(strconv.Itoa(wordWidth)))

	return hex.EncodeToString(hasher.Sum(nil))
}

func writeField(hasher *blake3.Hasher, field []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(field)))
	hasher.Write(length[:])
	hasher.Write(field)
}
