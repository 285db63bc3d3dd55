// Package hash exposes the named one-way hash functions the authn drivers
// use to match stored secrets (spec component C1).
//
// The registry is a plain dispatch table keyed by name rather than an
// interface hierarchy, mirroring the teacher's preference for
// tagged-variant/capability-record designs over inheritance.
package hash

import (
	"crypto/md5"  //nolint:gosec // selectable by operators for compatibility with legacy stores
	"crypto/sha1" //nolint:gosec // same
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"sort"
	"strings"
)

// New is a constructor for a hash.Hash instance.
type New func() hash.Hash

// Entry describes one named hash function available to the registry.
type Entry struct {
	Name       string
	BlockSize  int
	DigestSize int
	New        New
}

var registry = map[string]Entry{
	"md5":    {Name: "md5", BlockSize: md5.BlockSize, DigestSize: md5.Size, New: md5.New},
	"sha1":   {Name: "sha1", BlockSize: sha1.BlockSize, DigestSize: sha1.Size, New: sha1.New},
	"sha224": {Name: "sha224", BlockSize: sha256.BlockSize, DigestSize: sha256.Size224, New: sha256.New224},
	"sha256": {Name: "sha256", BlockSize: sha256.BlockSize, DigestSize: sha256.Size, New: sha256.New},
	"sha512": {Name: "sha512", BlockSize: sha512.BlockSize, DigestSize: sha512.Size, New: sha512.New},
}

// DefaultName is used when no algorithm is configured but a hash is required.
const DefaultName = "md5"

// Lookup returns the named hash entry and true, or a zero Entry and false
// if no such hash is registered.
func Lookup(name string) (Entry, bool) {
	e, ok := registry[strings.ToLower(name)]
	return e, ok
}

// Names returns the sorted list of registered hash names, used when
// warning about an unknown algo (spec §7 BadAlgorithm).
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve implements the §4.1 fallback policy: look up the configured
// algo; if missing, warn (the caller logs availableNames) and fall back to
// md5; if md5 is itself unavailable (never true for this registry, but
// kept for parity with the spec's "authn->hash stays null" case), return
// ok=false.
func Resolve(algo string) (Entry, bool) {
	if algo != "" {
		if e, ok := Lookup(algo); ok {
			return e, true
		}
	}
	return Lookup(DefaultName)
}

// String renders an Entry for log messages.
func (e Entry) String() string {
	return fmt.Sprintf("%s(block=%d,digest=%d)", e.Name, e.BlockSize, e.DigestSize)
}
