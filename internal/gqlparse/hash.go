package gqlparse

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// HashQuery computes the content hash of raw query text. The hash is the
// externally visible query identity, so it is computed before normalization:
// textually different but semantically identical queries get distinct
// identities. Non-cryptographic by design.
func HashQuery(text string) uint64 {
	return xxhash.Sum64String(text)
}

// FormatHandle renders a content hash as an opaque query handle.
func FormatHandle(hash uint64) string {
	return strconv.FormatUint(hash, 16)
}
