// Package digest computes the content hashes that safebox stores next to
// verified data files.
//
// A digest is always rendered as lowercase hex. The same [Algorithm] must be
// used when a hash file is written and when it is verified, otherwise every
// load reports an integrity failure.
package digest

import (
	"crypto/md5" //nolint:gosec // md5 detects corruption here, it is not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a digest function.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// Default is the algorithm used when none is configured. Hash files written
// by existing devices hold MD5 digests.
const Default = MD5

// Parse resolves an algorithm name. The empty string yields [Default].
func Parse(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return Default, nil
	case MD5:
		return MD5, nil
	case SHA256, "sha-256":
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	}
	return "", fmt.Errorf("digest: unsupported algorithm %q", s)
}

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case MD5, SHA256, BLAKE3:
		return true
	}
	return false
}

// New returns a fresh hash.Hash for a. Unknown algorithms fall back to [Default].
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA256:
		return sha256.New()
	case BLAKE3:
		return blake3.New()
	default:
		return md5.New() //nolint:gosec
	}
}

// Sum returns the hex digest of data.
func (a Algorithm) Sum(data []byte) string {
	h := a.New()
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SumReader streams r through the hash and returns the hex digest.
func (a Algorithm) SumReader(r io.Reader) (string, error) {
	h := a.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (a Algorithm) String() string {
	if a == "" {
		return string(Default)
	}
	return string(a)
}
