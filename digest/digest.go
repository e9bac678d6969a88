// Package digest holds the content digests a search can run against and the
// trailing marker test applied to their output.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/minio/sha256-simd"
	"lukechampine.com/blake3"
)

// Marker is the character a matching digest must end with.
const Marker = '0'

// Func maps the textual form of a candidate to its hex digest. It must be
// deterministic and free of side effects.
type Func func(string) string

var (
	// SHA256 returns the lowercase hex SHA-256 of s.
	SHA256 Func = func(s string) string {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	}

	// MD5 returns the lowercase hex MD5 of s.
	MD5 Func = func(s string) string {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	}

	// BLAKE3 returns the lowercase hex 256-bit BLAKE3 of s.
	BLAKE3 Func = func(s string) string {
		sum := blake3.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	}
)

var byName = map[string]Func{
	"sha256": SHA256,
	"md5":    MD5,
	"blake3": BLAKE3,
}

// ByName looks up a digest by its configuration name.
func ByName(name string) (Func, error) {
	fn, ok := byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown digest %q", name)
	}
	return fn, nil
}

// Names lists the accepted digest names.
func Names() []string {
	return []string{"sha256", "md5", "blake3"}
}

// Candidate digests the decimal form of n.
func (f Func) Candidate(n uint32) string {
	return f(strconv.FormatUint(uint64(n), 10))
}

// HasMarkerSuffix reports whether the last n characters of d are all Marker.
// n == 0 always matches.
func HasMarkerSuffix(d string, n uint8) bool {
	var found uint8
	for i := len(d) - 1; i >= 0 && found < n; i-- {
		if d[i] != Marker {
			return false
		}
		found++
	}
	return found == n
}

// MarkerSuffix is the string a matching digest ends with.
func MarkerSuffix(n uint8) string {
	return strings.Repeat(string(Marker), int(n))
}
