// Package fingerprint computes stable content-addressed digests of
// arbitrary nested settings and design data, keying the run cache.
//
// The algorithm mirrors semantic_hash in the source runner: recursively
// canonicalise into a deterministic textual form (maps sorted by key,
// sequences left in order, scalars rendered as text) and hash the result
// with SHA-3-256.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// FileHasher is satisfied by anything that can report a lazily-computed
// content hash for a path. pkg/design.FileResource implements this.
type FileHasher interface {
	ContentSHA256() (string, error)
	AbsPath() string
}

// Canonicalize renders v into a deterministic string form suitable for
// hashing. Supported shapes: map[string]interface{} (keys sorted
// lexicographically), []interface{} (order preserved), FileHasher
// (content hash + path), and scalars (bool, string, int*, uint*, float*).
func Canonicalize(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "null", nil
	case FileHasher:
		h, err := t.ContentSHA256()
		if err != nil {
			return "", fmt.Errorf("fingerprint: hashing file %s: %w", t.AbsPath(), err)
		}
		return "file:" + h + ":" + t.AbsPath(), nil
	case map[string]interface{}:
		return canonicalizeMap(t)
	case []interface{}:
		return canonicalizeSlice(t)
	case []string:
		gen := make([]interface{}, len(t))
		for i, s := range t {
			gen[i] = s
		}
		return canonicalizeSlice(gen)
	case string:
		return "s:" + t, nil
	case bool:
		return "b:" + strconv.FormatBool(t), nil
	case int:
		return "i:" + strconv.Itoa(t), nil
	case int64:
		return "i:" + strconv.FormatInt(t, 10), nil
	case int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		return "i:" + fmt.Sprint(t), nil
	case float64:
		return "f:" + strconv.FormatFloat(t, 'g', -1, 64), nil
	case float32:
		return "f:" + strconv.FormatFloat(float64(t), 'g', -1, 32), nil
	default:
		return "", fmt.Errorf("fingerprint: unsupported value type %T", v)
	}
}

func canonicalizeMap(m map[string]interface{}) (string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		val, err := Canonicalize(m[k])
		if err != nil {
			return "", err
		}
		out += strconv.Quote(k) + ":" + val
	}
	out += "}"
	return out, nil
}

func canonicalizeSlice(s []interface{}) (string, error) {
	out := "["
	for i, v := range s {
		if i > 0 {
			out += ","
		}
		val, err := Canonicalize(v)
		if err != nil {
			return "", err
		}
		out += val
	}
	out += "]"
	return out, nil
}

// Hash returns the SHA-3-256 digest (lowercase hex) of v's canonical form.
func Hash(v interface{}) (string, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:]), nil
}

// Short truncates a full hash to the 16-hex-char width used for
// run-directory suffixes.
func Short(fullHash string) string {
	if len(fullHash) <= 16 {
		return fullHash
	}
	return fullHash[:16]
}

// FileContentSHA256 hashes a file's contents with SHA-256, the digest
// used for FileResource equality (distinct from the SHA-3-256 used for
// the overall design/flow fingerprint).
func FileContentSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ExcludeKeys returns a shallow copy of m with the named keys removed,
// used by callers to drop non-semantic fields (verbose, debug, nthreads,
// absolute lib_paths, ...) before hashing.
func ExcludeKeys(m map[string]interface{}, keys ...string) map[string]interface{} {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if drop[k] {
			continue
		}
		out[k] = v
	}
	return out
}
