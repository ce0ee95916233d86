// Package version implements the dpkg version codec: a pure function
// mapping a dpkg version string to a byte-lexicographically comparable
// string, plus the relational comparison predicate used by the
// materializer to evaluate control-field version constraints.
package version

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// translationTable maps each non-digit byte dpkg considers meaningful
// in a version component to its comparable-order byte. '~' sorts below
// everything, including the empty string; uppercase letters, lowercase
// letters, and '+' '-' '.' sort above digits, in that relative order.
// This table is load-bearing: it is what makes byte-lexicographic
// comparison of the encoded string agree with dpkg --compare-versions.
var translationTable = buildTranslationTable()

const reservedTerminator = '|' // maps to ASCII 1, used to terminate non-digit runs

func buildTranslationTable() map[byte]byte {
	t := make(map[byte]byte, 64)
	t['~'] = 0
	t[reservedTerminator] = 1
	for i := 0; i < 26; i++ {
		t['A'+byte(i)] = 50 + byte(i)
		t['a'+byte(i)] = 82 + byte(i)
	}
	t['+'] = 108
	t['-'] = 109
	t['.'] = 110
	return t
}

var codecCache *lru.Cache[string, string]
var codecCacheOnce sync.Once

func cache() *lru.Cache[string, string] {
	codecCacheOnce.Do(func() {
		c, err := lru.New[string, string](4096)
		if err != nil {
			panic(err) // only fails for non-positive size, which is a programmer error
		}
		codecCache = c
	})
	return codecCache
}

// Encode maps a dpkg version string to a byte-lexicographically
// comparable string. It is total, deterministic, and idempotent: for
// any non-empty input it always returns the same output, and has no
// side effects.
func Encode(v string) string {
	if cached, ok := cache().Get(v); ok {
		return cached
	}
	out := encodeUncached(v)
	cache().Add(v, out)
	return out
}

func encodeUncached(v string) string {
	epoch, rest := splitEpoch(v)
	upstream, revision := splitUpstreamRevision(rest)

	return comparableVer(epoch) + "!" + comparableVer(upstream) + "!" + comparableVer(revision)
}

// splitEpoch splits off the epoch segment (before the first ':'), if
// any. An absent epoch is returned as "" (comparableVer then encodes
// it identically to an explicit "0").
func splitEpoch(v string) (epoch, rest string) {
	if idx := strings.IndexByte(v, ':'); idx >= 0 {
		return v[:idx], v[idx+1:]
	}
	return "", v
}

// splitUpstreamRevision splits on the last '-'. A version with no '-'
// has an implicit revision of "1".
func splitUpstreamRevision(rest string) (upstream, revision string) {
	if idx := strings.LastIndexByte(rest, '-'); idx >= 0 {
		return rest[:idx], rest[idx+1:]
	}
	return rest, "1"
}

// comparableVer walks a version component left to right, repeatedly
// peeling a maximal (non-digit run, digit run) pair and re-encoding
// each half so that byte-lexicographic order on the output matches
// dpkg's native ordering on the input.
func comparableVer(s string) string {
	if s == "" {
		return encodeNonDigitRun("") + encodeDigitRun("0")
	}
	var out strings.Builder
	out.Grow(len(s) * 2)
	i := 0
	for i < len(s) {
		nonDigitStart := i
		for i < len(s) && !isDigit(s[i]) {
			i++
		}
		out.WriteString(encodeNonDigitRun(s[nonDigitStart:i]))

		digitStart := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		out.WriteString(encodeDigitRun(s[digitStart:i]))
	}
	return out.String()
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func encodeNonDigitRun(run string) string {
	var out strings.Builder
	out.Grow(len(run) + 1)
	for _, b := range []byte(run) {
		if mapped, ok := translationTable[b]; ok {
			out.WriteByte(mapped)
		} else {
			out.WriteByte(b)
		}
	}
	out.WriteByte(translationTable[reservedTerminator])
	return out.String()
}

// encodeDigitRun strips leading zeros (an all-zero or empty run
// becomes "0") and prefixes the result with a single byte encoding its
// length, so that runs of different lengths never compare equal
// byte-for-byte unless their numeric value is equal.
func encodeDigitRun(run string) string {
	trimmed := strings.TrimLeft(run, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	return string(byte(47+len(trimmed))) + trimmed
}

// Op is a dpkg relational version operator.
type Op string

const (
	OpLess         Op = "<<"
	OpLessEqual    Op = "<="
	OpEqual        Op = "="
	OpGreaterEqual Op = ">="
	OpGreater      Op = ">>"
)

// Compare evaluates the relational predicate compare(a, op, b) over
// two raw dpkg version strings. A nil/empty op is treated as an
// unconditional match (used when a dependency has no version
// constraint at all).
func Compare(a string, op Op, b string) bool {
	if op == "" {
		return true
	}
	ea, eb := Encode(a), Encode(b)
	switch op {
	case OpLess:
		return ea < eb
	case OpLessEqual:
		return ea <= eb
	case OpEqual:
		return ea == eb
	case OpGreaterEqual:
		return ea >= eb
	case OpGreater:
		return ea > eb
	default:
		return false
	}
}

// Less reports whether a sorts strictly before b under dpkg version
// ordering. Convenience wrapper around Encode for sort.Slice callers.
func Less(a, b string) bool {
	return Encode(a) < Encode(b)
}
