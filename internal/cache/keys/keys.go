package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const pointPrefix = "pt"

// PointKey names the cached fetch result for one exact queried coordinate.
// The H3 cell only groups keys; two points in one cell never share an entry.
// source identifies the remote service so two upstreams never share entries.
func PointKey(source string, res int, cell string, lat, lon float64) string {
	src := strings.TrimSpace(source)
	pt := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
	return fmt.Sprintf("%s:%d:%s:%016x:src=%016x", pointPrefix, res, sanitize(cell), xxhash.Sum64String(pt), xxhash.Sum64String(src))
}

// FilterKey returns the hash holding per-kind show flags; an empty name maps to the default.
func FilterKey(name string) string {
	name = sanitize(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return "filter:" + name
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
