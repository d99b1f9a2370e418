package store

import (
	"fmt"
	"regexp"
	"strings"
)

// PathSeparator separates the segments of a key.
const PathSeparator = "/"

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_=-]+$`)

// Key joins segments into a store key. It panics on a segment that cannot
// be represented by every backend; callers validate ids before building keys.
func Key(segments ...string) string {
	for _, s := range segments {
		if !ValidSegment(s) {
			panic(fmt.Sprintf("store: invalid key segment %q", s))
		}
	}
	return strings.Join(segments, PathSeparator)
}

// ValidSegment reports whether s can be used as one path segment.
func ValidSegment(s string) bool {
	return segmentPattern.MatchString(s)
}

// Segments splits a key into its segments.
func Segments(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, PathSeparator)
}

// Relative returns the part of key below prefix, split into segments.
// ok is false when key is not a descendant of prefix.
func Relative(prefix, key string) (rest []string, ok bool) {
	if prefix == "" {
		return Segments(key), key != ""
	}
	p := prefix + PathSeparator
	if !strings.HasPrefix(key, p) {
		return nil, false
	}
	return Segments(key[len(p):]), true
}

func isDescendant(prefix, key string) bool {
	_, ok := Relative(prefix, key)
	return ok
}
