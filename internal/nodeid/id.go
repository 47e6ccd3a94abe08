package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
)

// ID identifies a node within one graph. It is a type tag followed by a
// positive sequence number, e.g. "Model3" or "ModelHierarchy12".
type ID string

// None is the zero ID. It never names a node.
const None ID = ""

var (
	tagRegex = regexp.MustCompile(`^[A-Za-z_](?:[A-Za-z0-9_]*[A-Za-z_])?$`)
	idRegex  = regexp.MustCompile(`^([A-Za-z_](?:[A-Za-z0-9_]*[A-Za-z_])?)([1-9][0-9]*)$`)
)

// ValidTag reports whether tag can prefix an ID. Tags must not end in a
// digit, otherwise the tag/sequence split would be ambiguous.
func ValidTag(tag string) bool {
	return tagRegex.MatchString(tag)
}

// New joins a tag and sequence number. It does not validate its input.
func New(tag string, seq int) ID {
	return ID(tag + strconv.Itoa(seq))
}

// Parse splits a raw identifier into its tag and sequence number.
func Parse(raw string) (tag string, seq int, err error) {
	if raw == "" {
		return "", 0, fmt.Errorf("identifier cannot be empty")
	}
	m := idRegex.FindStringSubmatch(raw)
	if m == nil {
		return "", 0, fmt.Errorf("invalid identifier %q: want <tag><sequence>", raw)
	}
	seq, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, fmt.Errorf("invalid identifier %q: %w", raw, err)
	}
	return m[1], seq, nil
}

// Valid reports whether raw has the shape of an ID.
func Valid(raw string) bool {
	return idRegex.MatchString(raw)
}

// Tag returns the type tag, or "" when id is malformed.
func (id ID) Tag() string {
	tag, _, err := Parse(string(id))
	if err != nil {
		return ""
	}
	return tag
}

// Seq returns the sequence number, or 0 when id is malformed.
func (id ID) Seq() int {
	_, seq, err := Parse(string(id))
	if err != nil {
		return 0
	}
	return seq
}

func (id ID) String() string { return string(id) }

// Strings converts a list of IDs to plain strings.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// FromStrings converts plain strings to IDs without validating them.
func FromStrings(raw []string) []ID {
	out := make([]ID, len(raw))
	for i, s := range raw {
		out[i] = ID(s)
	}
	return out
}
