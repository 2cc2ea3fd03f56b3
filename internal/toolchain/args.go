package toolchain

import "strings"

// Args is an ordered list of command-line tokens built flag by flag. Values
// are never re-split, so a value containing spaces stays one argv element.
type Args struct {
	tokens []string
}

// Flag appends a bare flag such as "-decoy".
func (a *Args) Flag(name string) *Args {
	a.tokens = append(a.tokens, "-"+strings.TrimLeft(name, "-"))
	return a
}

// Pair appends "-name value".
func (a *Args) Pair(name, value string) *Args {
	a.Flag(name)
	a.tokens = append(a.tokens, value)
	return a
}

// Strings returns a copy of the tokens.
func (a *Args) Strings() []string {
	return append([]string{}, a.tokens...)
}
