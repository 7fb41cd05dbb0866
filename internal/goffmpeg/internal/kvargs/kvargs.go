// Package kvargs turns option maps into command line arguments in a stable
// order.
package kvargs

import (
	"maps"
	"slices"
	"strings"
)

// MapToSortedArgs expands m with argFn in key order,
// {b: "2", a: "1"} -> [argFn("a", "1")..., argFn("b", "2")...]
func MapToSortedArgs(m map[string]string, argFn func(k, v string) []string) []string {
	s := make([]string, 0, len(m)*2)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		s = append(s, argFn(k, m[k])...)
	}
	return s
}

// OptionArg returns an argFn that makes "-k"+suffix, v. Keys already starting
// with "-" are kept as is.
func OptionArg(suffix string) func(k, v string) []string {
	return func(k, v string) []string {
		return []string{"-" + strings.TrimPrefix(k, "-") + suffix, v}
	}
}
