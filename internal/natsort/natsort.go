// Package natsort orders file names the way a person reads them: runs of
// digits compare by numeric value, everything else compares lexically.
package natsort

import (
	"sort"
	"strings"

	"github.com/fvbommel/sortorder"
)

// Compare returns -1, 0 or +1 depending on whether a sorts before, equal to
// or after b.
//
// Names are first compared case-insensitively. Names that only differ by
// case fall back to a case-sensitive natural comparison, so Compare only
// returns 0 for identical strings. Numbers with the same value but different
// zero padding order fewer zeros first: "p2" < "p02" < "p3".
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		if sortorder.NaturalLess(la, lb) {
			return -1
		}
		if sortorder.NaturalLess(lb, la) {
			return 1
		}
	}
	if sortorder.NaturalLess(a, b) {
		return -1
	}
	if sortorder.NaturalLess(b, a) {
		return 1
	}
	// Unreachable for distinct strings; keep the order total regardless.
	if a < b {
		return -1
	}
	return 1
}

// Less reports whether a sorts strictly before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Sort sorts names in place in natural order.
func Sort(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return Less(names[i], names[j])
	})
}
