// Package variable centralizes the placement rules for the twenty data
// items x1..x20: which are replicated, which site uniquely owns a
// non-replicated one, and their initial committed values.
package variable

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Count = 20
	Sites = 10
)

// Index parses "x7" into 7, tolerating surrounding whitespace.
func Index(name string) (int, error) {
	trimmed := strings.TrimSpace(name)
	trimmed = strings.TrimPrefix(trimmed, "x")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("variable: malformed name %q: %w", name, err)
	}
	return n, nil
}

// Name renders the canonical "xN" form.
func Name(i int) string {
	return fmt.Sprintf("x%d", i)
}

// IsReplicated reports whether variable i lives at every site.
func IsReplicated(i int) bool {
	return i%2 == 0
}

// HomeSite returns the unique site id that holds a non-replicated
// (odd-indexed) variable. Undefined for replicated variables.
func HomeSite(i int) int {
	return 1 + i%10
}

// InitialValue is the value committed at logical time 0.
func InitialValue(i int) int64 {
	return int64(10 * i)
}

// HeldBySite reports whether site id holds variable i at all, per the
// placement rule (replicated variables are held everywhere, odd ones
// only at their home site).
func HeldBySite(i, site int) bool {
	if IsReplicated(i) {
		return true
	}
	return HomeSite(i) == site
}
