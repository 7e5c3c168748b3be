// Package ranking validates compact permutation strings such as "213",
// where each digit is the rank given to the item at that position.
package ranking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmpty          = errors.New("ranking is empty")
	ErrNonDigit       = errors.New("ranking may only contain digits")
	ErrTooLong        = errors.New("ranking is longer than allowed")
	ErrDuplicate      = errors.New("ranking repeats a rank")
	ErrNonPositive    = errors.New("ranks must be positive")
	ErrNotPermutation = errors.New("ranking must use each rank from 1 to its length exactly once")
)

// Validate checks that s, after trimming whitespace, is a permutation of
// 1..len(s) and returns the ranks in order. A bound of zero or less disables
// the length bound.
func Validate(s string, bound int) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmpty
	}

	for i, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q at position %d", ErrNonDigit, r, i+1)
		}
	}

	n := len(s)
	if bound > 0 && n > bound {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLong, n, bound)
	}

	var seen [10]bool
	order := make([]int, n)
	for i := 0; i < n; i++ {
		d := int(s[i] - '0')
		if seen[d] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicate, d)
		}
		seen[d] = true
		order[i] = d
	}

	for _, d := range order {
		if d <= 0 {
			return nil, ErrNonPositive
		}
	}

	for rank := 1; rank <= n; rank++ {
		if !seen[rank] {
			return nil, fmt.Errorf("%w: missing %d", ErrNotPermutation, rank)
		}
	}

	return order, nil
}

// Format renders ranks back into the compact string form.
func Format(order []int) string {
	var b strings.Builder
	for _, d := range order {
		b.WriteString(strconv.Itoa(d))
	}
	return b.String()
}
