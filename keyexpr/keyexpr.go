package keyexpr

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Separator separates chunks
	Separator = "/"
	// Single matches exactly one chunk
	Single = "*"
	// Multi matches zero or more chunks
	Multi = "**"
)

var (
	// ErrEmpty is returned for an empty key expression
	ErrEmpty = errors.New("keyexpr: empty key expression")
	// ErrInvalid is returned for a malformed key expression
	ErrInvalid = errors.New("keyexpr: invalid key expression")
	// ErrWildcard is returned where a concrete key is required
	ErrWildcard = errors.New("keyexpr: wildcards are not allowed here")
)

// Validate checks that s is a well-formed key expression
func Validate(s string) error {
	if s == "" {
		return ErrEmpty
	}
	if strings.ContainsAny(s, "#?$") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalid, s)
	}
	for _, chunk := range strings.Split(s, Separator) {
		if chunk == "" {
			return fmt.Errorf("%w: %q has an empty chunk", ErrInvalid, s)
		}
		if strings.Contains(chunk, Single) && chunk != Single && chunk != Multi {
			return fmt.Errorf("%w: %q has a partial wildcard chunk %q", ErrInvalid, s, chunk)
		}
	}
	return nil
}

// IsWild reports whether s contains a wildcard chunk
func IsWild(s string) bool {
	for _, chunk := range strings.Split(s, Separator) {
		if chunk == Single || chunk == Multi {
			return true
		}
	}
	return false
}

// ValidateConcrete checks that s is a well-formed key without wildcards
func ValidateConcrete(s string) error {
	if err := Validate(s); err != nil {
		return err
	}
	if IsWild(s) {
		return fmt.Errorf("%w: %q", ErrWildcard, s)
	}
	return nil
}

// Join concatenates key expressions with the separator, skipping empty parts
func Join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.Trim(p, Separator); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, Separator)
}

// Intersects reports whether at least one key matches both a and b
func Intersects(a, b string) bool {
	m := newMatcher(a, b)
	return m.intersects(0, 0)
}

// Includes reports whether every key matched by b is also matched by a
func Includes(a, b string) bool {
	m := newMatcher(a, b)
	return m.includes(0, 0)
}

type matcher struct {
	a, b []string
	memo map[[2]int]bool
}

func newMatcher(a, b string) *matcher {
	return &matcher{
		a:    strings.Split(a, Separator),
		b:    strings.Split(b, Separator),
		memo: make(map[[2]int]bool),
	}
}

func allMulti(chunks []string) bool {
	for _, c := range chunks {
		if c != Multi {
			return false
		}
	}
	return true
}

func (m *matcher) intersects(i, j int) bool {
	key := [2]int{i, j}
	if v, ok := m.memo[key]; ok {
		return v
	}

	var result bool
	switch {
	case i == len(m.a) && j == len(m.b):
		result = true
	case i == len(m.a):
		result = allMulti(m.b[j:])
	case j == len(m.b):
		result = allMulti(m.a[i:])
	case m.a[i] == Multi:
		result = m.intersects(i+1, j) || m.intersects(i, j+1)
	case m.b[j] == Multi:
		result = m.intersects(i, j+1) || m.intersects(i+1, j)
	case m.a[i] == Single || m.b[j] == Single || m.a[i] == m.b[j]:
		result = m.intersects(i+1, j+1)
	}

	m.memo[key] = result
	return result
}

func (m *matcher) includes(i, j int) bool {
	key := [2]int{i, j}
	if v, ok := m.memo[key]; ok {
		return v
	}

	var result bool
	switch {
	case i == len(m.a):
		result = j == len(m.b)
	case j == len(m.b):
		result = allMulti(m.a[i:])
	case m.a[i] == Multi:
		result = m.includes(i+1, j) || m.includes(i, j+1)
	case m.b[j] == Multi:
		result = false
	case m.b[j] == Single:
		result = m.a[i] == Single && m.includes(i+1, j+1)
	case m.a[i] == Single || m.a[i] == m.b[j]:
		result = m.includes(i+1, j+1)
	}

	m.memo[key] = result
	return result
}
