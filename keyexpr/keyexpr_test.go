package keyexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("accepts well-formed expressions", func(t *testing.T) {
		for _, k := range []string{"a", "demo/example", "demo/*/temp", "demo/**", "**", "a/**/b", "with space/x.y"} {
			assert.NoError(t, Validate(k), k)
		}
	})

	t.Run("rejects malformed expressions", func(t *testing.T) {
		assert.ErrorIs(t, Validate(""), ErrEmpty)
		for _, k := range []string{"/a", "a/", "a//b", "a/b*", "a/**x", "a/#", "a?b", "$a"} {
			assert.ErrorIs(t, Validate(k), ErrInvalid, k)
		}
	})

	t.Run("ValidateConcrete rejects wildcards", func(t *testing.T) {
		assert.NoError(t, ValidateConcrete("demo/a"))
		assert.ErrorIs(t, ValidateConcrete("demo/*"), ErrWildcard)
		assert.ErrorIs(t, ValidateConcrete("demo/**"), ErrWildcard)
	})
}

func TestIntersects(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/*", "a/b", true},
		{"a/*", "a/b/c", false},
		{"a/**", "a", true},
		{"a/**", "a/b/c", true},
		{"**", "x/y", true},
		{"a/**/c", "a/b/b/c", true},
		{"a/**/c", "a/b/d", false},
		{"a/*/c", "a/**", true},
		{"*/b", "a/*", true},
		{"a/*", "b/**", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Intersects(tc.a, tc.b), "%s ∩ %s", tc.a, tc.b)
		assert.Equal(t, tc.want, Intersects(tc.b, tc.a), "%s ∩ %s", tc.b, tc.a)
	}
}

func TestIncludes(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"a/b", "a/b", true},
		{"a/*", "a/b", true},
		{"a/b", "a/*", false},
		{"a/**", "a/*/c", true},
		{"a/**", "a", true},
		{"**", "a/**", true},
		{"a/*", "a/**", false},
		{"a/*/c", "a/b/c", true},
		{"a/**/c", "a/c", true},
		{"a/**/c", "a/b", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Includes(tc.a, tc.b), "%s ⊇ %s", tc.a, tc.b)
	}
}

func TestSubjects(t *testing.T) {
	t.Run("concrete key", func(t *testing.T) {
		subjects, exact, err := Subjects("nuze", "demo/a")
		require.NoError(t, err)
		assert.True(t, exact)
		assert.Equal(t, []string{"nuze.demo.a"}, subjects)
	})

	t.Run("single wildcard", func(t *testing.T) {
		subjects, exact, err := Subjects("nuze", "demo/*/temp")
		require.NoError(t, err)
		assert.True(t, exact)
		assert.Equal(t, []string{"nuze.demo.*.temp"}, subjects)
	})

	t.Run("trailing multi wildcard covers the bare prefix", func(t *testing.T) {
		subjects, exact, err := Subjects("nuze", "demo/**")
		require.NoError(t, err)
		assert.True(t, exact)
		assert.Equal(t, []string{"nuze.demo", "nuze.demo.>"}, subjects)
	})

	t.Run("inner multi wildcard needs local filtering", func(t *testing.T) {
		subjects, exact, err := Subjects("nuze", "demo/**/temp")
		require.NoError(t, err)
		assert.False(t, exact)
		assert.Equal(t, []string{"nuze.demo", "nuze.demo.>"}, subjects)
	})

	t.Run("bare multi wildcard", func(t *testing.T) {
		subjects, exact, err := Subjects("nuze", "**")
		require.NoError(t, err)
		assert.True(t, exact)
		assert.Equal(t, []string{"nuze.>"}, subjects)
	})

	t.Run("escapes reserved characters", func(t *testing.T) {
		subject, err := Subject("nuze", "a.b/c d/100%")
		require.NoError(t, err)
		assert.Equal(t, "nuze.a%2Eb.c%20d.100%25", subject)

		key, err := FromSubject("nuze", subject)
		require.NoError(t, err)
		assert.Equal(t, "a.b/c d/100%", key)
	})

	t.Run("Subject refuses wildcards", func(t *testing.T) {
		_, err := Subject("nuze", "demo/*")
		assert.ErrorIs(t, err, ErrWildcard)
	})

	t.Run("FromSubject checks the prefix", func(t *testing.T) {
		_, err := FromSubject("nuze", "other.a")
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestRoutingKey(t *testing.T) {
	rk, err := RoutingKey("demo/**/x.y")
	require.NoError(t, err)
	assert.Equal(t, "demo.#.x%2Ey", rk)

	key, err := FromRoutingKey("demo.a.x%2Ey")
	require.NoError(t, err)
	assert.Equal(t, "demo/a/x.y", key)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "@liveliness/demo/a", Join("@liveliness", "demo/a"))
	assert.Equal(t, "a/b", Join("", "a/", "/b"))
}
