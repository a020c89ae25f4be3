package keyexpr

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

func escapeChunk(chunk string) string {
	if chunk == Single {
		return chunk
	}
	var b strings.Builder
	for _, r := range chunk {
		switch {
		case r == '%' || r == '.' || r == '>' || unicode.IsSpace(r):
			for _, c := range []byte(string(r)) {
				fmt.Fprintf(&b, "%%%02X", c)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescapeChunk(chunk string) (string, error) {
	if !strings.Contains(chunk, "%") {
		return chunk, nil
	}
	s, err := url.PathUnescape(chunk)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalid, chunk)
	}
	return s, nil
}

func withPrefix(prefix string, tokens []string) string {
	if prefix == "" {
		return strings.Join(tokens, ".")
	}
	if len(tokens) == 0 {
		return prefix
	}
	return prefix + "." + strings.Join(tokens, ".")
}

// Subject maps a concrete key onto a NATS subject under prefix
func Subject(prefix, key string) (string, error) {
	if err := ValidateConcrete(key); err != nil {
		return "", err
	}
	chunks := strings.Split(key, Separator)
	tokens := make([]string, len(chunks))
	for i, c := range chunks {
		tokens[i] = escapeChunk(c)
	}
	return withPrefix(prefix, tokens), nil
}

// Subjects returns the NATS subjects covering every key matched by key. When
// exact is false the subjects over-approximate the expression and received
// keys must be filtered with Intersects.
func Subjects(prefix, key string) (subjects []string, exact bool, err error) {
	if err := Validate(key); err != nil {
		return nil, false, err
	}

	chunks := strings.Split(key, Separator)
	tokens := make([]string, 0, len(chunks))
	for i, c := range chunks {
		if c != Multi {
			tokens = append(tokens, escapeChunk(c))
			continue
		}
		exact = i == len(chunks)-1
		wide := withPrefix(prefix, append(tokens, ">"))
		if len(tokens) == 0 {
			return []string{wide}, exact, nil
		}
		return []string{withPrefix(prefix, tokens), wide}, exact, nil
	}
	return []string{withPrefix(prefix, tokens)}, true, nil
}

// FromSubject maps a NATS subject under prefix back to a key
func FromSubject(prefix, subject string) (string, error) {
	rest := subject
	if prefix != "" {
		var ok bool
		rest, ok = strings.CutPrefix(subject, prefix+".")
		if !ok {
			return "", fmt.Errorf("%w: subject %q is outside %q", ErrInvalid, subject, prefix)
		}
	}
	return fromTokens(strings.Split(rest, "."))
}

// RoutingKey maps a key expression onto an AMQP topic routing key or binding
func RoutingKey(key string) (string, error) {
	if err := Validate(key); err != nil {
		return "", err
	}
	chunks := strings.Split(key, Separator)
	words := make([]string, len(chunks))
	for i, c := range chunks {
		if c == Multi {
			words[i] = "#"
			continue
		}
		words[i] = escapeChunk(c)
	}
	return strings.Join(words, "."), nil
}

// FromRoutingKey maps an AMQP routing key back to a key
func FromRoutingKey(routingKey string) (string, error) {
	return fromTokens(strings.Split(routingKey, "."))
}

func fromTokens(tokens []string) (string, error) {
	chunks := make([]string, len(tokens))
	for i, t := range tokens {
		c, err := unescapeChunk(t)
		if err != nil {
			return "", err
		}
		chunks[i] = c
	}
	key := strings.Join(chunks, Separator)
	if err := Validate(key); err != nil {
		return "", err
	}
	return key, nil
}
