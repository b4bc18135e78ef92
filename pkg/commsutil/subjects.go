package commsutil

import (
	"fmt"
	"strings"
	"unicode"
)

// SubjectCalled is the global subject every call event is published to.
const SubjectCalled = "connectors.called"

// BuildCallSubject returns connectors.called.<connector>.<method>. Subject separators,
// wildcards, whitespace and control characters inside a token become underscores.
func BuildCallSubject(connector, method string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectCalled, token(connector), token(method))
}

func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.', r == '*', r == '>', unicode.IsSpace(r), unicode.IsControl(r):
			return '_'
		}
		return r
	}, s)
}
