package command

import (
	"strings"
	"unicode"
)

// tokenize splits on whitespace, keeping double-quoted segments as one token.
func tokenize(raw string) ([]string, error) {
	var (
		tokens   []string
		current  strings.Builder
		inQuotes bool
		hasToken bool
	)

	flush := func() {
		if hasToken {
			tokens = append(tokens, current.String())
		}
		current.Reset()
		hasToken = false
	}

	for _, r := range raw {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			// "" still yields a (empty) token
			hasToken = true
		case unicode.IsSpace(r) && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
			hasToken = true
		}
	}

	if inQuotes {
		return nil, ErrUnmatchedQuote
	}
	flush()

	return tokens, nil
}

// stripPrefix removes the command prefix ("/", "!", "+", ...) from the trigger token.
func stripPrefix(tok string) string {
	return strings.TrimLeftFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
