// Package sql provides static safety checks for statements sent to target databases.
package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	ErrEmptyQuery = errors.New("query is empty")

	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	ErrNotSelect = errors.New("only SELECT statements (optionally introduced by WITH) are allowed")

	ErrForbiddenKeyword = errors.New("query contains a forbidden keyword")
)

// ForbiddenKeywords may not appear as a whole word anywhere in the statement,
// string literals and comments included. Only quoted identifiers ("x", [x])
// are exempt so that columns named like a keyword stay queryable.
var ForbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "CREATE",
	"GRANT", "REVOKE", "COPY", "CALL",
	"MERGE", "EXEC", "EXECUTE", "INTO", "VACUUM", "REINDEX",
}

var forbiddenPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(ForbiddenKeywords, "|") + `)\b`)

var leadingKeywordPattern = regexp.MustCompile(`^[\s(]*([A-Za-z]+)`)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateReadOnly accepts a single SELECT or WITH ... SELECT statement.
//
// The validation order is:
//  1. Strip trailing semicolon and whitespace (normalize)
//  2. Reject any remaining semicolon outside literals (multiple statements)
//  3. Require SELECT or WITH as the leading keyword
//  4. Reject forbidden keywords appearing as whole words
func ValidateReadOnly(sqlQuery string) ValidationResult {
	normalized := stripTrailingSemicolon(strings.TrimSpace(sqlQuery))
	if normalized == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	code, keywordText := scanSQL(normalized)

	if strings.Contains(code, ";") {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	m := leadingKeywordPattern.FindStringSubmatch(code)
	if m == nil {
		return ValidationResult{Error: ErrNotSelect}
	}
	switch strings.ToUpper(m[1]) {
	case "SELECT", "WITH":
	default:
		return ValidationResult{Error: ErrNotSelect}
	}

	if kw := forbiddenPattern.FindString(keywordText); kw != "" {
		return ValidationResult{Error: fmt.Errorf("%w: %s", ErrForbiddenKeyword, strings.ToUpper(kw))}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// maskNonCode blanks out string literals, quoted identifiers ("x" and [x]) and
// comments so that later checks only see executable SQL text. Positions are
// preserved; masked runes become spaces.
func maskNonCode(sqlQuery string) string {
	code, _ := scanSQL(sqlQuery)
	return code
}

// scanSQL walks the statement once and returns two position-preserving views:
// code, where literals, quoted identifiers and comments are blanked, and
// keywordText, where only quoted identifiers are blanked.
//
// Inside '...' and "..." only a doubled quote keeps the token open; a backslash
// is an ordinary character, as with standard_conforming_strings and on SQL
// Server. Backslash escapes apply only to Postgres E'...' strings.
func scanSQL(sqlQuery string) (code, keywordText string) {
	const (
		stateNormal = iota
		stateSingleQuote
		stateEscapeString
		stateDoubleQuote
		stateBracket
		stateLineComment
		stateBlockComment
	)

	runes := []rune(sqlQuery)
	codeOut := make([]rune, len(runes))
	kwOut := make([]rune, len(runes))
	state := stateNormal
	prevChar := rune(0)
	escaped := false

	for i, char := range runes {
		codeOut[i] = ' '
		kwOut[i] = char
		switch state {
		case stateNormal:
			switch {
			case char == '\'' && isEscapePrefix(runes, i):
				state = stateEscapeString
			case char == '\'':
				state = stateSingleQuote
			case char == '"':
				state = stateDoubleQuote
				kwOut[i] = ' '
			case char == '[':
				state = stateBracket
				kwOut[i] = ' '
			case char == '-' && i+1 < len(runes) && runes[i+1] == '-':
				state = stateLineComment
			case char == '/' && i+1 < len(runes) && runes[i+1] == '*':
				state = stateBlockComment
			default:
				codeOut[i] = char
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters the literal.
			if char == '\'' {
				state = stateNormal
			}
		case stateEscapeString:
			switch {
			case escaped:
				escaped = false
			case char == '\\':
				escaped = true
			case char == '\'' && i+1 < len(runes) && runes[i+1] == '\'':
				escaped = true
			case char == '\'':
				state = stateNormal
			}
		case stateDoubleQuote:
			kwOut[i] = ' '
			if char == '"' {
				state = stateNormal
			}
		case stateBracket:
			kwOut[i] = ' '
			if char == ']' {
				state = stateNormal
			}
		case stateLineComment:
			if char == '\n' {
				state = stateNormal
				codeOut[i] = char
			}
		case stateBlockComment:
			if char == '/' && prevChar == '*' {
				state = stateNormal
				char = 0 // "*/*" must not reopen a comment
			}
		}
		prevChar = char
	}

	return string(codeOut), string(kwOut)
}

// isEscapePrefix reports whether the quote at i opens a Postgres E'...' string:
// it follows a lone E or e that is not the tail of a longer identifier.
func isEscapePrefix(runes []rune, i int) bool {
	if i == 0 || (runes[i-1] != 'E' && runes[i-1] != 'e') {
		return false
	}
	if i == 1 {
		return true
	}
	p := runes[i-2]
	return !(p == '_' || p == '$' || unicode.IsLetter(p) || unicode.IsDigit(p))
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
