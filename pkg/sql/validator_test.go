package sql

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateReadOnly_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple select with trailing semicolon and whitespace",
			input:    "SELECT 1;  ",
			expected: "SELECT 1",
		},
		{
			name:     "lowercase select",
			input:    "select id, email from public.users where id = 1",
			expected: "select id, email from public.users where id = 1",
		},
		{
			name:     "with clause",
			input:    "WITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent;",
			expected: "WITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent",
		},
		{
			name:     "parenthesized select",
			input:    "(SELECT 1) UNION (SELECT 2)",
			expected: "(SELECT 1) UNION (SELECT 2)",
		},
		{
			name:     "semicolon inside single quoted string",
			input:    "SELECT * FROM users WHERE name = 'test;test'",
			expected: "SELECT * FROM users WHERE name = 'test;test'",
		},
		{
			name:     "forbidden word as quoted identifier",
			input:    `SELECT "update" FROM events`,
			expected: `SELECT "update" FROM events`,
		},
		{
			name:     "forbidden word as bracket identifier",
			input:    "SELECT [create] FROM dbo.events",
			expected: "SELECT [create] FROM dbo.events",
		},
		{
			name:     "forbidden word only as prefix of an identifier",
			input:    "SELECT updated_at, deleted FROM users",
			expected: "SELECT updated_at, deleted FROM users",
		},
		{
			name:     "backslash is an ordinary character in a literal",
			input:    `SELECT 'C:\temp\' AS dir, 'x' AS y`,
			expected: `SELECT 'C:\temp\' AS dir, 'x' AS y`,
		},
		{
			name:     "escape string keeps escaped quote inside",
			input:    `SELECT E'it\'s; fine' AS x`,
			expected: `SELECT E'it\'s; fine' AS x`,
		},
		{
			name:     "trailing backslash closes literal",
			input:    `SELECT * FROM t WHERE name = 'a\' AND size > 1`,
			expected: `SELECT * FROM t WHERE name = 'a\' AND size > 1`,
		},
		{
			name:     "escaped quote in literal",
			input:    "SELECT 'it''s; fine' AS x",
			expected: "SELECT 'it''s; fine' AS x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateReadOnly(tt.input)
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.NormalizedSQL != tt.expected {
				t.Errorf("got %q, want %q", result.NormalizedSQL, tt.expected)
			}
		})
	}
}

func TestValidateReadOnly_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: "   ;", wantErr: ErrEmptyQuery},
		{name: "multiple statements", input: "SELECT 1; SELECT 2", wantErr: ErrMultipleStatements},
		{name: "stacked drop", input: "SELECT 1; DROP TABLE users;", wantErr: ErrMultipleStatements},
		{name: "update", input: "UPDATE users SET email = NULL", wantErr: ErrNotSelect},
		{name: "lowercase delete", input: "delete from users", wantErr: ErrNotSelect},
		{name: "show", input: "SHOW search_path", wantErr: ErrNotSelect},
		{name: "modifying cte", input: "WITH d AS (DELETE FROM users RETURNING *) SELECT * FROM d", wantErr: ErrForbiddenKeyword},
		{name: "select into", input: "SELECT * INTO backup FROM users", wantErr: ErrForbiddenKeyword},
		{name: "for update lock", input: "SELECT * FROM users FOR UPDATE", wantErr: ErrForbiddenKeyword},
		{name: "mixed case keyword", input: "SELECT 1 FROM t WHERE x IN (sElEcT 1) UNION SELECT * FROM dRoP", wantErr: ErrForbiddenKeyword},
		{name: "copy", input: "WITH x AS (SELECT 1) SELECT * FROM x; COPY x TO '/tmp/x'", wantErr: ErrMultipleStatements},
		{name: "call in subquery", input: "SELECT * FROM (CALL proc()) p", wantErr: ErrForbiddenKeyword},
		{name: "backslash does not escape closing quote", input: `SELECT 'a\'; DROP TABLE users; --'`, wantErr: ErrMultipleStatements},
		{name: "backslash in double quoted identifier", input: `SELECT "a\"; DROP TABLE users; --"`, wantErr: ErrMultipleStatements},
		{name: "forbidden word inside string literal", input: "SELECT * FROM audit WHERE action = 'please DELETE me'", wantErr: ErrForbiddenKeyword},
		{name: "forbidden word in line comment", input: "SELECT 1 -- drop everything\nFROM t", wantErr: ErrForbiddenKeyword},
		{name: "forbidden word in block comment", input: "SELECT /* truncate */ 1", wantErr: ErrForbiddenKeyword},
		{name: "keyword after block comment", input: "SELECT /* hi */ 1 FROM t WHERE EXISTS (SELECT 1) OR grant", wantErr: ErrForbiddenKeyword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateReadOnly(tt.input)
			if result.Error == nil {
				t.Fatalf("expected error for %q, got none", tt.input)
			}
			if !errors.Is(result.Error, tt.wantErr) {
				t.Errorf("got error %v, want %v", result.Error, tt.wantErr)
			}
			if result.NormalizedSQL != "" {
				t.Errorf("expected empty normalized SQL on error, got %q", result.NormalizedSQL)
			}
		})
	}
}

func TestValidateReadOnly_ForbiddenKeywordsNamed(t *testing.T) {
	for _, kw := range []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "CREATE", "GRANT", "REVOKE", "COPY", "CALL"} {
		t.Run(kw, func(t *testing.T) {
			result := ValidateReadOnly("SELECT * FROM t WHERE " + kw + " = 1")
			if !errors.Is(result.Error, ErrForbiddenKeyword) {
				t.Fatalf("expected forbidden keyword error, got %v", result.Error)
			}
		})
	}
}

func TestScanSQL_KeywordTextKeepsLiteralsAndComments(t *testing.T) {
	code, keywordText := scanSQL(`SELECT 'drop' /* alter */, "update" FROM t`)
	if strings.Contains(code, "drop") || strings.Contains(code, "alter") {
		t.Errorf("code view should mask literals and comments, got %q", code)
	}
	if !strings.Contains(keywordText, "'drop'") || !strings.Contains(keywordText, "/* alter */") {
		t.Errorf("keyword view should keep literals and comments, got %q", keywordText)
	}
	if strings.Contains(keywordText, "update") {
		t.Errorf("keyword view should mask quoted identifiers, got %q", keywordText)
	}
}

func TestIsEscapePrefix(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "E'x'", want: true},
		{input: "SELECT e'x'", want: true},
		{input: "SELECT 'x'", want: false},
		{input: "SELECT type'x'", want: false},
		{input: "SELECT some_e'x'", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			runes := []rune(tt.input)
			i := strings.IndexRune(tt.input, '\'')
			if got := isEscapePrefix(runes, len([]rune(tt.input[:i]))); got != tt.want {
				t.Errorf("isEscapePrefix(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestMaskNonCode(t *testing.T) {
	got := maskNonCode("SELECT 'a;b' /* c */ FROM \"d\"")
	want := "SELECT" + strings.Repeat(" ", 15) + "FROM" + strings.Repeat(" ", 4)
	if got != want {
		t.Errorf("maskNonCode() = %q, want %q", got, want)
	}
}
