package logging

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_.]+`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// OpenAI / Anthropic style secret keys embedded in provider errors
	secretKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9-_]{16,}`)

	// user:pass@host
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	// Driver position details that leak nothing useful to API callers
	positionPattern = regexp.MustCompile(`\s*\(SQLSTATE [0-9A-Z]{5}\)|\s+at character \d+`)
)

// SanitizeConnectionString removes sensitive data from connection strings.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError sanitizes error messages that might contain sensitive data.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitize(err.Error())
}

func sanitize(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = secretKeyPattern.ReplaceAllString(s, RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeDriverError turns a database driver error into a message safe to hand
// back to API callers. PostgreSQL errors keep their SQLSTATE as a prefix.
func SanitizeDriverError(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Sprintf("%s: %s", pgErr.Code, sanitize(pgErr.Message))
	}

	msg := positionPattern.ReplaceAllString(err.Error(), "")
	return strings.TrimSpace(sanitize(msg))
}

// SanitizeQuery truncates and sanitizes a SQL query for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	sanitized := TruncateString(query, MaxQueryLogLength)
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
