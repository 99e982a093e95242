// Package claims turns natural-language business questions into
// data-grounded insights over the claims warehouse. SQL produced by the
// model runs through a read-only sandbox before touching the database.
package claims

import (
	"regexp"
	"strings"

	"github.com/wandersure/wandersure-api/internal/errs"
)

var (
	blockCommentRe = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	selectShapeRe  = regexp.MustCompile(`^\s*(WITH\b[\s\S]*?\bSELECT\b|SELECT\b)`)
)

// forbiddenKeywords are statement types that mutate state or escape the
// sandbox. Matched as whole words delimited by non-letters, so INSERTED_AT
// passes while DROP_ME trips on DROP.
var forbiddenKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"DROP":     true,
	"TRUNCATE": true,
	"ALTER":    true,
	"CREATE":   true,
	"GRANT":    true,
	"REVOKE":   true,
	"EXECUTE":  true,
	"CALL":     true,
	"MERGE":    true,
	"REPLACE":  true,
	"RENAME":   true,
}

// ValidateReadOnly checks that sql is a pure read: comments are stripped,
// the statement must be SELECT-shaped (optionally behind a WITH clause) and
// free of write keywords. The check is deliberately blind to quoting, so a
// forbidden word inside a string literal is rejected too.
func ValidateReadOnly(sql string) error {
	normalized := blockCommentRe.ReplaceAllString(sql, " ")
	normalized = lineCommentRe.ReplaceAllString(normalized, " ")
	normalized = strings.ToUpper(normalized)

	if strings.TrimSpace(normalized) == "" {
		return errs.New(errs.KindInvalidArgument, "SQL is empty")
	}

	for _, token := range splitLetterWords(normalized) {
		if forbiddenKeywords[token] {
			return errs.Newf(errs.KindInvalidArgument, "statement type %s is not allowed in the claims sandbox", token)
		}
	}

	if !selectShapeRe.MatchString(normalized) {
		return errs.New(errs.KindInvalidArgument, "only SELECT queries are allowed in the claims sandbox")
	}
	return nil
}

func splitLetterWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r < 'A' || r > 'Z'
	})
}
