// Package sqlguard statically checks SQL text before it reaches the backing
// store. It is an allow-by-shape filter, not a parser: a statement is
// accepted only when it is a single SELECT/WITH/INSERT/UPDATE/DELETE with
// no administrative keywords anywhere in it.
package sqlguard

import (
	"regexp"
	"strings"

	"github.com/agentoven/larder/internal/errs"
)

// QueryType is the verb class of an accepted statement.
type QueryType string

const (
	QuerySelect QueryType = "select"
	QueryInsert QueryType = "insert"
	QueryUpdate QueryType = "update"
	QueryDelete QueryType = "delete"
)

// IsMutation reports whether the statement writes.
func (q QueryType) IsMutation() bool {
	return q != QuerySelect
}

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// blockedKeywords are rejected anywhere in the statement.
var blockedKeywords = []string{
	"DROP", "ALTER", "CREATE", "TRUNCATE", "GRANT", "REVOKE", "COPY",
	"EXECUTE", "CALL", "LOCK", "VACUUM", "CLUSTER", "REINDEX", "COMMENT",
	"SECURITY", "OWNER",
}

// blockedLeaders are session/procedural statements. They only ever appear
// as the statement head; inside DML (UPDATE ... SET, ON CONFLICT DO) the
// same words are legitimate.
var blockedLeaders = []string{"SET", "DO"}

var blockedPatterns = compileKeywords(blockedKeywords)

func compileKeywords(words []string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(words))
	for _, w := range words {
		out[w] = regexp.MustCompile(`(?i)\b` + w + `\b`)
	}
	return out
}

var leaders = []struct {
	prefix string
	typ    QueryType
}{
	{"SELECT", QuerySelect},
	{"WITH", QuerySelect},
	{"INSERT", QueryInsert},
	{"UPDATE", QueryUpdate},
	{"DELETE", QueryDelete},
}

// Strip removes line and block comments and surrounding whitespace.
func Strip(sql string) string {
	s := lineComment.ReplaceAllString(sql, "")
	s = blockComment.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Validate classifies sql or returns a KindValidation error explaining why
// it was rejected.
func Validate(sql string) (QueryType, error) {
	stripped := Strip(sql)
	if stripped == "" {
		return "", errs.Validation("Empty query")
	}

	if strings.Contains(stripped, ";") {
		return "", errs.Validation("Multiple statements not allowed (no semicolons)")
	}

	for _, kw := range blockedKeywords {
		if blockedPatterns[kw].MatchString(stripped) {
			return "", errs.Validation("Forbidden keyword: %s", kw)
		}
	}

	upper := strings.ToUpper(stripped)
	head := firstWord(upper)
	for _, kw := range blockedLeaders {
		if head == kw {
			return "", errs.Validation("Forbidden keyword: %s", kw)
		}
	}

	for _, l := range leaders {
		if head == l.prefix {
			return l.typ, nil
		}
	}

	return "", errs.Validation("Query must start with SELECT, WITH, INSERT, UPDATE, or DELETE")
}

func firstWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r == '_')
	})
	if end < 0 {
		return s
	}
	return s[:end]
}
