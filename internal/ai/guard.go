package ai

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeQuery is returned for generated SQL the agent refuses to run.
var ErrUnsafeQuery = errors.New("ai: unsafe query")

var (
	fencedSQL  = regexp.MustCompile("(?s)```(?i:sql)?\\s*(.*?)(?:```|$)")
	sqlTag     = regexp.MustCompile(`(?i)^sql\s+`)
	forbidden  = regexp.MustCompile(`(?i)\b(?:(?:INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE|RENAME|ATTACH|DETACH|OPTIMIZE|GRANT|REVOKE|KILL|SETTINGS|OUTFILE)\b|SYSTEM\s*\.)`)
	tableFuncs = regexp.MustCompile(`(?i)\b(url|file|remote|remoteSecure|cluster|s3|hdfs|mysql|postgresql|jdbc|odbc|executable|numbers)\s*\(`)
	sources    = regexp.MustCompile("(?i)\\b(?:FROM|JOIN)\\s+([\\w.`\"]+)")
)

// sanitizeSQL pulls the query out of a model reply: the first fenced block
// if there is one, otherwise the whole reply, minus trailing semicolons.
func sanitizeSQL(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedSQL.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = sqlTag.ReplaceAllString(strings.TrimSpace(s), "")
	return strings.TrimSpace(strings.TrimRight(s, "; \t\n"))
}

// checkQuery accepts a single read-only SELECT whose every FROM and JOIN
// names t.
func (t Table) checkQuery(q string) error {
	if q == "" {
		return fmt.Errorf("%w: empty query", ErrUnsafeQuery)
	}
	if !strings.HasPrefix(strings.ToUpper(q), "SELECT") {
		return fmt.Errorf("%w: only SELECT is allowed, got %q", ErrUnsafeQuery, q[:min(20, len(q))])
	}
	if strings.Contains(q, ";") {
		return fmt.Errorf("%w: multiple statements", ErrUnsafeQuery)
	}
	if m := forbidden.FindString(q); m != "" {
		return fmt.Errorf("%w: keyword %q", ErrUnsafeQuery, strings.ToUpper(m))
	}
	if m := tableFuncs.FindStringSubmatch(q); m != nil {
		return fmt.Errorf("%w: table function %s()", ErrUnsafeQuery, m[1])
	}

	refs := sources.FindAllStringSubmatch(q, -1)
	if len(refs) == 0 {
		return fmt.Errorf("%w: query must read %s", ErrUnsafeQuery, t.Qualified())
	}
	for _, ref := range refs {
		name := strings.ToLower(strings.NewReplacer("`", "", `"`, "").Replace(ref[1]))
		if name != strings.ToLower(t.Name) && name != strings.ToLower(t.Qualified()) {
			return fmt.Errorf("%w: query must read %s, not %s", ErrUnsafeQuery, t.Qualified(), ref[1])
		}
	}
	return nil
}
