package sqltext

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmpty is returned when the input holds no statement.
	ErrEmpty = errors.New("no SQL statement given")
	// ErrMultipleStatements is returned when more than one statement is given.
	ErrMultipleStatements = errors.New("only a single statement is allowed")
)

// MutationError reports a statement that would write to the database.
type MutationError struct {
	Keyword string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("statement uses %s; only read-only queries are allowed", e.Keyword)
}

var readOnlyLeads = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"VALUES":  true,
	"EXPLAIN": true,
}

var mutating = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "REPLACE": true, "UPSERT": true,
	"MERGE": true, "DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true, "REINDEX": true,
	"ANALYZE": true, "GRANT": true, "REVOKE": true, "BEGIN": true, "COMMIT": true,
	"ROLLBACK": true, "SAVEPOINT": true, "RELEASE": true,
}

// CheckReadOnly accepts exactly one statement that cannot modify data.
// A mutating keyword used as a function name (e.g. replace(x, 'a', 'b')) is allowed.
func CheckReadOnly(src string) error {
	stmts, err := Statements(src)
	if err != nil {
		return err
	}
	switch {
	case len(stmts) == 0:
		return ErrEmpty
	case len(stmts) > 1:
		return ErrMultipleStatements
	}

	toks := significant(stmts[0])
	lead := toks[0]
	if lead.Kind != KindWord || !readOnlyLeads[lead.Upper()] {
		kw := lead.Text
		if lead.Kind == KindWord {
			kw = lead.Upper()
		}
		return &MutationError{Keyword: kw}
	}
	for i, t := range toks {
		if t.Kind != KindWord || !mutating[t.Upper()] {
			continue
		}
		if i+1 < len(toks) && toks[i+1].Kind == KindSymbol && toks[i+1].Text == "(" {
			continue
		}
		return &MutationError{Keyword: t.Upper()}
	}
	return nil
}

// FirstKeyword returns the upper-cased leading word of the first statement, or "".
func FirstKeyword(src string) string {
	stmts, err := Statements(StripFence(src))
	if err != nil || len(stmts) == 0 {
		return ""
	}
	lead := significant(stmts[0])[0]
	if lead.Kind != KindWord {
		return ""
	}
	return lead.Upper()
}

var statementLeads = map[string]bool{
	"SELECT": true, "WITH": true, "VALUES": true, "EXPLAIN": true, "INSERT": true,
	"UPDATE": true, "DELETE": true, "REPLACE": true, "CREATE": true, "DROP": true,
	"ALTER": true, "PRAGMA": true,
}

// LooksLikeSQL reports whether text reads as a SQL statement rather than prose or data.
func LooksLikeSQL(text string) bool {
	body := strings.TrimSpace(StripFence(text))
	if body == "" {
		return false
	}
	if !statementLeads[FirstKeyword(body)] {
		return false
	}
	// "Select the best team" is prose; a statement needs a second word that is not a sentence.
	fields := strings.Fields(body)
	return len(fields) > 1 && !strings.HasSuffix(body, "?")
}

// StripFence removes a surrounding ```lang ... ``` markdown fence when present.
func StripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return text
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		return text
	}
	body := t[nl+1:]
	end := strings.LastIndex(body, "```")
	if end < 0 {
		return text
	}
	return strings.TrimSpace(body[:end])
}
