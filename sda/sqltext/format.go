package sqltext

import (
	"strings"
)

var keywords = map[string]bool{
	"SELECT": true, "DISTINCT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "IN": true, "IS": true, "NULL": true, "LIKE": true, "GLOB": true, "BETWEEN": true,
	"AS": true, "ON": true, "USING": true, "JOIN": true, "LEFT": true, "RIGHT": true, "INNER": true,
	"OUTER": true, "CROSS": true, "FULL": true, "NATURAL": true, "GROUP": true, "BY": true,
	"ORDER": true, "HAVING": true, "LIMIT": true, "OFFSET": true, "ASC": true, "DESC": true,
	"UNION": true, "ALL": true, "INTERSECT": true, "EXCEPT": true, "WITH": true, "RECURSIVE": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true, "EXISTS": true,
	"VALUES": true, "INSERT": true, "INTO": true, "UPDATE": true, "SET": true, "DELETE": true,
	"CREATE": true, "TABLE": true, "DROP": true, "ALTER": true, "EXPLAIN": true, "QUERY": true,
	"PLAN": true, "PRAGMA": true, "REPLACE": true, "NULLS": true, "FIRST": true, "LAST": true,
	"COLLATE": true, "ESCAPE": true, "OVER": true, "PARTITION": true, "WINDOW": true, "FILTER": true,
	"TRUE": true, "FALSE": true, "IF": true,
}

// clause keywords that begin a new line at nesting depth zero
var clauseStarts = map[string]bool{
	"FROM": true, "WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true,
	"LIMIT": true, "OFFSET": true, "WINDOW": true, "VALUES": true, "SET": true,
}

var joinModifiers = map[string]bool{
	"LEFT": true, "RIGHT": true, "INNER": true, "OUTER": true, "CROSS": true, "FULL": true, "NATURAL": true,
}

var setOperators = map[string]bool{"UNION": true, "INTERSECT": true, "EXCEPT": true}

var spacedBeforeParen = map[string]bool{
	"IN": true, "AS": true, "ON": true, "USING": true, "EXISTS": true, "VALUES": true,
	"AND": true, "OR": true, "NOT": true, "FROM": true, "JOIN": true, "WHERE": true,
	"SELECT": true, "WHEN": true, "THEN": true, "ELSE": true, "OVER": true, "FILTER": true,
	"BY": true, "HAVING": true, "UNION": true, "ALL": true, "INTERSECT": true, "EXCEPT": true,
	"WITH": true, "RECURSIVE": true, "IS": true, "LIKE": true, "BETWEEN": true, "CASE": true,
	"DISTINCT": true, "LIMIT": true, "OFFSET": true, "TABLE": true, "INTO": true,
}

const selectIndent = "       " // aligns continuation columns under the first one after "SELECT "

// Format reindents a statement and upper-cases its keywords. Comments are kept in place.
// The input is returned unchanged apart from whitespace; no semantic rewriting happens.
func Format(src string) (string, error) {
	toks, err := Tokenize(strings.TrimSpace(src))
	if err != nil {
		return "", err
	}

	var (
		b        strings.Builder
		depth    int
		clause   string // current depth-zero clause keyword
		prev     Token
		havePrev bool
		between  bool // inside BETWEEN x AND y
		fresh    bool // at the start of a line
	)
	newline := func(indent string) {
		b.WriteString("\n")
		b.WriteString(indent)
		fresh = true
	}
	for _, t := range toks {
		if t.Kind == KindSpace {
			continue
		}
		text := t.Text
		up := ""
		if t.Kind == KindWord {
			up = t.Upper()
			if keywords[up] {
				text = up
			}
		}

		breakBefore := ""
		if depth == 0 && t.Kind == KindWord && havePrev {
			switch {
			case clauseStarts[up]:
				if !(up == "VALUES" && clause == "") {
					breakBefore = "\n"
				}
			case setOperators[up]:
				breakBefore = "\n"
			case joinModifiers[up] && !joinModifiers[prev.Upper()]:
				breakBefore = "\n"
			case up == "JOIN" && !joinModifiers[prev.Upper()]:
				breakBefore = "\n"
			case (up == "AND" || up == "OR") && (clause == "WHERE" || clause == "HAVING") && !(up == "AND" && between):
				breakBefore = "\n  "
			case up == "SELECT" && setOperators[prev.Upper()] || up == "SELECT" && prev.Upper() == "ALL":
				breakBefore = "\n"
			}
		}

		switch {
		case breakBefore != "":
			newline(strings.TrimPrefix(breakBefore, "\n"))
		case havePrev && !fresh && needsSpace(prev, t):
			b.WriteString(" ")
		}
		if t.Kind == KindComment && strings.HasPrefix(t.Text, "--") {
			b.WriteString(strings.TrimRight(text, "\r\n"))
			newline("")
			havePrev = false
			continue
		}
		b.WriteString(text)
		fresh = false
		switch up {
		case "BETWEEN":
			between = true
		case "AND":
			between = false
		}

		if t.Kind == KindSymbol {
			switch t.Text {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			case ",":
				if depth == 0 && clause == "SELECT" {
					newline(selectIndent)
				}
			}
		}
		if depth == 0 && t.Kind == KindWord {
			switch {
			case up == "SELECT" || clauseStarts[up] || up == "JOIN" || up == "ON":
				clause = up
			case setOperators[up]:
				clause = ""
			}
		}
		prev, havePrev = t, true
	}
	return strings.TrimSpace(b.String()), nil
}

// MustFormat formats src and falls back to the raw text on any failure, including panics.
func MustFormat(src string) (out string) {
	defer func() {
		if recover() != nil {
			out = src
		}
	}()
	formatted, err := Format(src)
	if err != nil || formatted == "" {
		return src
	}
	return formatted
}

func needsSpace(prev, cur Token) bool {
	if cur.Kind == KindSymbol {
		switch cur.Text {
		case ",", ")", ".", ";":
			return false
		case "(":
			// function call: count(*), but keep "IN (" and "AS (" spaced
			if prev.Kind == KindWord && !spacedBeforeParen[prev.Upper()] || prev.Kind == KindQuoted {
				return false
			}
		}
	}
	if prev.Kind == KindSymbol && (prev.Text == "(" || prev.Text == ".") {
		return false
	}
	return true
}
