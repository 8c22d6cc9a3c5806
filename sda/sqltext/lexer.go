// Package sqltext is a small lexical toolkit for SQLite statements: tokenizing,
// statement splitting, read-only classification and pretty-printing.
//
// Tokens come from the SQLite ANTLR lexer that libsql ships. Nothing here
// builds a parse tree; anything that needs a real parse (validation, planning)
// goes to the database through EXPLAIN.
package sqltext

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/antlr4-go/antlr/v4"
	"github.com/libsql/sqlite-antlr4-parser/sqliteparser"
	"github.com/libsql/sqlite-antlr4-parser/sqliteparserutils"
)

// Kind is the lexical class of a token.
type Kind int

const (
	KindSpace   Kind = iota
	KindWord         // bare identifier or keyword
	KindQuoted       // "ident", `ident` or [ident]
	KindString       // 'literal' or X'blob'
	KindNumber       // 42, 3.14, 1e9, 0x1F
	KindSymbol       // punctuation and operators
	KindComment      // -- line or /* block */
	KindParam        // ?, ?1, :name, @name, $name
)

// Token is a slice of the source with its class.
type Token struct {
	Kind Kind
	Text string

	start, stop int // rune offsets, inclusive
}

// Upper returns the upper-cased text of a word token.
func (t Token) Upper() string { return strings.ToUpper(t.Text) }

// Significant reports whether the token carries meaning (not space or comment).
func (t Token) Significant() bool { return t.Kind != KindSpace && t.Kind != KindComment }

// ErrUnterminated is returned for an unclosed literal, quoted identifier or comment.
var ErrUnterminated = errors.New("unterminated token")

// Tokenize splits src into tokens. Concatenating the token texts yields src.
func Tokenize(src string) ([]Token, error) {
	lexer := sqliteparser.NewSQLiteLexer(antlr.NewInputStream(src))
	lexer.RemoveErrorListeners()

	raw := lexer.GetAllTokens()
	toks := make([]Token, 0, len(raw))
	for i, rt := range raw {
		tok := Token{Kind: kindOf(rt), Text: rt.GetText(), start: rt.GetStart(), stop: rt.GetStop()}

		if rt.GetTokenType() == sqliteparser.SQLiteLexerUNEXPECTED_CHAR {
			switch tok.Text {
			case "'", `"`, "`", "[":
				return nil, fmt.Errorf("%w: quoted text at offset %d", ErrUnterminated, tok.start)
			}
		}
		// a complete block comment is a single hidden token; "/" directly
		// followed by "*" only survives when the comment never closes
		if rt.GetTokenType() == sqliteparser.SQLiteLexerDIV && i+1 < len(raw) &&
			raw[i+1].GetTokenType() == sqliteparser.SQLiteLexerSTAR && raw[i+1].GetStart() == tok.stop+1 {
			return nil, fmt.Errorf("%w: block comment at offset %d", ErrUnterminated, tok.start)
		}

		if n := len(toks); n > 0 && joins(toks[n-1], tok) {
			toks[n-1].Text += tok.Text
			toks[n-1].stop = tok.stop
			if toks[n-1].Kind != KindSymbol {
				toks[n-1].Kind = KindWord
			}
			continue
		}
		toks = append(toks, tok)
	}
	return toks, nil
}

// Statements splits src on top-level semicolons and drops statements with no
// significant tokens. A CREATE TRIGGER body stays one statement.
func Statements(src string) ([][]Token, error) {
	if _, err := Tokenize(src); err != nil {
		return nil, err
	}
	parts, info := sqliteparserutils.SplitStatement(src)
	if info.IncompleteMultilineComment {
		return nil, fmt.Errorf("%w: block comment", ErrUnterminated)
	}

	out := make([][]Token, 0, len(parts))
	for _, p := range parts {
		toks, err := Tokenize(p)
		if err != nil {
			return nil, err
		}
		if len(significant(toks)) > 0 {
			out = append(out, toks)
		}
	}
	return out, nil
}

func kindOf(t antlr.Token) Kind {
	typ := t.GetTokenType()
	switch {
	case typ == sqliteparser.SQLiteLexerSPACES:
		return KindSpace
	case typ == sqliteparser.SQLiteLexerSINGLE_LINE_COMMENT, typ == sqliteparser.SQLiteLexerMULTILINE_COMMENT:
		return KindComment
	case typ == sqliteparser.SQLiteLexerSTRING_LITERAL, typ == sqliteparser.SQLiteLexerBLOB_LITERAL:
		return KindString
	case typ == sqliteparser.SQLiteLexerNUMERIC_LITERAL:
		return KindNumber
	case typ == sqliteparser.SQLiteLexerBIND_PARAMETER:
		return KindParam
	case typ == sqliteparser.SQLiteLexerIDENTIFIER:
		switch t.GetText()[0] {
		case '"', '`', '[':
			return KindQuoted
		}
		return KindWord
	case typ >= sqliteparser.SQLiteLexerABORT_ && typ < sqliteparser.SQLiteLexerIDENTIFIER:
		return KindWord
	case typ == sqliteparser.SQLiteLexerUNEXPECTED_CHAR && isLetter(t.GetText()):
		return KindWord
	}
	return KindSymbol
}

// joins reports whether cur continues prev. The grammar only knows ASCII
// identifiers and has no JSON arrows, so "café" and "->>" arrive in pieces.
func joins(prev, cur Token) bool {
	if prev.stop+1 != cur.start {
		return false
	}
	switch {
	case prev.Kind == KindWord && cur.Kind == KindWord:
		return !isASCII(prev.Text) || !isASCII(cur.Text)
	case prev.Kind == KindSymbol && cur.Kind == KindSymbol:
		return prev.Text == "-" && (cur.Text == ">" || cur.Text == ">>")
	}
	return false
}

// significant filters out space and comments.
func significant(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Significant() {
			out = append(out, t)
		}
	}
	return out
}

// isLetter reports whether s is a single non-ASCII letter, which the grammar
// emits as an unexpected character.
func isLetter(s string) bool {
	rs := []rune(s)
	return len(rs) == 1 && rs[0] > unicode.MaxASCII && unicode.IsLetter(rs[0])
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
