package token

import (
	"fmt"
	"strings"
)

// ----------------------------------------------------------------------------
// Lexer

// The Lexer turns a character stream into a Token stream with a one-token look-behind.
//
// Unlike the parser-combinator front ends used elsewhere in this repository (see pkg/vm
// and pkg/asm), the Jack front end needs a stateful cursor that can step back exactly one
// token (the parser's look-ahead is bounded to one token, via Peek/StepBack) which a
// combinator library built around an immutable Scanner does not expose cleanly. So the
// Jack Lexer is hand-rolled in the classic read-rune/buffer style.
type Lexer struct {
	src []rune
	pos int // index of the next rune to examine

	cur     Token // last token produced by Advance
	lastLen int   // byte/rune length consumed to produce 'cur', for StepBack
	stepped bool  // true after StepBack, until the next Advance re-plays 'cur'
}

// Err is a Lexer failure; every variant is fatal to the current translation unit.
type Err struct {
	Kind string // "unterminated string" | "unterminated comment" | "invalid identifier" | "unexpected eof"
	Msg  string
}

func (e *Err) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

// New returns a Lexer positioned at the start of src.
func New(src string) *Lexer {
	return &Lexer{src: []rune(src)}
}

// Reset rewinds the lexer to the beginning of the original input.
func (l *Lexer) Reset() { l.pos, l.cur, l.lastLen, l.stepped = 0, Token{}, 0, false }

// CurrentToken returns the token last produced by Advance.
func (l *Lexer) CurrentToken() Token { return l.cur }

// CurrentText is a convenience accessor equivalent to CurrentToken().Text.
func (l *Lexer) CurrentText() string { return l.cur.Text }

// CurrentKind is a convenience accessor equivalent to CurrentToken().Kind.
func (l *Lexer) CurrentKind() Kind { return l.cur.Kind }

// StepBack rewinds the input cursor by the length of the most recently produced token, so
// that the next Advance call returns that same token again. Only a single step of rewind
// is ever required or supported; the parser never needs to backtrack further than that.
func (l *Lexer) StepBack() {
	l.pos -= l.lastLen
	l.stepped = true
}

// Peek returns the text of the next token without consuming it, restoring the cursor
// afterwards. A lex error encountered while peeking is swallowed (returns ""); the parser
// will see the same error surface when it actually calls Advance.
func (l *Lexer) Peek() string {
	mark, markCur, markLen, markStepped := l.pos, l.cur, l.lastLen, l.stepped
	defer func() { l.pos, l.cur, l.lastLen, l.stepped = mark, markCur, markLen, markStepped }()

	ok, err := l.Advance()
	if err != nil || !ok {
		return ""
	}
	return l.cur.Text
}

// AdvanceUntil consumes and discards tokens until one equal to kw is found (inclusive), or
// end of input is reached. Used by error-recovery-free callers that want to resynchronize
// at a statement boundary; the Jack grammar itself never calls it (there is no recovery).
func (l *Lexer) AdvanceUntil(kw string) {
	for {
		ok, err := l.Advance()
		if err != nil || !ok || l.cur.Text == kw {
			return
		}
	}
}

// Advance produces the next token and reports whether one was available (false at EOF).
func (l *Lexer) Advance() (bool, error) {
	l.stepped = false // StepBack already rewound 'pos'; this call re-lexes from there.

	l.skipWhitespace()
	if l.pos >= len(l.src) {
		l.cur, l.lastLen = Token{}, 0
		return false, nil
	}

	start := l.pos
	ch := l.src[l.pos]

	switch {
	case ch == '"':
		return l.lexString(start)
	case isDigit(ch):
		return l.lexInt(start)
	case ch == '/' && l.peekRune(1) == '/':
		l.pos += 2
		for l.pos < len(l.src) && l.src[l.pos] != '\n' {
			l.pos++
		}
		return l.Advance() // discard and recurse, per spec
	case ch == '/' && l.peekRune(1) == '*':
		return l.lexBlockComment(start)
	case strings.ContainsRune(Symbols, ch):
		l.pos++
		l.cur = Token{Kind: Symbol, Text: string(ch)}
		l.lastLen = 1
		return true, nil
	default:
		return l.lexWordOrKeyword(start)
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.pos++
		default:
			return
		}
	}
}

func (l *Lexer) peekRune(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *Lexer) lexString(start int) (bool, error) {
	l.pos++ // opening quote
	bodyStart := l.pos
	for l.pos < len(l.src) && l.src[l.pos] != '"' {
		if l.src[l.pos] == '\n' {
			return false, &Err{Kind: "unterminated string", Msg: "newline before closing quote"}
		}
		l.pos++
	}
	if l.pos >= len(l.src) {
		return false, &Err{Kind: "unterminated string", Msg: "end of input before closing quote"}
	}
	body := string(l.src[bodyStart:l.pos])
	l.pos++ // closing quote

	l.cur = Token{Kind: StrConst, Text: body}
	l.lastLen = l.pos - start // includes the two surrounding quotes
	return true, nil
}

func (l *Lexer) lexInt(start int) (bool, error) {
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	l.cur = Token{Kind: IntConst, Text: string(l.src[start:l.pos])}
	l.lastLen = l.pos - start
	return true, nil
}

func (l *Lexer) lexBlockComment(start int) (bool, error) {
	l.pos += 2 // "/*"
	for {
		if l.pos+1 >= len(l.src) {
			return false, &Err{Kind: "unterminated comment", Msg: "end of input before '*/'"}
		}
		if l.src[l.pos] == '*' && l.src[l.pos+1] == '/' {
			l.pos += 2
			break
		}
		l.pos++
	}
	return l.Advance() // discard and recurse, per spec
}

// lexWordOrKeyword implements the spec's rule: the token must be a prefix of some reserved
// word while being read, must equal a reserved word at termination, and must not be
// followed by an identifier-continuation character; on failure rewind and lex an identifier.
func (l *Lexer) lexWordOrKeyword(start int) (bool, error) {
	if !isIdentStart(l.src[start]) {
		return false, &Err{Kind: "invalid identifier", Msg: fmt.Sprintf("unexpected character %q", l.src[start])}
	}

	l.pos = start
	for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
		l.pos++
	}
	word := string(l.src[start:l.pos])

	if kw, ok := Keywords[word]; ok {
		l.cur = Token{Kind: Keyword, Text: word, Keyword: kw}
		l.lastLen = l.pos - start
		return true, nil
	}

	l.cur = Token{Kind: Identifier, Text: word}
	l.lastLen = l.pos - start
	return true, nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func isIdentCont(r rune) bool { return isIdentStart(r) || isDigit(r) }
