package jack

import (
	"io"

	"hackforge.dev/n2t/pkg/token"
	"hackforge.dev/n2t/pkg/xmlutil"
)

// ----------------------------------------------------------------------------
// Token XML

// DumpTokens lexes src independently of Parse (it needs no symbol table or VM emission)
// and writes its token stream as the Token XML format: a root <tokens> element with one
// leaf per token, tagged by its Kind.
func DumpTokens(src string, w io.Writer) error {
	lex := token.New(src)
	xw := xmlutil.New(w)
	xw.Open("tokens")

	for {
		ok, err := lex.Advance()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		xw.Leaf(string(lex.CurrentKind()), lex.CurrentText())
	}

	xw.Close("tokens")
	return nil
}

// ----------------------------------------------------------------------------
// Parse tree XML

// SetTrace attaches w as the destination for a Parse Tree XML dump: every grammar
// production the Parser enters/leaves emits a matching open/close tag, and every
// terminal token it consumes emits a token leaf, interleaved with VM emission in the same
// single pass. Must be called before Parse.
func (p *Parser) SetTrace(w io.Writer) { p.trace = xmlutil.New(w) }

func (p *Parser) traceOpen(tag string) {
	if p.trace != nil {
		p.trace.Open(tag)
	}
}

func (p *Parser) traceClose(tag string) {
	if p.trace != nil {
		p.trace.Close(tag)
	}
}

// traceLeaf emits the current token as a leaf, if tracing is enabled. A no-op before the
// first token has been loaded (Parse's priming advance) and at end of input.
func (p *Parser) traceLeaf() {
	if p.trace == nil {
		return
	}
	c := p.cur()
	if c.Kind == "" {
		return
	}
	p.trace.Leaf(string(c.Kind), c.Text)
}
