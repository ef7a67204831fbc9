package jack

import (
	"fmt"
	"strconv"

	"hackforge.dev/n2t/pkg/symtab"
	"hackforge.dev/n2t/pkg/token"
	"hackforge.dev/n2t/pkg/vm"
	"hackforge.dev/n2t/pkg/xmlutil"
)

// ----------------------------------------------------------------------------
// Parser

// Parser is a predictive recursive-descent walker with a look-ahead of one token. Each
// grammar production is a method that consumes its tokens, maintains the symbol tables
// and emits vm.Operation values as a side effect; the Parser is the only emitter of VM
// code, the lexer and symbol table are otherwise side-effect-free.
type Parser struct {
	lex    *token.Lexer
	scopes *symtab.Scopes

	class  string
	module vm.Module

	ifCounter    int // class-scoped, monotone across all of the class's subroutines
	whileCounter int

	currentSub string // "Class.subroutine", used to label call return sites
	callSite   uint16 // count of calls emitted so far within currentSub

	trace *xmlutil.Writer // non-nil once SetTrace is called; drives the Parse Tree XML dump
}

// NewParser returns a Parser ready to compile a single Jack class from src.
func NewParser(src string) *Parser {
	return &Parser{lex: token.New(src), scopes: symtab.NewScopes()}
}

// Parse compiles exactly one 'class' production (one Jack source file) and returns its
// lowered VM module.
func (p *Parser) Parse() (vm.Module, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseClass()
}

// ----------------------------------------------------------------------------
// Token plumbing

// advance consumes the current token (tracing it as a leaf, if tracing is enabled) and
// loads the next one.
func (p *Parser) advance() error {
	p.traceLeaf()

	ok, err := p.lex.Advance()
	if err != nil {
		return fmt.Errorf("jack: %w", err)
	}
	_ = ok // false just means EOF; cur() then reports the zero Token, which no expect* matches
	return nil
}

func (p *Parser) cur() token.Token { return p.lex.CurrentToken() }

func (p *Parser) atKeyword(k token.Keyword) bool {
	c := p.cur()
	return c.Kind == token.Keyword && c.Keyword == k
}

func (p *Parser) atSymbol(s string) bool {
	c := p.cur()
	return c.Kind == token.Symbol && c.Text == s
}

func (p *Parser) expectKeyword(k token.Keyword) error {
	if !p.atKeyword(k) {
		return fmt.Errorf("jack: expected keyword %q, got %q", k, p.cur().Text)
	}
	return p.advance()
}

func (p *Parser) expectSymbol(s string) error {
	if !p.atSymbol(s) {
		return fmt.Errorf("jack: expected %q, got %q", s, p.cur().Text)
	}
	return p.advance()
}

func (p *Parser) expectIdentifier() (string, error) {
	c := p.cur()
	if c.Kind != token.Identifier {
		return "", fmt.Errorf("jack: expected identifier, got %q", c.Text)
	}
	return c.Text, p.advance()
}

// expectType consumes one of 'int'|'char'|'boolean' or a class-name identifier, returning
// its textual form as stored in the symbol table.
func (p *Parser) expectType() (string, error) {
	c := p.cur()
	switch {
	case c.Kind == token.Keyword && (c.Keyword == token.Int || c.Keyword == token.Char || c.Keyword == token.Boolean):
		return c.Text, p.advance()
	case c.Kind == token.Identifier:
		return c.Text, p.advance()
	default:
		return "", fmt.Errorf("jack: expected type, got %q", c.Text)
	}
}

func (p *Parser) emit(op vm.Operation) { p.module = append(p.module, op) }

// ----------------------------------------------------------------------------
// Class

func (p *Parser) parseClass() (vm.Module, error) {
	p.traceOpen("class")
	defer p.traceClose("class")

	if err := p.expectKeyword(token.Class); err != nil {
		return nil, err
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	p.class = name
	p.scopes.ResetClass()

	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}

	for p.atKeyword(token.Static) || p.atKeyword(token.Field) {
		if err := p.parseClassVarDec(); err != nil {
			return nil, err
		}
	}

	for p.atKeyword(token.Constructor) || p.atKeyword(token.Function) || p.atKeyword(token.Method) {
		if err := p.parseSubroutineDec(); err != nil {
			return nil, err
		}
	}

	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}

	return p.module, nil
}

func (p *Parser) parseClassVarDec() error {
	p.traceOpen("classVarDec")
	defer p.traceClose("classVarDec")

	kind := symtab.KindStatic
	if p.atKeyword(token.Field) {
		kind = symtab.KindField
	}
	if err := p.advance(); err != nil { // consume 'static'|'field'
		return err
	}

	typ, err := p.expectType()
	if err != nil {
		return err
	}

	for {
		name, err := p.expectIdentifier()
		if err != nil {
			return err
		}
		if err := p.scopes.Class.Define(name, typ, kind); err != nil {
			return fmt.Errorf("jack: %w", err)
		}
		if !p.atSymbol(",") {
			break
		}
		if err := p.advance(); err != nil {
			return err
		}
	}

	return p.expectSymbol(";")
}

// ----------------------------------------------------------------------------
// Subroutines

func (p *Parser) parseSubroutineDec() error {
	p.traceOpen("subroutineDec")
	defer p.traceClose("subroutineDec")

	var kind token.Keyword
	switch {
	case p.atKeyword(token.Constructor):
		kind = token.Constructor
	case p.atKeyword(token.Function):
		kind = token.Function
	case p.atKeyword(token.Method):
		kind = token.Method
	}
	if err := p.advance(); err != nil {
		return err
	}

	// Return type: 'void' or a type; not needed for codegen, just consumed.
	if p.atKeyword(token.Void) {
		if err := p.advance(); err != nil {
			return err
		}
	} else if _, err := p.expectType(); err != nil {
		return err
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return err
	}

	p.scopes.ResetSubroutine()
	p.currentSub = fmt.Sprintf("%s.%s", p.class, name)
	p.callSite = 0

	if kind == token.Method {
		if err := p.scopes.Subroutine.Define("this", p.class, symtab.KindArgument); err != nil {
			return fmt.Errorf("jack: %w", err)
		}
	}

	if err := p.expectSymbol("("); err != nil {
		return err
	}
	p.traceOpen("parameterList")
	paramErr := p.parseParamList()
	p.traceClose("parameterList")
	if paramErr != nil {
		return paramErr
	}
	if err := p.expectSymbol(")"); err != nil {
		return err
	}

	p.traceOpen("subroutineBody")
	defer p.traceClose("subroutineBody")

	if err := p.expectSymbol("{"); err != nil {
		return err
	}
	for p.atKeyword(token.Var) {
		if err := p.parseVarDec(); err != nil {
			return err
		}
	}

	nLocals := p.scopes.Subroutine.Count(symtab.KindLocal)
	p.emit(vm.FuncDecl{Name: p.currentSub, NLocals: uint16(nLocals)})

	switch kind {
	case token.Method:
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Argument, Index: 0})
		p.emit(vm.MemoryOp{Op: vm.Pop, Segment: vm.Pointer, Index: 0})
	case token.Constructor:
		nFields := p.scopes.Class.Count(symtab.KindField)
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Constant, Index: uint16(nFields)})
		p.emitCall("Memory.alloc", 1)
		p.emit(vm.MemoryOp{Op: vm.Pop, Segment: vm.Pointer, Index: 0})
	}

	p.traceOpen("statements")
	for !p.atSymbol("}") {
		if err := p.parseStatement(); err != nil {
			p.traceClose("statements")
			return err
		}
	}
	p.traceClose("statements")

	return p.expectSymbol("}")
}

func (p *Parser) parseParamList() error {
	if p.atSymbol(")") {
		return nil
	}

	for {
		typ, err := p.expectType()
		if err != nil {
			return err
		}
		name, err := p.expectIdentifier()
		if err != nil {
			return err
		}
		if err := p.scopes.Subroutine.Define(name, typ, symtab.KindArgument); err != nil {
			return fmt.Errorf("jack: %w", err)
		}
		if !p.atSymbol(",") {
			return nil
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
}

func (p *Parser) parseVarDec() error {
	p.traceOpen("varDec")
	defer p.traceClose("varDec")

	if err := p.expectKeyword(token.Var); err != nil {
		return err
	}

	typ, err := p.expectType()
	if err != nil {
		return err
	}

	for {
		name, err := p.expectIdentifier()
		if err != nil {
			return err
		}
		if err := p.scopes.Subroutine.Define(name, typ, symtab.KindLocal); err != nil {
			return fmt.Errorf("jack: %w", err)
		}
		if !p.atSymbol(",") {
			break
		}
		if err := p.advance(); err != nil {
			return err
		}
	}

	return p.expectSymbol(";")
}

// ----------------------------------------------------------------------------
// Statements

func (p *Parser) parseStatement() error {
	switch {
	case p.atKeyword(token.Let):
		return p.parseLet()
	case p.atKeyword(token.If):
		return p.parseIf()
	case p.atKeyword(token.While):
		return p.parseWhile()
	case p.atKeyword(token.Do):
		return p.parseDo()
	case p.atKeyword(token.Return):
		return p.parseReturn()
	default:
		return fmt.Errorf("jack: expected statement, got %q", p.cur().Text)
	}
}

func (p *Parser) parseLet() error {
	p.traceOpen("letStatement")
	defer p.traceClose("letStatement")

	if err := p.expectKeyword(token.Let); err != nil {
		return err
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return err
	}
	sym, ok := p.scopes.Resolve(name)
	if !ok {
		return fmt.Errorf("jack: undefined variable %q", name)
	}

	if p.atSymbol("[") {
		if err := p.advance(); err != nil {
			return err
		}
		p.pushVar(sym)
		if err := p.parseExpr(); err != nil {
			return err
		}
		if err := p.expectSymbol("]"); err != nil {
			return err
		}
		p.emit(vm.ArithmeticOp{Op: vm.Add})

		if err := p.expectSymbol("="); err != nil {
			return err
		}
		if err := p.parseExpr(); err != nil {
			return err
		}
		if err := p.expectSymbol(";"); err != nil {
			return err
		}

		p.emit(vm.MemoryOp{Op: vm.Pop, Segment: vm.Temp, Index: 0})
		p.emit(vm.MemoryOp{Op: vm.Pop, Segment: vm.Pointer, Index: 1})
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Temp, Index: 0})
		p.emit(vm.MemoryOp{Op: vm.Pop, Segment: vm.That, Index: 0})
		return nil
	}

	if err := p.expectSymbol("="); err != nil {
		return err
	}
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.expectSymbol(";"); err != nil {
		return err
	}

	p.emit(vm.MemoryOp{Op: vm.Pop, Segment: segmentOf(sym.Kind), Index: uint16(sym.Index)})
	return nil
}

func (p *Parser) parseIf() error {
	p.traceOpen("ifStatement")
	defer p.traceClose("ifStatement")

	if err := p.expectKeyword(token.If); err != nil {
		return err
	}

	i := p.ifCounter
	p.ifCounter++
	trueLbl := fmt.Sprintf("IF_TRUE_%d", i)
	falseLbl := fmt.Sprintf("IF_FALSE_%d", i)
	endLbl := fmt.Sprintf("IF_END_%d", i)

	if err := p.expectSymbol("("); err != nil {
		return err
	}
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.expectSymbol(")"); err != nil {
		return err
	}

	p.emit(vm.GotoOp{Jump: vm.IfGoto, Label: trueLbl})
	p.emit(vm.GotoOp{Jump: vm.Goto, Label: falseLbl})
	p.emit(vm.LabelDecl{Name: trueLbl})

	if err := p.expectSymbol("{"); err != nil {
		return err
	}
	p.traceOpen("statements")
	for !p.atSymbol("}") {
		if err := p.parseStatement(); err != nil {
			p.traceClose("statements")
			return err
		}
	}
	p.traceClose("statements")
	if err := p.expectSymbol("}"); err != nil {
		return err
	}

	if p.atKeyword(token.Else) {
		if err := p.advance(); err != nil {
			return err
		}
		p.emit(vm.GotoOp{Jump: vm.Goto, Label: endLbl})
		p.emit(vm.LabelDecl{Name: falseLbl})

		if err := p.expectSymbol("{"); err != nil {
			return err
		}
		p.traceOpen("statements")
		for !p.atSymbol("}") {
			if err := p.parseStatement(); err != nil {
				p.traceClose("statements")
				return err
			}
		}
		p.traceClose("statements")
		if err := p.expectSymbol("}"); err != nil {
			return err
		}
		p.emit(vm.LabelDecl{Name: endLbl})
		return nil
	}

	p.emit(vm.LabelDecl{Name: falseLbl})
	return nil
}

func (p *Parser) parseWhile() error {
	p.traceOpen("whileStatement")
	defer p.traceClose("whileStatement")

	if err := p.expectKeyword(token.While); err != nil {
		return err
	}

	i := p.whileCounter
	p.whileCounter++
	expLbl := fmt.Sprintf("WHILE_EXP_%d", i)
	endLbl := fmt.Sprintf("WHILE_END_%d", i)

	p.emit(vm.LabelDecl{Name: expLbl})

	if err := p.expectSymbol("("); err != nil {
		return err
	}
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.expectSymbol(")"); err != nil {
		return err
	}

	p.emit(vm.ArithmeticOp{Op: vm.Not})
	p.emit(vm.GotoOp{Jump: vm.IfGoto, Label: endLbl})

	if err := p.expectSymbol("{"); err != nil {
		return err
	}
	p.traceOpen("statements")
	for !p.atSymbol("}") {
		if err := p.parseStatement(); err != nil {
			p.traceClose("statements")
			return err
		}
	}
	p.traceClose("statements")
	if err := p.expectSymbol("}"); err != nil {
		return err
	}

	p.emit(vm.GotoOp{Jump: vm.Goto, Label: expLbl})
	p.emit(vm.LabelDecl{Name: endLbl})
	return nil
}

func (p *Parser) parseDo() error {
	p.traceOpen("doStatement")
	defer p.traceClose("doStatement")

	if err := p.expectKeyword(token.Do); err != nil {
		return err
	}
	if err := p.parseSubroutineCall(); err != nil {
		return err
	}
	if err := p.expectSymbol(";"); err != nil {
		return err
	}
	p.emit(vm.MemoryOp{Op: vm.Pop, Segment: vm.Temp, Index: 0})
	return nil
}

func (p *Parser) parseReturn() error {
	p.traceOpen("returnStatement")
	defer p.traceClose("returnStatement")

	if err := p.expectKeyword(token.Return); err != nil {
		return err
	}

	if !p.atSymbol(";") {
		if err := p.parseExpr(); err != nil {
			return err
		}
	} else {
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Constant, Index: 0})
	}

	if err := p.expectSymbol(";"); err != nil {
		return err
	}
	p.emit(vm.ReturnOp{})
	return nil
}

// ----------------------------------------------------------------------------
// Expressions

var binops = map[string]vm.ArithOpType{
	"+": vm.Add, "-": vm.Sub, "&": vm.And, "|": vm.Or, "<": vm.Lt, ">": vm.Gt, "=": vm.Eq,
}

func (p *Parser) parseExpr() error {
	p.traceOpen("expression")
	defer p.traceClose("expression")

	if err := p.parseTerm(); err != nil {
		return err
	}

	for {
		c := p.cur()
		if c.Kind != token.Symbol {
			return nil
		}

		switch c.Text {
		case "*":
			if err := p.advance(); err != nil {
				return err
			}
			if err := p.parseTerm(); err != nil {
				return err
			}
			p.emitCall("Math.multiply", 2)
		case "/":
			if err := p.advance(); err != nil {
				return err
			}
			if err := p.parseTerm(); err != nil {
				return err
			}
			p.emitCall("Math.divide", 2)
		default:
			op, ok := binops[c.Text]
			if !ok {
				return nil
			}
			if err := p.advance(); err != nil {
				return err
			}
			if err := p.parseTerm(); err != nil {
				return err
			}
			p.emit(vm.ArithmeticOp{Op: op})
		}
	}
}

func (p *Parser) parseTerm() error {
	p.traceOpen("term")
	defer p.traceClose("term")

	c := p.cur()

	switch {
	case c.Kind == token.IntConst:
		n, err := strconv.ParseUint(c.Text, 10, 16)
		if err != nil {
			return fmt.Errorf("jack: invalid integer constant %q", c.Text)
		}
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Constant, Index: uint16(n)})
		return p.advance()

	case c.Kind == token.StrConst:
		s := c.Text
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Constant, Index: uint16(len(s))})
		p.emitCall("String.new", 1)
		for _, ch := range s {
			p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Constant, Index: uint16(ch)})
			p.emitCall("String.appendChar", 2)
		}
		return p.advance()

	case c.Kind == token.Keyword && c.Keyword == token.True:
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Constant, Index: 0})
		p.emit(vm.ArithmeticOp{Op: vm.Not})
		return p.advance()

	case c.Kind == token.Keyword && (c.Keyword == token.False || c.Keyword == token.Null):
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Constant, Index: 0})
		return p.advance()

	case c.Kind == token.Keyword && c.Keyword == token.This:
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Pointer, Index: 0})
		return p.advance()

	case c.Kind == token.Symbol && c.Text == "(":
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseExpr(); err != nil {
			return err
		}
		return p.expectSymbol(")")

	case c.Kind == token.Symbol && (c.Text == "-" || c.Text == "~"):
		op := vm.Neg
		if c.Text == "~" {
			op = vm.Not
		}
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseTerm(); err != nil {
			return err
		}
		p.emit(vm.ArithmeticOp{Op: op})
		return nil

	case c.Kind == token.Identifier:
		name := c.Text
		if err := p.advance(); err != nil {
			return err
		}

		switch {
		case p.atSymbol("["):
			sym, ok := p.scopes.Resolve(name)
			if !ok {
				return fmt.Errorf("jack: undefined variable %q", name)
			}
			if err := p.advance(); err != nil {
				return err
			}
			p.pushVar(sym)
			if err := p.parseExpr(); err != nil {
				return err
			}
			if err := p.expectSymbol("]"); err != nil {
				return err
			}
			p.emit(vm.ArithmeticOp{Op: vm.Add})
			p.emit(vm.MemoryOp{Op: vm.Pop, Segment: vm.Pointer, Index: 1})
			p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.That, Index: 0})
			return nil

		case p.atSymbol("(") || p.atSymbol("."):
			return p.parseSubroutineCallFrom(name)

		default:
			sym, ok := p.scopes.Resolve(name)
			if !ok {
				return fmt.Errorf("jack: undefined variable %q", name)
			}
			p.pushVar(sym)
			return nil
		}

	default:
		return fmt.Errorf("jack: unexpected token %q in expression", c.Text)
	}
}

// parseSubroutineCall is used from 'do' statements, where the call always starts fresh at
// the current token (an identifier that hasn't been consumed yet).
func (p *Parser) parseSubroutineCall() error {
	name, err := p.expectIdentifier()
	if err != nil {
		return err
	}
	return p.parseSubroutineCallFrom(name)
}

// parseSubroutineCallFrom compiles a subroutineCall production whose leading identifier
// ('name') has already been consumed by the caller (parseTerm or parseSubroutineCall).
func (p *Parser) parseSubroutineCallFrom(name string) error {
	if p.atSymbol("(") {
		p.emit(vm.MemoryOp{Op: vm.Push, Segment: vm.Pointer, Index: 0})
		if err := p.advance(); err != nil {
			return err
		}
		n, err := p.parseExprList()
		if err != nil {
			return err
		}
		if err := p.expectSymbol(")"); err != nil {
			return err
		}
		p.emitCall(fmt.Sprintf("%s.%s", p.class, name), n+1)
		return nil
	}

	if err := p.expectSymbol("."); err != nil {
		return err
	}
	sub, err := p.expectIdentifier()
	if err != nil {
		return err
	}
	if err := p.expectSymbol("("); err != nil {
		return err
	}

	if sym, ok := p.scopes.Resolve(name); ok {
		p.pushVar(sym)
		n, err := p.parseExprList()
		if err != nil {
			return err
		}
		if err := p.expectSymbol(")"); err != nil {
			return err
		}
		p.emitCall(fmt.Sprintf("%s.%s", sym.Type, sub), n+1)
		return nil
	}

	n, err := p.parseExprList()
	if err != nil {
		return err
	}
	if err := p.expectSymbol(")"); err != nil {
		return err
	}
	p.emitCall(fmt.Sprintf("%s.%s", name, sub), n)
	return nil
}

// parseExprList compiles a comma separated list of expressions, returning the count.
func (p *Parser) parseExprList() (int, error) {
	p.traceOpen("expressionList")
	defer p.traceClose("expressionList")

	if p.atSymbol(")") {
		return 0, nil
	}

	n := 0
	for {
		if err := p.parseExpr(); err != nil {
			return 0, err
		}
		n++
		if !p.atSymbol(",") {
			return n, nil
		}
		if err := p.advance(); err != nil {
			return 0, err
		}
	}
}

// ----------------------------------------------------------------------------
// Helpers

func segmentOf(k symtab.Kind) vm.SegmentType {
	switch k {
	case symtab.KindStatic:
		return vm.Static
	case symtab.KindField:
		return vm.This
	case symtab.KindArgument:
		return vm.Argument
	case symtab.KindLocal:
		return vm.Local
	default:
		return vm.Local
	}
}

func (p *Parser) pushVar(sym symtab.Symbol) {
	p.emit(vm.MemoryOp{Op: vm.Push, Segment: segmentOf(sym.Kind), Index: uint16(sym.Index)})
}

// emitCall emits a FuncCallOp, stamping Caller/ReturnSite from the return-site counter of
// the subroutine currently being compiled.
func (p *Parser) emitCall(name string, nArgs int) {
	p.emit(vm.FuncCallOp{Name: name, NArgs: uint16(nArgs), Caller: p.currentSub, ReturnSite: p.callSite})
	p.callSite++
}
