package vm

import (
	"fmt"

	"hackforge.dev/n2t/pkg/asm"
)

// ----------------------------------------------------------------------------
// Segment resolution

// indirectBase maps an indirect segment to the Hack register holding its base address; used by
// loadIntoD/popSegment to resolve local/argument/this/that through base+index indirection.
var indirectBase = map[SegmentType]string{
	Local:    "LCL",
	Argument: "ARG",
	This:     "THIS",
	That:     "THAT",
}

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a parsed VM Program (one Module per translation unit) and produces the
// single, linear asm.Program that implements it, synthesizing the full calling convention:
// frame save/restore on call, argument repositioning, and return-address label threading.
//
// compCount mints the 'COMP_k' labels used by eq/gt/lt and is scoped (reset) per translation
// unit. currentFunc tracks the enclosing function for branch-label qualification; it is reset
// implicitly by each FuncDecl and is empty while lowering module-level code outside any function.
type Lowerer struct {
	program Program

	unit        string // basename of the translation unit currently being lowered
	currentFunc string // name of the function currently being lowered, "" outside any function
	compCount   int    // monotone counter for COMP_k labels, reset per translation unit
	bootstrap   bool   // whether to prepend the SP=256 / call Sys.init preamble
}

// NewLowerer returns a Lowerer over the given Program. When bootstrap is true the emitted
// asm.Program is prefixed with the standard nand2tetris bootstrap sequence.
func NewLowerer(p Program, bootstrap bool) *Lowerer {
	return &Lowerer{program: p, bootstrap: bootstrap}
}

// Lower translates every module of the Program, in a deterministic (sorted) unit order, into
// one flat asm.Program, then appends the trailing infinite loop that halts the CPU once
// execution reaches the end of the translated program.
func (l *Lowerer) Lower() (asm.Program, error) {
	out := asm.Program{}

	if l.bootstrap {
		out = append(out, l.bootstrapPreamble()...)
	}

	for _, unit := range sortedKeys(l.program) {
		l.unit, l.currentFunc, l.compCount = unit, "", 0

		for _, op := range l.program[unit] {
			stmts, err := l.lowerOperation(op)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", unit, err)
			}
			out = append(out, stmts...)
		}
	}

	out = append(out, l.haltLoop()...)
	return out, nil
}

func sortedKeys(p Program) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func (l *Lowerer) lowerOperation(op Operation) ([]asm.Statement, error) {
	switch o := op.(type) {
	case MemoryOp:
		return l.lowerMemoryOp(o)
	case ArithmeticOp:
		return l.lowerArithmeticOp(o)
	case LabelDecl:
		return l.lowerLabelDecl(o)
	case GotoOp:
		return l.lowerGotoOp(o)
	case FuncDecl:
		return l.lowerFuncDecl(o)
	case FuncCallOp:
		return l.lowerFuncCallOp(o)
	case ReturnOp:
		return l.lowerReturnOp(), nil
	default:
		return nil, fmt.Errorf("unrecognized operation %T", op)
	}
}

// ----------------------------------------------------------------------------
// Memory operations

func (l *Lowerer) lowerMemoryOp(op MemoryOp) ([]asm.Statement, error) {
	if op.Op == Push {
		return l.pushSegment(op.Segment, op.Index)
	}
	if op.Op == Pop {
		return l.popSegment(op.Segment, op.Index)
	}
	return nil, fmt.Errorf("unrecognized memory operation %q", op.Op)
}

// pushSegment resolves the source into D, then increments SP and writes D to SP-1.
func (l *Lowerer) pushSegment(seg SegmentType, index uint16) ([]asm.Statement, error) {
	load, err := l.loadIntoD(seg, index)
	if err != nil {
		return nil, err
	}

	stmts := append(load,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
	return stmts, nil
}

// loadIntoD resolves segment+index into the D register, without touching SP.
func (l *Lowerer) loadIntoD(seg SegmentType, index uint16) ([]asm.Statement, error) {
	switch seg {
	case Constant:
		return []asm.Statement{
			asm.AInstruction{Location: fmt.Sprint(index)},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, nil

	case Temp:
		if index > 7 {
			return nil, fmt.Errorf("invalid 'temp' offset, got %d", index)
		}
		return []asm.Statement{
			asm.AInstruction{Location: fmt.Sprint(5 + index)},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	case Static:
		return []asm.Statement{
			asm.AInstruction{Location: fmt.Sprintf("%s.%d", l.unit, index)},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	case Pointer:
		reg, err := pointerRegister(index)
		if err != nil {
			return nil, err
		}
		return []asm.Statement{
			asm.AInstruction{Location: reg},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	case Local, Argument, This, That:
		base := indirectBase[seg]
		return []asm.Statement{
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(index)},
			asm.CInstruction{Dest: "A", Comp: "D+A"},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil

	default:
		return nil, fmt.Errorf("unrecognized segment %q", seg)
	}
}

// popSegment writes the current stack top into the resolved destination.
func (l *Lowerer) popSegment(seg SegmentType, index uint16) ([]asm.Statement, error) {
	switch seg {
	case Temp:
		if index > 7 {
			return nil, fmt.Errorf("invalid 'temp' offset, got %d", index)
		}
		return []asm.Statement{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(5 + index)},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil

	case Static:
		return []asm.Statement{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprintf("%s.%d", l.unit, index)},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil

	case Pointer:
		reg, err := pointerRegister(index)
		if err != nil {
			return nil, err
		}
		return []asm.Statement{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: reg},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil

	case Local, Argument, This, That:
		base := indirectBase[seg]
		// Stash the target address in R13 before touching the stack, since the index math
		// needs D/A and the pop itself also needs D/A.
		return []asm.Statement{
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(index)},
			asm.CInstruction{Dest: "D", Comp: "D+A"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "M", Comp: "D"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, nil

	default:
		return nil, fmt.Errorf("unrecognized segment %q for pop", seg)
	}
}

func pointerRegister(index uint16) (string, error) {
	switch index {
	case 0:
		return "THIS", nil
	case 1:
		return "THAT", nil
	default:
		return "", fmt.Errorf("invalid 'pointer' offset, got %d", index)
	}
}

// ----------------------------------------------------------------------------
// Arithmetic operations

// binaryComp/unaryComp give the comp bit-code computed in place on *(SP-1) once the right
// operand (for binary ops) has been loaded into D.
var binaryComp = map[ArithOpType]string{
	Add: "D+M",
	Sub: "M-D",
	And: "D&M",
	Or:  "D|M",
}

var unaryComp = map[ArithOpType]string{
	Neg: "-M",
	Not: "!M",
}

// comparisonJump gives the jump mnemonic used by eq/gt/lt once M-D (left minus right) has
// been computed: jump to the 'true' label when the comparison holds.
var comparisonJump = map[ArithOpType]string{
	Eq: "JEQ",
	Gt: "JGT",
	Lt: "JLT",
}

func (l *Lowerer) lowerArithmeticOp(op ArithmeticOp) ([]asm.Statement, error) {
	if comp, ok := unaryComp[op.Op]; ok {
		return []asm.Statement{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil
	}

	if comp, ok := binaryComp[op.Op]; ok {
		return []asm.Statement{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.CInstruction{Dest: "A", Comp: "A-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil
	}

	if jump, ok := comparisonJump[op.Op]; ok {
		return l.lowerComparison(jump), nil
	}

	return nil, fmt.Errorf("unrecognized arithmetic operation %q", op.Op)
}

func (l *Lowerer) lowerComparison(jump string) []asm.Statement {
	label := fmt.Sprintf("%s.COMP_%d", l.unit, l.compCount)
	l.compCount++

	return []asm.Statement{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.CInstruction{Dest: "M", Comp: "-1"}, // speculative 'true'
		asm.AInstruction{Location: label},
		asm.CInstruction{Comp: "D", Jump: jump},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "0"}, // corrective 'false'
		asm.LabelDecl{Name: label},
	}
}

// ----------------------------------------------------------------------------
// Branching

// qualify returns the fully-qualified branch label for name, scoped to the current function
// (l.currentFunc == "" means the label was declared outside any function).
func (l *Lowerer) qualify(name string) string {
	if l.currentFunc == "" {
		return fmt.Sprintf("%s.%s", l.unit, name)
	}
	return fmt.Sprintf("%s.%s$%s", l.unit, l.currentFunc, name)
}

func (l *Lowerer) lowerLabelDecl(op LabelDecl) ([]asm.Statement, error) {
	return []asm.Statement{asm.LabelDecl{Name: l.qualify(op.Name)}}, nil
}

func (l *Lowerer) lowerGotoOp(op GotoOp) ([]asm.Statement, error) {
	target := l.qualify(op.Label)

	if op.Jump == Goto {
		return []asm.Statement{
			asm.AInstruction{Location: target},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
		}, nil
	}
	if op.Jump == IfGoto {
		return []asm.Statement{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "AM", Comp: "M-1"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: target},
			asm.CInstruction{Comp: "D", Jump: "JNE"},
		}, nil
	}
	return nil, fmt.Errorf("unrecognized jump type %q", op.Jump)
}

// ----------------------------------------------------------------------------
// Functions

func (l *Lowerer) lowerFuncDecl(op FuncDecl) ([]asm.Statement, error) {
	l.currentFunc = op.Name

	stmts := []asm.Statement{asm.LabelDecl{Name: op.Name}}
	for i := uint16(0); i < op.NLocals; i++ {
		push, _ := l.pushSegment(Constant, 0)
		stmts = append(stmts, push...)
	}
	return stmts, nil
}

func (l *Lowerer) lowerFuncCallOp(op FuncCallOp) ([]asm.Statement, error) {
	retLabel := fmt.Sprintf("%s.%s$ret.%d", l.unit, op.Caller, op.ReturnSite)

	stmts := []asm.Statement{
		// 1. push return address
		asm.AInstruction{Location: retLabel},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
	// 2. push LCL, ARG, THIS, THAT
	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		stmts = append(stmts,
			asm.AInstruction{Location: reg},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "M", Comp: "M+1"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		)
	}
	// 3. ARG = SP - 5 - n
	stmts = append(stmts,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(5 + op.NArgs)},
		asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// 4. LCL = SP
	stmts = append(stmts,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// 5. goto F
	stmts = append(stmts,
		asm.AInstruction{Location: op.Name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	)
	// 6. emit the return-address label
	stmts = append(stmts, asm.LabelDecl{Name: retLabel})

	return stmts, nil
}

func (l *Lowerer) lowerReturnOp() []asm.Statement {
	return []asm.Statement{
		// 1. frame = LCL, stashed in R13
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// 2. retAddr = *(frame - 5), stashed in R14
		asm.AInstruction{Location: "5"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// 3. *ARG = pop()
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// 4. SP = ARG + 1
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// 5. THAT = *(frame-1), THIS = *(frame-2), ARG = *(frame-3), LCL = *(frame-4)
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "THAT"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "2"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "THIS"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "3"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "4"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},

		// 6. goto retAddr
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	}
}

// ----------------------------------------------------------------------------
// Program bookending

func (l *Lowerer) bootstrapPreamble() []asm.Statement {
	stmts := []asm.Statement{
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}

	l.unit, l.currentFunc = "Sys", "$bootstrap"
	call, _ := l.lowerFuncCallOp(FuncCallOp{Name: "Sys.init", NArgs: 0, Caller: l.currentFunc, ReturnSite: 0})
	return append(stmts, call...)
}

func (l *Lowerer) haltLoop() []asm.Statement {
	const label = "END"
	return []asm.Statement{
		asm.LabelDecl{Name: label},
		asm.AInstruction{Location: label},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	}
}
