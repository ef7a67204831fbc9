package vm_test

import (
	"testing"

	"hackforge.dev/n2t/pkg/vm"
)

func TestMemoryOp(t *testing.T) {
	codegen := vm.NewCodeGenerator(vm.Program{})

	test := func(inst vm.MemoryOp, expected string, fail bool) {
		res, err := codegen.GenerateMemoryOp(inst)
		if res != expected && !fail {
			t.Fail()
		}
		if err != nil && !fail {
			t.Fail()
		}
	}

	t.Run("Valid data", func(t *testing.T) {
		test(vm.MemoryOp{Op: vm.Push, Segment: vm.Constant, Index: 5}, "push constant 5", false)
		test(vm.MemoryOp{Op: vm.Pop, Segment: vm.Local, Index: 3}, "pop local 3", false)
		test(vm.MemoryOp{Op: vm.Push, Segment: vm.Argument, Index: 2}, "push argument 2", false)
		test(vm.MemoryOp{Op: vm.Pop, Segment: vm.Static, Index: 1}, "pop static 1", false)
	})

	t.Run("Invalid data", func(t *testing.T) {
		// Offset 8 for temp segment is out of range (valid: 0-7), should fail
		test(vm.MemoryOp{Op: vm.Push, Segment: vm.Temp, Index: 8}, "", true)
		// Offset 2 for pointer segment is out of range (valid: 0-1), should fail
		test(vm.MemoryOp{Op: vm.Pop, Segment: vm.Pointer, Index: 2}, "", true)
	})
}

func TestArithmeticOp(t *testing.T) {
	codegen := vm.NewCodeGenerator(vm.Program{})

	test := func(inst vm.ArithmeticOp, expected string) {
		res, err := codegen.GenerateArithmeticOp(inst)
		if res != expected || err != nil {
			t.Fail()
		}
	}

	t.Run("Valid data", func(t *testing.T) {
		test(vm.ArithmeticOp{Op: vm.Add}, "add")
		test(vm.ArithmeticOp{Op: vm.Sub}, "sub")
		test(vm.ArithmeticOp{Op: vm.Neg}, "neg")
		test(vm.ArithmeticOp{Op: vm.Eq}, "eq")
		test(vm.ArithmeticOp{Op: vm.Gt}, "gt")
		test(vm.ArithmeticOp{Op: vm.Lt}, "lt")
		test(vm.ArithmeticOp{Op: vm.And}, "and")
		test(vm.ArithmeticOp{Op: vm.Or}, "or")
		test(vm.ArithmeticOp{Op: vm.Not}, "not")
	})
}

func TestLabelDecl(t *testing.T) {
	codegen := vm.NewCodeGenerator(vm.Program{})

	test := func(inst vm.LabelDecl, expected string, fail bool) {
		res, err := codegen.GenerateLabelDecl(inst)
		if res != expected && !fail {
			t.Fail()
		}
		if err != nil && !fail {
			t.Fail()
		}
	}

	t.Run("Valid data", func(t *testing.T) {
		test(vm.LabelDecl{Name: "END"}, "label END", false)
		test(vm.LabelDecl{Name: "CHECK"}, "label CHECK", false)
		test(vm.LabelDecl{Name: "LOOP_START"}, "label LOOP_START", false)
	})

	t.Run("Invalid data", func(t *testing.T) {
		test(vm.LabelDecl{Name: ""}, "", true)
	})
}

func TestGotoOp(t *testing.T) {
	codegen := vm.NewCodeGenerator(vm.Program{})

	test := func(inst vm.GotoOp, expected string, fail bool) {
		res, err := codegen.GenerateGotoOp(inst)
		if res != expected && !fail {
			t.Fail()
		}
		if err != nil && !fail {
			t.Fail()
		}
	}

	t.Run("Valid data", func(t *testing.T) {
		test(vm.GotoOp{Jump: vm.Goto, Label: "END"}, "goto END", false)
		test(vm.GotoOp{Jump: vm.IfGoto, Label: "CHECK"}, "if-goto CHECK", false)
		test(vm.GotoOp{Jump: vm.Goto, Label: "LOOP_START"}, "goto LOOP_START", false)
		test(vm.GotoOp{Jump: vm.IfGoto, Label: "FUNC_RET"}, "if-goto FUNC_RET", false)
	})

	t.Run("Invalid data", func(t *testing.T) {
		test(vm.GotoOp{Jump: vm.Goto, Label: ""}, "", true)
		test(vm.GotoOp{Jump: vm.IfGoto, Label: ""}, "", true)
	})
}

func TestFuncDecl(t *testing.T) {
	codegen := vm.NewCodeGenerator(vm.Program{})

	test := func(inst vm.FuncDecl, expected string, fail bool) {
		res, err := codegen.GenerateFuncDecl(inst)
		if res != expected && !fail {
			t.Fail()
		}
		if err != nil && !fail {
			t.Fail()
		}
	}

	t.Run("Valid data", func(t *testing.T) {
		test(vm.FuncDecl{Name: "Main", NLocals: 0}, "function Main 0", false)
		test(vm.FuncDecl{Name: "ComputeSum", NLocals: 2}, "function ComputeSum 2", false)
		test(vm.FuncDecl{Name: "LoopHandler", NLocals: 10}, "function LoopHandler 10", false)
		test(vm.FuncDecl{Name: "f", NLocals: 1}, "function f 1", false)
		test(vm.FuncDecl{Name: "VeryLongNameWithNumbers123", NLocals: 7}, "function VeryLongNameWithNumbers123 7", false)
	})

	t.Run("Invalid data", func(t *testing.T) {
		test(vm.FuncDecl{Name: "", NLocals: 2}, "", true)
	})
}

func TestReturnOp(t *testing.T) {
	codegen := vm.NewCodeGenerator(vm.Program{})

	res, err := codegen.GenerateReturnOp(vm.ReturnOp{})
	if res != "return" || err != nil {
		t.Fail()
	}
}

func TestFuncCallOp(t *testing.T) {
	codegen := vm.NewCodeGenerator(vm.Program{})

	test := func(inst vm.FuncCallOp, expected string, fail bool) {
		res, err := codegen.GenerateFuncCallOp(inst)
		if res != expected && !fail {
			t.Fail()
		}
		if err != nil && !fail {
			t.Fail()
		}
	}

	t.Run("Valid data", func(t *testing.T) {
		test(vm.FuncCallOp{Name: "Main", NArgs: 0}, "call Main 0", false)
		test(vm.FuncCallOp{Name: "ComputeSum", NArgs: 2}, "call ComputeSum 2", false)
		test(vm.FuncCallOp{Name: "LoopHandler", NArgs: 10}, "call LoopHandler 10", false)
		test(vm.FuncCallOp{Name: "f", NArgs: 1}, "call f 1", false)
		test(vm.FuncCallOp{Name: "VeryLongNameWithNumbers123", NArgs: 7}, "call VeryLongNameWithNumbers123 7", false)
	})

	t.Run("Invalid data", func(t *testing.T) {
		test(vm.FuncCallOp{Name: "", NArgs: 2}, "", true)
	})
}
