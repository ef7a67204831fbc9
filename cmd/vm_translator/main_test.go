package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func translate(t *testing.T, filename, source string, options map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	input := filepath.Join(dir, filename)
	if err := os.WriteFile(input, []byte(source), 0o644); err != nil {
		t.Fatalf("writing fixture: %s", err)
	}
	output := filepath.Join(dir, "prog.asm")

	opts := map[string]string{"output": output}
	for k, v := range options {
		opts[k] = v
	}

	if status := Handler([]string{input}, opts); status != 0 {
		t.Fatalf("unexpected exit status: %d", status)
	}

	compiled, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output file: %s", err)
	}
	return string(compiled)
}

func TestVMTranslatorSimpleAdd(t *testing.T) {
	asm := translate(t, "SimpleAdd.vm", `
push constant 7
push constant 8
add
`, nil)

	for _, want := range []string{"@7", "@8", "M=D+M"} {
		if !strings.Contains(asm, want) {
			t.Fatalf("expected assembly to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestVMTranslatorBasicLoop(t *testing.T) {
	asm := translate(t, "BasicLoop.vm", `
push constant 0
pop local 0
label LOOP_START
push argument 0
push local 0
add
pop local 0
push argument 0
push constant 1
sub
pop argument 0
push argument 0
if-goto LOOP_START
push local 0
`, nil)

	for _, want := range []string{"(BasicLoop.LOOP_START)", "@BasicLoop.LOOP_START"} {
		if !strings.Contains(asm, want) {
			t.Fatalf("expected assembly to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestVMTranslatorBootstrap(t *testing.T) {
	asm := translate(t, "Sys.vm", `
function Sys.init 0
call Main.main 0
pop temp 0
label WHILE
goto WHILE
`, map[string]string{"bootstrap": "true"})

	if !strings.Contains(asm, "@256") {
		t.Fatalf("expected bootstrap preamble to set SP=256, got:\n%s", asm)
	}
	if !strings.Contains(asm, "@Sys.init") {
		t.Fatalf("expected bootstrap preamble to call Sys.init, got:\n%s", asm)
	}
}
