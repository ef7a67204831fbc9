package main

import (
	"os"
	"path/filepath"
	"testing"
)

func assemble(t *testing.T, source string) []string {
	t.Helper()
	dir := t.TempDir()

	input := filepath.Join(dir, "prog.asm")
	if err := os.WriteFile(input, []byte(source), 0o644); err != nil {
		t.Fatalf("writing fixture: %s", err)
	}
	output := filepath.Join(dir, "prog.hack")

	if status := Handler([]string{input, output}, nil); status != 0 {
		t.Fatalf("unexpected exit status: %d", status)
	}

	compiled, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output file: %s", err)
	}
	return splitLines(string(compiled))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}

func TestHackAssemblerArithmetic(t *testing.T) {
	// Adds the constants 2 and 3 together and stores the result in RAM[0], no symbols
	// involved besides the built-in 'A' and 'D' register aliases.
	source := `
@2
D=A
@3
D=D+A
@0
M=D
`
	expected := []string{
		"0000000000000010",
		"1110110000010000",
		"0000000000000011",
		"1110000010010000",
		"0000000000000000",
		"1110001100001000",
	}

	got := assemble(t, source)
	if len(got) != len(expected) {
		t.Fatalf("got %d lines, want %d: %v", len(got), len(expected), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], expected[i])
		}
	}
}

func TestHackAssemblerLabelsAndVariables(t *testing.T) {
	// Exercises the two-pass symbol table: 'LOOP' is a label resolved to the address of
	// the instruction right after its declaration, and 'i' is a fresh variable assigned
	// the first free RAM slot at address 16.
	source := `
(LOOP)
@i
M=1
@LOOP
0;JMP
`
	expected := []string{
		"0000000000010000",
		"1110111111001000",
		"0000000000000000",
		"1110101010000111",
	}

	got := assemble(t, source)
	if len(got) != len(expected) {
		t.Fatalf("got %d lines, want %d: %v", len(got), len(expected), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], expected[i])
		}
	}
}
