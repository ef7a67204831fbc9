package jack

import "hackforge.dev/n2t/pkg/vm"

// ----------------------------------------------------------------------------
// General information

// This section contains the Jack front end: a lexer (see pkg/token), a two-scope symbol
// table (see pkg/symtab) and a predictive recursive-descent Parser that merges parsing
// and code generation into a single pass, emitting vm.Operation values directly. There is
// no intermediate AST; unlike pkg/vm and pkg/asm, whose parser-combinator front ends build
// a tree the Lowerer walks afterwards, the Jack grammar's one-token look-ahead makes a
// classic Pascal-style "parse and emit in the same routine" walker the natural shape, and
// it's the one the book's own compiler chapter describes.

// A Program is the set of compiled translation units (one per Jack class), keyed by the
// class name. Each entry is already lowered to VM form; there is no separate lowering pass.
type Program map[string]vm.Module
