package symtab

import "fmt"

// ----------------------------------------------------------------------------
// General information

// This section contains the two-scope symbol table used by the Jack parser/codegen.
//
// Two independent Table instances live during compilation: a class-scope table (holding
// statics and fields, reset once per class) and a subroutine-scope table (holding arguments
// and locals, reset at the start of each subroutine). Lookup consults the subroutine scope
// first, then falls back to the class scope, which is the sole mechanism by which the
// compiler resolves shadowing without a full block-scope stack.

// Kind is the closed set of symbol kinds a Table may hold.
type Kind string

const (
	KindStatic   Kind = "static"
	KindField    Kind = "field"
	KindArgument Kind = "argument"
	KindLocal    Kind = "local"
)

// Symbol is one entry of a Table: a name bound to a declared type, a kind, and a dense,
// per-kind slot index assigned at insertion time.
type Symbol struct {
	Name  string
	Type  string // a primitive keyword (int|char|boolean|void) or a class identifier
	Kind  Kind
	Index int
}

// Table holds the symbols declared in a single scope, along with one monotone counter per
// kind so that slot indices stay dense and start at 0.
type Table struct {
	entries map[string]Symbol
	counts  map[Kind]int
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: map[string]Symbol{}, counts: map[Kind]int{}}
}

// Reset wipes all entries and all kind counters back to zero.
func (t *Table) Reset() {
	t.entries = map[string]Symbol{}
	t.counts = map[Kind]int{}
}

// Define inserts name into the table, assigning it the next slot index for its kind.
// Redeclaring an existing name in the same table is an error.
func (t *Table) Define(name, typ string, kind Kind) error {
	if !validKind(kind) {
		return fmt.Errorf("symtab: invalid kind %q for symbol %q", kind, name)
	}
	if typ == "" {
		return fmt.Errorf("symtab: empty declared type for symbol %q", name)
	}
	if _, exists := t.entries[name]; exists {
		return fmt.Errorf("symtab: %q already declared in this scope", name)
	}

	index := t.counts[kind]
	t.entries[name] = Symbol{Name: name, Type: typ, Kind: kind, Index: index}
	t.counts[kind] = index + 1
	return nil
}

// Count returns the number of symbols of the given kind currently declared.
func (t *Table) Count(kind Kind) int { return t.counts[kind] }

// Contains reports whether name is declared in this table.
func (t *Table) Contains(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Lookup returns the Symbol bound to name, if any.
func (t *Table) Lookup(name string) (Symbol, bool) {
	sym, ok := t.entries[name]
	return sym, ok
}

func validKind(k Kind) bool {
	switch k {
	case KindStatic, KindField, KindArgument, KindLocal:
		return true
	default:
		return false
	}
}

// ----------------------------------------------------------------------------
// Scopes

// Scopes bundles the class-scope and subroutine-scope tables that coexist during the
// compilation of a single class, applying the subroutine-first lookup rule.
type Scopes struct {
	Class      *Table
	Subroutine *Table
}

// NewScopes returns a pair of empty, independent tables.
func NewScopes() *Scopes {
	return &Scopes{Class: New(), Subroutine: New()}
}

// ResetClass wipes the class-scope table; called once per class.
func (s *Scopes) ResetClass() { s.Class.Reset() }

// ResetSubroutine wipes the subroutine-scope table; called once per subroutine.
func (s *Scopes) ResetSubroutine() { s.Subroutine.Reset() }

// Resolve looks up name in the subroutine scope first, then the class scope.
func (s *Scopes) Resolve(name string) (Symbol, bool) {
	if sym, ok := s.Subroutine.Lookup(name); ok {
		return sym, true
	}
	return s.Class.Lookup(name)
}
