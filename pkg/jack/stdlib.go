package jack

import (
	_ "embed"
	"encoding/json"
)

// ----------------------------------------------------------------------------
// Standard library ABI

// The embedded ABI lets '--stdlib' builds resolve calls into Math, String, Array, Output,
// Screen, Keyboard, Memory and Sys without their VM bodies being present: it maps a fully
// qualified selector ("Class.subroutine") to the arity the call site must use, exactly as
// it would appear in an emitted 'call' instruction (so method selectors already include
// the implicit receiver argument).
//
//go:embed stdlib.json
var stdlibJSON []byte

// StandardLibraryABI holds the arities above, loaded once at package init.
var StandardLibraryABI = map[string]int{}

func init() {
	if err := json.Unmarshal(stdlibJSON, &StandardLibraryABI); err != nil {
		panic("jack: malformed stdlib.json: " + err.Error())
	}
}
