package jack

import (
	"fmt"

	"hackforge.dev/n2t/pkg/vm"
)

// ----------------------------------------------------------------------------
// ABI linking

// CheckABI walks every FuncCallOp in prog and verifies that calls targeting a selector
// known to abi use the arity abi records. It does not require the callee to be otherwise
// defined in prog: this is the only form of "linking" a '--stdlib' build performs, since
// no actual library bodies are embedded, only their calling arities.
func CheckABI(prog vm.Program, abi map[string]int) error {
	for unit, module := range prog {
		for _, op := range module {
			call, ok := op.(vm.FuncCallOp)
			if !ok {
				continue
			}
			want, known := abi[call.Name]
			if !known {
				continue
			}
			if int(call.NArgs) != want {
				return fmt.Errorf("jack: %s: call to %q passes %d argument(s), want %d", unit, call.Name, call.NArgs, want)
			}
		}
	}
	return nil
}
