package generator

import (
	"fmt"

	"github.com/spyroot/benchctl/pkg/api"
)

// splitCores implements the core-split arithmetic. latency selects the
// mode that requires C >= 5 and further halves each side's cores across the
// two ports.
func splitCores(cores []int, latency bool) (api.CoreAssignment, error) {
	c := len(cores)
	if c < 2 {
		return api.CoreAssignment{}, fmt.Errorf("%w: %d cores available", api.ErrInsufficientCores, c)
	}
	if latency && c < 5 {
		return api.CoreAssignment{}, fmt.Errorf("%w: latency mode requires at least 5 cores, got %d", api.ErrInsufficientCores, c)
	}

	main := cores[0]

	if c == 2 {
		// Degenerate single-core mode: the remaining core is shared between
		// tx and rx. Retained as specified, not a bug, likely to under-perform.
		return api.CoreAssignment{Main: main, TXCores: []int{cores[1]}, RXCores: []int{cores[1]}}, nil
	}

	u := c - 1
	h := u / 2

	txCores := append([]int{}, cores[1:1+h]...)
	rxCores := append([]int{}, cores[1+h:1+2*h]...)
	// If u is odd, the last core (index 1+2h) is left idle.

	return api.CoreAssignment{Main: main, TXCores: txCores, RXCores: rxCores}, nil
}

// latencyPortSplit further halves tx/rx cores across the two ports in
// latency mode: tx_cores and rx_cores are each split again into halves
// bound to port 0 and port 1. Returns (port0, port1) for the given side;
// an odd count puts the extra core on port 1.
func latencyPortSplit(sideCores []int) (port0, port1 []int) {
	half := len(sideCores) / 2
	return sideCores[:half], sideCores[half:]
}
