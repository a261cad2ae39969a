package profile

import (
	"fmt"

	"github.com/spyroot/benchctl/pkg/api"
)

// SweepSpec is the content of a --sweep TOML file consumed by generate_flow:
// one list of values per dimension (flows, pkt_sizes, rates, modes), which
// ExpandSweep crosses into (flows, rate, pkt-size, mode) combinations.
type SweepSpec struct {
	Flows       []int          `toml:"flows"`
	PktSizes    []int          `toml:"pkt_sizes"`
	Rates       []int          `toml:"rates"`
	Modes       []api.FlowMode `toml:"modes"`
}

// ExpandSweep enumerates the full cross-product of a SweepSpec into
// individual Profile filenames, mirroring the nested sweep loops of
// original_source/pkg_generation's shell drivers, re-expressed as a typed
// Go loop rather than templated shell string composition.
func ExpandSweep(spec SweepSpec) ([]string, error) {
	if len(spec.Flows) == 0 || len(spec.PktSizes) == 0 || len(spec.Rates) == 0 || len(spec.Modes) == 0 {
		return nil, fmt.Errorf("sweep spec must define at least one flows/pkt_sizes/rates/modes value")
	}

	var out []string
	for _, flows := range spec.Flows {
		for _, pktSize := range spec.PktSizes {
			for _, rate := range spec.Rates {
				for _, mode := range spec.Modes {
					if !api.ValidFlowModes[mode] {
						return nil, fmt.Errorf("unrecognized flow mode %q in sweep spec", mode)
					}
					out = append(out, Filename(flows, pktSize, rate, mode))
				}
			}
		}
	}
	return out, nil
}

// LiteralTemplater is a minimal api.ProfileTemplater used by generate_flow
// when no external templater is configured: the profile script is treated
// as an opaque artifact produced by an external templater, so this writes a
// literal placeholder body rather than reimplementing the real generator
// DSL.
type LiteralTemplater struct{}

var _ api.ProfileTemplater = LiteralTemplater{}

func (LiteralTemplater) Render(flows, pktSize, percentRate int, mode api.FlowMode) (string, []byte, error) {
	name := Filename(flows, pktSize, percentRate, mode)
	body := fmt.Sprintf(
		"-- generated placeholder profile\nflows = %d\npkt_size = %d\npercent_rate = %d\nmode = %q\n",
		flows, pktSize, percentRate, mode,
	)
	return name, []byte(body), nil
}
