// Package profile implements the Profile Distributor and the
// profile filename grammar:
//
//	profile_<flows>_flows_pkt_size_<size>B_<rate>_rate_<mode>.lua
package profile

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/spyroot/benchctl/pkg/api"
)

var filenameRe = regexp.MustCompile(
	`^profile_(\d+)_flows_pkt_size_(\d+)B_(\d+)_rate_([a-z]+)\.lua$`,
)

// ParseFilename extracts pkt_size, num_flows, percent_rate and flow_mode
// from a profile filename per the naming grammar.
func ParseFilename(filename string) (api.Profile, error) {
	m := filenameRe.FindStringSubmatch(filename)
	if m == nil {
		return api.Profile{}, fmt.Errorf("profile filename %q does not match the expected grammar", filename)
	}

	flows, err := strconv.Atoi(m[1])
	if err != nil {
		return api.Profile{}, fmt.Errorf("invalid flow count in %q: %w", filename, err)
	}
	pktSize, err := strconv.Atoi(m[2])
	if err != nil {
		return api.Profile{}, fmt.Errorf("invalid packet size in %q: %w", filename, err)
	}
	rate, err := strconv.Atoi(m[3])
	if err != nil {
		return api.Profile{}, fmt.Errorf("invalid rate in %q: %w", filename, err)
	}

	mode := api.FlowMode(m[4])
	if !api.ValidFlowModes[mode] {
		return api.Profile{}, fmt.Errorf("unrecognized flow mode %q in %q", mode, filename)
	}

	return api.Profile{
		Filename:    filename,
		NumFlows:    flows,
		PktSize:     pktSize,
		PercentRate: rate,
		FlowMode:    mode,
	}, nil
}

// Filename renders a profile back into its canonical filename, the inverse
// of ParseFilename; used by generate_flow to name newly rendered artifacts.
func Filename(flows, pktSize, percentRate int, mode api.FlowMode) string {
	return fmt.Sprintf("profile_%d_flows_pkt_size_%dB_%d_rate_%s.lua", flows, pktSize, percentRate, mode)
}
