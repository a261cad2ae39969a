// Package api holds the vocabulary shared by every component of benchctl:
// the Pair/Workload/CoreAssignment data model, the external-collaborator
// interfaces the core consumes, and the sentinel error kinds.
package api

import "time"

// Workload is one pod participating in an Experiment: either a traffic
// generator (name begins with "tx") or a receiver (name begins with "rx").
type Workload struct {
	Name       string
	HostNode   string
	Hypervisor string // empty for bare-metal hosts
	PortMAC    string
	Cores      []int // ordered, de-duplicated, at least 2 entries once resolved
}

// Pair is an aligned (TX, RX) workload tuple.
type Pair struct {
	TX Workload
	RX Workload
}

// Name returns the canonical "<tx>-<rx>" identifier used for the pair's
// artifact subdirectory.
func (p Pair) Name() string {
	return p.TX.Name + "-" + p.RX.Name
}

// CoreAssignment is the (main, tx_cores, rx_cores) triple computed for one
// workload.
type CoreAssignment struct {
	Main     int
	TXCores  []int
	RXCores  []int
}

// FlowMode enumerates the supported profile filename grammar modes.
type FlowMode string

const (
	FlowModeSrcIP               FlowMode = "s"
	FlowModeSrcDstIP            FlowMode = "sd"
	FlowModeSrcIPPort           FlowMode = "sp"
	FlowModeDstIPPort           FlowMode = "dp"
	FlowModeSrcDstIPPort        FlowMode = "spd"
	FlowModeSrcDstIPSrcDstPort  FlowMode = "sdpp"
	FlowModeSrcDstIPSrcDstPortD FlowMode = "sdpd"
)

// ValidFlowModes lists every mode recognized by the profile filename grammar.
var ValidFlowModes = map[FlowMode]bool{
	FlowModeSrcIP:               true,
	FlowModeSrcDstIP:            true,
	FlowModeSrcIPPort:           true,
	FlowModeDstIPPort:           true,
	FlowModeSrcDstIPPort:        true,
	FlowModeSrcDstIPSrcDstPort:  true,
	FlowModeSrcDstIPSrcDstPortD: true,
}

// Profile is an opaque generator-script artifact plus the parameters
// extracted from its filename.
type Profile struct {
	Filename    string
	Path        string
	PktSize     int
	NumFlows    int
	PercentRate int
	FlowMode    FlowMode
}

// Basename strips the directory and extension, used to build artifact
// directory and archive filenames.
func (p Profile) Basename() string {
	name := p.Filename
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			name = name[i+1:]
			break
		}
	}
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}

// SeriesFamily tags which metric family a SampleSeries belongs to, replacing
// the dict-shaped "stats[key]=val" records of the source implementation with
// a closed set of variants.
type SeriesFamily int

const (
	FamilyRateCounter SeriesFamily = iota
	FamilyPacketCounter
	FamilyPortCounter
)

// SampleSeries is one named, per-counter ordered numeric sequence.
type SampleSeries struct {
	Name   string
	Family SeriesFamily
	Values []int64
}

// HypervisorSample is one row of a HypervisorStream: all counter fields for
// one virtual function at one point in time.
type HypervisorSample struct {
	Timestamp time.Time
	VFID      string
	NICName   string
	ESXiHost  string
	Counters  map[string]int64
}
