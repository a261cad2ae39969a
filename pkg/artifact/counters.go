package artifact

import (
	"strconv"
	"strings"

	"github.com/spyroot/benchctl/pkg/api"
)

// CounterParser turns raw counter-file bytes pulled from a workload into
// named series (§1 "out of scope... the counter-file parsers" is the
// external collaborator this interface stands in for; benchctl ships a
// default parser matched to its own sampling helper's row format since the
// real upstream parser is not specified).
type CounterParser interface {
	Parse(data []byte) ([]api.SampleSeries, error)
}

// DefaultCounterParser parses the "timestamp,key=value,key=value,..." row
// format emitted by profile.SamplingHelperScript and the receiver's stat
// log wrapper: one row per sampling tick, one column per counter.
type DefaultCounterParser struct{}

var _ CounterParser = DefaultCounterParser{}

func (DefaultCounterParser) Parse(data []byte) ([]api.SampleSeries, error) {
	order := make([]string, 0)
	values := make(map[string][]int64)

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		for _, kv := range fields[1:] {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			n, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
			if err != nil {
				continue
			}
			if _, ok := values[key]; !ok {
				order = append(order, key)
			}
			values[key] = append(values[key], n)
		}
	}

	series := make([]api.SampleSeries, 0, len(order))
	for _, key := range order {
		series = append(series, api.SampleSeries{
			Name:   key,
			Family: familyFor(key),
			Values: values[key],
		})
	}
	return series, nil
}

func familyFor(name string) api.SeriesFamily {
	switch name {
	case "pkts_tx", "rx_pps":
		return api.FamilyRateCounter
	case "rx_packets", "rx_bytes":
		return api.FamilyPacketCounter
	default:
		return api.FamilyPortCounter
	}
}
